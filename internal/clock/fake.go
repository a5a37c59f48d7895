package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake は手動で時間を進めるClock。テスト用。
// Advanceを呼び出したゴルーチン上で、期限に達したタイマーを期限順に同期的に発火する。
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *Fake
	seq     int
	at      time.Time
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

// NewFake は指定時刻から始まるFakeを生成する。
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now は現在の仮想時刻を返す。
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc は仮想時刻でd経過後に発火するタイマーを登録する。
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, seq: c.seq, at: c.now.Add(d), delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance は仮想時刻をd進め、期限に達したタイマーを発火する。
// 発火したコールバックが新たに登録したタイマーも、期限内であれば続けて発火する。
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		f := next.f
		c.mu.Unlock()

		f()
	}
}

// Pending は未発火かつ未停止のタイマーの遅延時間を登録順に返す。
func (c *Fake) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			out = append(out, t.delay)
		}
	}
	return out
}

func (c *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// Stop はタイマーを停止する。
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
