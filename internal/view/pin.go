package view

import (
	"sync"
	"time"

	"github.com/hitoshi/ideafeed/internal/clock"
)

// DefaultPinDuration は新規投稿をピン留めしておく既定の時間。
const DefaultPinDuration = 10 * time.Second

// Pin は作成直後のアイテムを一定時間だけ先頭に固定するためのIDを保持する。
// 同時に保持できるIDは1つだけで、新しいIDを設定すると前のIDと期限タイマーは破棄される。
type Pin struct {
	mu       sync.Mutex
	clock    clock.Clock
	duration time.Duration
	id       string
	token    int
	timer    clock.Timer
	onExpire func(id string)
}

// NewPin はPinを生成する。
// onExpireは期限切れでIDが消去されたときに呼び出される（nil可）。
func NewPin(c clock.Clock, duration time.Duration, onExpire func(id string)) *Pin {
	if duration <= 0 {
		duration = DefaultPinDuration
	}
	return &Pin{clock: c, duration: duration, onExpire: onExpire}
}

// Set はIDをピン留めし、期限タイマーを開始する。
func (p *Pin) Set(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.id = id
	p.token++
	token := p.token
	p.timer = p.clock.AfterFunc(p.duration, func() { p.expire(token) })
}

// ID は現在ピン留めされているIDを返す。なければ空文字列。
func (p *Pin) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Clear はピン留めを解除し、期限タイマーを停止する。
func (p *Pin) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.id = ""
	p.token++
}

func (p *Pin) expire(token int) {
	p.mu.Lock()
	// 解除・再設定後に発火した古いタイマーは無視する
	if token != p.token || p.id == "" {
		p.mu.Unlock()
		return
	}
	id := p.id
	p.id = ""
	p.timer = nil
	cb := p.onExpire
	p.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

func (p *Pin) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
