package refresh

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/ideafeed/internal/clock"
)

// RefreshFunc は外部の取得処理。取得できた件数を返す。
type RefreshFunc func(ctx context.Context) (int, error)

// Runner は取得処理の起動方法を抽象化する。既定ではゴルーチンで実行する。
type Runner func(fn func())

// Recorder は再取得に関するメトリクスの記録先。
type Recorder interface {
	RecordRefresh(trigger string, success bool)
	RecordRetryScheduled(attempt int)
	RecordRetryExhausted()
}

// Option はCoordinatorの設定を変更する。
type Option func(*Coordinator)

// WithClock はタイマーに使用するClockを指定する。
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithRunner は取得処理の起動方法を指定する。
func WithRunner(r Runner) Option {
	return func(co *Coordinator) { co.run = r }
}

// WithLogger はロガーを指定する。
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithRecorder はメトリクスの記録先を指定する。
func WithRecorder(r Recorder) Option {
	return func(co *Coordinator) { co.recorder = r }
}

// WithOnChange は状態が変化するたびに呼び出されるコールバックを指定する。
// コールバックはCoordinatorのロック外で呼び出される。
func WithOnChange(fn func(State)) Option {
	return func(co *Coordinator) { co.onChange = fn }
}

// Coordinator はNextが返す副作用を実行する。
// 非同期の継続処理（タイマー発火・取得完了）はエポックとタイマートークンを持ち、
// モード切り替えなどで古くなったものは破棄される。
type Coordinator struct {
	policy   Policy
	refresh  RefreshFunc
	clock    clock.Clock
	run      Runner
	logger   *slog.Logger
	recorder Recorder
	onChange func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	epoch      int
	timer      clock.Timer
	timerToken int
	closed     bool
}

// NewCoordinator は新しいCoordinatorを生成する。
// itemBasedは初期モードがアイテム主体かどうか。
func NewCoordinator(policy Policy, itemBased bool, refresh RefreshFunc, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		policy:  policy.normalized(),
		refresh: refresh,
		clock:   clock.Real{},
		run:     func(fn func()) { go fn() },
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		state:   State{ItemBased: itemBased},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State は現在の状態のスナップショットを返す。
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Observe は取得元の件数を観測したことを通知する。
func (c *Coordinator) Observe(count int) {
	c.handle(Observed{Count: count}, nil)
}

// SetMode はモード切り替えを通知する。予約済みのタイマーは取り消され、
// 実行中の取得処理の結果は無視される。
func (c *Coordinator) SetMode(itemBased bool) {
	c.handle(ModeChanged{ItemBased: itemBased}, nil)
}

// VisibilityRegained は画面の再表示を通知する。
func (c *Coordinator) VisibilityRegained() {
	c.handle(Regained{Trigger: TriggerVisibility}, nil)
}

// ConnectivityRegained はネットワーク接続の回復を通知する。
func (c *Coordinator) ConnectivityRegained() {
	c.handle(Regained{Trigger: TriggerConnectivity}, nil)
}

// RetryNow は明示的な再試行を要求する。取得中の場合は何もしない。
func (c *Coordinator) RetryNow() {
	c.handle(RetryRequested{}, nil)
}

// Close はタイマーを停止し、以降のイベントを無視する。
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.epoch++
	c.cancel()
}

// handle はイベントを適用し、副作用を実行する。
// validがnilでなければロック内で評価し、falseならイベントを破棄する。
func (c *Coordinator) handle(ev Event, valid func() bool) bool {
	c.mu.Lock()
	if c.closed || (valid != nil && !valid()) {
		c.mu.Unlock()
		return false
	}

	prev := c.state
	next, effects := Next(c.policy, c.state, ev)
	c.state = next

	var launches []func()
	for _, eff := range effects {
		switch e := eff.(type) {
		case StartTimer:
			c.startTimerLocked(e)
		case CancelTimer:
			c.stopTimerLocked()
		case Supersede:
			c.epoch++
		case StartRefresh:
			epoch := c.epoch
			trigger := e.Trigger
			launches = append(launches, func() { c.execute(epoch, trigger) })
		case GiveUp:
			c.logger.Warn("自動再試行の上限に達しました",
				slog.Int("attempts", e.Attempts),
			)
			if c.recorder != nil {
				c.recorder.RecordRetryExhausted()
			}
		}
	}
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil && prev != next {
		onChange(next)
	}
	for _, launch := range launches {
		c.run(launch)
	}
	return true
}

func (c *Coordinator) startTimerLocked(e StartTimer) {
	c.stopTimerLocked()
	c.timerToken++
	token := c.timerToken
	epoch := c.epoch
	c.timer = c.clock.AfterFunc(e.Delay, func() {
		c.handle(TimerFired{}, func() bool {
			return token == c.timerToken && epoch == c.epoch
		})
	})

	c.logger.Info("空の結果のため再取得を予約しました",
		slog.Int("attempt", e.Attempt),
		slog.Duration("delay", e.Delay),
	)
	if c.recorder != nil {
		c.recorder.RecordRetryScheduled(e.Attempt)
	}
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerToken++
}

// execute は取得処理を実行し、完了をイベントとして戻す。
// 実行中にエポックが進んでいた場合、完了は破棄し件数の観測としてだけ扱う。
func (c *Coordinator) execute(epoch int, trigger Trigger) {
	count, err := c.refresh(c.ctx)

	if err != nil {
		c.logger.Error("アイテムの取得に失敗しました",
			slog.String("trigger", string(trigger)),
			slog.String("error", err.Error()),
		)
	}
	if c.recorder != nil {
		c.recorder.RecordRefresh(string(trigger), err == nil)
	}

	applied := c.handle(RefreshCompleted{Count: count, Err: err}, func() bool {
		return epoch == c.epoch
	})
	if applied || err != nil {
		return
	}

	c.logger.Debug("古い取得結果を破棄しました",
		slog.String("trigger", string(trigger)),
	)
	c.handle(Observed{Count: count}, nil)
}
