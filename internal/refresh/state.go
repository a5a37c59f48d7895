// Package refresh は取得元が空の結果を返したときの再取得を制御する。
//
// 再取得のスケジュールは純粋な遷移関数Nextで表現し、
// タイマーや外部の取得処理といった副作用はCoordinatorが実行する。
// これにより実時間のタイマーを使わずにスケジュールそのものを検証できる。
package refresh

import "time"

const (
	// defaultBaseDelay はn回目の再試行の遅延 = defaultBaseDelay * n。
	defaultBaseDelay = 1200 * time.Millisecond
	// defaultMaxAttempts は自動再試行の上限回数。
	defaultMaxAttempts = 4
)

// Policy は再試行の遅延と上限回数を定める。
type Policy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// DefaultPolicy は既定の再試行ポリシー（1200ms刻み、最大4回）を返す。
func DefaultPolicy() Policy {
	return Policy{BaseDelay: defaultBaseDelay, MaxAttempts: defaultMaxAttempts}
}

// normalized はゼロ値のフィールドを既定値で補う。
func (p Policy) normalized() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	return p
}

// Delay はattempt回目（1始まり）の再試行までの遅延を返す。
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	return p.BaseDelay * time.Duration(attempt)
}

// Phase はコーディネーターの状態。
type Phase string

const (
	// PhaseIdle は待機中（タイマーなし、取得中でない）。
	PhaseIdle Phase = "idle"
	// PhaseScheduled は再試行タイマーの発火待ち。
	PhaseScheduled Phase = "scheduled"
	// PhaseRefreshing は外部の取得処理を実行中。
	PhaseRefreshing Phase = "refreshing"
)

// Trigger は取得処理を開始したきっかけ。
type Trigger string

const (
	// TriggerBackoff はバックオフタイマーの発火。
	TriggerBackoff Trigger = "backoff"
	// TriggerVisibility は画面の再表示。
	TriggerVisibility Trigger = "visibility"
	// TriggerConnectivity はネットワーク接続の回復。
	TriggerConnectivity Trigger = "connectivity"
	// TriggerManual は利用者による明示的な再試行。
	TriggerManual Trigger = "manual"
)

// State は再取得の状態。値型であり、Nextは常に新しい値を返す。
type State struct {
	// ItemBased はアクティブなモードがアイテム一覧主体か（検索中・カテゴリ閲覧中はfalse）。
	ItemBased bool
	// ItemCount は取得元が最後に返した件数。
	ItemCount int
	// Attempt はスケジュール済みの自動再試行の回数。アイテムを観測した時点で0に戻る。
	Attempt int
	// TimerPending は再試行タイマーが発火待ちか。
	TimerPending bool
	// InFlight は取得処理が実行中か。同時に実行できるのは1つだけ。
	InFlight bool
	// InFlightTrigger は実行中の取得処理のきっかけ。
	InFlightTrigger Trigger
	// Exhausted は自動再試行を上限まで行い、それでも空だったことを示す。
	Exhausted bool
}

// Phase は状態を3つのフェーズのいずれかに要約する。
func (s State) Phase() Phase {
	switch {
	case s.InFlight:
		return PhaseRefreshing
	case s.TimerPending:
		return PhaseScheduled
	default:
		return PhaseIdle
	}
}

// Event は状態遷移を引き起こす入力。
type Event interface {
	isEvent()
}

// Observed は取得元の件数を観測したことを表す。
type Observed struct {
	Count int
}

// ModeChanged はモード（または検索クエリ）が切り替わったことを表す。
type ModeChanged struct {
	ItemBased bool
}

// TimerFired は再試行タイマーが発火したことを表す。
type TimerFired struct{}

// RefreshCompleted は取得処理が完了したことを表す。
// Errがnilでない場合、Countは無視され直前の件数が維持される。
type RefreshCompleted struct {
	Count int
	Err   error
}

// Regained は画面の再表示またはネットワーク接続の回復を表すエッジイベント。
type Regained struct {
	Trigger Trigger
}

// RetryRequested は利用者による明示的な再試行要求を表す。
type RetryRequested struct{}

func (Observed) isEvent()         {}
func (ModeChanged) isEvent()      {}
func (TimerFired) isEvent()       {}
func (RefreshCompleted) isEvent() {}
func (Regained) isEvent()         {}
func (RetryRequested) isEvent()   {}

// Effect は遷移に伴ってCoordinatorが実行すべき副作用。
type Effect interface {
	isEffect()
}

// StartTimer はDelay後に発火する再試行タイマーの開始を指示する。
type StartTimer struct {
	Attempt int
	Delay   time.Duration
}

// CancelTimer は発火待ちの再試行タイマーの停止を指示する。
type CancelTimer struct{}

// StartRefresh は外部の取得処理の開始を指示する。
type StartRefresh struct {
	Trigger Trigger
}

// Supersede は実行中の取得処理の結果を無効化することを指示する。
type Supersede struct{}

// GiveUp は自動再試行の上限に達したことを通知する。
type GiveUp struct {
	Attempts int
}

func (StartTimer) isEffect()   {}
func (CancelTimer) isEffect()  {}
func (StartRefresh) isEffect() {}
func (Supersede) isEffect()    {}
func (GiveUp) isEffect()       {}

// Next は現在の状態とイベントから次の状態と副作用を返す純粋関数。
func Next(p Policy, s State, ev Event) (State, []Effect) {
	p = p.normalized()
	var effects []Effect

	switch e := ev.(type) {
	case Observed:
		s.ItemCount = e.Count
		if e.Count > 0 {
			s, effects = resetOnItems(s, effects)
		} else {
			s, effects = maybeSchedule(p, s, effects)
		}

	case ModeChanged:
		if s.TimerPending {
			effects = append(effects, CancelTimer{})
		}
		if s.InFlight {
			effects = append(effects, Supersede{})
		}
		s.ItemBased = e.ItemBased
		s.Attempt = 0
		s.TimerPending = false
		s.InFlight = false
		s.InFlightTrigger = ""
		s.Exhausted = false
		s, effects = maybeSchedule(p, s, effects)

	case TimerFired:
		s.TimerPending = false
		// 他のきっかけで取得中なら1つの取得処理にまとめる
		if s.InFlight {
			break
		}
		s.InFlight = true
		s.InFlightTrigger = TriggerBackoff
		effects = append(effects, StartRefresh{Trigger: TriggerBackoff})

	case RefreshCompleted:
		if !s.InFlight {
			break
		}
		s.InFlight = false
		s.InFlightTrigger = ""
		if e.Err == nil {
			s.ItemCount = e.Count
		}
		if s.ItemCount > 0 {
			s, effects = resetOnItems(s, effects)
			break
		}
		// 最後のタイマーが他のきっかけの取得にまとめられた場合も上限到達として扱う
		if s.ItemBased && !s.TimerPending && s.Attempt >= p.MaxAttempts {
			if !s.Exhausted {
				effects = append(effects, GiveUp{Attempts: s.Attempt})
			}
			s.Exhausted = true
			break
		}
		s, effects = maybeSchedule(p, s, effects)

	case Regained:
		if !s.ItemBased || s.ItemCount > 0 || s.InFlight {
			break
		}
		// 再試行回数とタイマーには触れない
		s.InFlight = true
		s.InFlightTrigger = e.Trigger
		effects = append(effects, StartRefresh{Trigger: e.Trigger})

	case RetryRequested:
		if s.InFlight {
			break
		}
		s.InFlight = true
		s.InFlightTrigger = TriggerManual
		effects = append(effects, StartRefresh{Trigger: TriggerManual})
	}

	return s, effects
}

// resetOnItems はアイテムを観測したときに再試行状態を初期化する。
func resetOnItems(s State, effects []Effect) (State, []Effect) {
	if s.TimerPending {
		effects = append(effects, CancelTimer{})
	}
	s.TimerPending = false
	s.Attempt = 0
	s.Exhausted = false
	return s, effects
}

// maybeSchedule は条件を満たす場合に次の再試行タイマーを予約する。
// 条件: アイテム主体のモード、件数0、取得中でない、タイマー未予約、上限未到達。
func maybeSchedule(p Policy, s State, effects []Effect) (State, []Effect) {
	if !s.ItemBased || s.ItemCount > 0 || s.InFlight || s.TimerPending || s.Exhausted {
		return s, effects
	}
	if s.Attempt >= p.MaxAttempts {
		return s, effects
	}
	s.Attempt++
	s.TimerPending = true
	effects = append(effects, StartTimer{Attempt: s.Attempt, Delay: p.Delay(s.Attempt)})
	return s, effects
}
