// Package clock は時刻取得とタイマーを抽象化する。
// バックオフやピン留めの期限をテストで実時間を待たずに検証するために使用する。
package clock

import "time"

// Timer は停止可能なタイマー。
type Timer interface {
	// Stop はタイマーを停止する。既に発火済み・停止済みの場合はfalseを返す。
	Stop() bool
}

// Clock は現在時刻とタイマーを提供する。
type Clock interface {
	Now() time.Time
	// AfterFunc はd経過後に別のゴルーチンでfを呼び出す。
	AfterFunc(d time.Duration, f func()) Timer
}

// Real はtimeパッケージを使用するClock。
type Real struct{}

// Now は現在時刻を返す。
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc はtime.AfterFuncに委譲する。
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
