package view

// DefaultPageSize は表示窓の初期件数および「もっと見る」1回あたりの増分。
const DefaultPageSize = 15

// Window は表示件数（ページネーション窓）を管理する。
// ゼロ値は使用できないため、NewWindowで生成すること。
type Window struct {
	pageSize int
	visible  int
}

// NewWindow はWindowを生成する。pageSizeが0以下の場合はDefaultPageSizeを使用する。
func NewWindow(pageSize int) *Window {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Window{pageSize: pageSize, visible: pageSize}
}

// Visible は現在の表示件数を返す。
func (w *Window) Visible() int {
	return w.visible
}

// LoadMore は表示件数を1ページ分増やし、新しい表示件数を返す。
func (w *Window) LoadMore() int {
	w.visible += w.pageSize
	return w.visible
}

// Reset は表示件数を初期値に戻す。モード切り替え時に呼び出す。
func (w *Window) Reset() {
	w.visible = w.pageSize
}
