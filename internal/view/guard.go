package view

import (
	"slices"

	"github.com/hitoshi/ideafeed/internal/model"
)

// Guard は最後に表示した空でない一覧を保持し、
// 読み込み完了後の一時的な空結果で一覧が消えるのを防ぐ。
// セッションごとに1つ保持する。
type Guard struct {
	lastNonEmpty []model.Idea
}

// Apply は表示する一覧を決定する。
//   - renderが空でなければ記憶して返す
//   - 空かつ読み込み中なら空を返す（呼び出し側は読み込み表示を出す）
//   - 空かつ読み込み完了なら記憶していた一覧を1回だけ返す
//
// 「本当に空」かどうかはこのガードではなく、取得元の件数から別途判定すること。
func (g *Guard) Apply(render []model.Idea, isLoading bool) []model.Idea {
	if len(render) > 0 {
		g.lastNonEmpty = slices.Clone(render)
		return render
	}
	if isLoading {
		return []model.Idea{}
	}
	if g.lastNonEmpty == nil {
		return []model.Idea{}
	}
	stale := g.lastNonEmpty
	g.lastNonEmpty = nil
	return stale
}

// Reset は記憶している一覧を破棄する。モードや検索クエリの切り替え時に呼び出す。
func (g *Guard) Reset() {
	g.lastNonEmpty = nil
}

// HasStale は記憶している一覧があるかを返す。
func (g *Guard) HasStale() bool {
	return len(g.lastNonEmpty) > 0
}
