// Package view はスコアリング結果から表示用の一覧を組み立てる。
// 重複排除、ピン留めアイテムの先頭固定、ページネーション窓、
// および一時的な空結果で表示が消えないようにするガードを含む。
package view

import "github.com/hitoshi/ideafeed/internal/model"

// Compose はスコアリング済みのアイデアを表示用に組み立てる。
//
// 処理順序:
//  1. IDで重複排除（最初の出現を残す）
//  2. pinnedIDがscoredに含まれていれば、残りの順序を保ったまま先頭へ移動
//  3. scoredに含まれずuniverseに含まれていれば先頭に追加（ピン留めは絞り込みより優先）
//  4. visibleCount件に切り詰め、窓の外に残りがあるかを返す
func Compose(scored, universe []model.Idea, pinnedID string, visibleCount int) ([]model.Idea, bool) {
	items := Dedupe(scored)

	if pinnedID != "" {
		items = pinFirst(items, universe, pinnedID)
	}

	if visibleCount < 0 {
		visibleCount = 0
	}
	hasMore := len(items) > visibleCount
	if hasMore {
		items = items[:visibleCount]
	}
	return items, hasMore
}

// Dedupe はIDの重複を除去する。最初に出現したものを残し、順序は保持する。
func Dedupe(items []model.Idea) []model.Idea {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.Idea, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

func pinFirst(items, universe []model.Idea, pinnedID string) []model.Idea {
	for i, it := range items {
		if it.ID != pinnedID {
			continue
		}
		if i == 0 {
			return items
		}
		out := make([]model.Idea, 0, len(items))
		out = append(out, it)
		out = append(out, items[:i]...)
		return append(out, items[i+1:]...)
	}

	for _, it := range universe {
		if it.ID == pinnedID {
			return append([]model.Idea{it}, items...)
		}
	}
	return items
}
