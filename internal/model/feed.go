// Package model はドメインモデルを定義する。
package model

import "strings"

// ModeKind はフィードの表示モードの種別を表す。
type ModeKind string

const (
	// ModeTrending は投票数と新しさを組み合わせたトレンド表示。
	ModeTrending ModeKind = "trending"
	// ModeFollowing は保存済み・フォロー中の作者を優先したパーソナライズ表示。
	ModeFollowing ModeKind = "following"
	// ModeDiscover は新着順の発見表示。
	ModeDiscover ModeKind = "discover"
	// ModeCategory は単一カテゴリの閲覧表示。
	ModeCategory ModeKind = "category"
)

// categoryPrefix はカテゴリモードの文字列表現の接頭辞。
const categoryPrefix = "category:"

// Mode はフィードの表示モード。同時にアクティブなモードは1つだけ。
// ModeCategoryの場合のみCategoryを持つ。
type Mode struct {
	Kind     ModeKind
	Category string
}

// 定義済みモード
var (
	Trending  = Mode{Kind: ModeTrending}
	Following = Mode{Kind: ModeFollowing}
	Discover  = Mode{Kind: ModeDiscover}
)

// CategoryMode は指定カテゴリのカテゴリモードを返す。
func CategoryMode(category string) Mode {
	return Mode{Kind: ModeCategory, Category: category}
}

// ParseMode は "trending"、"following"、"discover"、"category:<id>" 形式の文字列を解析する。
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	switch ModeKind(s) {
	case ModeTrending:
		return Trending, nil
	case ModeFollowing:
		return Following, nil
	case ModeDiscover:
		return Discover, nil
	}
	if cat, ok := strings.CutPrefix(s, categoryPrefix); ok && cat != "" {
		return CategoryMode(cat), nil
	}
	return Mode{}, NewInvalidModeError(s)
}

// String はモードの文字列表現を返す。
func (m Mode) String() string {
	if m.Kind == ModeCategory {
		return categoryPrefix + m.Category
	}
	return string(m.Kind)
}

// IsItemBased はアイテム一覧を主体とするモードかどうかを返す。
// カテゴリ閲覧専用のモードでは空結果でも自動リトライを行わない。
func (m Mode) IsItemBased() bool {
	switch m.Kind {
	case ModeTrending, ModeFollowing, ModeDiscover:
		return true
	default:
		return false
	}
}
