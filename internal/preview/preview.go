// Package preview はアイデアのプレビュー文を生成する。
//
// プレビューの元になるフィールドは優先順位付きのセレクタのリストとして明示的に定義し、
// 先頭から評価して最初に空でない値を採用する。
// 値はbluemondayのStrictPolicyでHTMLタグを除去してから使用する。
package preview

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/ideafeed/internal/model"
)

// defaultMaxRunes はプレビュー文の既定の最大文字数。
const defaultMaxRunes = 160

// Selector はアイデアからプレビュー候補の値を取り出す。
type Selector struct {
	Name string
	Get  func(model.Idea) string
}

// DefaultSelectors はプレビュー候補の既定の優先順位。
var DefaultSelectors = []Selector{
	{Name: "summary", Get: func(i model.Idea) string { return i.Summary }},
	{Name: "description", Get: func(i model.Idea) string { return i.Description }},
	{Name: "pitch", Get: func(i model.Idea) string { return i.Pitch }},
	{Name: "body", Get: func(i model.Idea) string { return i.Body }},
	{Name: "title", Get: func(i model.Idea) string { return i.Title }},
}

// Builder はセレクタとサニタイズポリシーを保持するプレビュー生成器。
// bluemondayのポリシーはスレッドセーフなので共有して使用できる。
type Builder struct {
	selectors []Selector
	policy    *bluemonday.Policy
	maxRunes  int
}

// NewBuilder はBuilderを生成する。
// selectorsが空の場合はDefaultSelectors、maxRunesが0以下の場合は160を使用する。
func NewBuilder(selectors []Selector, maxRunes int) *Builder {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	if maxRunes <= 0 {
		maxRunes = defaultMaxRunes
	}
	return &Builder{
		selectors: selectors,
		policy:    bluemonday.StrictPolicy(),
		maxRunes:  maxRunes,
	}
}

// Build はプレビュー文と採用したセレクタ名を返す。
// どのセレクタも値を返さない場合は空文字列を返す。
func (b *Builder) Build(it model.Idea) (text string, source string) {
	for _, s := range b.selectors {
		v := b.plain(s.Get(it))
		if v != "" {
			return truncate(v, b.maxRunes), s.Name
		}
	}
	return "", ""
}

// Text はプレビュー文のみを返す。
func (b *Builder) Text(it model.Idea) string {
	text, _ := b.Build(it)
	return text
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
// 投稿時の入力正規化にも使用する。
func (b *Builder) Sanitize(s string) string {
	return b.plain(s)
}

// plain はタグを除去し、エンティティを戻して空白を詰める。
func (b *Builder) plain(s string) string {
	if s == "" {
		return ""
	}
	stripped := html.UnescapeString(b.policy.Sanitize(s))
	return strings.Join(strings.Fields(stripped), " ")
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
