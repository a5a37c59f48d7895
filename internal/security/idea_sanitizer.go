package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/ideafeed/internal/model"
)

// IdeaSanitizer は投稿されたアイデアのテキストをサニタイズする。
// タイトル・カテゴリ・タグ・作者名はHTMLをすべて除去し、
// 説明・要約・本文・ピッチは許可リストの書式タグのみ残す。
type IdeaSanitizer struct {
	plain *bluemonday.Policy
	rich  *bluemonday.Policy
}

// NewIdeaSanitizer はIdeaSanitizerを生成する。
func NewIdeaSanitizer() *IdeaSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "blockquote", "pre", "code", "strong", "em")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowStandardURLs()
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &IdeaSanitizer{
		plain: bluemonday.StrictPolicy(),
		rich:  rich,
	}
}

// Clean は投稿内容をサニタイズした新しい値を返す。
func (s *IdeaSanitizer) Clean(in model.NewIdea) model.NewIdea {
	out := in
	out.Title = s.text(in.Title)
	out.Category = s.text(in.Category)
	out.AuthorName = s.text(in.AuthorName)
	out.Description = s.rich.Sanitize(in.Description)
	out.Summary = s.rich.Sanitize(in.Summary)
	out.Body = s.rich.Sanitize(in.Body)
	out.Pitch = s.rich.Sanitize(in.Pitch)

	out.Tags = make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		if t := s.text(tag); t != "" {
			out.Tags = append(out.Tags, t)
		}
	}
	return out
}

// text はHTMLを除去し、前後の空白を取り除く。
// StrictPolicyがエスケープした文字参照はプレーンテキストとして保存するため戻す。
func (s *IdeaSanitizer) text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(v)))
}
