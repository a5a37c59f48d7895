package source

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLinkTypes はHTMLのlink要素で取得対象とするフィードの種類。
// Atomを優先する。
var feedLinkTypes = map[string]int{
	"application/atom+xml": 2,
	"application/rss+xml":  1,
}

// discoverFeedURL はHTMLのheadにあるrel="alternate"のフィードリンクを探し、
// 絶対URLに解決して返す。見つからなければ空文字を返す。
// 同一ホストのリンクを優先し、同点なら先に現れたものを選ぶ。
func discoverFeedURL(body []byte, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	best, bestScore := "", 0
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inHead := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return best

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return best
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return best
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			typeScore, ok := feedLinkTypes[linkType]
			if rel != "alternate" || href == "" || !ok {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			resolved := base.ResolveReference(ref)

			score := typeScore
			if strings.EqualFold(resolved.Hostname(), base.Hostname()) {
				score += 10
			}
			if score > bestScore {
				best, bestScore = resolved.String(), score
			}
		}
	}
}
