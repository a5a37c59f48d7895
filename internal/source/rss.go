package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/ideafeed/internal/model"
)

// RSSSource はRSS/Atomフィードの記事をアイデアとして取得する。
// 投票数を持たないため、すべて0票として扱う。
// URLがHTMLページの場合はheadのフィードリンクを検出して取得する。
type RSSSource struct {
	url      string
	client   Doer
	maxBytes int64
	logger   *slog.Logger

	mu      sync.Mutex
	feedURL string // 検出済みのフィードURL
}

// NewRSSSource はRSSSourceを生成する。
func NewRSSSource(url string, client Doer, maxBytes int64, logger *slog.Logger) *RSSSource {
	return &RSSSource{url: url, client: client, maxBytes: maxBytes, logger: logger}
}

// FetchItems はフィードを取得・パースしてアイデアの一覧を返す。
func (s *RSSSource) FetchItems(ctx context.Context) ([]model.Idea, error) {
	s.mu.Lock()
	target := s.feedURL
	s.mu.Unlock()
	if target == "" {
		target = s.url
	}

	body, err := s.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil && target == s.url {
		// HTMLページならフィードリンクを辿る
		discovered := discoverFeedURL(body, s.url)
		if discovered == "" {
			return nil, fmt.Errorf("parse feed: %w", err)
		}
		s.logger.Info("フィードURLを検出しました",
			slog.String("page_url", s.url),
			slog.String("feed_url", discovered),
		)
		if body, err = s.fetch(ctx, discovered); err != nil {
			return nil, err
		}
		if feed, err = gofeed.NewParser().ParseString(string(body)); err == nil {
			s.mu.Lock()
			s.feedURL = discovered
			s.mu.Unlock()
			target = discovered
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := convertFeedItems(feed.Items)
	s.logger.Debug("フィードからアイデアを取得しました",
		slog.String("url", target),
		slog.String("feed_title", feed.Title),
		slog.Int("items", len(items)),
	)
	return items, nil
}

func (s *RSSSource) fetch(ctx context.Context, url string) ([]byte, error) {
	return fetchBody(ctx, s.client, url,
		"application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.8, */*;q=0.5", s.maxBytes)
}

// convertFeedItems はフィードの記事をアイデアに変換する。
// IDはGUID、なければリンク。どちらもない記事は読み飛ばす。
func convertFeedItems(entries []*gofeed.Item) []model.Idea {
	items := make([]model.Idea, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		id := e.GUID
		if id == "" {
			id = e.Link
		}
		if id == "" {
			continue
		}

		it := model.Idea{
			ID:          id,
			Title:       e.Title,
			Description: e.Description,
			Body:        e.Content,
			Tags:        e.Categories,
		}
		if len(e.Categories) > 0 {
			it.Category = strings.ToLower(strings.TrimSpace(e.Categories[0]))
		}

		// 作者
		if e.Author != nil {
			it.AuthorName = e.Author.Name
		}
		if it.AuthorName == "" && len(e.Authors) > 0 && e.Authors[0] != nil {
			it.AuthorName = e.Authors[0].Name
		}

		// 公開日時（なければ更新日時）
		switch {
		case e.PublishedParsed != nil:
			it.CreatedAt = *e.PublishedParsed
		case e.UpdatedParsed != nil:
			it.CreatedAt = *e.UpdatedParsed
		}

		items = append(items, it)
	}
	return items
}
