package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ideafeed/internal/model"
)

// remoteIdea はリモートAPIが返すアイデアのJSON表現。
// created_atはUnixミリ秒。
type remoteIdea struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	AuthorID    string   `json:"author_id"`
	AuthorName  string   `json:"author_name"`
	Votes       int      `json:"votes"`
	CreatedAt   int64    `json:"created_at"`
	Summary     string   `json:"summary"`
	Body        string   `json:"body"`
	Pitch       string   `json:"pitch"`
}

// remotePayload はリモートAPIのレスポンス。
type remotePayload struct {
	Ideas []remoteIdea `json:"ideas"`
}

// HTTPSource はリモートのJSON APIからアイデアを取得する。
type HTTPSource struct {
	url      string
	client   Doer
	maxBytes int64
	logger   *slog.Logger
}

// NewHTTPSource はHTTPSourceを生成する。
func NewHTTPSource(url string, client Doer, maxBytes int64, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{url: url, client: client, maxBytes: maxBytes, logger: logger}
}

// FetchItems はリモートAPIからアイデアの一覧を取得する。
// IDを持たない要素は読み飛ばす。
func (s *HTTPSource) FetchItems(ctx context.Context) ([]model.Idea, error) {
	start := time.Now()
	body, err := fetchBody(ctx, s.client, s.url, "application/json", s.maxBytes)
	if err != nil {
		return nil, err
	}

	var payload remotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode ideas: %w", err)
	}

	items := make([]model.Idea, 0, len(payload.Ideas))
	for _, r := range payload.Ideas {
		if r.ID == "" {
			continue
		}
		items = append(items, model.Idea{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Category:    r.Category,
			Tags:        r.Tags,
			AuthorID:    r.AuthorID,
			AuthorName:  r.AuthorName,
			Votes:       r.Votes,
			CreatedAt:   time.UnixMilli(r.CreatedAt),
			Summary:     r.Summary,
			Body:        r.Body,
			Pitch:       r.Pitch,
		})
	}

	s.logger.Debug("リモートAPIからアイデアを取得しました",
		slog.String("url", s.url),
		slog.Int("items", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return items, nil
}
