// Package source はフィードエンジンにアイデアを供給する取得元を提供する。
//
// 取得元はデータベース（Postgres）、リモートのJSON API、RSS/Atomフィードのいずれか。
// FetchItemsは冪等で、何度呼び出しても安全であること。
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/ideafeed/internal/model"
)

// ItemSource はアイデアの一覧を返す取得元。
type ItemSource interface {
	FetchItems(ctx context.Context) ([]model.Idea, error)
}

// Kind は取得元の種類。
type Kind string

const (
	// KindPostgres はデータベースのideasテーブル。
	KindPostgres Kind = "postgres"
	// KindHTTP はリモートのJSON API。
	KindHTTP Kind = "http"
	// KindRSS はRSS/Atomフィード。
	KindRSS Kind = "rss"
)

// ParseKind は文字列から取得元の種類を解析する。空文字列はKindPostgres。
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindPostgres:
		return KindPostgres, nil
	case KindHTTP:
		return KindHTTP, nil
	case KindRSS:
		return KindRSS, nil
	default:
		return "", fmt.Errorf("unknown source kind: %q", s)
	}
}

// Doer はHTTPリクエストを実行する。本番ではSSRF対策済みのクライアントを渡す。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError は取得元が2xx以外のステータスを返したことを表す。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// fetchBody はURLをGETし、最大maxBytesまでレスポンスボディを読み込む。
func fetchBody(ctx context.Context, client Doer, url, accept string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Ideafeed/1.0")
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
