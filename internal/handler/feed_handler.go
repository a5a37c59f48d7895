package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ideafeed/internal/model"
	"github.com/hitoshi/ideafeed/internal/session"
)

// FeedEngine はハンドラーが使用するフィードセッションの操作。
// session.Sessionが実装する。
type FeedEngine interface {
	View() session.Snapshot
	SetMode(mode model.Mode)
	SetQuery(query string)
	SetDiscoverCategory(category string)
	LoadMore()
	RetryNow()
	OnVisibilityRegain()
	OnConnectivityRegain()
	Pin(ideaID string)
	AddCreated(it model.Idea)
	Vote(ctx context.Context, ideaID string, dir model.VoteDirection) (model.Idea, error)
	OpenItem(ctx context.Context, ideaID string, hint model.ViewHint) (model.Idea, error)
	ReloadActor(ctx context.Context) error
}

// SessionProvider はアクターのフィードセッションを返す。
type SessionProvider interface {
	Session(ctx context.Context, actorID string) (FeedEngine, error)
}

// Previewer はアイデアのプレビュー文を生成する。
type Previewer interface {
	Text(it model.Idea) string
}

// FeedHandler はフィード表示関連のHTTPハンドラー。
type FeedHandler struct {
	sessions SessionProvider
	preview  Previewer
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(sessions SessionProvider, preview Previewer) *FeedHandler {
	return &FeedHandler{sessions: sessions, preview: preview}
}

// ideaResponse はアイデアのレスポンス。
type ideaResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	AuthorID    string    `json:"author_id,omitempty"`
	AuthorName  string    `json:"author_name,omitempty"`
	Votes       int       `json:"votes"`
	Preview     string    `json:"preview"`
	CreatedAt   time.Time `json:"created_at"`
}

// retryResponse は再取得状態のレスポンス。
type retryResponse struct {
	Phase     string `json:"phase"`
	Attempt   int    `json:"attempt"`
	Exhausted bool   `json:"exhausted"`
}

// feedResponse はフィード表示状態のレスポンス。
type feedResponse struct {
	Items    []ideaResponse `json:"items"`
	HasMore  bool           `json:"has_more"`
	Loading  bool           `json:"loading"`
	Empty    bool           `json:"empty"`
	Mode     string         `json:"mode"`
	Query    string         `json:"query,omitempty"`
	Category string         `json:"category,omitempty"`
	Tier     string         `json:"tier,omitempty"`
	PinnedID string         `json:"pinned_id,omitempty"`
	Retry    retryResponse  `json:"retry"`
}

func toIdeaResponse(it model.Idea, preview Previewer) ideaResponse {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	resp := ideaResponse{
		ID:          it.ID,
		Title:       it.Title,
		Description: it.Description,
		Category:    it.Category,
		Tags:        tags,
		AuthorID:    it.AuthorID,
		AuthorName:  it.AuthorName,
		Votes:       it.Votes,
		CreatedAt:   it.CreatedAt,
	}
	if preview != nil {
		resp.Preview = preview.Text(it)
	}
	return resp
}

func toFeedResponse(snap session.Snapshot, preview Previewer) feedResponse {
	items := make([]ideaResponse, 0, len(snap.Items))
	for _, it := range snap.Items {
		items = append(items, toIdeaResponse(it, preview))
	}
	return feedResponse{
		Items:    items,
		HasMore:  snap.HasMore,
		Loading:  snap.Loading,
		Empty:    snap.Empty,
		Mode:     snap.Mode.String(),
		Query:    snap.Query,
		Category: snap.Category,
		Tier:     string(snap.Tier),
		PinnedID: snap.PinnedID,
		Retry: retryResponse{
			Phase:     string(snap.Retry.Phase),
			Attempt:   snap.Retry.Attempt,
			Exhausted: snap.Retry.Exhausted,
		},
	}
}

// engine はリクエストのアクターのセッションを返す。
// 取得できない場合はエラーレスポンスを書き込み、falseを返す。
func (h *FeedHandler) engine(w http.ResponseWriter, r *http.Request) (FeedEngine, bool) {
	actorID, ok := actorIDFromRequest(w, r)
	if !ok {
		return nil, false
	}
	return h.sessionFor(w, r, actorID)
}

// sessionFor はactorIDのセッションを返す。
// 取得できない場合はエラーレスポンスを書き込み、falseを返す。
func (h *FeedHandler) sessionFor(w http.ResponseWriter, r *http.Request, actorID string) (FeedEngine, bool) {
	eng, err := h.sessions.Session(r.Context(), actorID)
	if err != nil {
		slog.Error("セッションの取得に失敗しました",
			slog.String("actor_id", actorID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return nil, false
	}
	return eng, true
}

// update はセッションを操作し、操作後の表示状態を返す。
func (h *FeedHandler) update(w http.ResponseWriter, r *http.Request, fn func(FeedEngine)) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	fn(eng)
	writeJSON(w, http.StatusOK, toFeedResponse(eng.View(), h.preview))
}

// GetFeed は現在の表示状態を返す。
// GET /api/feed
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(FeedEngine) {})
}

// setModeRequest は表示モード切り替えのリクエストボディ。
type setModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode は表示モードを切り替える。
// PUT /api/feed/mode
func (h *FeedHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.update(w, r, func(eng FeedEngine) { eng.SetMode(mode) })
}

// setQueryRequest は検索クエリ設定のリクエストボディ。
type setQueryRequest struct {
	Query string `json:"query"`
}

// SetQuery は検索クエリを設定する。空文字列で検索を解除する。
// PUT /api/feed/query
func (h *FeedHandler) SetQuery(w http.ResponseWriter, r *http.Request) {
	var req setQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	h.update(w, r, func(eng FeedEngine) { eng.SetQuery(req.Query) })
}

// setCategoryRequest は発見表示の絞り込みのリクエストボディ。
type setCategoryRequest struct {
	Category string `json:"category"`
}

// SetCategory は発見表示で絞り込むカテゴリを設定する。
// PUT /api/feed/category
func (h *FeedHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	var req setCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	h.update(w, r, func(eng FeedEngine) { eng.SetDiscoverCategory(req.Category) })
}

// LoadMore は表示件数を1ページ分増やす。
// POST /api/feed/more
func (h *FeedHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(eng FeedEngine) { eng.LoadMore() })
}

// Retry は明示的に再取得する。
// POST /api/feed/retry
func (h *FeedHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(eng FeedEngine) { eng.RetryNow() })
}

// Visibility は画面の再表示を通知する。
// POST /api/feed/events/visibility
func (h *FeedHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(eng FeedEngine) { eng.OnVisibilityRegain() })
}

// Connectivity はネットワーク接続の回復を通知する。
// POST /api/feed/events/connectivity
func (h *FeedHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(eng FeedEngine) { eng.OnConnectivityRegain() })
}
