package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ideafeed/internal/middleware"
	"github.com/hitoshi/ideafeed/internal/model"
)

// maxProfileNameLength はプロフィール名の最大文字数。
const maxProfileNameLength = 255

// ProfileStore はプロフィールとフォロー関係を保存する。
type ProfileStore interface {
	Upsert(ctx context.Context, profile model.Profile) error
	Follow(ctx context.Context, followerID, followeeID string) error
}

// IdeaSaver はアイデアを保存済みにする。
type IdeaSaver interface {
	Save(ctx context.Context, actorID, ideaID string) error
}

// ProfileHandler はプロフィール・フォロー・保存の操作を扱うHTTPハンドラー。
// 変更後はセッションの個人化情報を読み直し、フォロー中表示に反映する。
type ProfileHandler struct {
	feed     *FeedHandler
	profiles ProfileStore
	saved    IdeaSaver
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(feed *FeedHandler, profiles ProfileStore, saved IdeaSaver) *ProfileHandler {
	return &ProfileHandler{feed: feed, profiles: profiles, saved: saved}
}

// profileRequest はプロフィール更新のリクエストボディ。
type profileRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// profileResponse はプロフィールのレスポンス。
type profileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// UpdateProfile はアクター自身のプロフィールを作成または更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	actorID, ok := actorIDFromRequest(w, r)
	if !ok {
		return
	}

	p := model.Profile{
		ID:          actorID,
		Name:        strings.TrimSpace(req.Name),
		DisplayName: strings.TrimSpace(req.DisplayName),
	}
	if p.Name == "" {
		handleServiceError(w, model.NewInvalidProfileError("name is required"))
		return
	}
	if utf8.RuneCountInString(p.Name) > maxProfileNameLength || utf8.RuneCountInString(p.DisplayName) > maxProfileNameLength {
		handleServiceError(w, model.NewInvalidProfileError("name is too long"))
		return
	}

	if err := h.profiles.Upsert(r.Context(), p); err != nil {
		handleServiceError(w, err)
		return
	}

	// 作者名の解決に使うため、自分のセッションにも反映する
	eng, ok := h.feed.sessionFor(w, r, actorID)
	if !ok {
		return
	}
	h.reload(r.Context(), actorID, eng)

	writeJSON(w, http.StatusOK, profileResponse{ID: p.ID, Name: p.Name, DisplayName: p.DisplayName})
}

// Follow は指定プロフィールをフォローし、操作後の表示状態を返す。
// POST /api/profiles/{id}/follow
func (h *ProfileHandler) Follow(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorIDFromRequest(w, r)
	if !ok {
		return
	}
	followeeID := chi.URLParam(r, "id")
	if followeeID == actorID {
		handleServiceError(w, model.NewInvalidProfileError("cannot follow yourself"))
		return
	}
	if !middleware.ValidActorID(followeeID) {
		handleServiceError(w, model.NewInvalidProfileError("invalid profile id"))
		return
	}

	if err := h.profiles.Follow(r.Context(), actorID, followeeID); err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondReloaded(w, r, actorID)
}

// Save はアイデアを保存済みにし、操作後の表示状態を返す。
// POST /api/ideas/{id}/save
func (h *ProfileHandler) Save(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorIDFromRequest(w, r)
	if !ok {
		return
	}
	ideaID := chi.URLParam(r, "id")

	if err := h.saved.Save(r.Context(), actorID, ideaID); err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondReloaded(w, r, actorID)
}

// respondReloaded は個人化情報を読み直したセッションの表示状態を返す。
func (h *ProfileHandler) respondReloaded(w http.ResponseWriter, r *http.Request, actorID string) {
	eng, ok := h.feed.sessionFor(w, r, actorID)
	if !ok {
		return
	}
	h.reload(r.Context(), actorID, eng)
	writeJSON(w, http.StatusOK, toFeedResponse(eng.View(), h.feed.preview))
}

// reload は個人化情報を読み直す。
// 変更自体は保存済みのため、失敗しても次回の読み込みで反映される。
func (h *ProfileHandler) reload(ctx context.Context, actorID string, eng FeedEngine) {
	if err := eng.ReloadActor(ctx); err != nil {
		slog.Warn("個人化情報の再読み込みに失敗しました",
			slog.String("actor_id", actorID),
			slog.String("error", err.Error()),
		)
	}
}
