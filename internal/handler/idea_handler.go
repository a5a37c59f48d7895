package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ideafeed/internal/model"
)

// IdeaCreator はアイデアを永続化する。
type IdeaCreator interface {
	Create(ctx context.Context, in model.NewIdea) (*model.Idea, error)
}

// IdeaCleaner は投稿内容をサニタイズする。
type IdeaCleaner interface {
	Clean(in model.NewIdea) model.NewIdea
}

// IdeaHandler はアイデアの投稿・投票・表示のHTTPハンドラー。
type IdeaHandler struct {
	feed    *FeedHandler
	ideas   IdeaCreator
	cleaner IdeaCleaner
}

// NewIdeaHandler はIdeaHandlerを生成する。
func NewIdeaHandler(feed *FeedHandler, ideas IdeaCreator, cleaner IdeaCleaner) *IdeaHandler {
	return &IdeaHandler{feed: feed, ideas: ideas, cleaner: cleaner}
}

// createIdeaRequest はアイデア投稿のリクエストボディ。
type createIdeaRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	AuthorName  string   `json:"author_name"`
	Summary     string   `json:"summary"`
	Body        string   `json:"body"`
	Pitch       string   `json:"pitch"`
}

// createIdeaResponse はアイデア投稿のレスポンス。
type createIdeaResponse struct {
	Idea ideaResponse `json:"idea"`
	Feed feedResponse `json:"feed"`
}

// Create はアイデアを投稿し、投稿者のフィードの先頭にピン留めする。
// POST /api/ideas
func (h *IdeaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIdeaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	actorID, ok := actorIDFromRequest(w, r)
	if !ok {
		return
	}
	eng, ok := h.feed.sessionFor(w, r, actorID)
	if !ok {
		return
	}

	in := h.cleaner.Clean(model.NewIdea{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		AuthorID:    actorID,
		AuthorName:  req.AuthorName,
		Summary:     req.Summary,
		Body:        req.Body,
		Pitch:       req.Pitch,
	})
	if strings.TrimSpace(in.Title) == "" {
		handleServiceError(w, model.NewInvalidIdeaError("タイトルが空です"))
		return
	}
	if strings.TrimSpace(in.Category) == "" {
		handleServiceError(w, model.NewInvalidIdeaError("カテゴリが空です"))
		return
	}

	idea, err := h.ideas.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	eng.AddCreated(*idea)

	writeJSON(w, http.StatusCreated, createIdeaResponse{
		Idea: toIdeaResponse(*idea, h.feed.preview),
		Feed: toFeedResponse(eng.View(), h.feed.preview),
	})
}

// voteRequest は投票のリクエストボディ。
type voteRequest struct {
	Direction string `json:"direction"`
}

// Vote はアイデアに投票する。
// POST /api/ideas/{id}/vote
func (h *IdeaHandler) Vote(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "id")

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	dir, err := model.ParseVoteDirection(req.Direction)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	eng, ok := h.feed.engine(w, r)
	if !ok {
		return
	}
	idea, err := eng.Vote(r.Context(), ideaID, dir)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toIdeaResponse(idea, h.feed.preview))
}

// openRequest はアイテムを開く操作のリクエストボディ。
type openRequest struct {
	ViewHint string `json:"view_hint"`
}

// openResponse はアイテムを開く操作のレスポンス。
type openResponse struct {
	Idea     ideaResponse `json:"idea"`
	ViewHint string       `json:"view_hint"`
}

// Open はアイテムを開く。view_hintが空または不明な場合は詳細画面として扱う。
// POST /api/ideas/{id}/open
func (h *IdeaHandler) Open(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "id")

	var req openRequest
	// ボディなしは詳細画面として扱う
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeInvalidRequest(w)
		return
	}

	eng, ok := h.feed.engine(w, r)
	if !ok {
		return
	}
	hint := model.ViewHint(req.ViewHint)
	if hint != model.ViewHintComments {
		hint = model.ViewHintDetail
	}
	idea, err := eng.OpenItem(r.Context(), ideaID, hint)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, openResponse{
		Idea:     toIdeaResponse(idea, h.feed.preview),
		ViewHint: string(hint),
	})
}

// Pin はアイデアを一定時間だけ先頭に固定する。
// POST /api/ideas/{id}/pin
func (h *IdeaHandler) Pin(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "id")
	h.feed.update(w, r, func(eng FeedEngine) { eng.Pin(ideaID) })
}
