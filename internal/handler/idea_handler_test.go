package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/ideafeed/internal/model"
	"github.com/hitoshi/ideafeed/internal/session"
)

// --- POST /api/ideas テスト ---

func TestIdeaHandler_Create_Success(t *testing.T) {
	eng := &mockEngine{snapshot: session.Snapshot{
		Items:    []model.Idea{{ID: "idea-new", Title: "音声メモ"}},
		Mode:     model.Trending,
		PinnedID: "idea-new",
	}}
	cleaner := &mockCleaner{}
	var got model.NewIdea
	ideas := &mockIdeaCreator{
		createFn: func(ctx context.Context, in model.NewIdea) (*model.Idea, error) {
			got = in
			return &model.Idea{ID: "idea-new", Title: in.Title, Category: in.Category, AuthorID: in.AuthorID}, nil
		},
	}
	deps := testDeps(t)
	deps.Sessions = sessionsFor(eng)
	deps.Ideas = ideas
	deps.Cleaner = cleaner

	body := `{"title":"  音声メモ  ","category":"tools","tags":["voice"],"pitch":"話すだけで記録"}`
	rec := doRequest(t, deps, http.MethodPost, "/api/ideas", body, testActorID)

	assertStatus(t, rec, http.StatusCreated)
	if cleaner.called != 1 {
		t.Errorf("cleaner called %d times, want 1", cleaner.called)
	}
	if got.AuthorID != testActorID {
		t.Errorf("AuthorID = %q, want %q", got.AuthorID, testActorID)
	}
	if got.Title != "音声メモ" {
		t.Errorf("Title = %q, want cleaned %q", got.Title, "音声メモ")
	}
	if diff := cmp.Diff([]string{"voice"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if len(eng.created) != 1 || eng.created[0].ID != "idea-new" {
		t.Errorf("AddCreated = %v, want idea-new", eng.created)
	}

	var resp createIdeaResponse
	decodeBody(t, rec, &resp)
	if resp.Idea.ID != "idea-new" {
		t.Errorf("idea.id = %q, want %q", resp.Idea.ID, "idea-new")
	}
	if resp.Feed.PinnedID != "idea-new" {
		t.Errorf("feed.pinned_id = %q, want %q", resp.Feed.PinnedID, "idea-new")
	}
}

func TestIdeaHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"タイトルなし", `{"title":"   ","category":"tools"}`},
		{"カテゴリなし", `{"title":"音声メモ","category":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &mockEngine{}
			deps := testDeps(t)
			deps.Sessions = sessionsFor(eng)
			deps.Ideas = &mockIdeaCreator{
				createFn: func(ctx context.Context, in model.NewIdea) (*model.Idea, error) {
					t.Fatal("Create should not be called for invalid input")
					return nil, nil
				},
			}

			rec := doRequest(t, deps, http.MethodPost, "/api/ideas", tt.body, testActorID)

			assertStatus(t, rec, http.StatusBadRequest)
			assertErrorCode(t, rec, model.ErrCodeInvalidIdea)
			if len(eng.created) != 0 {
				t.Error("AddCreated should not be called")
			}
		})
	}
}

func TestIdeaHandler_Create_RepositoryError(t *testing.T) {
	eng := &mockEngine{}
	deps := testDeps(t)
	deps.Sessions = sessionsFor(eng)
	deps.Ideas = &mockIdeaCreator{
		createFn: func(ctx context.Context, in model.NewIdea) (*model.Idea, error) {
			return nil, errors.New("insert failed")
		},
	}

	rec := doRequest(t, deps, http.MethodPost, "/api/ideas", `{"title":"a","category":"b"}`, testActorID)

	assertStatus(t, rec, http.StatusInternalServerError)
	if len(eng.created) != 0 {
		t.Error("AddCreated should not be called when persisting fails")
	}
}

// --- POST /api/ideas/{id}/vote テスト ---

func TestIdeaHandler_Vote_Success(t *testing.T) {
	var gotID string
	var gotDir model.VoteDirection
	eng := &mockEngine{
		voteFn: func(ctx context.Context, ideaID string, dir model.VoteDirection) (model.Idea, error) {
			gotID, gotDir = ideaID, dir
			return model.Idea{ID: ideaID, Title: "音声メモ", Votes: 11}, nil
		},
	}
	deps := testDeps(t)
	deps.Sessions = sessionsFor(eng)

	rec := doRequest(t, deps, http.MethodPost, "/api/ideas/idea-1/vote", `{"direction":"up"}`, testActorID)

	assertStatus(t, rec, http.StatusOK)
	if gotID != "idea-1" || gotDir != model.VoteUp {
		t.Errorf("Vote(%q, %d), want (idea-1, up)", gotID, gotDir)
	}
	var resp ideaResponse
	decodeBody(t, rec, &resp)
	if resp.Votes != 11 {
		t.Errorf("votes = %d, want 11", resp.Votes)
	}
}

func TestIdeaHandler_Vote_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		voteErr    error
		wantStatus int
		wantCode   string
	}{
		{"不正な方向", `{"direction":"sideways"}`, nil, http.StatusBadRequest, model.ErrCodeInvalidVote},
		{"存在しないアイデア", `{"direction":"down"}`, model.NewIdeaNotFoundError("idea-1"), http.StatusNotFound, model.ErrCodeIdeaNotFound},
		{"反映失敗", `{"direction":"down"}`, model.NewVoteFailedError("idea-1"), http.StatusBadGateway, model.ErrCodeVoteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &mockEngine{
				voteFn: func(ctx context.Context, ideaID string, dir model.VoteDirection) (model.Idea, error) {
					return model.Idea{}, tt.voteErr
				},
			}
			deps := testDeps(t)
			deps.Sessions = sessionsFor(eng)

			rec := doRequest(t, deps, http.MethodPost, "/api/ideas/idea-1/vote", tt.body, testActorID)

			assertStatus(t, rec, tt.wantStatus)
			assertErrorCode(t, rec, tt.wantCode)
		})
	}
}

func TestIdeaHandler_Vote_FailedIsRetryable(t *testing.T) {
	eng := &mockEngine{
		voteFn: func(ctx context.Context, ideaID string, dir model.VoteDirection) (model.Idea, error) {
			return model.Idea{}, model.NewVoteFailedError(ideaID)
		},
	}
	deps := testDeps(t)
	deps.Sessions = sessionsFor(eng)

	rec := doRequest(t, deps, http.MethodPost, "/api/ideas/idea-1/vote", `{"direction":"up"}`, testActorID)

	var body apiErrorResponse
	decodeBody(t, rec, &body)
	if !body.Retryable {
		t.Error("retryable should be true for VOTE_FAILED")
	}
}

// --- POST /api/ideas/{id}/open テスト ---

func TestIdeaHandler_Open_ViewHint(t *testing.T) {
	tests := []struct {
		name string
		body string
		want model.ViewHint
	}{
		{"コメント", `{"view_hint":"comments"}`, model.ViewHintComments},
		{"詳細", `{"view_hint":"detail"}`, model.ViewHintDetail},
		{"不明なヒント", `{"view_hint":"fullscreen"}`, model.ViewHintDetail},
		{"ボディなし", "", model.ViewHintDetail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.ViewHint
			eng := &mockEngine{
				openFn: func(ctx context.Context, ideaID string, hint model.ViewHint) (model.Idea, error) {
					got = hint
					return model.Idea{ID: ideaID, Title: "音声メモ"}, nil
				},
			}
			deps := testDeps(t)
			deps.Sessions = sessionsFor(eng)

			rec := doRequest(t, deps, http.MethodPost, "/api/ideas/idea-1/open", tt.body, testActorID)

			assertStatus(t, rec, http.StatusOK)
			if got != tt.want {
				t.Errorf("hint = %q, want %q", got, tt.want)
			}
			var resp openResponse
			decodeBody(t, rec, &resp)
			if resp.ViewHint != string(tt.want) {
				t.Errorf("view_hint = %q, want %q", resp.ViewHint, tt.want)
			}
			if resp.Idea.ID != "idea-1" {
				t.Errorf("idea.id = %q, want %q", resp.Idea.ID, "idea-1")
			}
		})
	}
}

func TestIdeaHandler_Open_NotFound(t *testing.T) {
	eng := &mockEngine{
		openFn: func(ctx context.Context, ideaID string, hint model.ViewHint) (model.Idea, error) {
			return model.Idea{}, model.NewIdeaNotFoundError(ideaID)
		},
	}
	deps := testDeps(t)
	deps.Sessions = sessionsFor(eng)

	rec := doRequest(t, deps, http.MethodPost, "/api/ideas/missing/open", "", testActorID)

	assertStatus(t, rec, http.StatusNotFound)
	assertErrorCode(t, rec, model.ErrCodeIdeaNotFound)
}

// --- POST /api/ideas/{id}/pin テスト ---

func TestIdeaHandler_Pin(t *testing.T) {
	eng := &mockEngine{}
	deps := testDeps(t)
	deps.Sessions = sessionsFor(eng)

	rec := doRequest(t, deps, http.MethodPost, "/api/ideas/idea-3/pin", "", testActorID)

	assertStatus(t, rec, http.StatusOK)
	if diff := cmp.Diff([]string{"idea-3"}, eng.pinned); diff != "" {
		t.Errorf("pinned mismatch (-want +got):\n%s", diff)
	}
}
