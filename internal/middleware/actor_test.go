package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/ideafeed/internal/model"
)

func TestActorMiddleware_ValidHeader_InjectsActorID(t *testing.T) {
	var captured string
	handler := NewActorMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, err := ActorIDFromContext(r.Context())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		captured = actorID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set(ActorHeader, "alice-01")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "alice-01" {
		t.Errorf("actorID = %q, want %q", captured, "alice-01")
	}
}

func TestActorMiddleware_InvalidHeader_Returns401(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"ヘッダーなし", ""},
		{"区切り文字を含む", "alice_bob"},
		{"空白を含む", "alice bob"},
		{"長すぎる", strings.Repeat("a", 65)},
		{"記号で始まる", "-alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewActorMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/ideas", nil)
			if tt.header != "" {
				req.Header.Set(ActorHeader, tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if called {
				t.Fatal("handler should not be called")
			}
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != model.ErrCodeActorRequired {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeActorRequired)
			}
		})
	}
}

func TestActorIDFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := ActorIDFromContext(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestContextWithActorID_RoundTrip(t *testing.T) {
	ctx := ContextWithActorID(context.Background(), "bob")
	actorID, err := ActorIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actorID != "bob" {
		t.Errorf("actorID = %q, want %q", actorID, "bob")
	}
}
