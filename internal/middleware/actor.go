// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/hitoshi/ideafeed/internal/model"
)

// ActorHeader はアクターIDを受け取るリクエストヘッダー名。
const ActorHeader = "X-Actor-ID"

// actorIDPattern はアクターIDとして受け付ける形式。
// 2者間の会話IDの区切り文字と衝突しないよう "_" は含めない。
var actorIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-]{0,63}$`)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// actorIDContextKey はリクエストコンテキストにアクターIDを格納するためのキー。
var actorIDContextKey = contextKey("actor_id")

// NewActorMiddleware はX-Actor-IDヘッダーからアクターIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーがない、または形式が不正なリクエストには401 Unauthorizedを返す。
func NewActorMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := r.Header.Get(ActorHeader)
			if !ValidActorID(actorID) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewActorRequiredError())
				return
			}

			ctx := context.WithValue(r.Context(), actorIDContextKey, actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidActorID はアクターIDの形式が正しいかを返す。
func ValidActorID(actorID string) bool {
	return actorIDPattern.MatchString(actorID)
}

// ActorIDFromContext はリクエストコンテキストからアクターIDを取得する。
// アクターミドルウェアを通過したリクエストでのみ有効。
func ActorIDFromContext(ctx context.Context) (string, error) {
	actorID, ok := ctx.Value(actorIDContextKey).(string)
	if !ok || actorID == "" {
		return "", fmt.Errorf("actor ID not found in context")
	}
	return actorID, nil
}

// ContextWithActorID はコンテキストにアクターIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDContextKey, actorID)
}
