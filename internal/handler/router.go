package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/ideafeed/internal/metrics"
	"github.com/hitoshi/ideafeed/internal/middleware"
)

// HealthChecker は依存サービスの疎通を確認する。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder

	// ヘルスチェック・メトリクス
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// フィード
	Sessions SessionProvider
	Preview  Previewer

	// アイデア
	Ideas   IdeaCreator
	Cleaner IdeaCleaner

	// プロフィール・保存
	Profiles ProfileStore
	Saved    IdeaSaver

	// 会話
	Channels ChannelProvider
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → StatusMetrics → Logging → Actor → RateLimit(General)
//
// /health と /metrics はアクターの特定とレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))

	feedHandler := NewFeedHandler(deps.Sessions, deps.Preview)
	ideaHandler := NewIdeaHandler(feedHandler, deps.Ideas, deps.Cleaner)
	channelHandler := NewChannelHandler(deps.Channels)
	profileHandler := NewProfileHandler(feedHandler, deps.Profiles, deps.Saved)

	// --- アクター不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- アクターが必要なルート ---
	// ミドルウェアスタック: Actor → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewActorMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// フィード表示
		r.Route("/api/feed", func(r chi.Router) {
			r.Get("/", feedHandler.GetFeed)
			r.Put("/mode", feedHandler.SetMode)
			r.Put("/query", feedHandler.SetQuery)
			r.Put("/category", feedHandler.SetCategory)
			r.Post("/more", feedHandler.LoadMore)
			r.Post("/retry", feedHandler.Retry)
			r.Post("/events/visibility", feedHandler.Visibility)
			r.Post("/events/connectivity", feedHandler.Connectivity)
		})

		// アイデア
		r.Route("/api/ideas", func(r chi.Router) {
			// POST /api/ideas - アイデア投稿（投稿用レート制限を追加）
			r.With(deps.RateLimiter.PostMiddleware()).Post("/", ideaHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/vote", ideaHandler.Vote)
				r.Post("/open", ideaHandler.Open)
				r.Post("/pin", ideaHandler.Pin)
				r.Post("/save", profileHandler.Save)
			})
		})

		// プロフィール・フォロー
		r.Put("/api/profile", profileHandler.UpdateProfile)
		r.Post("/api/profiles/{id}/follow", profileHandler.Follow)

		// 会話
		r.Route("/api/channels", func(r chi.Router) {
			r.Get("/", channelHandler.ListChannels)
			r.Post("/", channelHandler.Resolve)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", channelHandler.GetChannel)
				r.With(deps.RateLimiter.PostMiddleware()).Post("/messages", channelHandler.SendMessage)
				r.With(deps.RateLimiter.PostMiddleware()).Post("/messages/{messageID}/retry", channelHandler.RetryMessage)
			})
		})
	})

	return r
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler はDBへの疎通を確認するハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
