package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/ideafeed/internal/channel"
	"github.com/hitoshi/ideafeed/internal/config"
	"github.com/hitoshi/ideafeed/internal/database"
	"github.com/hitoshi/ideafeed/internal/handler"
	"github.com/hitoshi/ideafeed/internal/logger"
	"github.com/hitoshi/ideafeed/internal/metrics"
	"github.com/hitoshi/ideafeed/internal/middleware"
	"github.com/hitoshi/ideafeed/internal/model"
	"github.com/hitoshi/ideafeed/internal/preview"
	"github.com/hitoshi/ideafeed/internal/refresh"
	"github.com/hitoshi/ideafeed/internal/repository"
	"github.com/hitoshi/ideafeed/internal/security"
	"github.com/hitoshi/ideafeed/internal/session"
	"github.com/hitoshi/ideafeed/internal/source"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("source_kind", string(cfg.SourceKind)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newItemSource は設定に応じたアイデアの取得元を生成する。
// リモートの取得元はURLを検証し、SSRF対策済みのクライアントで取得する。
func newItemSource(cfg *config.Config, ideas source.IdeaLister, log *slog.Logger) (source.ItemSource, error) {
	if cfg.SourceKind == source.KindPostgres {
		return source.NewStoreSource(ideas), nil
	}

	guard := security.NewSourceGuard()
	if err := guard.Validate(cfg.SourceURL); err != nil {
		return nil, fmt.Errorf("invalid SOURCE_URL: %w", err)
	}
	client := guard.Client(cfg.SourceTimeout)

	switch cfg.SourceKind {
	case source.KindHTTP:
		return source.NewHTTPSource(cfg.SourceURL, client, cfg.SourceMaxSize, log), nil
	case source.KindRSS:
		return source.NewRSSSource(cfg.SourceURL, client, cfg.SourceMaxSize, log), nil
	default:
		return nil, fmt.Errorf("unsupported source kind: %s", cfg.SourceKind)
	}
}

// engine はHTTPサーバーが使用するフィードエンジン一式。
type engine struct {
	sessions  *handler.SessionRegistry
	resolvers *handler.ResolverRegistry
	collector *metrics.Collector
	registry  *prometheus.Registry
	ideas     *repository.PostgresIdeaRepo
	profiles  *repository.PostgresProfileRepo
	saved     *repository.PostgresSavedIdeaRepo
}

// newEngine はリポジトリ・取得元・メトリクスを組み立て、アクターごとの
// セッションと会話リゾルバーのレジストリを生成する。
func newEngine(cfg *config.Config, db *sql.DB, log *slog.Logger) (*engine, error) {
	// 1. リポジトリの初期化
	ideaRepo := repository.NewPostgresIdeaRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	savedRepo := repository.NewPostgresSavedIdeaRepo(db)
	channelRepo := repository.NewPostgresChannelRepo(db)
	actors := repository.NewActorDirectory(profileRepo, savedRepo)

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 取得元の初期化
	src, err := newItemSource(cfg, ideaRepo, log)
	if err != nil {
		return nil, err
	}
	src = metrics.InstrumentSource(src, collector)

	// 4. セッションの初期化
	sessionCfg := session.Config{
		PageSize:    cfg.PageSize,
		PinDuration: cfg.PinDuration,
		Retry: refresh.Policy{
			BaseDelay:   cfg.RetryBaseDelay,
			MaxAttempts: cfg.RetryMaxAttempts,
		},
	}
	opener := func(_ context.Context, actorID string, it model.Idea, hint model.ViewHint) {
		log.Info("アイテムを開きました",
			slog.String("actor_id", actorID),
			slog.String("idea_id", it.ID),
			slog.String("view_hint", string(hint)),
		)
	}
	sessions := handler.NewSessionRegistry(func(actorID string) *session.Session {
		return session.New(actorID, session.Deps{
			Source:  src,
			Actors:  actors,
			Voter:   ideaRepo,
			Opener:  opener,
			Logger:  log,
			Metrics: collector,
		}, sessionCfg)
	}, cfg.SessionIdleTimeout, log)

	// 5. 会話リゾルバーの初期化
	resolvers := handler.NewResolverRegistry(func(actorID string) *channel.Resolver {
		backend := repository.NewChannelBackend(channelRepo, actorID, cfg.MaxMessageLength)
		return channel.NewResolver(actorID, backend, backend,
			channel.WithCreator(backend),
			channel.WithReconcileTimeout(cfg.ReconcileTimeout),
			channel.WithLogger(log.With(slog.String("actor_id", actorID))),
			channel.WithRecorder(collector),
		)
	}, cfg.SessionIdleTimeout, log)

	return &engine{
		sessions:  sessions,
		resolvers: resolvers,
		collector: collector,
		registry:  registry,
		ideas:     ideaRepo,
		profiles:  profileRepo,
		saved:     savedRepo,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.Pool{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. フィードエンジンの構築
	log := slog.Default()
	eng, err := newEngine(cfg, db, log)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer eng.sessions.Close()

	// 3. ルーターの構築
	// configのRateLimitGeneralはreq/min単位
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, 20),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            log,
		StatusRecorder:    eng.collector,

		HealthChecker: db,
		Gatherer:      eng.registry,

		Sessions: eng.sessions,
		Preview:  preview.NewBuilder(nil, 0),

		Ideas:   eng.ideas,
		Cleaner: security.NewIdeaSanitizer(),

		Profiles: eng.profiles,
		Saved:    eng.saved,

		Channels: eng.resolvers,
	}

	router := handler.NewRouter(deps)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 未使用のセッションとリゾルバーを定期的に破棄する
	go eng.sessions.Run(ctx)
	go eng.resolvers.Run(ctx)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
