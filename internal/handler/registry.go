package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/ideafeed/internal/channel"
	"github.com/hitoshi/ideafeed/internal/session"
)

// defaultIdleTimeout はアクターごとの状態を破棄するまでの未使用期間のデフォルト値。
const defaultIdleTimeout = 30 * time.Minute

// registryEntry はアクターごとに保持する値と最終利用日時。
// inUseは値を取得したリクエストのうち、まだ終了していないものの数。
type registryEntry[T any] struct {
	value    T
	lastUsed time.Time
	inUse    int
}

// actorRegistry はアクターIDごとに値を1つだけ生成して保持する。
// 一定期間使われなかった値はevictIdleで破棄する。
type actorRegistry[T any] struct {
	create      func(ctx context.Context, actorID string) (T, error)
	release     func(T)
	idleTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry[T]
}

func newActorRegistry[T any](
	create func(ctx context.Context, actorID string) (T, error),
	release func(T),
	idleTimeout time.Duration,
) *actorRegistry[T] {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if release == nil {
		release = func(T) {}
	}
	return &actorRegistry[T]{
		create:      create,
		release:     release,
		idleTimeout: idleTimeout,
		now:         time.Now,
		entries:     make(map[string]*registryEntry[T]),
	}
}

// get はアクターの値を返す。初回は生成する。
// 生成はロックの外で行い、同時に生成された場合は先に登録された値を採用する。
// ctxが終了するまで値は利用中として扱い、evictIdleの対象にしない。
func (r *actorRegistry[T]) get(ctx context.Context, actorID string) (T, error) {
	r.mu.Lock()
	if e, ok := r.entries[actorID]; ok {
		r.useLocked(ctx, e)
		r.mu.Unlock()
		return e.value, nil
	}
	r.mu.Unlock()

	v, err := r.create(ctx, actorID)
	if err != nil {
		var zero T
		return zero, err
	}

	r.mu.Lock()
	if e, ok := r.entries[actorID]; ok {
		r.useLocked(ctx, e)
		r.mu.Unlock()
		r.release(v)
		return e.value, nil
	}
	e := &registryEntry[T]{value: v}
	r.entries[actorID] = e
	r.useLocked(ctx, e)
	r.mu.Unlock()
	return v, nil
}

// useLocked は最終利用日時を更新し、ctxの終了まで利用中として数える。
// 終了しないctx（context.Backgroundなど）は数えない。
func (r *actorRegistry[T]) useLocked(ctx context.Context, e *registryEntry[T]) {
	e.lastUsed = r.now()
	if ctx.Done() == nil {
		return
	}
	e.inUse++
	context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		e.inUse--
		e.lastUsed = r.now()
	})
}

// len は保持している値の数を返す。
func (r *actorRegistry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// evictIdle は未使用期間がidleTimeoutを超えた値を破棄し、破棄した数を返す。
// 利用中のリクエストがある値は破棄しない。
func (r *actorRegistry[T]) evictIdle() int {
	now := r.now()
	var evicted []T

	r.mu.Lock()
	for id, e := range r.entries {
		if e.inUse == 0 && now.Sub(e.lastUsed) > r.idleTimeout {
			evicted = append(evicted, e.value)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, v := range evicted {
		r.release(v)
	}
	return len(evicted)
}

// closeAll は全ての値を破棄する。
func (r *actorRegistry[T]) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry[T])
	r.mu.Unlock()

	for _, e := range entries {
		r.release(e.value)
	}
}

// runEviction はctxがキャンセルされるまで定期的にevictIdleを実行する。
func (r *actorRegistry[T]) runEviction(ctx context.Context, name string, logger *slog.Logger) {
	interval := r.idleTimeout / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.evictIdle(); n > 0 {
				logger.Info("未使用の状態を破棄しました",
					slog.String("registry", name),
					slog.Int("evicted", n),
				)
			}
		}
	}
}

// SessionFactory はアクターの新しいセッションを生成する。
type SessionFactory func(actorID string) *session.Session

// SessionRegistry はアクターごとのフィードセッションを保持する。
// 初回アクセス時にセッションを生成して読み込み、未使用期間が続いたセッションは閉じる。
type SessionRegistry struct {
	reg    *actorRegistry[*session.Session]
	logger *slog.Logger
}

// NewSessionRegistry はSessionRegistryを生成する。
func NewSessionRegistry(factory SessionFactory, idleTimeout time.Duration, logger *slog.Logger) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	create := func(ctx context.Context, actorID string) (*session.Session, error) {
		s := factory(actorID)
		if err := s.Load(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("load session: %w", err)
		}
		logger.Info("セッションを開始しました", slog.String("actor_id", actorID))
		return s, nil
	}
	release := func(s *session.Session) {
		s.Close()
	}
	return &SessionRegistry{
		reg:    newActorRegistry(create, release, idleTimeout),
		logger: logger,
	}
}

// Session はアクターのセッションを返す。
func (r *SessionRegistry) Session(ctx context.Context, actorID string) (FeedEngine, error) {
	s, err := r.reg.get(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Len は保持しているセッション数を返す。
func (r *SessionRegistry) Len() int {
	return r.reg.len()
}

// Run はctxがキャンセルされるまで未使用のセッションを定期的に閉じる。
func (r *SessionRegistry) Run(ctx context.Context) {
	r.reg.runEviction(ctx, "session", r.logger)
}

// Close は全てのセッションを閉じる。
func (r *SessionRegistry) Close() {
	r.reg.closeAll()
}

// ResolverFactory はアクターの新しい会話リゾルバーを生成する。
type ResolverFactory func(actorID string) *channel.Resolver

// ResolverRegistry はアクターごとの会話リゾルバーを保持する。
type ResolverRegistry struct {
	reg    *actorRegistry[*channel.Resolver]
	logger *slog.Logger
}

// NewResolverRegistry はResolverRegistryを生成する。
func NewResolverRegistry(factory ResolverFactory, idleTimeout time.Duration, logger *slog.Logger) *ResolverRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	create := func(_ context.Context, actorID string) (*channel.Resolver, error) {
		return factory(actorID), nil
	}
	return &ResolverRegistry{
		reg:    newActorRegistry(create, nil, idleTimeout),
		logger: logger,
	}
}

// Resolver はアクターの会話リゾルバーを返す。
func (r *ResolverRegistry) Resolver(ctx context.Context, actorID string) (ChannelService, error) {
	res, err := r.reg.get(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Len は保持しているリゾルバー数を返す。
func (r *ResolverRegistry) Len() int {
	return r.reg.len()
}

// Run はctxがキャンセルされるまで未使用のリゾルバーを定期的に破棄する。
func (r *ResolverRegistry) Run(ctx context.Context) {
	r.reg.runEviction(ctx, "channel", r.logger)
}
