package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/ideafeed/internal/middleware"
	"github.com/hitoshi/ideafeed/internal/model"
	"github.com/hitoshi/ideafeed/internal/session"
)

// --- モック定義 ---

// mockEngine はFeedEngineのモック実装。呼び出された操作を記録する。
type mockEngine struct {
	snapshot session.Snapshot
	calls    []string

	setModeFn  func(mode model.Mode)
	setQueryFn func(query string)
	voteFn     func(ctx context.Context, ideaID string, dir model.VoteDirection) (model.Idea, error)
	openFn     func(ctx context.Context, ideaID string, hint model.ViewHint) (model.Idea, error)
	reloadErr  error
	created    []model.Idea
	pinned     []string
	categories []string
}

func (m *mockEngine) View() session.Snapshot { return m.snapshot }

func (m *mockEngine) SetMode(mode model.Mode) {
	m.calls = append(m.calls, "SetMode")
	if m.setModeFn != nil {
		m.setModeFn(mode)
	}
}

func (m *mockEngine) SetQuery(query string) {
	m.calls = append(m.calls, "SetQuery")
	if m.setQueryFn != nil {
		m.setQueryFn(query)
	}
}

func (m *mockEngine) SetDiscoverCategory(category string) {
	m.calls = append(m.calls, "SetDiscoverCategory")
	m.categories = append(m.categories, category)
}

func (m *mockEngine) LoadMore()             { m.calls = append(m.calls, "LoadMore") }
func (m *mockEngine) RetryNow()             { m.calls = append(m.calls, "RetryNow") }
func (m *mockEngine) OnVisibilityRegain()   { m.calls = append(m.calls, "OnVisibilityRegain") }
func (m *mockEngine) OnConnectivityRegain() { m.calls = append(m.calls, "OnConnectivityRegain") }

func (m *mockEngine) Pin(ideaID string) {
	m.calls = append(m.calls, "Pin")
	m.pinned = append(m.pinned, ideaID)
}

func (m *mockEngine) AddCreated(it model.Idea) {
	m.calls = append(m.calls, "AddCreated")
	m.created = append(m.created, it)
}

func (m *mockEngine) Vote(ctx context.Context, ideaID string, dir model.VoteDirection) (model.Idea, error) {
	m.calls = append(m.calls, "Vote")
	if m.voteFn != nil {
		return m.voteFn(ctx, ideaID, dir)
	}
	return model.Idea{ID: ideaID}, nil
}

func (m *mockEngine) OpenItem(ctx context.Context, ideaID string, hint model.ViewHint) (model.Idea, error) {
	m.calls = append(m.calls, "OpenItem")
	if m.openFn != nil {
		return m.openFn(ctx, ideaID, hint)
	}
	return model.Idea{ID: ideaID}, nil
}

func (m *mockEngine) ReloadActor(ctx context.Context) error {
	m.calls = append(m.calls, "ReloadActor")
	return m.reloadErr
}

// mockSessions はSessionProviderのモック実装。
type mockSessions struct {
	sessionFn func(ctx context.Context, actorID string) (FeedEngine, error)
}

func (m *mockSessions) Session(ctx context.Context, actorID string) (FeedEngine, error) {
	return m.sessionFn(ctx, actorID)
}

// sessionsFor は常にengを返すSessionProviderを返す。
func sessionsFor(eng FeedEngine) *mockSessions {
	return &mockSessions{
		sessionFn: func(ctx context.Context, actorID string) (FeedEngine, error) {
			return eng, nil
		},
	}
}

// mockChannelService はChannelServiceのモック実装。
type mockChannelService struct {
	resolveFn  func(targetIDs ...string) (model.Channel, error)
	channelFn  func(channelID string) (model.Channel, bool)
	channelsFn func() []model.Channel
	refreshFn  func(ctx context.Context, channelID string) (model.Channel, error)
	sendFn     func(ctx context.Context, channelID, text string) (model.Message, error)
	retryFn    func(ctx context.Context, channelID, messageID string) (model.Message, error)
}

func (m *mockChannelService) Resolve(targetIDs ...string) (model.Channel, error) {
	if m.resolveFn != nil {
		return m.resolveFn(targetIDs...)
	}
	return model.Channel{}, nil
}

func (m *mockChannelService) Channel(channelID string) (model.Channel, bool) {
	if m.channelFn != nil {
		return m.channelFn(channelID)
	}
	return model.Channel{}, false
}

func (m *mockChannelService) Channels() []model.Channel {
	if m.channelsFn != nil {
		return m.channelsFn()
	}
	return nil
}

func (m *mockChannelService) Refresh(ctx context.Context, channelID string) (model.Channel, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, channelID)
	}
	return model.Channel{}, model.NewChannelNotFoundError(channelID)
}

func (m *mockChannelService) Send(ctx context.Context, channelID, text string) (model.Message, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, channelID, text)
	}
	return model.Message{}, nil
}

func (m *mockChannelService) Retry(ctx context.Context, channelID, messageID string) (model.Message, error) {
	if m.retryFn != nil {
		return m.retryFn(ctx, channelID, messageID)
	}
	return model.Message{}, nil
}

// mockChannels はChannelProviderのモック実装。
type mockChannels struct {
	svc ChannelService
	err error
}

func (m *mockChannels) Resolver(ctx context.Context, actorID string) (ChannelService, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.svc, nil
}

// mockIdeaCreator はIdeaCreatorのモック実装。
type mockIdeaCreator struct {
	createFn func(ctx context.Context, in model.NewIdea) (*model.Idea, error)
}

func (m *mockIdeaCreator) Create(ctx context.Context, in model.NewIdea) (*model.Idea, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Idea{ID: "idea-new", Title: in.Title, Category: in.Category}, nil
}

// mockProfileStore はProfileStoreのモック実装。
type mockProfileStore struct {
	upsertFn func(ctx context.Context, p model.Profile) error
	followFn func(ctx context.Context, followerID, followeeID string) error
}

func (m *mockProfileStore) Upsert(ctx context.Context, p model.Profile) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, p)
	}
	return nil
}

func (m *mockProfileStore) Follow(ctx context.Context, followerID, followeeID string) error {
	if m.followFn != nil {
		return m.followFn(ctx, followerID, followeeID)
	}
	return nil
}

// mockIdeaSaver はIdeaSaverのモック実装。
type mockIdeaSaver struct {
	saveFn func(ctx context.Context, actorID, ideaID string) error
}

func (m *mockIdeaSaver) Save(ctx context.Context, actorID, ideaID string) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, actorID, ideaID)
	}
	return nil
}

// mockCleaner はIdeaCleanerのモック実装。前後の空白だけを取り除く。
type mockCleaner struct {
	called int
}

func (m *mockCleaner) Clean(in model.NewIdea) model.NewIdea {
	m.called++
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	return in
}

// stubPreview は先頭にタイトルを付けたプレビューを返す。
type stubPreview struct{}

func (stubPreview) Text(it model.Idea) string { return "preview:" + it.Title }

// --- ヘルパー ---

const testActorID = "actor-1"

// testDeps はモックで構成したRouterDepsを返す。
func testDeps(t *testing.T) *RouterDeps {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)
	return &RouterDeps{
		RateLimiter: rl,
		Sessions:    sessionsFor(&mockEngine{}),
		Preview:     stubPreview{},
		Ideas:       &mockIdeaCreator{},
		Cleaner:     &mockCleaner{},
		Profiles:    &mockProfileStore{},
		Saved:       &mockIdeaSaver{},
		Channels:    &mockChannels{svc: &mockChannelService{}},
	}
}

// doRequest はルーター経由でリクエストを実行する。actorIDが空の場合はヘッダーを付けない。
func doRequest(t *testing.T, deps *RouterDeps, method, path, body, actorID string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorID != "" {
		req.Header.Set(middleware.ActorHeader, actorID)
	}
	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, req)
	return rec
}

// assertStatus はステータスコードを検証する。
func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, want, rec.Body.String())
	}
}

// assertErrorCode はエラーレスポンスのコードを検証する。
func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body apiErrorResponse
	decodeBody(t, rec, &body)
	if body.Code != want {
		t.Errorf("code = %q, want %q", body.Code, want)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response: %v, body = %s", err, rec.Body.String())
	}
}
