// Package session は利用者ごとのフィードエンジンを提供する。
//
// Sessionはスコアリング・表示の組み立て・古い表示のガード・再取得の制御を束ね、
// ホスト（HTTP API）からの操作とエッジイベントを受け付ける。
// 表示は入力（取得結果、モード、検索クエリ、表示件数、ピン留め、読み込み状態）が
// 変化したときにだけ再計算し、View()はその結果を返す。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/ideafeed/internal/clock"
	"github.com/hitoshi/ideafeed/internal/model"
	"github.com/hitoshi/ideafeed/internal/refresh"
	"github.com/hitoshi/ideafeed/internal/scoring"
	"github.com/hitoshi/ideafeed/internal/source"
	"github.com/hitoshi/ideafeed/internal/view"
)

// ActorProvider は個人化に必要な情報を返す。
type ActorProvider interface {
	Actor(ctx context.Context, actorID string) (model.Actor, error)
	Profiles(ctx context.Context) ([]model.Profile, error)
}

// Voter は投票を永続化し、反映後の投票数を返す。
type Voter interface {
	Vote(ctx context.Context, actorID, ideaID string, dir model.VoteDirection) (int, error)
}

// Opener はアイテムを開く操作をホストに伝える。
type Opener func(ctx context.Context, actorID string, it model.Idea, hint model.ViewHint)

// Recorder はセッション操作のメトリクスの記録先。
type Recorder interface {
	refresh.Recorder
	RecordVote(success bool)
}

// Config はセッションの設定。
type Config struct {
	PageSize    int
	PinDuration time.Duration
	Retry       refresh.Policy
}

// Deps はセッションの依存関係。SourceとActors以外は省略可能。
type Deps struct {
	Source  source.ItemSource
	Actors  ActorProvider
	Voter   Voter
	Opener  Opener
	Clock   clock.Clock
	Runner  refresh.Runner
	Logger  *slog.Logger
	Metrics Recorder
}

// RetryStatus は再取得の状態の要約。
type RetryStatus struct {
	Phase     refresh.Phase
	Attempt   int
	Exhausted bool
}

// Snapshot はある時点の表示状態。
type Snapshot struct {
	Items    []model.Idea
	HasMore  bool
	Loading  bool
	// Empty は取得が完了し、取得元が本当に0件であることを示す。
	// 表示中の一覧（ガードが返した古い一覧を含む）とは独立に判定する。
	Empty    bool
	Mode     model.Mode
	Query    string
	Category string
	Tier     scoring.Tier
	PinnedID string
	Retry    RetryStatus
}

// Opened は最後に開いたアイテム。
type Opened struct {
	Idea model.Idea
	Hint model.ViewHint
	At   time.Time
}

// Session は1人の利用者のフィードエンジン。
// 内部状態はmuで保護する。coordinatorのメソッドはmuを保持したまま呼び出さないこと
// （coordinatorのコールバックがmuを取得するため）。
type Session struct {
	actorID string
	deps    Deps
	logger  *slog.Logger

	coord *refresh.Coordinator
	pin   *view.Pin

	mu               sync.Mutex
	universe         []model.Idea
	// created は作成直後のアイデア。取得元に反映されるかピン留めが外れるまで取得結果に補う。
	created          *model.Idea
	actor            model.Actor
	profiles         []model.Profile
	mode             model.Mode
	query            string
	discoverCategory string
	window           *view.Window
	guard            view.Guard
	initialLoading   bool
	loaded           bool
	retry            refresh.State
	fetchSeq         int
	appliedSeq       int
	opened           *Opened
	snapshot         Snapshot
}

// New は新しいセッションを生成する。初期モードはトレンド。
// 取得元からの読み込みはLoadで行う。
func New(actorID string, deps Deps, cfg Config) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With(slog.String("actor_id", actorID))

	s := &Session{
		actorID: actorID,
		deps:    deps,
		logger:  logger,
		mode:    model.Trending,
		actor:   model.Actor{ID: actorID},
		window:  view.NewWindow(cfg.PageSize),
	}
	s.pin = view.NewPin(deps.Clock, cfg.PinDuration, s.onPinExpired)

	opts := []refresh.Option{
		refresh.WithClock(deps.Clock),
		refresh.WithLogger(logger),
		refresh.WithOnChange(s.onRetryChange),
	}
	if deps.Runner != nil {
		opts = append(opts, refresh.WithRunner(deps.Runner))
	}
	if deps.Metrics != nil {
		opts = append(opts, refresh.WithRecorder(deps.Metrics))
	}
	s.coord = refresh.NewCoordinator(cfg.Retry, s.mode.IsItemBased(), s.fetch, opts...)
	s.retry = s.coord.State()
	s.recomputeLocked()
	return s
}

// Load は個人化情報とアイデアを読み込む。
// 取得の失敗はエラーとして返さず、空の結果と同じく再試行の対象になる。
func (s *Session) Load(ctx context.Context) error {
	if err := s.ReloadActor(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.initialLoading = true
	s.recomputeLocked()
	s.mu.Unlock()

	_, err := s.fetch(ctx)

	s.mu.Lock()
	s.initialLoading = false
	s.loaded = true
	s.recomputeLocked()
	count := len(s.universe)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("アイテムの初回取得に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	s.coord.Observe(count)
	return nil
}

// ReloadActor はフォロー・保存済み・プロフィールを再読み込みして表示を更新する。
func (s *Session) ReloadActor(ctx context.Context) error {
	actor, err := s.deps.Actors.Actor(ctx, s.actorID)
	if err != nil {
		return fmt.Errorf("load actor %s: %w", s.actorID, err)
	}
	profiles, err := s.deps.Actors.Profiles(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.actor = actor
	s.profiles = profiles
	s.recomputeLocked()
	return nil
}

// View は現在の表示状態を返す。
func (s *Session) View() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot
	snap.Items = slices.Clone(snap.Items)
	return snap
}

// SetMode は表示モードを切り替える。
// 表示件数とガードの記憶をリセットし、ピン留めを解除し、再試行を初期化する。
func (s *Session) SetMode(mode model.Mode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	s.window.Reset()
	s.guard.Reset()
	s.pin.Clear()
	s.recomputeLocked()
	itemBased := s.itemBasedLocked()
	s.mu.Unlock()

	s.logger.Info("表示モードを切り替えました", slog.String("mode", mode.String()))
	s.coord.SetMode(itemBased)
}

// SetQuery は検索クエリを設定する。空文字列で検索を解除する。
// 検索の開始・解除でアイテム主体かどうかが変わる場合のみ再試行を初期化する。
func (s *Session) SetQuery(query string) {
	s.mu.Lock()
	if s.query == query {
		s.mu.Unlock()
		return
	}
	before := s.itemBasedLocked()
	s.query = query
	s.window.Reset()
	s.guard.Reset()
	s.recomputeLocked()
	after := s.itemBasedLocked()
	s.mu.Unlock()

	if before != after {
		s.coord.SetMode(after)
	}
}

// SetDiscoverCategory は発見表示で絞り込むカテゴリを設定する。空文字列で全件。
func (s *Session) SetDiscoverCategory(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discoverCategory == category {
		return
	}
	s.discoverCategory = category
	s.window.Reset()
	s.guard.Reset()
	s.recomputeLocked()
}

// LoadMore は表示件数を1ページ分増やす。
func (s *Session) LoadMore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.LoadMore()
	s.recomputeLocked()
}

// RetryNow は明示的に再取得する。取得中の場合は何もしない。
func (s *Session) RetryNow() {
	s.coord.RetryNow()
}

// OnVisibilityRegain は画面の再表示を通知する。
func (s *Session) OnVisibilityRegain() {
	s.coord.VisibilityRegained()
}

// OnConnectivityRegain はネットワーク接続の回復を通知する。
func (s *Session) OnConnectivityRegain() {
	s.coord.ConnectivityRegained()
}

// Pin はアイテムを一定時間だけ先頭に固定する。
func (s *Session) Pin(ideaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pin.Set(ideaID)
	s.recomputeLocked()
}

// AddCreated は作成直後のアイデアを取得元の一覧に加えてピン留めする。
// 作者は表示モードや絞り込みに関係なく、自分の投稿をすぐに先頭で確認できる。
// 取得元への反映が遅れても、ピン留めの間は取得結果に補って表示し続ける。
func (s *Session) AddCreated(it model.Idea) {
	s.mu.Lock()
	s.created = &it
	if !slices.ContainsFunc(s.universe, func(x model.Idea) bool { return x.ID == it.ID }) {
		s.universe = append([]model.Idea{it}, s.universe...)
	}
	s.pin.Set(it.ID)
	s.recomputeLocked()
	count := len(s.universe)
	s.mu.Unlock()

	s.coord.Observe(count)
}

// Vote は投票を楽観的に反映してから永続化する。
// 永続化に失敗した場合は楽観的な反映を取り消す。
func (s *Session) Vote(ctx context.Context, ideaID string, dir model.VoteDirection) (model.Idea, error) {
	s.mu.Lock()
	i := s.indexLocked(ideaID)
	if i < 0 {
		s.mu.Unlock()
		return model.Idea{}, model.NewIdeaNotFoundError(ideaID)
	}
	original := s.universe[i].Votes
	optimistic := original + int(dir)
	s.setVotesLocked(ideaID, optimistic)
	s.recomputeLocked()
	s.mu.Unlock()

	if s.deps.Voter == nil {
		return s.idea(ideaID), nil
	}

	votes, err := s.deps.Voter.Vote(ctx, s.actorID, ideaID, dir)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordVote(err == nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Error("投票の反映に失敗しました",
			slog.String("idea_id", ideaID),
			slog.String("error", err.Error()),
		)
		// 取得結果で上書き済みなら、そちらを正とする
		if j := s.indexLocked(ideaID); j >= 0 && s.universe[j].Votes == optimistic {
			s.setVotesLocked(ideaID, original)
			s.recomputeLocked()
		}
		return model.Idea{}, model.NewVoteFailedError(ideaID)
	}

	s.setVotesLocked(ideaID, votes)
	s.recomputeLocked()
	if j := s.indexLocked(ideaID); j >= 0 {
		return s.universe[j], nil
	}
	return model.Idea{}, model.NewIdeaNotFoundError(ideaID)
}

// OpenItem はアイテムを開く。hintが空または不明な場合は詳細画面として扱う。
func (s *Session) OpenItem(ctx context.Context, ideaID string, hint model.ViewHint) (model.Idea, error) {
	if hint != model.ViewHintComments {
		hint = model.ViewHintDetail
	}

	s.mu.Lock()
	i := s.indexLocked(ideaID)
	if i < 0 {
		s.mu.Unlock()
		return model.Idea{}, model.NewIdeaNotFoundError(ideaID)
	}
	it := s.universe[i]
	s.opened = &Opened{Idea: it, Hint: hint, At: s.deps.Clock.Now()}
	s.mu.Unlock()

	if s.deps.Opener != nil {
		s.deps.Opener(ctx, s.actorID, it, hint)
	}
	return it, nil
}

// LastOpened は最後に開いたアイテムを返す。
func (s *Session) LastOpened() (Opened, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened == nil {
		return Opened{}, false
	}
	return *s.opened, true
}

// Close はタイマーを停止する。以降のイベントは無視される。
func (s *Session) Close() {
	s.coord.Close()
	s.pin.Clear()
}

// fetch は取得元からアイデアを取得して一覧を置き換える。
// 後から開始した取得が先に反映済みの場合、古い結果は反映しない。
func (s *Session) fetch(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	items, err := s.deps.Source.FetchItems(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.appliedSeq {
		return len(items), nil
	}
	s.appliedSeq = seq
	s.universe = s.withCreatedLocked(items)
	s.loaded = true
	s.recomputeLocked()
	return len(s.universe), nil
}

// withCreatedLocked は取得元にまだ反映されていない作成直後のアイデアを先頭に補う。
// 取得結果に含まれた時点、またはピン留めが外れた時点で補うのをやめる。
func (s *Session) withCreatedLocked(items []model.Idea) []model.Idea {
	if s.created == nil {
		return items
	}
	c := *s.created
	if s.pin.ID() != c.ID || slices.ContainsFunc(items, func(x model.Idea) bool { return x.ID == c.ID }) {
		s.created = nil
		return items
	}
	return append([]model.Idea{c}, items...)
}

// onRetryChange は再取得の状態が変わったときにcoordinatorから呼び出される。
// 読み込み状態が変わったときだけ一覧を再計算する。
func (s *Session) onRetryChange(st refresh.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasLoading := s.loadingLocked()
	s.retry = st
	if s.loadingLocked() != wasLoading {
		s.recomputeLocked()
		return
	}
	s.snapshot.Retry = retryStatus(st)
}

func (s *Session) onPinExpired(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("ピン留めの期限が切れました", slog.String("idea_id", id))
	s.recomputeLocked()
}

// recomputeLocked はスコアリングから表示までを再計算してスナップショットを更新する。
func (s *Session) recomputeLocked() {
	ctx := scoring.Context{
		Actor:            s.actor,
		Profiles:         s.profiles,
		DiscoverCategory: s.discoverCategory,
	}
	scored, tier := scoring.ScoreWithTier(s.universe, s.mode, s.query, ctx)
	pinned := s.pin.ID()
	render, hasMore := view.Compose(scored, s.universe, pinned, s.window.Visible())

	loading := s.loadingLocked()
	display := s.guard.Apply(render, loading)

	s.snapshot = Snapshot{
		Items:    display,
		HasMore:  hasMore,
		Loading:  loading,
		Empty:    s.loaded && !loading && len(s.universe) == 0,
		Mode:     s.mode,
		Query:    s.query,
		Category: s.discoverCategory,
		Tier:     tier,
		PinnedID: pinned,
		Retry:    retryStatus(s.retry),
	}
}

func (s *Session) loadingLocked() bool {
	return s.initialLoading || s.retry.InFlight
}

// itemBasedLocked は自動再試行の対象か（アイテム主体のモードで検索中でない）を返す。
func (s *Session) itemBasedLocked() bool {
	return s.mode.IsItemBased() && strings.TrimSpace(s.query) == ""
}

func (s *Session) indexLocked(ideaID string) int {
	return slices.IndexFunc(s.universe, func(it model.Idea) bool { return it.ID == ideaID })
}

// setVotesLocked は一覧を複製してから投票数を書き換える。
// 取得元が返したスライスを直接変更しないため。
func (s *Session) setVotesLocked(ideaID string, votes int) {
	i := s.indexLocked(ideaID)
	if i < 0 {
		return
	}
	s.universe = slices.Clone(s.universe)
	s.universe[i].Votes = votes
	if s.created != nil && s.created.ID == ideaID {
		c := *s.created
		c.Votes = votes
		s.created = &c
	}
}

func (s *Session) idea(ideaID string) model.Idea {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(ideaID); i >= 0 {
		return s.universe[i]
	}
	return model.Idea{}
}

func retryStatus(st refresh.State) RetryStatus {
	return RetryStatus{Phase: st.Phase(), Attempt: st.Attempt, Exhausted: st.Exhausted}
}
