package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ideafeed/internal/clock"
	"github.com/hitoshi/ideafeed/internal/model"
)

// defaultReconcileTimeout は送信後の突き合わせ取得のタイムアウト。
const defaultReconcileTimeout = 10 * time.Second

// SendResult はメッセージ送信の結果。
// Successがfalseで理由が付いている場合、サーバーが送信を明確に拒否したことを表す。
type SendResult struct {
	Success bool
	Message *model.Message
	Reason  string
}

// Sender はメッセージを送信する。
type Sender interface {
	SendMessage(ctx context.Context, channelID, text, clientID string) (SendResult, error)
}

// Fetcher はサーバー上の会話の正式な状態を取得する。
type Fetcher interface {
	FetchChannel(ctx context.Context, channelID string) (*model.Channel, error)
}

// Creator はローカルで作成した仮の会話をサーバーに登録する。
type Creator interface {
	CreateChannel(ctx context.Context, ch model.Channel) error
}

// Recorder は送信結果のメトリクスの記録先。
type Recorder interface {
	RecordSend(outcome string)
}

// 送信結果の分類
const (
	OutcomeSent     = "sent"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Option はResolverの設定を変更する。
type Option func(*Resolver)

// WithClock は送信時刻の取得に使用するClockを指定する。
func WithClock(c clock.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithRunner は突き合わせ取得の起動方法を指定する。既定ではゴルーチンで実行する。
func WithRunner(run func(fn func())) Option {
	return func(r *Resolver) { r.run = run }
}

// WithReconcileTimeout は突き合わせ取得のタイムアウトを指定する。
func WithReconcileTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.reconcileTimeout = d
		}
	}
}

// WithLogger はロガーを指定する。
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithCreator は仮の会話の登録先を指定する。
// 指定しない場合、仮の会話はSenderが最初の送信時に扱う。
func WithCreator(c Creator) Option {
	return func(r *Resolver) { r.creator = c }
}

// WithRecorder はメトリクスの記録先を指定する。
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// Resolver は1人の利用者から見た会話の一覧を保持する。
// 会話の解決、メッセージの楽観的な送信、サーバー状態との突き合わせを行う。
type Resolver struct {
	actorID string
	sender  Sender
	fetcher Fetcher
	creator Creator

	clock            clock.Clock
	run              func(fn func())
	reconcileTimeout time.Duration
	logger           *slog.Logger
	recorder         Recorder

	mu       sync.Mutex
	channels map[string]*model.Channel
	// optimistic はサーバーの正式な記録にまだ現れていない自分の送信メッセージ（ClientID）。
	optimistic map[string]bool
	// issued / applied は会話ごとの突き合わせ取得の発行番号と反映済み番号。
	issued  map[string]int
	applied map[string]int
}

// NewResolver は新しいResolverを生成する。
func NewResolver(actorID string, sender Sender, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		actorID:          actorID,
		sender:           sender,
		fetcher:          fetcher,
		clock:            clock.Real{},
		run:              func(fn func()) { go fn() },
		reconcileTimeout: defaultReconcileTimeout,
		logger:           slog.Default(),
		channels:         make(map[string]*model.Channel),
		optimistic:       make(map[string]bool),
		issued:           make(map[string]int),
		applied:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed は既知の会話を登録する。同じIDの会話は置き換える。
func (r *Resolver) Seed(channels ...model.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range channels {
		c := copyChannel(ch)
		r.channels[c.ID] = &c
	}
}

// Resolve は自分とtargetIDsの参加者からなる会話を返す。
// 相手が1人なら決定的なIDの2者間の会話、2人以上ならグループの会話になる。
// 同じ参加者の会話が既にあればそれを返し、なければローカルに仮の会話を作成する。
func (r *Resolver) Resolve(targetIDs ...string) (model.Channel, error) {
	targets := make([]string, 0, len(targetIDs))
	for _, id := range normalizeParticipants(targetIDs) {
		if id != r.actorID {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return model.Channel{}, model.NewInvalidChannelError("参加者が指定されていません")
	}
	participants := normalizeParticipants(append([]string{r.actorID}, targets...))

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(targets) == 1 {
		if ch := r.findDirectLocked(participants); ch != nil {
			return copyChannel(*ch), nil
		}
		id := DirectID(r.actorID, targets[0])
		if ch, ok := r.channels[id]; ok {
			return copyChannel(*ch), nil
		}
		return r.createLocked(id, participants, false), nil
	}

	id, err := NewGroupID()
	if err != nil {
		return model.Channel{}, err
	}
	return r.createLocked(id, participants, true), nil
}

// Channel は会話のスナップショットを返す。
func (r *Resolver) Channel(channelID string) (model.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[channelID]
	if !ok {
		return model.Channel{}, false
	}
	return copyChannel(*ch), true
}

// Channels は会話の一覧を更新日時の降順で返す。
func (r *Resolver) Channels() []model.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, copyChannel(*ch))
	}
	slices.SortFunc(out, func(a, b model.Channel) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Send はメッセージを送信する。
// 送信中のメッセージは直ちにローカルの会話に追加される。
// サーバーが明確に拒否した場合のみローカルから取り除き、通信エラーの場合は失敗状態で残す。
func (r *Resolver) Send(ctx context.Context, channelID, text string) (model.Message, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return model.Message{}, model.NewInvalidMessageError("本文が空です")
	}

	clientID := uuid.NewString()

	r.mu.Lock()
	ch, ok := r.channels[channelID]
	if !ok {
		r.mu.Unlock()
		return model.Message{}, model.NewChannelNotFoundError(channelID)
	}
	msg := model.Message{
		ID:        clientID,
		ClientID:  clientID,
		ChannelID: channelID,
		SenderID:  r.actorID,
		Body:      body,
		SentAt:    r.clock.Now(),
		Status:    model.MessageStatusPending,
	}
	ch.Messages = append(ch.Messages, msg)
	ch.UpdatedAt = msg.SentAt
	r.optimistic[clientID] = true
	r.mu.Unlock()

	return r.deliver(ctx, msg)
}

// Retry は送信に失敗したメッセージを同じClientIDで再送する。
func (r *Resolver) Retry(ctx context.Context, channelID, messageID string) (model.Message, error) {
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	if !ok {
		r.mu.Unlock()
		return model.Message{}, model.NewChannelNotFoundError(channelID)
	}
	i := indexOf(ch.Messages, messageID)
	if i < 0 {
		r.mu.Unlock()
		return model.Message{}, model.NewMessageNotFoundError(messageID)
	}
	msg := ch.Messages[i]
	if msg.Status != model.MessageStatusFailed {
		r.mu.Unlock()
		return msg, nil
	}
	msg.Status = model.MessageStatusPending
	ch.Messages[i] = msg
	r.mu.Unlock()

	return r.deliver(ctx, msg)
}

// Refresh はサーバーから会話の正式な状態を同期的に取得して反映する。
func (r *Resolver) Refresh(ctx context.Context, channelID string) (model.Channel, error) {
	seq := r.nextSequence(channelID)
	remote, err := r.fetcher.FetchChannel(ctx, channelID)
	if err != nil {
		return model.Channel{}, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	r.apply(channelID, seq, remote)

	ch, ok := r.Channel(channelID)
	if !ok {
		return model.Channel{}, model.NewChannelNotFoundError(channelID)
	}
	return ch, nil
}

// deliver はSenderを呼び出し、結果に応じてローカルの状態を更新する。
func (r *Resolver) deliver(ctx context.Context, msg model.Message) (model.Message, error) {
	if err := r.register(ctx, msg.ChannelID); err != nil {
		r.logger.Warn("会話の登録に失敗しました",
			slog.String("channel_id", msg.ChannelID),
			slog.String("error", err.Error()),
		)
		r.record(OutcomeFailed)
		failed := r.update(msg.ChannelID, msg.ClientID, func(m *model.Message) {
			m.Status = model.MessageStatusFailed
		})
		return failed, model.NewSendFailedError(err.Error())
	}

	res, err := r.sender.SendMessage(ctx, msg.ChannelID, msg.Body, msg.ClientID)
	if err != nil {
		r.logger.Warn("メッセージの送信に失敗しました",
			slog.String("channel_id", msg.ChannelID),
			slog.String("client_id", msg.ClientID),
			slog.String("error", err.Error()),
		)
		r.record(OutcomeFailed)
		failed := r.update(msg.ChannelID, msg.ClientID, func(m *model.Message) {
			m.Status = model.MessageStatusFailed
		})
		return failed, model.NewSendFailedError(err.Error())
	}

	if !res.Success {
		if res.Reason == "" {
			// 理由のない失敗は確定的ではないため、再送できるよう残す
			r.record(OutcomeFailed)
			failed := r.update(msg.ChannelID, msg.ClientID, func(m *model.Message) {
				m.Status = model.MessageStatusFailed
			})
			return failed, model.NewSendFailedError("送信結果を確認できませんでした")
		}
		r.logger.Info("メッセージの送信が拒否されました",
			slog.String("channel_id", msg.ChannelID),
			slog.String("reason", res.Reason),
		)
		r.record(OutcomeRejected)
		r.remove(msg.ChannelID, msg.ClientID)
		return model.Message{}, model.NewSendRejectedError(res.Reason)
	}

	r.record(OutcomeSent)
	sent := r.update(msg.ChannelID, msg.ClientID, func(m *model.Message) {
		*m = mergeEcho(*m, res.Message)
	})
	r.markConfirmed(msg.ChannelID)
	r.scheduleReconcile(msg.ChannelID)
	return sent, nil
}

// mergeEcho はサーバーのエコーをローカルのメッセージに反映する。
// サーバーが返したフィールドを優先し、欠けているものはローカルの本文と送信時刻で補う。
func mergeEcho(local model.Message, echo *model.Message) model.Message {
	out := local
	if echo != nil {
		if echo.ID != "" {
			out.ID = echo.ID
		}
		if echo.Body != "" {
			out.Body = echo.Body
		}
		if !echo.SentAt.IsZero() {
			out.SentAt = echo.SentAt
		}
		if echo.SenderID != "" {
			out.SenderID = echo.SenderID
		}
	}
	out.ClientID = local.ClientID
	out.ChannelID = local.ChannelID
	out.Status = model.MessageStatusSent
	return out
}

// scheduleReconcile はバックグラウンドで会話の正式な状態を取得する。
func (r *Resolver) scheduleReconcile(channelID string) {
	seq := r.nextSequence(channelID)
	r.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.reconcileTimeout)
		defer cancel()

		remote, err := r.fetcher.FetchChannel(ctx, channelID)
		if err != nil {
			// 楽観的な状態はそのまま残す
			r.logger.Warn("会話の再取得に失敗しました",
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)
			return
		}
		r.apply(channelID, seq, remote)
	})
}

func (r *Resolver) nextSequence(channelID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[channelID]++
	return r.issued[channelID]
}

// apply はサーバーの正式な記録でローカルの会話を置き換える。
// 正式な記録にまだ現れていない自分の送信メッセージは末尾に残す。
// 後から発行された取得結果が先に反映済みの場合、古い結果は破棄する。
func (r *Resolver) apply(channelID string, seq int, remote *model.Channel) {
	if remote == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq <= r.applied[channelID] {
		r.logger.Debug("古い会話の取得結果を破棄しました",
			slog.String("channel_id", channelID),
			slog.Int("sequence", seq),
		)
		return
	}
	r.applied[channelID] = seq

	next := copyChannel(*remote)
	next.ID = channelID
	next.Synthetic = false

	present := make(map[string]bool, len(next.Messages)*2)
	for _, m := range next.Messages {
		present[m.ID] = true
		if m.ClientID != "" {
			present[m.ClientID] = true
		}
	}

	if local, ok := r.channels[channelID]; ok {
		for _, m := range local.Messages {
			if !r.optimistic[m.ClientID] {
				continue
			}
			if present[m.ID] || present[m.ClientID] {
				delete(r.optimistic, m.ClientID)
				continue
			}
			next.Messages = append(next.Messages, m)
		}
		if len(next.Participants) == 0 {
			next.Participants = local.Participants
			next.IsGroup = local.IsGroup
		}
		if next.UpdatedAt.Before(local.UpdatedAt) {
			next.UpdatedAt = local.UpdatedAt
		}
	}
	r.channels[channelID] = &next
}

// update はClientIDで特定したメッセージを更新し、更新後の値を返す。
func (r *Resolver) update(channelID, clientID string, fn func(*model.Message)) model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[channelID]
	if !ok {
		return model.Message{}
	}
	for i := range ch.Messages {
		if ch.Messages[i].ClientID == clientID {
			fn(&ch.Messages[i])
			return ch.Messages[i]
		}
	}
	return model.Message{}
}

func (r *Resolver) remove(channelID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.optimistic, clientID)
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	ch.Messages = slices.DeleteFunc(ch.Messages, func(m model.Message) bool {
		return m.ClientID == clientID
	})
}

// register は仮の会話をCreatorに登録する。登録済みの会話では何もしない。
func (r *Resolver) register(ctx context.Context, channelID string) error {
	if r.creator == nil {
		return nil
	}
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	if !ok || !ch.Synthetic {
		r.mu.Unlock()
		return nil
	}
	snapshot := copyChannel(*ch)
	r.mu.Unlock()

	if err := r.creator.CreateChannel(ctx, snapshot); err != nil {
		return fmt.Errorf("create channel %s: %w", channelID, err)
	}
	r.markConfirmed(channelID)
	return nil
}

// markConfirmed はサーバーが会話を受理したことを記録する。
func (r *Resolver) markConfirmed(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[channelID]; ok {
		ch.Synthetic = false
	}
}

func (r *Resolver) record(outcome string) {
	if r.recorder != nil {
		r.recorder.RecordSend(outcome)
	}
}

// findDirectLocked は参加者の集合が一致する2者間の会話を探す。
func (r *Resolver) findDirectLocked(participants []string) *model.Channel {
	key := participantKey(participants)
	for _, ch := range r.channels {
		if !ch.IsGroup && participantKey(ch.Participants) == key {
			return ch
		}
	}
	return nil
}

func (r *Resolver) createLocked(id string, participants []string, group bool) model.Channel {
	ch := &model.Channel{
		ID:           id,
		Participants: participants,
		IsGroup:      group,
		Synthetic:    true,
		UpdatedAt:    r.clock.Now(),
	}
	r.channels[id] = ch
	return copyChannel(*ch)
}

func indexOf(msgs []model.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id || m.ClientID == id {
			return i
		}
	}
	return -1
}

func copyChannel(ch model.Channel) model.Channel {
	ch.Participants = slices.Clone(ch.Participants)
	ch.Messages = slices.Clone(ch.Messages)
	return ch
}

// IsRejected は送信がサーバーに拒否されたエラーかを返す。
func IsRejected(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeSendRejected
}
