package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/ideafeed/internal/channel"
	"github.com/hitoshi/ideafeed/internal/model"
)

// DefaultMaxMessageLength はメッセージ本文の最大文字数のデフォルト値。
const DefaultMaxMessageLength = 2000

// 送信を拒否する理由
const (
	ReasonEmptyMessage   = "message is empty"
	ReasonMessageTooLong = "message is too long"
	ReasonNotParticipant = "sender is not a participant"
	ReasonUnknownChannel = "channel does not exist"
)

// ChannelBackend はChannelRepositoryを1人のアクターから見た送受信先として提供する。
// channel.Sender、channel.Fetcher、channel.Creatorを実装する。
type ChannelBackend struct {
	repo    ChannelRepository
	actorID string
	maxLen  int
	now     func() time.Time
}

// NewChannelBackend はChannelBackendを生成する。maxLenが0以下の場合はデフォルト値を使用する。
func NewChannelBackend(repo ChannelRepository, actorID string, maxLen int) *ChannelBackend {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &ChannelBackend{repo: repo, actorID: actorID, maxLen: maxLen, now: time.Now}
}

// SendMessage はメッセージを保存し、保存されたメッセージをエコーとして返す。
// 内容や権限の問題はSuccess=falseと理由で返し、保存先の障害のみエラーとして返す。
func (b *ChannelBackend) SendMessage(ctx context.Context, channelID, text, clientID string) (channel.SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return channel.SendResult{Reason: ReasonEmptyMessage}, nil
	}
	if utf8.RuneCountInString(text) > b.maxLen {
		return channel.SendResult{Reason: ReasonMessageTooLong}, nil
	}

	ch, err := b.repo.FindByID(ctx, channelID)
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("find channel: %w", err)
	}
	if ch == nil {
		return channel.SendResult{Reason: ReasonUnknownChannel}, nil
	}
	if !slices.Contains(ch.Participants, b.actorID) {
		return channel.SendResult{Reason: ReasonNotParticipant}, nil
	}

	stored, err := b.repo.InsertMessage(ctx, model.Message{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		ChannelID: channelID,
		SenderID:  b.actorID,
		Body:      text,
		SentAt:    b.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeChannelNotFound {
			return channel.SendResult{Reason: ReasonUnknownChannel}, nil
		}
		return channel.SendResult{}, fmt.Errorf("insert message: %w", err)
	}

	return channel.SendResult{Success: true, Message: stored}, nil
}

// FetchChannel は会話の正式な状態を返す。
// 存在しない会話と、アクターが参加していない会話はnilを返す。
func (b *ChannelBackend) FetchChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := b.repo.FindByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("find channel: %w", err)
	}
	if ch == nil || !slices.Contains(ch.Participants, b.actorID) {
		return nil, nil
	}
	return ch, nil
}

// CreateChannel はローカルで作成された会話を保存する。
func (b *ChannelBackend) CreateChannel(ctx context.Context, ch model.Channel) error {
	if !slices.Contains(ch.Participants, b.actorID) {
		return model.NewInvalidChannelError("actor must be a participant")
	}
	if err := b.repo.Create(ctx, ch); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}
