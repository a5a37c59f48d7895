package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ideafeed/internal/model"
)

// ChannelService はハンドラーが使用する会話リゾルバーの操作。
// channel.Resolverが実装する。
type ChannelService interface {
	Resolve(targetIDs ...string) (model.Channel, error)
	Channel(channelID string) (model.Channel, bool)
	Channels() []model.Channel
	Refresh(ctx context.Context, channelID string) (model.Channel, error)
	Send(ctx context.Context, channelID, text string) (model.Message, error)
	Retry(ctx context.Context, channelID, messageID string) (model.Message, error)
}

// ChannelProvider はアクターの会話リゾルバーを返す。
type ChannelProvider interface {
	Resolver(ctx context.Context, actorID string) (ChannelService, error)
}

// ChannelHandler は会話とメッセージのHTTPハンドラー。
type ChannelHandler struct {
	channels ChannelProvider
}

// NewChannelHandler はChannelHandlerを生成する。
func NewChannelHandler(channels ChannelProvider) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

// messageResponse はメッセージのレスポンス。
type messageResponse struct {
	ID       string    `json:"id"`
	ClientID string    `json:"client_id"`
	SenderID string    `json:"sender_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
	Status   string    `json:"status"`
}

// channelResponse は会話のレスポンス。
type channelResponse struct {
	ID           string            `json:"id"`
	Participants []string          `json:"participants"`
	IsGroup      bool              `json:"is_group"`
	Synthetic    bool              `json:"synthetic"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Messages     []messageResponse `json:"messages"`
}

func toMessageResponse(msg model.Message) messageResponse {
	return messageResponse{
		ID:       msg.ID,
		ClientID: msg.ClientID,
		SenderID: msg.SenderID,
		Body:     msg.Body,
		SentAt:   msg.SentAt,
		Status:   string(msg.Status),
	}
}

func toChannelResponse(ch model.Channel) channelResponse {
	participants := ch.Participants
	if participants == nil {
		participants = []string{}
	}
	msgs := make([]messageResponse, 0, len(ch.Messages))
	for _, m := range ch.Messages {
		msgs = append(msgs, toMessageResponse(m))
	}
	return channelResponse{
		ID:           ch.ID,
		Participants: participants,
		IsGroup:      ch.IsGroup,
		Synthetic:    ch.Synthetic,
		UpdatedAt:    ch.UpdatedAt,
		Messages:     msgs,
	}
}

// resolver はリクエストのアクターの会話リゾルバーを返す。
// 取得できない場合はエラーレスポンスを書き込み、falseを返す。
func (h *ChannelHandler) resolver(w http.ResponseWriter, r *http.Request) (ChannelService, bool) {
	actorID, ok := actorIDFromRequest(w, r)
	if !ok {
		return nil, false
	}
	svc, err := h.channels.Resolver(r.Context(), actorID)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return svc, true
}

// resolveRequest は会話解決のリクエストボディ。
type resolveRequest struct {
	TargetIDs []string `json:"target_ids"`
}

// Resolve は指定した相手との会話を返す。存在しない場合は仮の会話を作成する。
// POST /api/channels
func (h *ChannelHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	svc, ok := h.resolver(w, r)
	if !ok {
		return
	}
	ch, err := svc.Resolve(req.TargetIDs...)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

// ListChannels は既知の会話を更新日時の降順で返す。
// GET /api/channels
func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolver(w, r)
	if !ok {
		return
	}
	chs := svc.Channels()
	resp := make([]channelResponse, 0, len(chs))
	for _, ch := range chs {
		resp = append(resp, toChannelResponse(ch))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetChannel はサーバーから会話を同期して返す。
// 同期に失敗した場合、ローカルに会話があればそれを返す。
// GET /api/channels/{id}
func (h *ChannelHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	svc, ok := h.resolver(w, r)
	if !ok {
		return
	}
	ch, err := svc.Refresh(r.Context(), channelID)
	if err != nil {
		local, found := svc.Channel(channelID)
		if !found {
			handleServiceError(w, err)
			return
		}
		slog.Warn("会話の同期に失敗したためローカルの状態を返します",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		ch = local
	}

	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

// sendMessageRequest はメッセージ送信のリクエストボディ。
type sendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessage はメッセージを送信する。
// ローカルに未登録の会話はサーバーから同期してから送信する。
// POST /api/channels/{id}/messages
func (h *ChannelHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	svc, ok := h.resolver(w, r)
	if !ok {
		return
	}
	if _, found := svc.Channel(channelID); !found {
		if _, err := svc.Refresh(r.Context(), channelID); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	msg, err := svc.Send(r.Context(), channelID, req.Text)
	if err != nil {
		writeSendError(w, msg, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

// RetryMessage は送信に失敗したメッセージを再送する。
// POST /api/channels/{id}/messages/{messageID}/retry
func (h *ChannelHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")

	svc, ok := h.resolver(w, r)
	if !ok {
		return
	}
	msg, err := svc.Retry(r.Context(), channelID, messageID)
	if err != nil {
		writeSendError(w, msg, err)
		return
	}

	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

// sendFailedResponse は再送可能な送信失敗のレスポンス。
// 失敗状態で残ったメッセージを含め、クライアントが再送に使うIDを返す。
type sendFailedResponse struct {
	apiErrorResponse
	FailedMessage messageResponse `json:"failed_message"`
}

// writeSendError は送信エラーを書き込む。
// 失敗状態のメッセージがローカルに残った場合はレスポンスに含める。
func writeSendError(w http.ResponseWriter, msg model.Message, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSendFailed || msg.ClientID == "" {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, mapAPIErrorToHTTPStatus(apiErr), sendFailedResponse{
		apiErrorResponse: apiErrorResponse{
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Category:  apiErr.Category,
			Action:    apiErr.Action,
			Retryable: apiErr.Retryable,
		},
		FailedMessage: toMessageResponse(msg),
	})
}
