// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code      string // エラーコード
	Message   string // エラーメッセージ
	Category  string // カテゴリ: auth, validation, feed, message, system
	Action    string // ユーザー向け対処方法
	Retryable bool   // 同じ操作を再試行できるか
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeIdeaNotFound    = "IDEA_NOT_FOUND"
	ErrCodeInvalidMode     = "INVALID_MODE"
	ErrCodeInvalidVote     = "INVALID_VOTE"
	ErrCodeInvalidIdea     = "INVALID_IDEA"
	ErrCodeVoteFailed      = "VOTE_FAILED"
	ErrCodeChannelNotFound = "CHANNEL_NOT_FOUND"
	ErrCodeInvalidChannel  = "INVALID_CHANNEL"
	ErrCodeMessageNotFound = "MESSAGE_NOT_FOUND"
	ErrCodeInvalidMessage  = "INVALID_MESSAGE"
	ErrCodeSendFailed      = "SEND_FAILED"
	ErrCodeSendRejected    = "SEND_REJECTED"
	ErrCodeActorRequired   = "ACTOR_REQUIRED"
	ErrCodeProfileNotFound = "PROFILE_NOT_FOUND"
	ErrCodeInvalidProfile  = "INVALID_PROFILE"
)

// NewIdeaNotFoundError はアイデア未検出エラーを生成する。
func NewIdeaNotFoundError(ideaID string) *APIError {
	return &APIError{
		Code:     ErrCodeIdeaNotFound,
		Message:  fmt.Sprintf("指定されたアイデアが見つかりません: %s", ideaID),
		Category: "feed",
		Action:   "一覧を更新してから再度お試しください。",
	}
}

// NewInvalidModeError は無効な表示モードエラーを生成する。
func NewInvalidModeError(mode string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMode,
		Message:  fmt.Sprintf("無効な表示モードです: %s", mode),
		Category: "validation",
		Action:   "モードには trending、following、discover、category:<id> のいずれかを指定してください。",
	}
}

// NewInvalidVoteError は無効な投票方向エラーを生成する。
func NewInvalidVoteError(direction string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVote,
		Message:  fmt.Sprintf("無効な投票方向です: %s", direction),
		Category: "validation",
		Action:   "投票方向には up または down を指定してください。",
	}
}

// NewInvalidIdeaError はアイデア投稿内容の検証エラーを生成する。
func NewInvalidIdeaError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIdea,
		Message:  fmt.Sprintf("アイデアの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "タイトルとカテゴリを入力してください。",
	}
}

// NewVoteFailedError は投票の反映に失敗した場合のエラーを生成する。
func NewVoteFailedError(ideaID string) *APIError {
	return &APIError{
		Code:      ErrCodeVoteFailed,
		Message:   fmt.Sprintf("投票を反映できませんでした: %s", ideaID),
		Category:  "feed",
		Action:    "しばらく待ってから再度投票してください。",
		Retryable: true,
	}
}

// NewChannelNotFoundError は会話未検出エラーを生成する。
func NewChannelNotFoundError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %s", channelID),
		Category: "message",
		Action:   "会話一覧から相手を選び直してください。",
	}
}

// NewInvalidChannelError は会話の参加者指定が不正な場合のエラーを生成する。
func NewInvalidChannelError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidChannel,
		Message:  fmt.Sprintf("会話を作成できません: %s", reason),
		Category: "validation",
		Action:   "自分以外の参加者を1人以上指定してください。",
	}
}

// NewMessageNotFoundError は再送対象のメッセージが見つからない場合のエラーを生成する。
func NewMessageNotFoundError(messageID string) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFound,
		Message:  fmt.Sprintf("指定されたメッセージが見つかりません: %s", messageID),
		Category: "message",
		Action:   "会話を開き直してください。",
	}
}

// NewInvalidMessageError はメッセージ本文が不正な場合のエラーを生成する。
func NewInvalidMessageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMessage,
		Message:  fmt.Sprintf("メッセージの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "本文を入力してから送信してください。",
	}
}

// NewSendFailedError は通信エラーなどで送信結果が確定しなかった場合のエラーを生成する。
// 送信中のメッセージはローカルに残り、再送できる。
func NewSendFailedError(reason string) *APIError {
	return &APIError{
		Code:      ErrCodeSendFailed,
		Message:   fmt.Sprintf("メッセージを送信できませんでした: %s", reason),
		Category:  "message",
		Action:    "通信状況を確認してから再送してください。",
		Retryable: true,
	}
}

// NewSendRejectedError はサーバーが明示的に送信を拒否した場合のエラーを生成する。
func NewSendRejectedError(reason string) *APIError {
	return &APIError{
		Code:      ErrCodeSendRejected,
		Message:   fmt.Sprintf("メッセージの送信が拒否されました: %s", reason),
		Category:  "message",
		Action:    "内容を確認してから再度送信してください。",
		Retryable: true,
	}
}

// NewActorRequiredError は操作ユーザーが特定できない場合のエラーを生成する。
func NewActorRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeActorRequired,
		Message:  "操作ユーザーを特定できません。",
		Category: "auth",
		Action:   "X-Actor-ID ヘッダーを指定してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(profileID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたプロフィールが見つかりません: %s", profileID),
		Category: "feed",
		Action:   "フォローする相手のIDを確認してください。",
	}
}

// NewInvalidProfileError はプロフィールの内容やフォロー先が不正な場合のエラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("プロフィールの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "名前を入力し、自分以外の相手を指定してください。",
	}
}
