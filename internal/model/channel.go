// Package model はドメインモデルを定義する。
package model

import "time"

// Channel は参加者とメッセージ履歴をまとめた会話を表す。
// 2者間の会話のIDは参加者から決定的に導出され、グループの会話のIDは作成時に採番される。
type Channel struct {
	ID           string
	Participants []string
	IsGroup      bool
	Messages     []Message
	// Synthetic はサーバーにまだ存在しないローカル生成の会話であることを示す。
	Synthetic bool
	UpdatedAt time.Time
}

// MessageStatus はメッセージの送信状態を表す。
type MessageStatus string

const (
	// MessageStatusPending は送信中。
	MessageStatusPending MessageStatus = "pending"
	// MessageStatusSent はサーバーが受理済み。
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed は送信に失敗し、再送可能。
	MessageStatusFailed MessageStatus = "failed"
)

// Message は会話内のメッセージを表す。
type Message struct {
	ID        string
	ClientID  string // クライアントが採番したID。サーバーのエコーとの突き合わせに使用する。
	ChannelID string
	SenderID  string
	Body      string
	SentAt    time.Time
	Status    MessageStatus
}
