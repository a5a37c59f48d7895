// Package channel は会話（チャンネル）の識別子の導出と、
// 送信したメッセージの楽観的な反映・サーバー状態との突き合わせを提供する。
package channel

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

const (
	// directDelimiter は2者間の会話IDで参加者IDを連結する区切り文字。
	directDelimiter = "_"
	// groupPrefix はグループの会話IDの接頭辞。
	groupPrefix = "group_"
)

// DirectID は2者間の会話IDを返す。
// 参加者IDを辞書順に並べて連結するため、どちらから開始しても同じIDになる。
func DirectID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + directDelimiter + b
}

// NewGroupID はグループの会話IDを採番する。
// UUIDv7を使用するため、IDは作成順に並ぶ。
func NewGroupID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate group id: %w", err)
	}
	return groupPrefix + id.String(), nil
}

// IsGroupID はIDがグループの会話IDかを返す。
func IsGroupID(id string) bool {
	return strings.HasPrefix(id, groupPrefix)
}

// participantKey は参加者の集合を順序に依存しない文字列に変換する。
func participantKey(ids []string) string {
	return strings.Join(normalizeParticipants(ids), "\x00")
}

// normalizeParticipants は空のIDと重複を除き、辞書順に並べる。
func normalizeParticipants(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
