// Package model はドメインモデルを定義する。
package model

import "time"

// Idea はユーザーが投稿したアイデアを表す。
// フィードの並び替え・検索・重複排除の単位となる。
type Idea struct {
	ID          string
	Title       string
	Description string
	Category    string
	Tags        []string
	AuthorID    string
	AuthorName  string // AuthorIDを持たない旧データはこちらのみを持つ
	Votes       int
	CreatedAt   time.Time

	// プレビュー表示の候補。HTMLを含む場合がある。
	Summary string
	Body    string
	Pitch   string
}

// CreatedAtMillis は作成日時をUnixミリ秒で返す。
// トレンドスコアの計算に使用する。
func (i Idea) CreatedAtMillis() int64 {
	return i.CreatedAt.UnixMilli()
}

// NewIdea は投稿前のアイデアデータを表す。
// ハンドラーからリポジトリに渡され、IDと作成日時はリポジトリ側で確定する。
type NewIdea struct {
	Title       string
	Description string
	Category    string
	Tags        []string
	AuthorID    string
	AuthorName  string
	Summary     string
	Body        string
	Pitch       string
}

// VoteDirection は投票の向きを表す。
type VoteDirection int

const (
	// VoteUp は賛成票。
	VoteUp VoteDirection = 1
	// VoteDown は反対票。
	VoteDown VoteDirection = -1
)

// ParseVoteDirection は文字列から投票の向きを解析する。
func ParseVoteDirection(s string) (VoteDirection, error) {
	switch s {
	case "up", "1", "+1":
		return VoteUp, nil
	case "down", "-1":
		return VoteDown, nil
	default:
		return 0, NewInvalidVoteError(s)
	}
}

// ViewHint はアイテムを開く際の表示先を表す。
type ViewHint string

const (
	// ViewHintDetail は詳細画面で開く。
	ViewHintDetail ViewHint = "detail"
	// ViewHintComments はコメント欄を開いた状態で開く。
	ViewHintComments ViewHint = "comments"
)
