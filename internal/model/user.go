// Package model はドメインモデルを定義する。
package model

// Profile はユーザーの公開プロフィールを表す。
// アイデアの作者名からプロフィールを引く際に使用する。
type Profile struct {
	ID          string
	Name        string
	DisplayName string
}

// Actor は現在操作しているユーザーと、その個人化に必要な情報を表す。
// ホストから読み取り専用のスナップショットとして渡される。
type Actor struct {
	ID           string
	FollowingIDs []string
	SavedIdeaIDs []string
}
