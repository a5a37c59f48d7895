// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/ideafeed/internal/model"
)

// IdeaRepository はアイデアデータの永続化インターフェース。
type IdeaRepository interface {
	// ListIdeas はアイデアの全件を作成日時の降順で返す。
	ListIdeas(ctx context.Context) ([]model.Idea, error)

	// FindByID は指定IDのアイデアを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Idea, error)

	// Create はアイデアを作成する。IDと作成日時はリポジトリ側で確定する。
	Create(ctx context.Context, idea model.NewIdea) (*model.Idea, error)

	// Vote はactorIDの投票を記録し、反映後の投票数を返す。
	// 同じactorIDの再投票は向きを上書きする。
	Vote(ctx context.Context, actorID, ideaID string, dir model.VoteDirection) (int, error)
}

// ProfileRepository はプロフィールとフォロー関係の永続化インターフェース。
type ProfileRepository interface {
	// ListProfiles はプロフィールの全件を返す。
	ListProfiles(ctx context.Context) ([]model.Profile, error)

	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Upsert はプロフィールを作成または更新する。
	Upsert(ctx context.Context, profile model.Profile) error

	// ListFollowing はfollowerIDがフォローしているプロフィールIDを返す。
	ListFollowing(ctx context.Context, followerID string) ([]string, error)

	// Follow はフォロー関係を冪等に作成する。
	Follow(ctx context.Context, followerID, followeeID string) error
}

// SavedIdeaRepository は保存済みアイデアの永続化インターフェース。
type SavedIdeaRepository interface {
	// ListSaved はactorIDが保存したアイデアIDを返す。
	ListSaved(ctx context.Context, actorID string) ([]string, error)

	// Save はアイデアを冪等に保存する。
	Save(ctx context.Context, actorID, ideaID string) error
}

// ChannelRepository は会話とメッセージの永続化インターフェース。
type ChannelRepository interface {
	// Create は会話を参加者と同一トランザクションで作成する。既に存在する場合は何もしない。
	Create(ctx context.Context, ch model.Channel) error

	// FindByID は会話を参加者とメッセージ付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Channel, error)

	// InsertMessage はメッセージを保存する。
	// 同じ会話で同じClientIDのメッセージが既にある場合は、保存済みのメッセージを返す。
	InsertMessage(ctx context.Context, msg model.Message) (*model.Message, error)
}
