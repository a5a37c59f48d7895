package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/ideafeed/internal/model"
)

// ActorDirectory はプロフィールと保存済みアイデアからアクターの個人化情報を組み立てる。
// session.ActorProviderを実装する。
type ActorDirectory struct {
	profiles ProfileRepository
	saved    SavedIdeaRepository
}

// NewActorDirectory はActorDirectoryを生成する。
func NewActorDirectory(profiles ProfileRepository, saved SavedIdeaRepository) *ActorDirectory {
	return &ActorDirectory{profiles: profiles, saved: saved}
}

// Actor はフォロー中のプロフィールIDと保存済みアイデアIDを持つアクターを返す。
// プロフィール未登録のアクターも空の個人化情報で扱う。
func (d *ActorDirectory) Actor(ctx context.Context, actorID string) (model.Actor, error) {
	if actorID == "" {
		return model.Actor{}, model.NewActorRequiredError()
	}

	following, err := d.profiles.ListFollowing(ctx, actorID)
	if err != nil {
		return model.Actor{}, fmt.Errorf("list following: %w", err)
	}
	saved, err := d.saved.ListSaved(ctx, actorID)
	if err != nil {
		return model.Actor{}, fmt.Errorf("list saved ideas: %w", err)
	}

	return model.Actor{
		ID:           actorID,
		FollowingIDs: following,
		SavedIdeaIDs: saved,
	}, nil
}

// Profiles はプロフィールの全件を返す。
func (d *ActorDirectory) Profiles(ctx context.Context) ([]model.Profile, error) {
	profiles, err := d.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}
