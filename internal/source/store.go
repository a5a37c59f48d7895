package source

import (
	"context"
	"fmt"

	"github.com/hitoshi/ideafeed/internal/model"
)

// IdeaLister はアイデアの全件を返す。repository.IdeaRepositoryが実装する。
type IdeaLister interface {
	ListIdeas(ctx context.Context) ([]model.Idea, error)
}

// StoreSource はデータベースに保存されたアイデアを取得元とする。
type StoreSource struct {
	ideas IdeaLister
}

// NewStoreSource はStoreSourceを生成する。
func NewStoreSource(ideas IdeaLister) *StoreSource {
	return &StoreSource{ideas: ideas}
}

// FetchItems はアイデアの全件を返す。
func (s *StoreSource) FetchItems(ctx context.Context) ([]model.Idea, error) {
	items, err := s.ideas.ListIdeas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	return items, nil
}
