// Package scoring はフィード表示モードごとのアイデアの絞り込みと並び替えを提供する。
// すべての関数は純粋関数であり、同一入力に対して常に同一の順序を返す。
package scoring

import (
	"slices"
	"strings"

	"github.com/hitoshi/ideafeed/internal/model"
)

const (
	// trendingVoteWeight はトレンドスコアにおける投票数の重み。
	trendingVoteWeight = 3
	// trendingTimeDivisor は作成日時（Unixミリ秒）の除数。
	// 投票数を支配的に保ちつつ、同票のときに新しいものを上位にする。
	trendingTimeDivisor = 1e10
	// suggestedLimit はフォロー表示のフォールバックで返す上位件数。
	suggestedLimit = 10
)

// Tier はフォロー表示でどの段階の結果が採用されたかを表す。
type Tier string

const (
	// TierNone はフォロー表示以外のモード。
	TierNone Tier = ""
	// TierSaved は保存済みアイデア。
	TierSaved Tier = "saved"
	// TierFollowed はフォロー中の作者のアイデア。
	TierFollowed Tier = "followed"
	// TierSuggested は全体の投票数上位（おすすめ）。
	TierSuggested Tier = "suggested"
)

// Context は個人化に必要な読み取り専用の情報。
type Context struct {
	Actor    model.Actor
	Profiles []model.Profile
	// DiscoverCategory は発見表示で選択中のカテゴリ。空なら全件。
	DiscoverCategory string
}

// Score はモード・検索クエリ・個人化情報に基づいてアイデアを絞り込み、並び替える。
// 入力スライスは変更しない。
func Score(items []model.Idea, mode model.Mode, query string, ctx Context) []model.Idea {
	out, _ := ScoreWithTier(items, mode, query, ctx)
	return out
}

// ScoreWithTier はScoreと同じ結果に加え、フォロー表示で採用された段階を返す。
func ScoreWithTier(items []model.Idea, mode model.Mode, query string, ctx Context) ([]model.Idea, Tier) {
	if q := normalizeQuery(query); q != "" {
		return Search(items, q), TierNone
	}

	switch mode.Kind {
	case model.ModeTrending:
		return Trending(items), TierNone
	case model.ModeFollowing:
		return Following(items, ctx)
	case model.ModeDiscover:
		return DiscoverFeed(items, ctx.DiscoverCategory), TierNone
	case model.ModeCategory:
		return Category(items, mode.Category), TierNone
	default:
		return []model.Idea{}, TierNone
	}
}

// Search は検索可能なテキストにクエリを部分文字列として含むアイデアを返す。
// タイトル一致を優先し、次に投票数の降順で並べる。一致なしは空スライスを返す。
func Search(items []model.Idea, query string) []model.Idea {
	q := normalizeQuery(query)
	out := []model.Idea{}
	if q == "" {
		return out
	}
	for _, it := range items {
		if matches(it, q) {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Idea) int {
		at, bt := titleContains(a, q), titleContains(b, q)
		if at != bt {
			if at {
				return -1
			}
			return 1
		}
		if c := compareDesc(a.Votes, b.Votes); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// TrendingScore はトレンド表示のブレンドスコアを返す。
func TrendingScore(it model.Idea) float64 {
	return float64(it.Votes)*trendingVoteWeight + float64(it.CreatedAtMillis())/trendingTimeDivisor
}

// Trending はブレンドスコアの降順で並べる。
func Trending(items []model.Idea) []model.Idea {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b model.Idea) int {
		if c := compareDesc(TrendingScore(a), TrendingScore(b)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return nonNil(out)
}

// Following は保存済み → フォロー中の作者 → 全体上位10件の順でフォールバックする。
// 保存済みとフォローの両方がある場合は保存済みを優先する。
func Following(items []model.Idea, ctx Context) ([]model.Idea, Tier) {
	if len(ctx.Actor.SavedIdeaIDs) > 0 {
		saved := toSet(ctx.Actor.SavedIdeaIDs)
		out := filter(items, func(it model.Idea) bool { return saved[it.ID] })
		if len(out) > 0 {
			return byRecency(out), TierSaved
		}
	}

	if len(ctx.Actor.FollowingIDs) > 0 {
		resolve := newAuthorResolver(ctx.Profiles)
		followed := toSet(ctx.Actor.FollowingIDs)
		out := filter(items, func(it model.Idea) bool {
			return resolve.authoredBy(it, followed)
		})
		if len(out) > 0 {
			return byRecency(out), TierFollowed
		}
	}

	return Top(items, suggestedLimit), TierSuggested
}

// DiscoverFeed はカテゴリが指定されていれば絞り込み、作成日時の降順（純粋な新着順）で並べる。
func DiscoverFeed(items []model.Idea, category string) []model.Idea {
	out := items
	if category != "" {
		out = filter(items, func(it model.Idea) bool { return it.Category == category })
	}
	return byRecency(out)
}

// Category は指定カテゴリに絞り込み、投票数の降順で並べる。
func Category(items []model.Idea, category string) []model.Idea {
	out := filter(items, func(it model.Idea) bool { return it.Category == category })
	return byVotes(out)
}

// Top は投票数の降順で上位n件を返す。
func Top(items []model.Idea, n int) []model.Idea {
	out := byVotes(items)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func byRecency(items []model.Idea) []model.Idea {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b model.Idea) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return nonNil(out)
}

func byVotes(items []model.Idea) []model.Idea {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b model.Idea) int {
		if c := compareDesc(a.Votes, b.Votes); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return nonNil(out)
}

func compareDesc[T int | float64](a, b T) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func filter(items []model.Idea, keep func(model.Idea) bool) []model.Idea {
	out := make([]model.Idea, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func nonNil(items []model.Idea) []model.Idea {
	if items == nil {
		return []model.Idea{}
	}
	return items
}
