package scoring

import (
	"strings"

	"github.com/hitoshi/ideafeed/internal/model"
)

// normalizeQuery は前後の空白を除去し、大文字小文字を畳み込む。
func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// searchableFields は検索対象となるテキストフィールドを返す。
func searchableFields(it model.Idea) []string {
	fields := []string{it.Title, it.Description, it.AuthorName, it.Category}
	return append(fields, it.Tags...)
}

func matches(it model.Idea, q string) bool {
	for _, f := range searchableFields(it) {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func titleContains(it model.Idea, q string) bool {
	return strings.Contains(strings.ToLower(it.Title), q)
}

// authorResolver はアイデアの作者をプロフィールIDに解決する。
// 作者IDを直接持つアイデアと、作者名しか持たないアイデアの両方に対応する。
type authorResolver struct {
	byName map[string]string
}

func newAuthorResolver(profiles []model.Profile) authorResolver {
	byName := make(map[string]string, len(profiles)*2)
	for _, p := range profiles {
		if p.Name != "" {
			byName[strings.ToLower(p.Name)] = p.ID
		}
		if p.DisplayName != "" {
			if _, ok := byName[strings.ToLower(p.DisplayName)]; !ok {
				byName[strings.ToLower(p.DisplayName)] = p.ID
			}
		}
	}
	return authorResolver{byName: byName}
}

// authoredBy は作者IDまたは作者名から引いたプロフィールIDのいずれかが集合に含まれるかを返す。
func (r authorResolver) authoredBy(it model.Idea, ids map[string]bool) bool {
	if it.AuthorID != "" && ids[it.AuthorID] {
		return true
	}
	name := strings.ToLower(strings.TrimSpace(it.AuthorName))
	if name == "" {
		return false
	}
	id, ok := r.byName[name]
	return ok && ids[id]
}
