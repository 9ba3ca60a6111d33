package ops

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/noctfcli/internal/api"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Hidden   *bool  // nil: all challenges
	Category string // case-insensitive match against the categories tag
}

// ListItem is one row of the List output.
type ListItem struct {
	ID         int64    `json:"id"`
	Slug       string   `json:"slug"`
	Title      string   `json:"title"`
	Categories []string `json:"categories"`
	Difficulty string   `json:"difficulty,omitempty"`
	Hidden     bool     `json:"hidden"`
	VisibleAt  string   `json:"visible_at,omitempty"`
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items []ListItem `json:"items"`
	Total int        `json:"total"`
	Sort  string     `json:"sort"`
}

// List retrieves remote challenge summaries, sorted by slug.
func List(ctx context.Context, admin Admin, input ListInput) (*ListOutput, error) {
	summaries, err := admin.ListChallenges(ctx, input.Hidden)
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(summaries))
	for _, s := range summaries {
		item := summaryItem(s)
		if input.Category != "" && !hasCategory(item.Categories, input.Category) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Slug < items[j].Slug })

	return &ListOutput{Items: items, Total: len(items), Sort: "slug_asc"}, nil
}

func summaryItem(s api.ChallengeSummary) ListItem {
	item := ListItem{
		ID:         s.ID,
		Slug:       s.Slug,
		Title:      s.Title,
		Categories: []string{},
		Difficulty: s.Tags[api.TagDifficulty],
		Hidden:     s.Hidden,
	}
	if c := s.Tags[api.TagCategories]; c != "" {
		item.Categories = strings.Split(c, ",")
	}
	if s.VisibleAt != nil {
		item.VisibleAt = s.VisibleAt.UTC().Format(time.RFC3339)
	}
	return item
}

func hasCategory(categories []string, want string) bool {
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c), want) {
			return true
		}
	}
	return false
}
