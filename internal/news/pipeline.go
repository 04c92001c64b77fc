package news

import (
	"context"
	"strings"

	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// SnippetColumn holds the caption text of a clip.
const SnippetColumn = "snippet"

// KeywordFilter keeps clips whose snippet mentions any keyword, ignoring
// case. With no keywords every clip is kept.
func KeywordFilter(keywords ...string) Pipeline {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return func(_ context.Context, _ string, t *table.Table) (*table.Table, error) {
		if len(lowered) == 0 {
			return t, nil
		}
		return t.Filter(func(r table.Row) bool {
			s, _ := r[SnippetColumn].(string)
			return hasAny(strings.ToLower(s), lowered...)
		}), nil
	}
}

// hasAny reports whether s contains any of subs.
func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
