package directus

import (
	"strings"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// SearchQuery builds a full-text search query from text. With cut set, words
// of minLen characters or fewer are dropped.
func SearchQuery(text string, minLen int, cut bool) query.Query {
	term := strings.TrimSpace(text)
	if cut {
		var words []string
		for _, w := range strings.Fields(text) {
			if len([]rune(w)) > minLen {
				words = append(words, w)
			}
		}
		term = strings.Join(words, " ")
	}
	return query.NewBuilder().Search(term).Build()
}
