package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultLimit caps a search when the caller passes no limit.
const DefaultLimit = 50

// Hit is one ranked match.
type Hit struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Title      string            `json:"title"`
	Author     string            `json:"author"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Search ranks books against text across title, author, ISBN and
// description. Title matches weigh most.
func (s *Index) Search(ctx context.Context, text string, limit int) ([]Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildQuery(text), limit, 0, false)
	req.Fields = []string{"title", "author"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("title")

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["title"].(string); ok {
			hit.Title = v
		}
		if v, ok := h.Fields["author"].(string); ok {
			hit.Author = v
		}
		for field, fragments := range h.Fragments {
			if len(fragments) == 0 {
				continue
			}
			if hit.Highlights == nil {
				hit.Highlights = make(map[string]string)
			}
			hit.Highlights[field] = fragments[0]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// IDs returns only the ranked ids of Search.
func (s *Index) IDs(ctx context.Context, text string, limit int) ([]string, error) {
	hits, err := s.Search(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

func buildQuery(text string) query.Query {
	lower := strings.ToLower(text)
	var should []query.Query

	title := bleve.NewMatchQuery(text)
	title.SetField("title")
	title.SetBoost(3)
	should = append(should, title)

	author := bleve.NewMatchQuery(text)
	author.SetField("author")
	author.SetBoost(2)
	should = append(should, author)

	description := bleve.NewMatchQuery(text)
	description.SetField("description")
	should = append(should, description)

	// Search-as-you-type on the last word of the title.
	words := strings.Fields(lower)
	if last := words[len(words)-1]; len(last) >= 2 {
		prefix := bleve.NewPrefixQuery(last)
		prefix.SetField("title")
		prefix.SetBoost(1.5)
		should = append(should, prefix)
	}

	// Tolerate one typo in longer titles.
	if len(lower) >= 5 {
		fuzzy := bleve.NewMatchQuery(text)
		fuzzy.SetField("title")
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.5)
		should = append(should, fuzzy)
	}

	if digits := NormalizeISBN(text); len(digits) >= 3 && looksLikeISBN(lower) {
		isbn := bleve.NewPrefixQuery(digits)
		isbn.SetField("isbn")
		isbn.SetBoost(4)
		should = append(should, isbn)
	}

	return bleve.NewDisjunctionQuery(should...)
}

func looksLikeISBN(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '-' && r != ' ' && r != 'x' {
			return false
		}
	}
	return true
}
