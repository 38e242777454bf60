package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Params configures a search.
type Params struct {
	OwnerID  string // Required; searches never cross libraries
	Query    string
	Category string // Optional exact category filter
	Limit    int
	Offset   int
}

// DefaultLimit is used when Params.Limit is not positive.
const DefaultLimit = 20

// Result is a page of search hits.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is a single matching document.
type Hit struct {
	DocumentID int64   `json:"document_id"`
	Score      float64 `json:"score"`
	Title      string  `json:"title"`
	Authors    string  `json:"authors,omitempty"`
	SeriesName string  `json:"series_name,omitempty"`
	Category   string  `json:"category"`
}

// Search executes a query scoped to one owner's library.
func (s *SearchIndex) Search(ctx context.Context, params Params) (*Result, error) {
	if params.OwnerID == "" {
		return nil, fmt.Errorf("search requires an owner")
	}
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	params.Offset = max(params.Offset, 0)

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	if strings.TrimSpace(params.Query) == "" {
		req.SortBy([]string{"-updated_at"})
	} else {
		req.SortBy([]string{"-_score", "-updated_at"})
	}
	req.Fields = []string{"title_display", "authors_display", "series_name", "category"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			s.logger.Warn("skipping search hit with foreign id", "id", h.ID)
			continue
		}
		hit := Hit{DocumentID: id, Score: h.Score}
		if v, ok := h.Fields["title_display"].(string); ok {
			hit.Title = v
		}
		if v, ok := h.Fields["authors_display"].(string); ok {
			hit.Authors = v
		}
		if v, ok := h.Fields["series_name"].(string); ok {
			hit.SeriesName = v
		}
		if v, ok := h.Fields["category"].(string); ok {
			hit.Category = v
		}
		result.Hits = append(result.Hits, hit)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params Params) query.Query {
	owner := bleve.NewTermQuery(params.OwnerID)
	owner.SetField("owner_id")
	queries := []query.Query{owner}

	if params.Category != "" {
		category := bleve.NewTermQuery(params.Category)
		category.SetField("category")
		queries = append(queries, category)
	}

	if q := Fold(strings.TrimSpace(params.Query)); q != "" {
		match := func(field string, boost float64) query.Query {
			m := bleve.NewMatchQuery(q)
			m.SetField(field)
			m.SetBoost(boost)
			return m
		}
		textQueries := []query.Query{
			match("title", 3.0),
			match("authors", 2.0),
			match("series_name", 1.5),
			match("description", 0.8),
			match("text", 0.5),
		}

		// Typo tolerance on single-word title queries
		if !strings.ContainsRune(q, ' ') && len(q) >= 4 {
			fuzzy := bleve.NewFuzzyQuery(q)
			fuzzy.SetFuzziness(1)
			fuzzy.SetField("title")
			fuzzy.SetBoost(0.8)
			textQueries = append(textQueries, fuzzy)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	return bleve.NewConjunctionQuery(queries...)
}
