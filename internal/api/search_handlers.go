package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lutrinapp/lutrin/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchDocuments",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search library",
		Description: "Full-text search over one owner's documents. An empty query browses by recency.",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains search query parameters.
type SearchInput struct {
	OwnerID  string `query:"owner" required:"true" doc:"Owner whose library is searched"`
	Query    string `query:"q" maxLength:"500" doc:"Search query"`
	Category string `query:"category" enum:"unstarted,in-progress,finished" doc:"Reading category filter"`
	Limit    int    `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Maximum hits to return"`
	Offset   int    `query:"offset" minimum:"0" doc:"Hits to skip"`
}

// SearchOutput wraps the search result for Huma.
type SearchOutput struct {
	Body *search.Result
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	result, err := s.services.Library.Search(ctx, search.Params{
		OwnerID:  input.OwnerID,
		Query:    input.Query,
		Category: input.Category,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &SearchOutput{Body: result}, nil
}
