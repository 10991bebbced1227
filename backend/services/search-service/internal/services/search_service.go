package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/models"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

const MaxResults = 10

type Searcher interface {
	Search(ctx context.Context, query string, limit int64) ([]models.SearchPost, error)
}

type Cache interface {
	Get(ctx context.Context, query string) ([]models.SearchPost, bool)
	Set(ctx context.Context, query string, results []models.SearchPost)
}

type SearchService struct {
	repo  Searcher
	cache Cache
}

func NewSearchService(repo Searcher, cache Cache) *SearchService {
	return &SearchService{repo: repo, cache: cache}
}

// Search returns up to MaxResults posts ranked by text score.
func (s *SearchService) Search(ctx context.Context, query string) ([]models.SearchPost, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrBadRequest)
	}
	if res, ok := s.cache.Get(ctx, query); ok {
		return res, nil
	}
	res, err := s.repo.Search(ctx, query, MaxResults)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, query, res)
	return res, nil
}
