package services

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/cache"
	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/models"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

type countingRepo struct {
	calls int
	limit int64
}

func (r *countingRepo) Search(_ context.Context, query string, limit int64) ([]models.SearchPost, error) {
	r.calls++
	r.limit = limit
	return []models.SearchPost{{PostID: "p1", Content: query}}, nil
}

func TestSearch_ReadThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	repo := &countingRepo{}
	svc := NewSearchService(repo, cache.NewSearchCache(rdb, nil))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := svc.Search(ctx, " hello ")
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(res) != 1 || res[0].PostID != "p1" {
			t.Fatalf("unexpected results %+v", res)
		}
	}
	if repo.calls != 1 {
		t.Errorf("expected one store query, got %d", repo.calls)
	}
	if repo.limit != MaxResults {
		t.Errorf("expected limit %d, got %d", MaxResults, repo.limit)
	}
	if !mr.Exists("search:hello") {
		t.Error("expected search:hello cached")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := NewSearchService(&countingRepo{}, nil)
	if _, err := svc.Search(context.Background(), "   "); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}
