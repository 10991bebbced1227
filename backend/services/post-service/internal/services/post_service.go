package services

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/cache"
	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/models"
	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/outbox"
	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/repository"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
	"github.com/fathima-sithara/social-platform/backend/shared/eventbus"
	"github.com/fathima-sithara/social-platform/backend/shared/utils"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Repository is the post store. EventFunc, when set, makes the write transactional with
// its outbox record.
type Repository interface {
	Create(ctx context.Context, p *models.Post, event repository.EventFunc) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, skip, limit int64) ([]models.Post, error)
	Count(ctx context.Context) (int64, error)
	DeleteOwned(ctx context.Context, id, userID string, event repository.EventFunc) (*models.Post, error)
}

// Cache is read-through. Versions are taken before reading the store so that a
// populate racing with an invalidation is dropped.
type Cache interface {
	GetPost(ctx context.Context, id string) (*models.Post, bool)
	PostVersion(ctx context.Context, id string) cache.Version
	SetPost(ctx context.Context, p *models.Post, seen cache.Version)
	GetList(ctx context.Context, page, limit int) ([]models.Post, bool)
	ListVersion(ctx context.Context) cache.Version
	SetList(ctx context.Context, page, limit int, posts []models.Post, seen cache.Version)
	Invalidate(ctx context.Context, postID string) error
}

// Emitter publishes right after the commit (direct mode).
type Emitter interface {
	Emit(ctx context.Context, routingKey string, payload any) error
}

// Kicker wakes the outbox relay.
type Kicker interface {
	Kick()
}

type Option func(*PostService)

// WithOutbox stores events in the outbox inside the write transaction.
func WithOutbox(k Kicker) Option {
	return func(s *PostService) { s.relay = k }
}

// WithDirectPublish publishes after the commit. A publish failure is logged and the
// write stands, so the event may be lost.
func WithDirectPublish(e Emitter) Option {
	return func(s *PostService) { s.emitter = e }
}

type PostService struct {
	repo    Repository
	cache   Cache
	emitter Emitter
	relay   Kicker
	log     *zap.Logger
}

func NewPostService(repo Repository, cache Cache, log *zap.Logger, opts ...Option) *PostService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &PostService{repo: repo, cache: cache, log: log.Named("posts")}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *PostService) Create(ctx context.Context, userID string, req models.CreatePostRequest) (*models.Post, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	p := &models.Post{UserID: userID, Content: req.Content, MediaIDs: req.MediaIDs}

	if err := s.repo.Create(ctx, p, s.outboxEvent(eventbus.PostCreated, createdEvent)); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, eventbus.PostCreated, createdEvent(p))

	if err := s.cache.Invalidate(ctx, p.ID.Hex()); err != nil {
		return nil, err
	}
	s.log.Info("post created", zap.String("post_id", p.ID.Hex()), zap.String("user_id", userID))
	return p, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	if p, ok := s.cache.GetPost(ctx, id); ok {
		return p, nil
	}
	seen := s.cache.PostVersion(ctx, id)
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetPost(ctx, p, seen)
	return p, nil
}

// List serves a page newest first. Only the posts are cached; the totals are counted
// on every call. limit is capped at MaxLimit.
func (s *PostService) List(ctx context.Context, page, limit int) (*models.PostPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	if int64(page) > math.MaxInt64/MaxLimit {
		return nil, fmt.Errorf("%w: page %d is out of range", apperr.ErrBadRequest, page)
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	posts, ok := s.cache.GetList(ctx, page, limit)
	if !ok {
		seen := s.cache.ListVersion(ctx)
		posts, err = s.repo.List(ctx, int64(page-1)*int64(limit), int64(limit))
		if err != nil {
			return nil, err
		}
		s.cache.SetList(ctx, page, limit, posts, seen)
	}

	return &models.PostPage{
		Posts:       posts,
		CurrentPage: page,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		TotalPosts:  total,
	}, nil
}

// Delete removes the caller's own post. Posts of other users are reported as not found.
func (s *PostService) Delete(ctx context.Context, userID, id string) error {
	p, err := s.repo.DeleteOwned(ctx, id, userID, s.outboxEvent(eventbus.PostDeleted, deletedEvent))
	if err != nil {
		return err
	}
	s.afterCommit(ctx, eventbus.PostDeleted, deletedEvent(p))

	if err := s.cache.Invalidate(ctx, id); err != nil {
		return err
	}
	s.log.Info("post deleted", zap.String("post_id", id), zap.String("user_id", userID))
	return nil
}

func createdEvent(p *models.Post) any {
	return eventbus.PostCreatedEvent{
		PostID:    p.ID.Hex(),
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
	}
}

func deletedEvent(p *models.Post) any {
	return eventbus.NewPostDeleted(p.ID.Hex(), p.UserID, p.MediaIDs)
}

func (s *PostService) outboxEvent(routingKey string, build func(*models.Post) any) repository.EventFunc {
	if s.relay == nil {
		return nil
	}
	return func(p *models.Post) (*outbox.Record, error) {
		rec, err := outbox.NewRecord(routingKey, build(p))
		if err != nil {
			return nil, err
		}
		return &rec, nil
	}
}

func (s *PostService) afterCommit(ctx context.Context, routingKey string, payload any) {
	switch {
	case s.relay != nil:
		s.relay.Kick()
	case s.emitter != nil:
		if err := s.emitter.Emit(ctx, routingKey, payload); err != nil {
			s.log.Error("event lost, write already committed",
				zap.String("routing_key", routingKey), zap.Error(err))
		}
	}
}
