// Package projector keeps the search index in step with post events.
package projector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/models"
	"github.com/fathima-sithara/social-platform/backend/shared/eventbus"
)

type Store interface {
	Upsert(ctx context.Context, doc models.SearchPost) (bool, error)
	// MarkDeleted leaves a tombstone that later Upserts of postID do not overwrite.
	MarkDeleted(ctx context.Context, postID string) (bool, error)
}

type ResultCache interface {
	InvalidateAll(ctx context.Context) error
}

// Binder is satisfied by *eventbus.Dispatcher.
type Binder interface {
	Bind(ctx context.Context, routingKey string, h eventbus.Handler) error
}

type Projector struct {
	store Store
	cache ResultCache
	log   *zap.Logger
	now   func() time.Time
}

func New(store Store, cache ResultCache, log *zap.Logger) *Projector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Projector{store: store, cache: cache, log: log.Named("projector"), now: time.Now}
}

// Bind subscribes to post.created and post.deleted.
func (p *Projector) Bind(ctx context.Context, b Binder) error {
	if err := b.Bind(ctx, eventbus.PostCreated, eventbus.JSONHandler(p.HandlePostCreated)); err != nil {
		return fmt.Errorf("bind %s: %w", eventbus.PostCreated, err)
	}
	if err := b.Bind(ctx, eventbus.PostDeleted, eventbus.JSONHandler(p.HandlePostDeleted)); err != nil {
		return fmt.Errorf("bind %s: %w", eventbus.PostDeleted, err)
	}
	return nil
}

// HandlePostCreated indexes the post. A redelivered event finds the document already
// there and changes nothing.
func (p *Projector) HandlePostCreated(ctx context.Context, ev eventbus.PostCreatedEvent) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.now().UTC()
	}
	inserted, err := p.store.Upsert(ctx, models.SearchPost{
		PostID:    ev.PostID,
		UserID:    ev.UserID,
		Content:   ev.Content,
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("index post %s: %w", ev.PostID, err)
	}
	if err := p.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidate search cache: %w", err)
	}
	p.log.Info("post indexed", zap.String("post_id", ev.PostID), zap.Bool("inserted", inserted))
	return nil
}

// HandlePostDeleted removes the post from the index. Deleting a post that was never
// indexed succeeds and still tombstones it, so the created event retried or delivered
// after the delete stays out of search.
func (p *Projector) HandlePostDeleted(ctx context.Context, ev eventbus.PostDeletedEvent) error {
	removed, err := p.store.MarkDeleted(ctx, ev.PostID)
	if err != nil {
		return fmt.Errorf("unindex post %s: %w", ev.PostID, err)
	}
	if err := p.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidate search cache: %w", err)
	}
	p.log.Info("post unindexed", zap.String("post_id", ev.PostID), zap.Bool("removed", removed))
	return nil
}
