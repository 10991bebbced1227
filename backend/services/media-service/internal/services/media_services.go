package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	models "github.com/fathima-sithara/social-platform/backend/services/media-service/internal/media"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
	"github.com/fathima-sithara/social-platform/backend/shared/eventbus"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Media, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Media, error)
	ListByUser(ctx context.Context, userID string) ([]models.Media, error)
	Delete(ctx context.Context, id string) error
}

type ObjectStore interface {
	Delete(ctx context.Context, key string) error
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type MediaService struct {
	repo       Repository
	store      ObjectStore
	presignTTL time.Duration
	log        *zap.Logger
}

func NewMediaService(repo Repository, store ObjectStore, presignTTL time.Duration, log *zap.Logger) *MediaService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaService{repo: repo, store: store, presignTTL: presignTTL, log: log}
}

// Bind subscribes the service to post.deleted on d.
func (s *MediaService) Bind(ctx context.Context, d *eventbus.Dispatcher) error {
	return d.Bind(ctx, eventbus.PostDeleted, eventbus.JSONHandler(s.HandlePostDeleted))
}

// HandlePostDeleted removes the media attached to a deleted post. Each id is handled on
// its own: the stored object goes first, then the record. Ids that no longer have a
// record were cleaned up by an earlier delivery and are skipped.
func (s *MediaService) HandlePostDeleted(ctx context.Context, ev eventbus.PostDeletedEvent) error {
	if len(ev.MediaIDs) == 0 {
		return nil
	}
	found, err := s.repo.FindByIDs(ctx, ev.MediaIDs)
	if err != nil {
		return fmt.Errorf("find media for post %s: %w", ev.PostID, err)
	}

	var errs []error
	removed := 0
	for _, m := range found {
		if err := s.remove(ctx, m); err != nil {
			s.log.Warn("media cleanup failed",
				zap.String("post_id", ev.PostID),
				zap.String("media_id", m.ID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		removed++
	}

	s.log.Info("media cleanup for deleted post",
		zap.String("post_id", ev.PostID),
		zap.Int("requested", len(ev.MediaIDs)),
		zap.Int("found", len(found)),
		zap.Int("removed", removed))
	return errors.Join(errs...)
}

func (s *MediaService) remove(ctx context.Context, m models.Media) error {
	if err := s.store.Delete(ctx, m.Key); err != nil {
		return fmt.Errorf("media %s: %w", m.ID, err)
	}
	if err := s.repo.Delete(ctx, m.ID); err != nil {
		return fmt.Errorf("media %s record: %w", m.ID, err)
	}
	return nil
}

func (s *MediaService) ListForUser(ctx context.Context, userID string) ([]models.Media, error) {
	return s.repo.ListByUser(ctx, userID)
}

// URL returns the public URL of the caller's media, or a presigned one for private objects.
func (s *MediaService) URL(ctx context.Context, id, userID string) (string, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if m.UserID != userID {
		return "", fmt.Errorf("media %s: %w", id, apperr.ErrNotFound)
	}
	if m.URL != "" {
		return m.URL, nil
	}
	return s.store.PresignURL(ctx, m.Key, s.presignTTL)
}
