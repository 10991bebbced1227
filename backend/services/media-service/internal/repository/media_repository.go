package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	models "github.com/fathima-sithara/social-platform/backend/services/media-service/internal/media"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

type MediaRepo struct {
	col *mongo.Collection
}

func NewMediaRepo(col *mongo.Collection) *MediaRepo {
	return &MediaRepo{col: col}
}

func (r *MediaRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

func (r *MediaRepo) GetByID(ctx context.Context, id string) (*models.Media, error) {
	var m models.Media
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("media %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByIDs returns the records that still exist; missing ids are simply absent.
func (r *MediaRepo) FindByIDs(ctx context.Context, ids []string) ([]models.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var out []models.Media
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MediaRepo) ListByUser(ctx context.Context, userID string) ([]models.Media, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	out := []models.Media{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete is idempotent: removing an absent record is not an error.
func (r *MediaRepo) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
