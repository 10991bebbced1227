package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/models"
	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/outbox"
	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

// EventFunc builds the outbox record for a write. It runs inside the transaction.
type EventFunc func(p *models.Post) (*outbox.Record, error)

type PostRepo struct {
	client *mongo.Client
	col    *mongo.Collection
	outbox *outbox.MongoStore
}

func NewPostRepo(client *mongo.Client, col *mongo.Collection, ob *outbox.MongoStore) *PostRepo {
	return &PostRepo{client: client, col: col, outbox: ob}
}

func (r *PostRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}}},
		{Keys: bson.D{{Key: "content", Value: "text"}}},
	})
	return err
}

// Create inserts p. When event is non-nil the returned record is written to the outbox
// in the same transaction.
func (r *PostRepo) Create(ctx context.Context, p *models.Post, event EventFunc) error {
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.MediaIDs == nil {
		p.MediaIDs = []string{}
	}

	return r.inTx(ctx, event != nil, func(ctx context.Context) error {
		if _, err := r.col.InsertOne(ctx, p); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		return r.writeEvent(ctx, p, event)
	})
}

func (r *PostRepo) GetByID(ctx context.Context, id string) (*models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", id, apperr.ErrNotFound)
	}
	var p models.Post
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("post %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// List returns posts newest first.
func (r *PostRepo) List(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepo) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}

// DeleteOwned removes the post only if userID wrote it. Someone else's post reads as
// not found.
func (r *PostRepo) DeleteOwned(ctx context.Context, id, userID string, event EventFunc) (*models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", id, apperr.ErrNotFound)
	}

	var deleted models.Post
	err = r.inTx(ctx, event != nil, func(ctx context.Context) error {
		res := r.col.FindOneAndDelete(ctx, bson.M{"_id": oid, "user": userID})
		if err := res.Decode(&deleted); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return fmt.Errorf("post %s: %w", id, apperr.ErrNotFound)
			}
			return err
		}
		return r.writeEvent(ctx, &deleted, event)
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (r *PostRepo) writeEvent(ctx context.Context, p *models.Post, event EventFunc) error {
	if event == nil {
		return nil
	}
	rec, err := event(p)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, *rec); err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction when tx is set; this requires a replica set.
func (r *PostRepo) inTx(ctx context.Context, tx bool, fn func(ctx context.Context) error) error {
	if !tx {
		return fn(ctx)
	}
	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
