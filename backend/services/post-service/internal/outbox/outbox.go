package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Record is an event waiting to be published. IDs are UUIDv7, so sorting by _id gives
// creation order.
type Record struct {
	ID         string    `bson:"_id"`
	RoutingKey string    `bson:"routing_key"`
	Payload    []byte    `bson:"payload"`
	CreatedAt  time.Time `bson:"created_at"`
	Attempts   int       `bson:"attempts"`
}

func NewRecord(routingKey string, payload any) (Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:         id.String(),
		RoutingKey: routingKey,
		Payload:    body,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Store is what the relay needs from the outbox collection.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkAttempt(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

// Insert must be called with the session context of the transaction that writes the post.
func (s *MongoStore) Insert(ctx context.Context, r Record) error {
	_, err := s.col.InsertOne(ctx, r)
	return err
}

func (s *MongoStore) Pending(ctx context.Context, limit int) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var out []Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) MarkAttempt(ctx context.Context, id string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{"$inc": bson.M{"attempts": 1}})
	return err
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
