package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/models"
)

// TombstoneTTL is how long a deleted post keeps blocking a late post.created.
const TombstoneTTL = 7 * 24 * time.Hour

type SearchRepo struct {
	col *mongo.Collection
}

func NewSearchRepo(col *mongo.Collection) *SearchRepo {
	return &SearchRepo{col: col}
}

// EnsureIndexes creates the unique postId index that makes projection upserts safe,
// the text index behind Search and the TTL index that expires tombstones.
func (r *SearchRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "postId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "content", Value: "text"}}},
		{Keys: bson.D{{Key: "deletedAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(TombstoneTTL.Seconds()))},
	})
	return err
}

// Upsert inserts the document for doc.PostID unless one exists. Events never change,
// so an existing document is left as it is, tombstones included. It reports whether a
// document was inserted.
func (r *SearchRepo) Upsert(ctx context.Context, doc models.SearchPost) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"postId": doc.PostID},
		bson.M{"$setOnInsert": bson.M{
			"postId":    doc.PostID,
			"userId":    doc.UserID,
			"content":   doc.Content,
			"createdAt": doc.CreatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// lost a race with a concurrent upsert of the same postId
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

// MarkDeleted turns the document for postID into a tombstone, creating one if the
// post was never indexed, so a post.created arriving later cannot bring it back. It
// reports whether a live document was removed.
func (r *SearchRepo) MarkDeleted(ctx context.Context, postID string) (bool, error) {
	for {
		now := time.Now().UTC()
		res, err := r.col.UpdateOne(ctx,
			bson.M{"postId": postID, "deleted": bson.M{"$ne": true}},
			bson.M{
				"$set":   bson.M{"deleted": true, "deletedAt": now},
				"$unset": bson.M{"userId": "", "content": ""},
			},
		)
		if err != nil {
			return false, err
		}
		if res.MatchedCount > 0 {
			return true, nil
		}

		_, err = r.col.UpdateOne(ctx,
			bson.M{"postId": postID},
			bson.M{"$setOnInsert": bson.M{"postId": postID, "deleted": true, "deletedAt": now}},
			options.Update().SetUpsert(true),
		)
		if mongo.IsDuplicateKeyError(err) {
			// a concurrent post.created inserted first; tombstone that document
			continue
		}
		return false, err
	}
}

// Search runs a $text query ordered by relevance.
func (r *SearchRepo) Search(ctx context.Context, query string, limit int64) ([]models.SearchPost, error) {
	score := bson.M{"$meta": "textScore"}
	opts := options.Find().
		SetProjection(bson.M{"score": score}).
		SetSort(bson.D{{Key: "score", Value: score}}).
		SetLimit(limit)
	filter := bson.M{
		"$text":   bson.M{"$search": query},
		"deleted": bson.M{"$ne": true},
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []models.SearchPost{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
