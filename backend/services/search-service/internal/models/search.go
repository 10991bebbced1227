package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SearchPost is the search projection of a post. It is written only by the projector.
type SearchPost struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	PostID    string             `bson:"postId" json:"postId"`
	UserID    string             `bson:"userId" json:"userId"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	Score     float64            `bson:"score,omitempty" json:"score,omitempty"`
}
