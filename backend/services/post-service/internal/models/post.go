package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    string             `bson:"user" json:"user"`
	Content   string             `bson:"content" json:"content"`
	MediaIDs  []string           `bson:"mediaIds" json:"mediaIds"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CreatePostRequest is the body of POST /api/posts/create-post.
type CreatePostRequest struct {
	Content  string   `json:"content" validate:"required,min=3,max=50000"`
	MediaIDs []string `json:"mediaIds" validate:"omitempty,dive,required"`
}

// PostPage is one page of the listing. Counts are always computed from the store.
type PostPage struct {
	Posts       []Post `json:"posts"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	TotalPosts  int64  `json:"totalPosts"`
}
