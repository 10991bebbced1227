package eventbus

import (
	"time"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

// Routing keys on the topic exchange.
const (
	PostCreated = "post.created"
	PostDeleted = "post.deleted"
)

// DefaultExchange is shared by every service; renaming it splits the bus.
const DefaultExchange = "facebook_events"

// PostCreatedEvent is the post.created payload. It travels as a bare JSON object.
type PostCreatedEvent struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e PostCreatedEvent) Validate() error {
	if e.PostID == "" {
		return apperr.Malformed("post.created without postId", nil)
	}
	return nil
}

// PostDeletedEvent is the post.deleted payload.
type PostDeletedEvent struct {
	PostID   string   `json:"postId"`
	UserID   string   `json:"userId"`
	MediaIDs []string `json:"mediaIds"`
}

// NewPostDeleted keeps mediaIds an array on the wire even when the post had none.
func NewPostDeleted(postID, userID string, mediaIDs []string) PostDeletedEvent {
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	return PostDeletedEvent{PostID: postID, UserID: userID, MediaIDs: mediaIDs}
}

func (e PostDeletedEvent) Validate() error {
	if e.PostID == "" {
		return apperr.Malformed("post.deleted without postId", nil)
	}
	return nil
}
