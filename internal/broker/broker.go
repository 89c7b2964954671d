package broker

import (
	"context"
	"time"
)

// Post event types published after a successful mutation.
const (
	PostCreated = "post.created"
	PostUpdated = "post.updated"
	PostDeleted = "post.deleted"
	PostLiked   = "post.liked"
	PostUnliked = "post.unliked"
)

// Event describes something that happened to a post.
type Event struct {
	Type      string    `json:"type"`
	PostID    uint      `json:"post_id"`
	ActorID   uint      `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Broker fans post events out to live subscribers. Delivery is best effort.
type Broker interface {
	Publish(ctx context.Context, event Event) error

	// Subscribe streams events until ctx is cancelled, then closes the channel.
	Subscribe(ctx context.Context) (<-chan Event, error)

	Close() error
}
