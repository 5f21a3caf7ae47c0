package reaction

import (
	"time"
)

type Kind string

const (
	KindNone    Kind = "none"
	KindLike    Kind = "like"
	KindDislike Kind = "dislike"
)

// Valid reports whether k can be stored on a Reaction. KindNone cannot.
func (k Kind) Valid() bool {
	return k == KindLike || k == KindDislike
}

type Reaction struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type ToggleRequest struct {
	Kind Kind `json:"kind"`
}

type ToggleResult struct {
	PostID       string `json:"post_id"`
	LikeCount    int    `json:"like_count"`
	DislikeCount int    `json:"dislike_count"`
	UserAction   Kind   `json:"user_action"`
}
