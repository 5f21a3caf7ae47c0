package post

import (
	"time"
)

type Post struct {
	ID            string    `json:"id"`
	ChallengeID   string    `json:"challenge_id"`
	UserID        string    `json:"user_id"`
	MembershipID  string    `json:"membership_id"`
	Content       string    `json:"content"`
	ImageURL      string    `json:"image_url,omitempty"`
	StreakAwarded bool      `json:"streak_awarded"`
	CreatedAt     time.Time `json:"created_at"`
	LikeCount     int       `json:"like_count"`
	DislikeCount  int       `json:"dislike_count"`
	CommentCount  int       `json:"comment_count"`
}

type SubmitPostRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

// StreakOutcome describes what a submitted post did to the membership.
type StreakOutcome struct {
	Awarded        bool `json:"awarded"`
	PreviousStreak int  `json:"previous_streak"`
	CurrentStreak  int  `json:"current_streak"`
	LongestStreak  int  `json:"longest_streak"`
	StreakUpdated  bool `json:"streak_updated"`
}

type SubmitPostResponse struct {
	Post               *Post          `json:"post"`
	Streak             *StreakOutcome `json:"streak"`
	StreakUpdateFailed bool           `json:"streak_update_failed"`
	Message            string         `json:"message,omitempty"`
}
