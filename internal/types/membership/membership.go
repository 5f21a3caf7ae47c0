package membership

import (
	"time"
)

// DateLayout is the storage format of LastActivityDate. Only the calendar
// date is meaningful.
const DateLayout = "2006-01-02"

type Membership struct {
	ID                      string     `json:"id"`
	ChallengeID             string     `json:"challenge_id"`
	UserID                  string     `json:"user_id"`
	CurrentStreak           int        `json:"current_streak"`
	LongestStreak           int        `json:"longest_streak"`
	IsActive                bool       `json:"is_active"`
	HasCompletedAtLeastOnce bool       `json:"has_completed_at_least_once"`
	LastActivityDate        *time.Time `json:"last_activity_date"`
	JoinedAt                time.Time  `json:"joined_at"`
}

// StreakUpdate is written over the membership as-is.
type StreakUpdate struct {
	CurrentStreak int
	LongestStreak int
	IsActive      bool
	HasCompleted  bool
	ActivityDate  time.Time
}
