package leaderboard

type LeaderboardEntry struct {
	UserID        string `json:"user_id"`
	MembershipID  string `json:"membership_id"`
	Rank          int    `json:"rank"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	IsActive      bool   `json:"is_active"`
}

type Leaderboard struct {
	ChallengeID  string              `json:"challenge_id"`
	Entries      []*LeaderboardEntry `json:"entries"`
	UserPosition *LeaderboardEntry   `json:"user_position"`
	TotalUsers   int                 `json:"total_users"`
}
