package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	postsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_posts_submitted_total",
			Help: "Activity posts recorded, by whether they earned streak credit",
		},
		[]string{"streak_awarded"},
	)
	streakPartialFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_update_partial_failures_total",
			Help: "Posts saved whose membership streak update failed",
		},
	)
	reactionToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaction_toggles_total",
			Help: "Reaction toggles, by resulting user action",
		},
		[]string{"action"},
	)
	commentsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comments_added_total",
			Help: "Comments created",
		},
	)
	feedFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_subfetch_failures_total",
			Help: "Per-post feed fetches that degraded to a default value",
		},
		[]string{"kind"},
	)
	streaksExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streaks_expired_total",
			Help: "Memberships whose streak was reset after a missed day",
		},
	)
)

// InitMetrics registers the engine metrics. Call this from main.go
func InitMetrics() {
	prometheus.MustRegister(postsSubmitted)
	prometheus.MustRegister(streakPartialFailures)
	prometheus.MustRegister(reactionToggles)
	prometheus.MustRegister(commentsAdded)
	prometheus.MustRegister(feedFetchFailures)
	prometheus.MustRegister(streaksExpired)
}
