package workers

import (
	"context"
	"log"
	"time"
)

type StreakExpirer interface {
	ExpireStaleStreaks(ctx context.Context) (int, error)
}

// StartStreakSweeper resets broken streaks once at startup and then on every
// tick until ctx is cancelled.
func StartStreakSweeper(ctx context.Context, expirer StreakExpirer, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		sweepStreaks(ctx, expirer)
		for {
			select {
			case <-ctx.Done():
				log.Println("Streak sweeper stopped")
				return
			case <-ticker.C:
				sweepStreaks(ctx, expirer)
			}
		}
	}()
}

func sweepStreaks(ctx context.Context, expirer StreakExpirer) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	expired, err := expirer.ExpireStaleStreaks(ctx)
	if err != nil {
		log.Printf("Error sweeping stale streaks: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("Streak sweep reset %d memberships in %v", expired, time.Since(start))
	}
}
