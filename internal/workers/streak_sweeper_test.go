package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireStaleStreaks(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestStreakSweeperRunsImmediatelyAndOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expirer := &countingExpirer{}
	StartStreakSweeper(ctx, expirer, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestStreakSweeperSurvivesErrorsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	expirer := &countingExpirer{err: errors.New("db down")}
	StartStreakSweeper(ctx, expirer, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	stopped := expirer.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, expirer.calls.Load())
}
