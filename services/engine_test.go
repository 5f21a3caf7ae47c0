package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/challenge"
	"challengeStreakAPI/internal/types/membership"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore fails every plain Update on one collection.
type failingStore struct {
	docstore.Store
	collection string
}

func (f *failingStore) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	if collection == f.collection {
		return errors.New("network unreachable")
	}
	return f.Store.Update(ctx, collection, id, fields)
}

type testEngine struct {
	store       *docstore.MemoryStore
	clock       *fakeClock
	calendar    *Calendar
	challenges  *ChallengeService
	memberships *MembershipService
	posts       *PostService
	reactions   *ReactionService
	comments    *CommentService
	leaderboard *LeaderboardService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineWithStore(t, docstore.NewMemoryStore(), nil)
}

// newTestEngineWithStore builds the services over wrapped, which defaults to
// mem itself.
func newTestEngineWithStore(t *testing.T, mem *docstore.MemoryStore, wrapped docstore.Store) *testEngine {
	t.Helper()
	if wrapped == nil {
		wrapped = mem
	}

	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	mem.SetClock(clock.Now)
	calendar := NewCalendar(clock, time.UTC)
	memberships := NewMembershipService(wrapped, calendar)

	return &testEngine{
		store:       mem,
		clock:       clock,
		calendar:    calendar,
		challenges:  NewChallengeService(wrapped, 16),
		memberships: memberships,
		posts:       NewPostService(wrapped, memberships, calendar),
		reactions:   NewReactionService(wrapped),
		comments:    NewCommentService(wrapped),
		leaderboard: NewLeaderboardService(wrapped, memberships),
	}
}

func (e *testEngine) createChallenge(t *testing.T, title string) *challenge.Challenge {
	t.Helper()
	ch, err := e.challenges.CreateChallenge(context.Background(), "creator", challenge.CreateChallengeRequest{
		Title:    title,
		Category: challenge.CategoryFitness,
	})
	require.NoError(t, err)
	return ch
}

func (e *testEngine) join(t *testing.T, ch *challenge.Challenge, userID string) *membership.Membership {
	t.Helper()
	m, err := e.memberships.Join(context.Background(), ch, userID)
	require.NoError(t, err)
	return m
}

// setStreak writes streak fields directly, bypassing the services.
func (e *testEngine) setStreak(t *testing.T, membershipID string, current, longest int, lastActivity string) {
	t.Helper()
	fields := docstore.Document{
		"currentStreak": current,
		"longestStreak": longest,
		"isActive":      true,
		"hasCompleted":  lastActivity != "",
	}
	if lastActivity != "" {
		fields["lastActivityDate"] = lastActivity
	}
	require.NoError(t, e.store.Update(context.Background(), collMemberships, membershipID, fields))
}

func (e *testEngine) reload(t *testing.T, ch *challenge.Challenge, userID string) *membership.Membership {
	t.Helper()
	m, err := e.memberships.GetMembership(context.Background(), ch.ID, userID)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}
