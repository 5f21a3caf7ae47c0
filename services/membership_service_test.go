package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/challenge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinCreatesFreshMembership(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Morning run")

	m := e.join(t, ch, "user_a")

	assert.Equal(t, "user_a_"+ch.ID, m.ID)
	assert.Equal(t, ch.ID, m.ChallengeID)
	assert.Equal(t, "user_a", m.UserID)
	assert.Equal(t, 0, m.CurrentStreak)
	assert.Equal(t, 0, m.LongestStreak)
	assert.True(t, m.IsActive)
	assert.False(t, m.HasCompletedAtLeastOnce)
	assert.Nil(t, m.LastActivityDate)
	assert.True(t, e.clock.Now().Equal(m.JoinedAt))

	stored, err := e.challenges.GetChallenge(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.MemberCount, "cached copy until invalidated")

	e.challenges.Invalidate(ch.ID)
	stored, err = e.challenges.GetChallenge(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MemberCount)
}

func TestJoinTwiceFailsWithAlreadyMember(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Read daily")
	e.join(t, ch, "user_a")

	_, err := e.memberships.Join(context.Background(), ch, "user_a")
	assert.ErrorIs(t, err, ErrAlreadyMember)
}

func TestJoinSeesLegacyMembershipRows(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Meditate")

	legacyID, err := e.store.Add(context.Background(), collMemberships, docstore.Document{
		"challengeId":   ch.ID,
		"userId":        "user_old",
		"currentStreak": 7,
		"longestStreak": 9,
		"isActive":      true,
	})
	require.NoError(t, err)

	_, err = e.memberships.Join(context.Background(), ch, "user_old")
	assert.ErrorIs(t, err, ErrAlreadyMember)

	m, err := e.memberships.GetMembership(context.Background(), ch.ID, "user_old")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, legacyID, m.ID)
	assert.Equal(t, 7, m.CurrentStreak)
}

func TestConcurrentJoinsCreateOneMembership(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Cold showers")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.memberships.Join(context.Background(), ch, "user_a")
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrAlreadyMember)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	rows, err := e.store.Query(context.Background(), docstore.Collection(collMemberships).
		Where("challengeId", docstore.OpEqual, ch.ID))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	snap, err := e.store.Get(context.Background(), collChallenges, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), docstore.Int(snap.Data, "memberCount"))
}

func TestJoinErrors(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Stretch")

	_, err := e.memberships.Join(context.Background(), ch, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = e.memberships.Join(context.Background(), &challenge.Challenge{ID: "missing"}, "user_a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.memberships.Join(context.Background(), nil, "user_a")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetMembershipReturnsNilForNonMember(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Journal")

	m, err := e.memberships.GetMembership(context.Background(), ch.ID, "stranger")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = e.memberships.GetMembership(context.Background(), ch.ID, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestListUserMembershipsOrdersByStreak(t *testing.T) {
	e := newTestEngine(t)
	first := e.createChallenge(t, "One")
	second := e.createChallenge(t, "Two")
	m1 := e.join(t, first, "user_a")
	m2 := e.join(t, second, "user_a")
	e.join(t, second, "user_b")
	e.setStreak(t, m1.ID, 2, 2, "2026-03-09")
	e.setStreak(t, m2.ID, 5, 5, "2026-03-09")

	list, err := e.memberships.ListUserMemberships(context.Background(), "user_a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, m2.ID, list[0].ID)
	assert.Equal(t, m1.ID, list[1].ID)
}

func TestExpireStaleStreaksResetsOnlyMissedDays(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Push-ups")

	stale := e.join(t, ch, "stale")
	yesterday := e.join(t, ch, "yesterday")
	today := e.join(t, ch, "today")
	e.join(t, ch, "never")

	e.setStreak(t, stale.ID, 4, 6, "2026-03-08")
	e.setStreak(t, yesterday.ID, 3, 3, "2026-03-09")
	e.setStreak(t, today.ID, 2, 2, "2026-03-10")

	expired, err := e.memberships.ExpireStaleStreaks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	m := e.reload(t, ch, "stale")
	assert.Equal(t, 0, m.CurrentStreak)
	assert.Equal(t, 6, m.LongestStreak)
	assert.False(t, m.IsActive)

	assert.Equal(t, 3, e.reload(t, ch, "yesterday").CurrentStreak)
	assert.Equal(t, 2, e.reload(t, ch, "today").CurrentStreak)
	assert.True(t, e.reload(t, ch, "never").IsActive)

	expired, err = e.memberships.ExpireStaleStreaks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestExpiredStreakRestartsAtOne(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Walk")
	m := e.join(t, ch, "user_a")
	e.setStreak(t, m.ID, 4, 6, "2026-03-07")

	_, err := e.memberships.ExpireStaleStreaks(context.Background())
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	_, outcome, err := e.posts.SubmitPost(context.Background(), e.reload(t, ch, "user_a"), postRequest("back at it"))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.CurrentStreak)
	assert.Equal(t, 6, outcome.LongestStreak)
	assert.True(t, e.reload(t, ch, "user_a").IsActive)
}
