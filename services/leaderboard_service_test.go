package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardSharesRanksOnTies(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Run 5k")

	streaks := map[string]int{"alice": 5, "bob": 5, "carol": 3, "dave": 1}
	for _, user := range []string{"alice", "bob", "carol", "dave"} {
		m := e.join(t, ch, user)
		e.setStreak(t, m.ID, streaks[user], streaks[user], "2026-03-10")
	}

	board, err := e.leaderboard.GetChallengeLeaderboard(context.Background(), ch.ID, "carol", 10)
	require.NoError(t, err)
	require.Len(t, board.Entries, 4)

	ranks := make([]int, 0, len(board.Entries))
	for _, entry := range board.Entries {
		ranks = append(ranks, entry.Rank)
	}
	assert.Equal(t, []int{1, 1, 3, 4}, ranks)
	require.NotNil(t, board.UserPosition)
	assert.Equal(t, "carol", board.UserPosition.UserID)
	assert.Equal(t, 3, board.UserPosition.Rank)
	assert.Equal(t, 4, board.TotalUsers)
}

func TestLeaderboardRanksUserOutsideLimit(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Run 5k")

	streaks := map[string]int{"alice": 5, "bob": 5, "carol": 3, "dave": 1}
	for _, user := range []string{"alice", "bob", "carol", "dave"} {
		m := e.join(t, ch, user)
		e.setStreak(t, m.ID, streaks[user], streaks[user], "2026-03-10")
	}

	board, err := e.leaderboard.GetChallengeLeaderboard(context.Background(), ch.ID, "dave", 2)
	require.NoError(t, err)
	assert.Len(t, board.Entries, 2)
	require.NotNil(t, board.UserPosition)
	assert.Equal(t, 4, board.UserPosition.Rank)
	assert.Equal(t, 1, board.UserPosition.CurrentStreak)
	assert.Equal(t, 4, board.TotalUsers, "member count covers rows past the limit")

	outsider, err := e.leaderboard.GetChallengeLeaderboard(context.Background(), ch.ID, "stranger", 2)
	require.NoError(t, err)
	assert.Nil(t, outsider.UserPosition)

	_, err = e.leaderboard.GetChallengeLeaderboard(context.Background(), ch.ID, "", 2)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
