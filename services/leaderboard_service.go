package services

import (
	"context"
	"errors"
	"log"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/leaderboard"
	"challengeStreakAPI/internal/types/membership"
)

const defaultLeaderboardLimit = 50

type LeaderboardService struct {
	store       docstore.Store
	memberships *MembershipService
}

func NewLeaderboardService(store docstore.Store, memberships *MembershipService) *LeaderboardService {
	return &LeaderboardService{
		store:       store,
		memberships: memberships,
	}
}

// GetChallengeLeaderboard ranks members by current streak. Equal streaks
// share a rank and the next rank skips ahead (1, 1, 3).
func (s *LeaderboardService) GetChallengeLeaderboard(ctx context.Context, challengeID, userID string, limit int) (*leaderboard.Leaderboard, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	snaps, err := s.store.Query(ctx, docstore.Collection(collMemberships).
		Where("challengeId", docstore.OpEqual, challengeID).
		Order("currentStreak", true).
		Take(limit))
	if err != nil {
		return nil, persistenceErr("query leaderboard", err)
	}

	board := &leaderboard.Leaderboard{
		ChallengeID: challengeID,
		Entries:     make([]*leaderboard.LeaderboardEntry, 0, len(snaps)),
	}
	rank := 0
	for i, snap := range snaps {
		m := membershipFromSnapshot(snap, s.memberships.calendar.Location())
		if i == 0 || m.CurrentStreak != board.Entries[i-1].CurrentStreak {
			rank = i + 1
		}
		entry := toLeaderboardEntry(m, rank)
		board.Entries = append(board.Entries, entry)
		if m.UserID == userID {
			board.UserPosition = entry
		}
	}

	if board.UserPosition == nil {
		board.UserPosition, err = s.userPosition(ctx, challengeID, userID)
		if err != nil {
			return nil, err
		}
	}

	board.TotalUsers = len(board.Entries)
	chSnap, err := s.store.Get(ctx, collChallenges, challengeID)
	switch {
	case err == nil:
		board.TotalUsers = max(board.TotalUsers, int(docstore.Int(chSnap.Data, "memberCount")))
	case errors.Is(err, docstore.ErrNotFound):
	default:
		log.Printf("GetChallengeLeaderboard: failed to read member count for %s: %v", challengeID, err)
	}

	return board, nil
}

func (s *LeaderboardService) userPosition(ctx context.Context, challengeID, userID string) (*leaderboard.LeaderboardEntry, error) {
	m, err := s.memberships.GetMembership(ctx, challengeID, userID)
	if err != nil || m == nil {
		return nil, err
	}

	ahead, err := s.store.Query(ctx, docstore.Collection(collMemberships).
		Where("challengeId", docstore.OpEqual, challengeID).
		Where("currentStreak", docstore.OpGreater, m.CurrentStreak))
	if err != nil {
		return nil, persistenceErr("rank user", err)
	}
	return toLeaderboardEntry(m, len(ahead)+1), nil
}

func toLeaderboardEntry(m *membership.Membership, rank int) *leaderboard.LeaderboardEntry {
	return &leaderboard.LeaderboardEntry{
		UserID:        m.UserID,
		MembershipID:  m.ID,
		Rank:          rank,
		CurrentStreak: m.CurrentStreak,
		LongestStreak: m.LongestStreak,
		IsActive:      m.IsActive,
	}
}
