package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/challenge"
	"challengeStreakAPI/internal/types/membership"
)

type MembershipService struct {
	store    docstore.Store
	calendar *Calendar
}

func NewMembershipService(store docstore.Store, calendar *Calendar) *MembershipService {
	return &MembershipService{
		store:    store,
		calendar: calendar,
	}
}

// GetMembership returns nil and no error when the user never joined.
func (s *MembershipService) GetMembership(ctx context.Context, challengeID, userID string) (*membership.Membership, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	snap, err := s.store.Get(ctx, collMemberships, membershipID(userID, challengeID))
	if err == nil {
		return membershipFromSnapshot(snap, s.calendar.Location()), nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, persistenceErr("get membership", err)
	}

	// Rows written before composite ids were introduced carry random ids.
	snaps, err := s.store.Query(ctx, docstore.Collection(collMemberships).
		Where("challengeId", docstore.OpEqual, challengeID).
		Where("userId", docstore.OpEqual, userID).
		Take(1))
	if err != nil {
		return nil, persistenceErr("query membership", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return membershipFromSnapshot(snaps[0], s.calendar.Location()), nil
}

// Join enrolls userID in ch. The membership id is derived from the pair, so
// two concurrent joins collide on the same document and only one succeeds.
func (s *MembershipService) Join(ctx context.Context, ch *challenge.Challenge, userID string) (*membership.Membership, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if ch == nil || ch.ID == "" {
		return nil, validationErr("challenge is required")
	}

	id := membershipID(userID, ch.ID)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(collMemberships, id); err == nil {
			return ErrAlreadyMember
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}

		chSnap, err := tx.Get(collChallenges, ch.ID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return fmt.Errorf("challenge %s: %w", ch.ID, ErrNotFound)
			}
			return err
		}

		legacy, err := tx.Query(docstore.Collection(collMemberships).
			Where("challengeId", docstore.OpEqual, ch.ID).
			Where("userId", docstore.OpEqual, userID).
			Take(1))
		if err != nil {
			return err
		}
		if len(legacy) > 0 {
			return ErrAlreadyMember
		}

		if err := tx.Create(collMemberships, id, docstore.Document{
			"challengeId":      ch.ID,
			"userId":           userID,
			"currentStreak":    0,
			"longestStreak":    0,
			"isActive":         true,
			"hasCompleted":     false,
			"lastActivityDate": nil,
			"joinedAt":         docstore.ServerTimestamp,
		}); err != nil {
			return err
		}

		return tx.Update(collChallenges, ch.ID, docstore.Document{
			"memberCount": docstore.Int(chSnap.Data, "memberCount") + 1,
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, docstore.ErrAlreadyExists):
		return nil, ErrAlreadyMember
	case errors.Is(err, ErrNotFound):
		return nil, err
	default:
		return nil, persistenceErr("join challenge", err)
	}

	snap, err := s.store.Get(ctx, collMemberships, id)
	if err != nil {
		return nil, persistenceErr("read new membership", err)
	}
	log.Printf("Join: user %s joined challenge %s", userID, ch.ID)
	return membershipFromSnapshot(snap, s.calendar.Location()), nil
}

// UpdateStreak overwrites the streak fields of a membership. The caller has
// already computed the values.
func (s *MembershipService) UpdateStreak(ctx context.Context, membershipID string, u membership.StreakUpdate) error {
	err := s.store.Update(ctx, collMemberships, membershipID, docstore.Document{
		"currentStreak":    u.CurrentStreak,
		"longestStreak":    u.LongestStreak,
		"isActive":         u.IsActive,
		"hasCompleted":     u.HasCompleted,
		"lastActivityDate": s.dateKey(u.ActivityDate),
	})
	if err != nil {
		return persistenceErr("update streak", err)
	}
	return nil
}

func (s *MembershipService) ListUserMemberships(ctx context.Context, userID string) ([]*membership.Membership, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	snaps, err := s.store.Query(ctx, docstore.Collection(collMemberships).
		Where("userId", docstore.OpEqual, userID).
		Order("currentStreak", true))
	if err != nil {
		return nil, persistenceErr("list memberships", err)
	}

	memberships := make([]*membership.Membership, 0, len(snaps))
	for _, snap := range snaps {
		memberships = append(memberships, membershipFromSnapshot(snap, s.calendar.Location()))
	}
	return memberships, nil
}

// ExpireStaleStreaks resets the current streak of every active membership
// that missed a full calendar day. LongestStreak is kept.
func (s *MembershipService) ExpireStaleStreaks(ctx context.Context) (int, error) {
	cutoff := s.dateKey(s.calendar.TodayStart().AddDate(0, 0, -1))

	snaps, err := s.store.Query(ctx, docstore.Collection(collMemberships).
		Where("isActive", docstore.OpEqual, true).
		Where("lastActivityDate", docstore.OpLess, cutoff))
	if err != nil {
		return 0, persistenceErr("query stale memberships", err)
	}

	expired := 0
	for _, snap := range snaps {
		id := snap.ID
		reset := false
		err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			reset = false
			current, err := tx.Get(collMemberships, id)
			if err != nil {
				return err
			}
			// A post may have landed between the query and this transaction.
			last := docstore.String(current.Data, "lastActivityDate")
			if !docstore.Bool(current.Data, "isActive") || last == "" || last >= cutoff {
				return nil
			}
			reset = true
			return tx.Update(collMemberships, id, docstore.Document{
				"currentStreak": 0,
				"isActive":      false,
			})
		})
		if err != nil {
			log.Printf("ExpireStaleStreaks: failed to reset membership %s: %v", id, err)
			continue
		}
		if reset {
			expired++
		}
	}

	streaksExpired.Add(float64(expired))
	return expired, nil
}

func (s *MembershipService) dateKey(t time.Time) string {
	return t.In(s.calendar.Location()).Format(membership.DateLayout)
}
