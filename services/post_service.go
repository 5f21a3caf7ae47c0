package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/membership"
	"challengeStreakAPI/internal/types/post"

	"github.com/google/uuid"
)

const (
	maxPostLength    = 2000
	defaultPostLimit = 50
	maxPostLimit     = 200
)

type PostService struct {
	store       docstore.Store
	memberships *MembershipService
	calendar    *Calendar
}

func NewPostService(store docstore.Store, memberships *MembershipService, calendar *Calendar) *PostService {
	return &PostService{
		store:       store,
		memberships: memberships,
		calendar:    calendar,
	}
}

// SubmitPost records an activity post for m and, when it is the first post
// of the calendar day, extends the streak. On success m is updated in place.
//
// If the post is saved but the streak update fails, the saved post and the
// intended outcome are returned along with a *PartialFailureError. The post
// must not be submitted again.
func (s *PostService) SubmitPost(ctx context.Context, m *membership.Membership, req post.SubmitPostRequest) (*post.Post, *post.StreakOutcome, error) {
	if m == nil {
		return nil, nil, validationErr("membership is required")
	}
	if m.UserID == "" {
		return nil, nil, ErrNotAuthenticated
	}

	content := cleanText(req.Content)
	imageURL := strings.TrimSpace(req.ImageURL)
	if content == "" && imageURL == "" {
		return nil, nil, ErrEmptyPost
	}
	if utf8.RuneCountInString(content) > maxPostLength {
		return nil, nil, validationErr("post is longer than %d characters", maxPostLength)
	}

	now := s.calendar.Now()
	day := s.calendar.StartOfDay(now)
	id := uuid.New().String()
	doc := docstore.Document{
		"challengeId":  m.ChallengeID,
		"userId":       m.UserID,
		"membershipId": m.ID,
		"content":      content,
		"imageUrl":     imageURL,
		"createdAt":    docstore.ServerTimestamp,
		"likeCount":    0,
		"dislikeCount": 0,
		"commentCount": 0,
	}

	// A marker collision means another post claimed today's credit first;
	// the rerun then sees the marker and records this post without credit.
	var isNewStreakDay bool
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			claimed, err := s.claimStreakDay(tx, m, day, id)
			if err != nil {
				return err
			}
			isNewStreakDay = claimed
			doc["streakAwarded"] = claimed
			return tx.Create(collPosts, id, doc)
		})
		if !errors.Is(err, docstore.ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return nil, nil, persistenceErr("create post", err)
	}
	postsSubmitted.WithLabelValues(strconv.FormatBool(isNewStreakDay)).Inc()

	p := &post.Post{
		ID:            id,
		ChallengeID:   m.ChallengeID,
		UserID:        m.UserID,
		MembershipID:  m.ID,
		Content:       content,
		ImageURL:      imageURL,
		StreakAwarded: isNewStreakDay,
	}
	if snap, err := s.store.Get(ctx, collPosts, id); err == nil {
		p = postFromSnapshot(snap)
	} else {
		log.Printf("SubmitPost: failed to read back post %s: %v", id, err)
	}

	outcome := &post.StreakOutcome{
		Awarded:        isNewStreakDay,
		PreviousStreak: m.CurrentStreak,
		CurrentStreak:  m.CurrentStreak,
		LongestStreak:  m.LongestStreak,
	}
	if !isNewStreakDay {
		return p, outcome, nil
	}

	update := membership.StreakUpdate{
		CurrentStreak: m.CurrentStreak + 1,
		LongestStreak: max(m.CurrentStreak+1, m.LongestStreak),
		IsActive:      true,
		HasCompleted:  true,
		ActivityDate:  now,
	}
	outcome.CurrentStreak = update.CurrentStreak
	outcome.LongestStreak = update.LongestStreak

	if err := s.memberships.UpdateStreak(ctx, m.ID, update); err != nil {
		streakPartialFailures.Inc()
		log.Printf("SubmitPost: post %s saved but streak update for membership %s failed: %v", p.ID, m.ID, err)
		return p, outcome, &PartialFailureError{Post: p, Outcome: outcome, Err: err}
	}
	outcome.StreakUpdated = true

	m.CurrentStreak = update.CurrentStreak
	m.LongestStreak = update.LongestStreak
	m.IsActive = true
	m.HasCompletedAtLeastOnce = true
	m.LastActivityDate = &day

	return p, outcome, nil
}

// claimStreakDay decides inside tx whether postID earns the streak credit of
// day. The first claim writes a marker keyed by membership and day, so later
// posts that day find it even when the membership update was lost.
func (s *PostService) claimStreakDay(tx docstore.Tx, m *membership.Membership, day time.Time, postID string) (bool, error) {
	dayKey := day.Format(membership.DateLayout)
	markerID := streakDayID(m.ID, dayKey)

	_, err := tx.Get(collStreakDays, markerID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, docstore.ErrNotFound):
		return false, err
	}
	if m.LastActivityDate != nil && !m.LastActivityDate.Before(day) {
		return false, nil
	}

	err = tx.Create(collStreakDays, markerID, docstore.Document{
		"membershipId": m.ID,
		"postId":       postID,
		"day":          dayKey,
		"createdAt":    docstore.ServerTimestamp,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasPostedToday returns today's streak-awarded post, or nil. It reads the
// server-assigned createdAt rather than the membership's lastActivityDate,
// since the two diverge after a partial failure.
func (s *PostService) HasPostedToday(ctx context.Context, challengeID, userID string) (*post.Post, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	snaps, err := s.store.Query(ctx, docstore.Collection(collPosts).
		Where("challengeId", docstore.OpEqual, challengeID).
		Where("userId", docstore.OpEqual, userID).
		Where("streakAwarded", docstore.OpEqual, true).
		Where("createdAt", docstore.OpGreaterOrEqual, s.calendar.TodayStart()).
		Take(1))
	if err != nil {
		return nil, persistenceErr("query today's post", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return postFromSnapshot(snaps[0]), nil
}

// ListPosts returns the newest posts of a challenge first.
func (s *PostService) ListPosts(ctx context.Context, challengeID string, limit int) ([]*post.Post, error) {
	if limit <= 0 {
		limit = defaultPostLimit
	}
	if limit > maxPostLimit {
		limit = maxPostLimit
	}

	snaps, err := s.store.Query(ctx, docstore.Collection(collPosts).
		Where("challengeId", docstore.OpEqual, challengeID).
		Order("createdAt", true).
		Take(limit))
	if err != nil {
		return nil, persistenceErr("list posts", err)
	}

	posts := make([]*post.Post, 0, len(snaps))
	for _, snap := range snaps {
		posts = append(posts, postFromSnapshot(snap))
	}
	return posts, nil
}

func (s *PostService) GetPost(ctx context.Context, postID string) (*post.Post, error) {
	snap, err := s.store.Get(ctx, collPosts, postID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
		}
		return nil, persistenceErr("get post", err)
	}
	return postFromSnapshot(snap), nil
}

// RetryStreakUpdate re-applies the streak increment of a streak-awarded post
// whose membership update was lost. Nothing changes once the membership's
// last activity date has reached the post's day, so it is safe to call
// repeatedly.
func (s *PostService) RetryStreakUpdate(ctx context.Context, userID, postID string) (*post.StreakOutcome, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	p, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if !p.StreakAwarded {
		return nil, validationErr("post %s did not earn streak credit", postID)
	}
	if p.CreatedAt.IsZero() {
		return nil, validationErr("post %s has no timestamp", postID)
	}

	postDay := s.calendar.StartOfDay(p.CreatedAt)
	var outcome *post.StreakOutcome
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(collMemberships, p.MembershipID)
		if err != nil {
			return err
		}
		m := membershipFromSnapshot(snap, s.calendar.Location())
		outcome = &post.StreakOutcome{
			Awarded:        true,
			PreviousStreak: m.CurrentStreak,
			CurrentStreak:  m.CurrentStreak,
			LongestStreak:  m.LongestStreak,
		}
		if m.LastActivityDate != nil && !m.LastActivityDate.Before(postDay) {
			return nil
		}

		outcome.CurrentStreak = m.CurrentStreak + 1
		outcome.LongestStreak = max(outcome.CurrentStreak, m.LongestStreak)
		outcome.StreakUpdated = true
		return tx.Update(collMemberships, m.ID, docstore.Document{
			"currentStreak":    outcome.CurrentStreak,
			"longestStreak":    outcome.LongestStreak,
			"isActive":         true,
			"hasCompleted":     true,
			"lastActivityDate": postDay.Format(membership.DateLayout),
		})
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("membership %s: %w", p.MembershipID, ErrNotFound)
		}
		return nil, persistenceErr("retry streak update", err)
	}

	if outcome.StreakUpdated {
		log.Printf("RetryStreakUpdate: applied streak for post %s, membership %s now at %d", postID, p.MembershipID, outcome.CurrentStreak)
	}
	return outcome, nil
}

