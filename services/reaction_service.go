package services

import (
	"context"
	"errors"
	"fmt"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/reaction"
)

type ReactionService struct {
	store docstore.Store
}

func NewReactionService(store docstore.Store) *ReactionService {
	return &ReactionService{store: store}
}

// Toggle applies a like or dislike from userID to postID:
//   - no reaction yet: kind is recorded
//   - same kind again: the reaction is removed
//   - the other kind: the reaction switches over
//
// The reaction row and the post counters are read and written in one
// transaction. On ErrPersistence wrapping docstore.ErrAborted the caller may
// retry the whole toggle.
func (s *ReactionService) Toggle(ctx context.Context, postID, userID string, kind reaction.Kind) (*reaction.ToggleResult, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if !kind.Valid() {
		return nil, validationErr("unknown reaction kind %q", kind)
	}

	rid := reactionID(postID, userID)
	var result *reaction.ToggleResult
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		postSnap, err := tx.Get(collPosts, postID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return fmt.Errorf("post %s: %w", postID, ErrNotFound)
			}
			return err
		}

		existing := reaction.KindNone
		existingSnap, err := tx.Get(collReactions, rid)
		switch {
		case err == nil:
			existing = reaction.Kind(docstore.String(existingSnap.Data, "kind"))
		case errors.Is(err, docstore.ErrNotFound):
		default:
			return err
		}

		var delta counterDelta
		action := kind
		switch {
		case existing == reaction.KindNone || !existing.Valid():
			if existingSnap != nil {
				// Unrecognised row: replace it as if it were absent.
				err = tx.Update(collReactions, rid, docstore.Document{"kind": string(kind)})
			} else {
				err = tx.Create(collReactions, rid, docstore.Document{
					"postId":    postID,
					"userId":    userID,
					"kind":      string(kind),
					"createdAt": docstore.ServerTimestamp,
				})
			}
			delta.addReaction(kind, 1)
		case existing == kind:
			err = tx.Delete(collReactions, rid)
			delta.addReaction(kind, -1)
			action = reaction.KindNone
		default:
			err = tx.Update(collReactions, rid, docstore.Document{"kind": string(kind)})
			delta.addReaction(existing, -1)
			delta.addReaction(kind, 1)
		}
		if err != nil {
			return err
		}

		counts, err := adjustPostCounters(tx, postSnap, delta)
		if err != nil {
			return err
		}
		result = &reaction.ToggleResult{
			PostID:       postID,
			LikeCount:    counts.Likes,
			DislikeCount: counts.Dislikes,
			UserAction:   action,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, persistenceErr("toggle reaction", err)
	}

	reactionToggles.WithLabelValues(string(result.UserAction)).Inc()
	return result, nil
}

// GetUserReaction returns KindNone when userID has not reacted to postID.
func (s *ReactionService) GetUserReaction(ctx context.Context, postID, userID string) (reaction.Kind, error) {
	if userID == "" {
		return reaction.KindNone, ErrNotAuthenticated
	}

	snap, err := s.store.Get(ctx, collReactions, reactionID(postID, userID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return reaction.KindNone, nil
		}
		return reaction.KindNone, persistenceErr("get reaction", err)
	}

	kind := reaction.Kind(docstore.String(snap.Data, "kind"))
	if !kind.Valid() {
		return reaction.KindNone, nil
	}
	return kind, nil
}
