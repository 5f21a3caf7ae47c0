package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/comment"

	"github.com/google/uuid"
)

const maxCommentLength = 500

type CommentService struct {
	store docstore.Store
}

func NewCommentService(store docstore.Store) *CommentService {
	return &CommentService{store: store}
}

// AddComment appends a comment to postID and bumps the post's commentCount in
// the same transaction.
func (s *CommentService) AddComment(ctx context.Context, postID, userID, content string) (*comment.Comment, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	content = cleanText(content)
	if content == "" {
		return nil, validationErr("comment is empty")
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return nil, validationErr("comment is longer than %d characters", maxCommentLength)
	}

	id := uuid.New().String()
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		postSnap, err := tx.Get(collPosts, postID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return fmt.Errorf("post %s: %w", postID, ErrNotFound)
			}
			return err
		}

		if err := tx.Create(collComments, id, docstore.Document{
			"postId":    postID,
			"userId":    userID,
			"content":   content,
			"createdAt": docstore.ServerTimestamp,
		}); err != nil {
			return err
		}

		_, err = adjustPostCounters(tx, postSnap, counterDelta{comments: 1})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, persistenceErr("add comment", err)
	}
	commentsAdded.Inc()

	c := &comment.Comment{ID: id, PostID: postID, UserID: userID, Content: content}
	if snap, err := s.store.Get(ctx, collComments, id); err == nil {
		c = commentFromSnapshot(snap)
	} else {
		log.Printf("AddComment: failed to read back comment %s: %v", id, err)
	}
	return c, nil
}

// RecentComments returns up to limit comments on postID, newest first.
func (s *CommentService) RecentComments(ctx context.Context, postID string, limit int) ([]*comment.Comment, error) {
	q := docstore.Collection(collComments).
		Where("postId", docstore.OpEqual, postID).
		Order("createdAt", true)
	if limit > 0 {
		q = q.Take(limit)
	}

	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, persistenceErr("list comments", err)
	}

	comments := make([]*comment.Comment, 0, len(snaps))
	for _, snap := range snaps {
		comments = append(comments, commentFromSnapshot(snap))
	}
	return comments, nil
}
