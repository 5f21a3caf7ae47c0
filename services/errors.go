package services

import (
	"errors"
	"fmt"

	"challengeStreakAPI/internal/types/post"
)

var (
	ErrNotAuthenticated = errors.New("user not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrEmptyPost        = fmt.Errorf("%w: post needs text or an image", ErrValidation)
	ErrAlreadyMember    = errors.New("user is already a member of this challenge")
	ErrPersistence      = errors.New("persistence failure")
	ErrPartialFailure   = errors.New("partial failure")
)

// PartialFailureError is returned by SubmitPost when the post was saved but
// the streak update was not. The post must not be resubmitted; the streak
// update can be retried with RetryStreakUpdate.
type PartialFailureError struct {
	Post    *post.Post
	Outcome *post.StreakOutcome
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("post %s saved but streak update failed: %v", e.Post.ID, e.Err)
}

func (e *PartialFailureError) Unwrap() []error {
	return []error{ErrPartialFailure, e.Err}
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrPersistence, err)
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
