package services

import (
	"html"
	"strings"
	"time"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/challenge"
	"challengeStreakAPI/internal/types/comment"
	"challengeStreakAPI/internal/types/membership"
	"challengeStreakAPI/internal/types/post"
	"challengeStreakAPI/internal/types/reaction"

	"github.com/microcosm-cc/bluemonday"
)

const (
	collChallenges  = "challenges"
	collMemberships = "memberships"
	collPosts       = "posts"
	collReactions   = "reactions"
	collComments    = "comments"
	collStreakDays  = "streak_days"
)

var textPolicy = bluemonday.StrictPolicy()

// cleanText strips any markup from user supplied text.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func membershipID(userID, challengeID string) string {
	return userID + "_" + challengeID
}

// streakDayID keys the marker that claims a membership's streak credit for
// one calendar day.
func streakDayID(membershipID, day string) string {
	return membershipID + "_" + day
}

func reactionID(postID, userID string) string {
	return postID + "_" + userID
}

func challengeFromSnapshot(snap *docstore.Snapshot) *challenge.Challenge {
	d := snap.Data
	c := &challenge.Challenge{
		ID:          snap.ID,
		Title:       docstore.String(d, "title"),
		Category:    challenge.Category(docstore.String(d, "category")),
		Description: docstore.String(d, "description"),
		IconURL:     docstore.String(d, "iconUrl"),
		BannerURL:   docstore.String(d, "bannerUrl"),
		CreatorID:   docstore.String(d, "creatorId"),
		MemberCount: int(docstore.Int(d, "memberCount")),
	}
	c.CreatedAt, _ = docstore.Time(d, "createdAt")
	return c
}

func membershipFromSnapshot(snap *docstore.Snapshot, loc *time.Location) *membership.Membership {
	d := snap.Data
	m := &membership.Membership{
		ID:                      snap.ID,
		ChallengeID:             docstore.String(d, "challengeId"),
		UserID:                  docstore.String(d, "userId"),
		CurrentStreak:           int(docstore.Int(d, "currentStreak")),
		LongestStreak:           int(docstore.Int(d, "longestStreak")),
		IsActive:                docstore.Bool(d, "isActive"),
		HasCompletedAtLeastOnce: docstore.Bool(d, "hasCompleted"),
	}
	if raw := docstore.String(d, "lastActivityDate"); raw != "" {
		if day, err := time.ParseInLocation(membership.DateLayout, raw, loc); err == nil {
			m.LastActivityDate = &day
		}
	}
	m.JoinedAt, _ = docstore.Time(d, "joinedAt")
	return m
}

func postFromSnapshot(snap *docstore.Snapshot) *post.Post {
	d := snap.Data
	p := &post.Post{
		ID:            snap.ID,
		ChallengeID:   docstore.String(d, "challengeId"),
		UserID:        docstore.String(d, "userId"),
		MembershipID:  docstore.String(d, "membershipId"),
		Content:       docstore.String(d, "content"),
		ImageURL:      docstore.String(d, "imageUrl"),
		StreakAwarded: docstore.Bool(d, "streakAwarded"),
		LikeCount:     int(docstore.Int(d, "likeCount")),
		DislikeCount:  int(docstore.Int(d, "dislikeCount")),
		CommentCount:  int(docstore.Int(d, "commentCount")),
	}
	p.CreatedAt, _ = docstore.Time(d, "createdAt")
	return p
}

func reactionFromSnapshot(snap *docstore.Snapshot) *reaction.Reaction {
	d := snap.Data
	r := &reaction.Reaction{
		ID:     snap.ID,
		PostID: docstore.String(d, "postId"),
		UserID: docstore.String(d, "userId"),
		Kind:   reaction.Kind(docstore.String(d, "kind")),
	}
	r.CreatedAt, _ = docstore.Time(d, "createdAt")
	return r
}

func commentFromSnapshot(snap *docstore.Snapshot) *comment.Comment {
	d := snap.Data
	c := &comment.Comment{
		ID:      snap.ID,
		PostID:  docstore.String(d, "postId"),
		UserID:  docstore.String(d, "userId"),
		Content: docstore.String(d, "content"),
	}
	c.CreatedAt, _ = docstore.Time(d, "createdAt")
	return c
}
