package services

import (
	"log"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/reaction"
)

type counterDelta struct {
	likes    int
	dislikes int
	comments int
}

func (d *counterDelta) addReaction(kind reaction.Kind, n int) {
	switch kind {
	case reaction.KindLike:
		d.likes += n
	case reaction.KindDislike:
		d.dislikes += n
	}
}

type postCounters struct {
	Likes    int
	Dislikes int
	Comments int
}

// adjustPostCounters is the only writer of a post's aggregate counters. It
// must run inside a transaction that already read postSnap through the same
// tx, so the read and the write are one atomic step.
func adjustPostCounters(tx docstore.Tx, postSnap *docstore.Snapshot, d counterDelta) (postCounters, error) {
	current := postCounters{
		Likes:    int(docstore.Int(postSnap.Data, "likeCount")),
		Dislikes: int(docstore.Int(postSnap.Data, "dislikeCount")),
		Comments: int(docstore.Int(postSnap.Data, "commentCount")),
	}
	next := postCounters{
		Likes:    clampCounter(postSnap.ID, "likeCount", current.Likes+d.likes),
		Dislikes: clampCounter(postSnap.ID, "dislikeCount", current.Dislikes+d.dislikes),
		Comments: clampCounter(postSnap.ID, "commentCount", current.Comments+d.comments),
	}

	fields := docstore.Document{}
	if d.likes != 0 {
		fields["likeCount"] = next.Likes
	}
	if d.dislikes != 0 {
		fields["dislikeCount"] = next.Dislikes
	}
	if d.comments != 0 {
		fields["commentCount"] = next.Comments
	}
	if len(fields) == 0 {
		return current, nil
	}

	if err := tx.Update(collPosts, postSnap.ID, fields); err != nil {
		return postCounters{}, err
	}
	return next, nil
}

func clampCounter(postID, field string, v int) int {
	if v < 0 {
		log.Printf("adjustPostCounters: %s on post %s would drop to %d, clamping to 0", field, postID, v)
		return 0
	}
	return v
}
