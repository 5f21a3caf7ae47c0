package services

import (
	"context"
	"log"
	"sort"
	"sync"

	"challengeStreakAPI/internal/types/comment"
	"challengeStreakAPI/internal/types/post"
	"challengeStreakAPI/internal/types/reaction"

	"golang.org/x/sync/errgroup"
)

const feedFetchParallelism = 8

type FetchState string

const (
	FetchUnloaded FetchState = "unloaded"
	FetchPending  FetchState = "pending"
	FetchKnown    FetchState = "known"
)

// ReactionState keeps the last known Kind while a refetch is pending.
type ReactionState struct {
	State    FetchState    `json:"state"`
	Kind     reaction.Kind `json:"kind"`
	Degraded bool          `json:"degraded,omitempty"`
}

type CommentsState struct {
	State    FetchState         `json:"state"`
	Comments []*comment.Comment `json:"comments"`
	Degraded bool               `json:"degraded,omitempty"`
}

type FeedSnapshot struct {
	ChallengeID string                   `json:"challenge_id"`
	Generation  uint64                   `json:"generation"`
	Posts       []*post.Post             `json:"posts"`
	PostedToday *post.Post               `json:"posted_today"`
	Reactions   map[string]ReactionState `json:"reactions"`
	Comments    map[string]CommentsState `json:"comments"`
	Loading     bool                     `json:"loading"`
}

type FeedPostSource interface {
	ListPosts(ctx context.Context, challengeID string, limit int) ([]*post.Post, error)
	HasPostedToday(ctx context.Context, challengeID, userID string) (*post.Post, error)
}

type FeedReactionSource interface {
	GetUserReaction(ctx context.Context, postID, userID string) (reaction.Kind, error)
}

type FeedCommentSource interface {
	RecentComments(ctx context.Context, postID string, limit int) ([]*comment.Comment, error)
}

// EngagementView is an in-memory projection of one challenge feed as seen by
// one user. It owns no data: every Load refetches, and per-post results are
// merged into the maps key by key as they complete, in whatever order.
//
// Each Load starts a new generation. Results from an older generation are
// dropped when they arrive. Local edits bump a per-post version, and a fetch
// that started under an older version is dropped as well.
type EngagementView struct {
	challengeID   string
	userID        string
	posts         FeedPostSource
	reactions     FeedReactionSource
	comments      FeedCommentSource
	postLimit     int
	commentsLimit int

	mu          sync.Mutex
	generation  uint64
	loading     bool
	postsByID   map[string]*post.Post
	postedToday *post.Post
	reactionMap map[string]ReactionState
	commentMap  map[string]CommentsState
	// per-post versions of local edits
	reactionEdits map[string]uint64
	commentEdits  map[string]uint64
	// generation in which ApplyPost added the post
	addedIn     map[string]uint64
	subscribers map[int]chan FeedSnapshot
	nextSubID   int
}

func NewEngagementView(challengeID, userID string, posts FeedPostSource, reactions FeedReactionSource, comments FeedCommentSource, commentsLimit int) *EngagementView {
	return &EngagementView{
		challengeID:   challengeID,
		userID:        userID,
		posts:         posts,
		reactions:     reactions,
		comments:      comments,
		postLimit:     defaultPostLimit,
		commentsLimit: commentsLimit,
		postsByID:     make(map[string]*post.Post),
		reactionMap:   make(map[string]ReactionState),
		commentMap:    make(map[string]CommentsState),
		reactionEdits: make(map[string]uint64),
		commentEdits:  make(map[string]uint64),
		addedIn:       make(map[string]uint64),
		subscribers:   make(map[int]chan FeedSnapshot),
	}
}

// Load fetches the post list, then the caller's reaction and the recent
// comments of every post in parallel. Only a failure of the post list itself
// is returned; per-post failures degrade that entry to a default.
func (v *EngagementView) Load(ctx context.Context) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.loading = true
	reactionSeen := copyVersions(v.reactionEdits)
	commentSeen := copyVersions(v.commentEdits)
	v.emitLocked()
	v.mu.Unlock()

	posts, err := v.posts.ListPosts(ctx, v.challengeID, v.postLimit)
	if err != nil {
		v.mu.Lock()
		if gen == v.generation {
			v.loading = false
			v.emitLocked()
		}
		v.mu.Unlock()
		return err
	}

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return nil
	}
	v.pruneLocked(gen, posts)

	type fetch struct {
		postID          string
		reactionVersion uint64
		commentVersion  uint64
	}
	fetches := make([]fetch, 0, len(posts))
	for _, listed := range posts {
		p := *listed
		if prev, ok := v.postsByID[p.ID]; ok {
			if v.reactionEdits[p.ID] != reactionSeen[p.ID] {
				p.LikeCount = prev.LikeCount
				p.DislikeCount = prev.DislikeCount
			}
			if v.commentEdits[p.ID] != commentSeen[p.ID] {
				p.CommentCount = prev.CommentCount
			}
		}
		v.postsByID[p.ID] = &p
		fetches = append(fetches, fetch{postID: p.ID, reactionVersion: v.reactionEdits[p.ID], commentVersion: v.commentEdits[p.ID]})

		r := v.reactionMap[p.ID]
		if r.Kind == "" {
			r.Kind = reaction.KindNone
		}
		r.State = FetchPending
		v.reactionMap[p.ID] = r

		c := v.commentMap[p.ID]
		if c.Comments == nil {
			c.Comments = []*comment.Comment{}
		}
		c.State = FetchPending
		v.commentMap[p.ID] = c
	}
	v.emitLocked()
	v.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedFetchParallelism)

	g.Go(func() error {
		today, err := v.posts.HasPostedToday(gctx, v.challengeID, v.userID)
		v.mergePostedToday(gen, today, err)
		return nil
	})
	for _, f := range fetches {
		g.Go(func() error {
			kind, err := v.reactions.GetUserReaction(gctx, f.postID, v.userID)
			v.mergeReaction(gen, f.postID, f.reactionVersion, kind, err)
			return nil
		})
		g.Go(func() error {
			comments, err := v.comments.RecentComments(gctx, f.postID, v.commentsLimit)
			v.mergeComments(gen, f.postID, f.commentVersion, comments, err)
			return nil
		})
	}
	_ = g.Wait()

	v.mu.Lock()
	if gen == v.generation {
		v.loading = false
		v.emitLocked()
	}
	v.mu.Unlock()
	return nil
}

// pruneLocked drops posts the settled list no longer contains, unless
// ApplyPost added them during this generation.
func (v *EngagementView) pruneLocked(gen uint64, posts []*post.Post) {
	listed := make(map[string]bool, len(posts))
	for _, p := range posts {
		listed[p.ID] = true
	}
	for id := range v.postsByID {
		if listed[id] || v.addedIn[id] == gen {
			continue
		}
		delete(v.postsByID, id)
		delete(v.reactionMap, id)
		delete(v.commentMap, id)
		delete(v.reactionEdits, id)
		delete(v.commentEdits, id)
		delete(v.addedIn, id)
	}
}

func copyVersions(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, n := range src {
		dst[k] = n
	}
	return dst
}

func (v *EngagementView) mergePostedToday(gen uint64, today *post.Post, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return
	}
	if err != nil {
		log.Printf("EngagementView: failed to check today's post for user %s in challenge %s: %v", v.userID, v.challengeID, err)
		feedFetchFailures.WithLabelValues("posted_today").Inc()
		return
	}
	v.postedToday = today
	v.emitLocked()
}

func (v *EngagementView) mergeReaction(gen uint64, postID string, version uint64, kind reaction.Kind, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation || version != v.reactionEdits[postID] {
		return
	}
	state := ReactionState{State: FetchKnown, Kind: kind}
	if err != nil {
		log.Printf("EngagementView: failed to fetch reaction of user %s on post %s: %v", v.userID, postID, err)
		feedFetchFailures.WithLabelValues("reaction").Inc()
		state = ReactionState{State: FetchKnown, Kind: reaction.KindNone, Degraded: true}
	}
	v.reactionMap[postID] = state
	v.emitLocked()
}

func (v *EngagementView) mergeComments(gen uint64, postID string, version uint64, comments []*comment.Comment, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation || version != v.commentEdits[postID] {
		return
	}
	state := CommentsState{State: FetchKnown, Comments: comments}
	if err != nil {
		log.Printf("EngagementView: failed to fetch comments of post %s: %v", postID, err)
		feedFetchFailures.WithLabelValues("comments").Inc()
		state = CommentsState{State: FetchKnown, Comments: []*comment.Comment{}, Degraded: true}
	}
	if state.Comments == nil {
		state.Comments = []*comment.Comment{}
	}
	v.commentMap[postID] = state
	v.emitLocked()
}

// ApplyToggle folds the result of a reaction toggle made by this view's user
// into the projection.
func (v *EngagementView) ApplyToggle(result *reaction.ToggleResult) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if p, ok := v.postsByID[result.PostID]; ok {
		updated := *p
		updated.LikeCount = result.LikeCount
		updated.DislikeCount = result.DislikeCount
		v.postsByID[result.PostID] = &updated
	}
	v.reactionEdits[result.PostID]++
	v.reactionMap[result.PostID] = ReactionState{State: FetchKnown, Kind: result.UserAction}
	v.emitLocked()
}

func (v *EngagementView) ApplyComment(c *comment.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if p, ok := v.postsByID[c.PostID]; ok {
		updated := *p
		updated.CommentCount++
		v.postsByID[c.PostID] = &updated
	}

	state := v.commentMap[c.PostID]
	comments := append([]*comment.Comment{c}, state.Comments...)
	if v.commentsLimit > 0 && len(comments) > v.commentsLimit {
		comments = comments[:v.commentsLimit]
	}
	state.Comments = comments
	state.State = FetchKnown
	state.Degraded = false
	v.commentEdits[c.PostID]++
	v.commentMap[c.PostID] = state
	v.emitLocked()
}

// ApplyPost adds a post this view's user just submitted.
func (v *EngagementView) ApplyPost(p *post.Post) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.postsByID[p.ID] = p
	v.addedIn[p.ID] = v.generation
	if _, ok := v.reactionMap[p.ID]; !ok {
		v.reactionMap[p.ID] = ReactionState{State: FetchKnown, Kind: reaction.KindNone}
	}
	if _, ok := v.commentMap[p.ID]; !ok {
		v.commentMap[p.ID] = CommentsState{State: FetchKnown, Comments: []*comment.Comment{}}
	}
	if p.StreakAwarded && v.postedToday == nil {
		v.postedToday = p
	}
	v.emitLocked()
}

func (v *EngagementView) Snapshot() FeedSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Intermediate snapshots are dropped for slow readers. The returned func
// unsubscribes and closes the channel.
func (v *EngagementView) Subscribe() (<-chan FeedSnapshot, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextSubID
	v.nextSubID++
	ch := make(chan FeedSnapshot, 1)
	ch <- v.snapshotLocked()
	v.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subscribers, id)
			close(ch)
		})
	}
}

func (v *EngagementView) emitLocked() {
	if len(v.subscribers) == 0 {
		return
	}
	snap := v.snapshotLocked()
	for _, ch := range v.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (v *EngagementView) snapshotLocked() FeedSnapshot {
	snap := FeedSnapshot{
		ChallengeID: v.challengeID,
		Generation:  v.generation,
		Posts:       make([]*post.Post, 0, len(v.postsByID)),
		Reactions:   make(map[string]ReactionState, len(v.reactionMap)),
		Comments:    make(map[string]CommentsState, len(v.commentMap)),
		Loading:     v.loading,
	}
	for _, p := range v.postsByID {
		cp := *p
		snap.Posts = append(snap.Posts, &cp)
	}
	sort.Slice(snap.Posts, func(i, j int) bool {
		if snap.Posts[i].CreatedAt.Equal(snap.Posts[j].CreatedAt) {
			return snap.Posts[i].ID < snap.Posts[j].ID
		}
		return snap.Posts[i].CreatedAt.After(snap.Posts[j].CreatedAt)
	})
	if v.postedToday != nil {
		cp := *v.postedToday
		snap.PostedToday = &cp
	}
	for id, r := range v.reactionMap {
		snap.Reactions[id] = r
	}
	for id, c := range v.commentMap {
		c.Comments = append([]*comment.Comment(nil), c.Comments...)
		if c.Comments == nil {
			c.Comments = []*comment.Comment{}
		}
		snap.Comments[id] = c
	}
	return snap
}
