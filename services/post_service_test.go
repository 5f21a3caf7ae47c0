package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/post"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postRequest(content string) post.SubmitPostRequest {
	return post.SubmitPostRequest{Content: content}
}

func TestSubmitPostExtendsStreakFromYesterday(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Run 5k")
	m := e.join(t, ch, "user_a")
	e.setStreak(t, m.ID, 3, 5, "2026-03-09")
	m = e.reload(t, ch, "user_a")

	p, outcome, err := e.posts.SubmitPost(context.Background(), m, postRequest("did 5k in 28 minutes"))
	require.NoError(t, err)

	assert.True(t, p.StreakAwarded)
	assert.True(t, e.clock.Now().Equal(p.CreatedAt), "createdAt comes from the store clock")
	assert.Equal(t, 0, p.LikeCount)
	assert.Equal(t, &post.StreakOutcome{
		Awarded:        true,
		PreviousStreak: 3,
		CurrentStreak:  4,
		LongestStreak:  5,
		StreakUpdated:  true,
	}, outcome)

	stored := e.reload(t, ch, "user_a")
	assert.Equal(t, 4, stored.CurrentStreak)
	assert.Equal(t, 5, stored.LongestStreak)
	assert.True(t, stored.IsActive)
	assert.True(t, stored.HasCompletedAtLeastOnce)
	require.NotNil(t, stored.LastActivityDate)
	assert.Equal(t, "2026-03-10", stored.LastActivityDate.Format("2006-01-02"))

	assert.Equal(t, 4, m.CurrentStreak, "caller's membership is updated in place")
}

func TestSecondPostSameDayEarnsNoCredit(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Run 5k")
	m := e.join(t, ch, "user_a")
	e.setStreak(t, m.ID, 3, 5, "2026-03-09")
	m = e.reload(t, ch, "user_a")

	_, _, err := e.posts.SubmitPost(context.Background(), m, postRequest("morning"))
	require.NoError(t, err)

	e.clock.Advance(10 * time.Hour)
	second, outcome, err := e.posts.SubmitPost(context.Background(), e.reload(t, ch, "user_a"), postRequest("evening"))
	require.NoError(t, err)

	assert.False(t, second.StreakAwarded)
	assert.False(t, outcome.Awarded)
	assert.False(t, outcome.StreakUpdated)
	assert.Equal(t, 4, outcome.CurrentStreak)

	stored := e.reload(t, ch, "user_a")
	assert.Equal(t, 4, stored.CurrentStreak)
	assert.Equal(t, 5, stored.LongestStreak)
}

func TestAtMostOneStreakPostPerDay(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Stretch")
	e.join(t, ch, "user_a")

	awardedOn := map[string]int{}
	for day := 0; day < 3; day++ {
		for i := 0; i < 4; i++ {
			p, _, err := e.posts.SubmitPost(context.Background(), e.reload(t, ch, "user_a"), postRequest("set"))
			require.NoError(t, err)
			if p.StreakAwarded {
				awardedOn[p.CreatedAt.Format("2006-01-02")]++
			}
			e.clock.Advance(2 * time.Hour)
		}
		e.clock.Advance(16 * time.Hour)
	}

	assert.Equal(t, map[string]int{"2026-03-10": 1, "2026-03-11": 1, "2026-03-12": 1}, awardedOn)

	m := e.reload(t, ch, "user_a")
	assert.Equal(t, 3, m.CurrentStreak)
	assert.GreaterOrEqual(t, m.LongestStreak, m.CurrentStreak)
}

func TestStreakIncrementsByOneAndLongestFollows(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Guitar")
	m := e.join(t, ch, "user_a")
	e.setStreak(t, m.ID, 5, 5, "2026-03-09")

	_, outcome, err := e.posts.SubmitPost(context.Background(), e.reload(t, ch, "user_a"), postRequest("scales"))
	require.NoError(t, err)
	assert.Equal(t, outcome.PreviousStreak+1, outcome.CurrentStreak)
	assert.Equal(t, 6, outcome.LongestStreak)
}

func TestSubmitPostValidation(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Draw")
	m := e.join(t, ch, "user_a")

	_, _, err := e.posts.SubmitPost(context.Background(), m, post.SubmitPostRequest{})
	assert.ErrorIs(t, err, ErrEmptyPost)
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = e.posts.SubmitPost(context.Background(), m, postRequest("<script></script>  "))
	assert.ErrorIs(t, err, ErrEmptyPost, "markup alone is empty")

	p, _, err := e.posts.SubmitPost(context.Background(), m, post.SubmitPostRequest{ImageURL: "https://cdn.example.com/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", p.ImageURL)

	p, _, err = e.posts.SubmitPost(context.Background(), m, postRequest("<b>sketch</b> & ink"))
	require.NoError(t, err)
	assert.Equal(t, "sketch & ink", p.Content)

	anonymous := *m
	anonymous.UserID = ""
	_, _, err = e.posts.SubmitPost(context.Background(), &anonymous, postRequest("hi"))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestHasPostedTodayUsesServerTimestamps(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Swim")
	m := e.join(t, ch, "user_a")

	today, err := e.posts.HasPostedToday(context.Background(), ch.ID, "user_a")
	require.NoError(t, err)
	assert.Nil(t, today)

	p, _, err := e.posts.SubmitPost(context.Background(), m, postRequest("1km"))
	require.NoError(t, err)

	today, err = e.posts.HasPostedToday(context.Background(), ch.ID, "user_a")
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.Equal(t, p.ID, today.ID)

	other, err := e.posts.HasPostedToday(context.Background(), ch.ID, "user_b")
	require.NoError(t, err)
	assert.Nil(t, other)

	e.clock.Advance(15 * time.Hour)
	today, err = e.posts.HasPostedToday(context.Background(), ch.ID, "user_a")
	require.NoError(t, err)
	assert.Nil(t, today, "a new day has started")
}

func TestSubmitPostReportsPartialFailure(t *testing.T) {
	mem := docstore.NewMemoryStore()
	broken := newTestEngineWithStore(t, mem, &failingStore{Store: mem, collection: collMemberships})
	ch := broken.createChallenge(t, "Yoga")
	m := broken.join(t, ch, "user_a")
	broken.setStreak(t, m.ID, 3, 5, "2026-03-09")
	m = broken.reload(t, ch, "user_a")

	p, outcome, err := broken.posts.SubmitPost(context.Background(), m, postRequest("sun salutations"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.ErrorIs(t, err, ErrPersistence)

	var partial *PartialFailureError
	require.True(t, errors.As(err, &partial))
	require.NotNil(t, p)
	assert.Equal(t, p, partial.Post)
	assert.True(t, p.StreakAwarded)
	assert.False(t, outcome.StreakUpdated)
	assert.Equal(t, 4, outcome.CurrentStreak)

	stored := broken.reload(t, ch, "user_a")
	assert.Equal(t, 3, stored.CurrentStreak, "membership left stale")
	assert.Equal(t, 3, m.CurrentStreak)

	today, err := broken.posts.HasPostedToday(context.Background(), ch.ID, "user_a")
	require.NoError(t, err)
	require.NotNil(t, today, "posted-today follows the post, not the membership")

	healthy := newTestEngineWithStore(t, mem, nil)
	retried, err := healthy.posts.RetryStreakUpdate(context.Background(), "user_a", p.ID)
	require.NoError(t, err)
	assert.True(t, retried.StreakUpdated)
	assert.Equal(t, 4, retried.CurrentStreak)
	assert.Equal(t, 5, retried.LongestStreak)

	again, err := healthy.posts.RetryStreakUpdate(context.Background(), "user_a", p.ID)
	require.NoError(t, err)
	assert.False(t, again.StreakUpdated)
	assert.Equal(t, 4, again.CurrentStreak)
	assert.Equal(t, 4, healthy.reload(t, ch, "user_a").CurrentStreak)
}

func TestPostAfterPartialFailureEarnsNoSecondCredit(t *testing.T) {
	mem := docstore.NewMemoryStore()
	broken := newTestEngineWithStore(t, mem, &failingStore{Store: mem, collection: collMemberships})
	ch := broken.createChallenge(t, "Yoga")
	m := broken.join(t, ch, "user_a")
	broken.setStreak(t, m.ID, 3, 5, "2026-03-09")

	first, _, err := broken.posts.SubmitPost(context.Background(), broken.reload(t, ch, "user_a"), postRequest("morning flow"))
	require.ErrorIs(t, err, ErrPartialFailure)
	require.True(t, first.StreakAwarded)

	broken.clock.Advance(2 * time.Hour)
	stale := broken.reload(t, ch, "user_a")
	require.Equal(t, "2026-03-09", stale.LastActivityDate.Format("2006-01-02"), "membership still behind")

	second, outcome, err := broken.posts.SubmitPost(context.Background(), stale, postRequest("evening flow"))
	require.NoError(t, err)
	assert.False(t, second.StreakAwarded)
	assert.False(t, outcome.Awarded)

	awarded, err := mem.Query(context.Background(), docstore.Collection(collPosts).
		Where("membershipId", docstore.OpEqual, m.ID).
		Where("streakAwarded", docstore.OpEqual, true))
	require.NoError(t, err)
	assert.Len(t, awarded, 1)

	marker, err := mem.Get(context.Background(), collStreakDays, streakDayID(m.ID, "2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, docstore.String(marker.Data, "postId"))
}

func TestConcurrentSubmitsAwardOneCredit(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Pull-ups")
	m := e.join(t, ch, "user_a")

	var awarded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		own := *m
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := e.posts.SubmitPost(context.Background(), &own, postRequest("set"))
			if !assert.NoError(t, err) {
				return
			}
			if p.StreakAwarded {
				awarded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), awarded.Load())
	assert.Equal(t, 1, e.reload(t, ch, "user_a").CurrentStreak)
}

func TestRetryStreakUpdateRejectsOtherPosts(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Sketch")
	m := e.join(t, ch, "user_a")

	first, _, err := e.posts.SubmitPost(context.Background(), m, postRequest("one"))
	require.NoError(t, err)
	second, _, err := e.posts.SubmitPost(context.Background(), m, postRequest("two"))
	require.NoError(t, err)

	_, err = e.posts.RetryStreakUpdate(context.Background(), "user_b", first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.posts.RetryStreakUpdate(context.Background(), "user_a", second.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.posts.RetryStreakUpdate(context.Background(), "user_a", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	outcome, err := e.posts.RetryStreakUpdate(context.Background(), "user_a", first.ID)
	require.NoError(t, err)
	assert.False(t, outcome.StreakUpdated, "streak already applied")
}

func TestListPostsNewestFirst(t *testing.T) {
	e := newTestEngine(t)
	ch := e.createChallenge(t, "Paint")
	other := e.createChallenge(t, "Other")
	m := e.join(t, ch, "user_a")
	o := e.join(t, other, "user_a")

	for _, content := range []string{"first", "second", "third"} {
		_, _, err := e.posts.SubmitPost(context.Background(), m, postRequest(content))
		require.NoError(t, err)
		e.clock.Advance(time.Minute)
	}
	_, _, err := e.posts.SubmitPost(context.Background(), o, postRequest("elsewhere"))
	require.NoError(t, err)

	posts, err := e.posts.ListPosts(context.Background(), ch.ID, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "third", posts[0].Content)
	assert.Equal(t, "second", posts[1].Content)

	_, err = e.posts.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
