package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAddResolvesServerTimestamp(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	ctx := context.Background()
	id, err := store.Add(ctx, "posts", Document{"content": "hello", "likeCount": 0, "createdAt": ServerTimestamp})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := store.Get(ctx, "posts", id)
	require.NoError(t, err)

	createdAt, ok := Time(snap.Data, "createdAt")
	require.True(t, ok)
	assert.True(t, fixed.Equal(createdAt))
	assert.Equal(t, int64(0), snap.Data["likeCount"], "ints are normalized to int64")
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "posts", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Update(context.Background(), "posts", "nope", Document{"a": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreQueryFiltersOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, user := range []string{"a", "b", "a", "a", "c"} {
		_, err := store.Add(ctx, "posts", Document{
			"userId":    user,
			"createdAt": base.Add(time.Duration(i) * time.Hour),
			"score":     i,
		})
		require.NoError(t, err)
	}

	snaps, err := store.Query(ctx, Collection("posts").
		Where("userId", OpEqual, "a").
		Where("createdAt", OpGreaterOrEqual, base.Add(time.Hour)).
		Order("score", true).
		Take(1))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(3), Int(snaps[0].Data, "score"))

	all, err := store.Query(ctx, Collection("posts").Where("userId", OpEqual, "a").Order("createdAt", false))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(0), Int(all[0].Data, "score"))
	assert.Equal(t, int64(3), Int(all[2].Data, "score"))
}

func TestMemoryStoreQueryRejectsUnknownOperator(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Query(context.Background(), Collection("posts").Where("x", Op("!="), 1))
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestMemoryStoreTransactionIsAllOrNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Add(ctx, "posts", Document{"likeCount": 0})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Update("posts", id, Document{"likeCount": 5}); err != nil {
			return err
		}
		if err := tx.Create("reactions", "r1", Document{"kind": "like"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	snap, err := store.Get(ctx, "posts", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), Int(snap.Data, "likeCount"))

	_, err = store.Get(ctx, "reactions", "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreTransactionCreateConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	create := func(ctx context.Context, tx Tx) error {
		return tx.Create("memberships", "u1_c1", Document{"userId": "u1"})
	}
	require.NoError(t, store.RunTransaction(ctx, create))
	assert.ErrorIs(t, store.RunTransaction(ctx, create), ErrAlreadyExists)
}

func TestMemoryStoreTransactionRejectsReadAfterWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Create("a", "1", Document{}); err != nil {
			return err
		}
		_, err := tx.Get("a", "1")
		return err
	})
	assert.Error(t, err)
}

func TestMemoryStoreConcurrentIncrementsAreNotLost(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Add(ctx, "posts", Document{"likeCount": 0})
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				snap, err := tx.Get("posts", id)
				if err != nil {
					return err
				}
				return tx.Update("posts", id, Document{"likeCount": Int(snap.Data, "likeCount") + 1})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := store.Get(ctx, "posts", id)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), Int(snap.Data, "likeCount"))
}

func TestFieldGettersTolerateStoredRepresentations(t *testing.T) {
	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	doc := Document{
		"s":      "x",
		"b":      true,
		"n":      float64(7),
		"t":      FormatTime(ts),
		"native": ts,
	}

	assert.Equal(t, "x", String(doc, "s"))
	assert.True(t, Bool(doc, "b"))
	assert.Equal(t, int64(7), Int(doc, "n"))

	parsed, ok := Time(doc, "t")
	require.True(t, ok)
	assert.True(t, ts.Equal(parsed))

	native, ok := Time(doc, "native")
	require.True(t, ok)
	assert.True(t, ts.Equal(native))

	_, ok = Time(doc, "missing")
	assert.False(t, ok)
	assert.Equal(t, "", String(doc, "missing"))
}

func TestCompareMixesTimeRepresentations(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	c, ok := compare(FormatTime(late), early)
	require.True(t, ok)
	assert.Equal(t, 1, c)

	_, ok = compare("text", 3)
	assert.False(t, ok)
}
