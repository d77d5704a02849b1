package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineage/internal/duplicate/models"
	id "lineage/pkg/domain"
)

func newCache(t *testing.T) (*Summaries, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaries(client, time.Minute), mr
}

func summary(pending int) *models.Summary {
	sum := models.NewSummary()
	sum.Add(models.Bucket80to89, models.StatusPending, pending)
	return sum
}

func TestSummaries(t *testing.T) {
	ctx := context.Background()
	tree, other := id.TreeID(uuid.New()), id.TreeID(uuid.New())
	scope := models.Scope{TreeID: tree, TargetTreeID: tree, MinConfidence: 70}

	t.Run("miss then hit", func(t *testing.T) {
		c, _ := newCache(t)
		_, ok, err := c.Get(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, scope, summary(3)))

		got, ok, err := c.Get(ctx, scope)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, got.Total)
		assert.Equal(t, 3, got.Buckets[models.Bucket80to89][models.StatusPending])
	})

	t.Run("scopes do not share entries", func(t *testing.T) {
		c, _ := newCache(t)
		require.NoError(t, c.Set(ctx, scope, summary(3)))

		exact := models.ModeExact
		narrowed := scope
		narrowed.Mode = &exact
		_, ok, err := c.Get(ctx, narrowed)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalidating a tree drops its summaries only", func(t *testing.T) {
		c, _ := newCache(t)
		otherScope := models.Scope{TreeID: other, TargetTreeID: other}
		require.NoError(t, c.Set(ctx, scope, summary(1)))
		require.NoError(t, c.Set(ctx, otherScope, summary(2)))

		require.NoError(t, c.Invalidate(ctx, tree))

		_, ok, err := c.Get(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = c.Get(ctx, otherScope)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cross-tree summaries follow both trees", func(t *testing.T) {
		c, _ := newCache(t)
		cross := models.Scope{TreeID: tree, TargetTreeID: other}
		require.NoError(t, c.Set(ctx, cross, summary(1)))

		require.NoError(t, c.Invalidate(ctx, other))

		_, ok, err := c.Get(ctx, cross)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("entries expire", func(t *testing.T) {
		c, mr := newCache(t)
		require.NoError(t, c.Set(ctx, scope, summary(1)))

		mr.FastForward(2 * time.Minute)

		_, ok, err := c.Get(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("redis failures surface", func(t *testing.T) {
		c, mr := newCache(t)
		mr.Close()
		_, _, err := c.Get(ctx, scope)
		assert.Error(t, err)
	})
}
