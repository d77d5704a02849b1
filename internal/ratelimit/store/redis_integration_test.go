//go:build integration

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineage/internal/ratelimit/models"
	"lineage/pkg/testutil/containers"
)

func TestRedisSuiteAgainstRealRedis(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(context.Background()))
	// The shared suite drives the script through miniredis; this run proves
	// the same script against a real server.
	suiteWith(t, func(now func() time.Time) limiter {
		require.NoError(t, rc.FlushAll(context.Background()))
		return NewRedis(rc.Client, WithClock(now))
	})
}

func TestRedisConcurrentCallersNeverExceedLimit(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(context.Background()))
	s := NewRedis(rc.Client)
	limit := models.Limit{Requests: 10, Window: time.Minute}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			res, err := s.Allow(context.Background(), "rl:scan:concurrent", limit)
			if assert.NoError(t, err) && res.Allowed {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}
