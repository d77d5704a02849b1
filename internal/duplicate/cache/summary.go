// Package cache keeps duplicate summaries in Redis for a short time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lineage/internal/duplicate/models"
	id "lineage/pkg/domain"
)

const keyPrefix = "lineage:dup:"

// Summaries caches summaries per scope. Every tree has a generation counter
// that is part of the cache key; bumping it invalidates all summaries that
// involve the tree without scanning keys.
type Summaries struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaries(client *redis.Client, ttl time.Duration) *Summaries {
	return &Summaries{client: client, ttl: ttl}
}

func generationKey(tree id.TreeID) string {
	return keyPrefix + "gen:" + tree.String()
}

func (c *Summaries) key(ctx context.Context, scope models.Scope) (string, error) {
	gens, err := c.client.MGet(ctx, generationKey(scope.TreeID), generationKey(scope.TargetTreeID)).Result()
	if err != nil {
		return "", fmt.Errorf("read summary generations: %w", err)
	}
	mode := "any"
	if scope.Mode != nil {
		mode = string(*scope.Mode)
	}
	return fmt.Sprintf("%ssummary:%s:%s:%s:%d:%v:%v",
		keyPrefix, scope.TreeID, scope.TargetTreeID, mode, scope.MinConfidence, gens[0], gens[1]), nil
}

// Get returns the cached summary for scope. A miss is (nil, false, nil).
func (c *Summaries) Get(ctx context.Context, scope models.Scope) (*models.Summary, bool, error) {
	key, err := c.key(ctx, scope)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read summary: %w", err)
	}
	var sum models.Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return nil, false, fmt.Errorf("decode summary: %w", err)
	}
	return &sum, true, nil
}

func (c *Summaries) Set(ctx context.Context, scope models.Scope, sum *models.Summary) error {
	key, err := c.key(ctx, scope)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops every cached summary that involves one of trees.
func (c *Summaries) Invalidate(ctx context.Context, trees ...id.TreeID) error {
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, t := range trees {
			p.Incr(ctx, generationKey(t))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate summaries: %w", err)
	}
	return nil
}
