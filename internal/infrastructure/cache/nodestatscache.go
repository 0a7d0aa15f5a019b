// Package cache keeps short-lived fleet state in Redis so that other
// processes (status API replicas, the watch command) can read it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/shared/biztime"
)

const (
	nodeStatsKeyPrefix = "soundmesh:node:stats:"
	nodeStatsIndexKey  = "soundmesh:node:stats:index"

	// DefaultNodeStatsTTL covers two missed stats pushes.
	DefaultNodeStatsTTL = 2 * time.Minute
)

// CachedNodeStats is the latest stats push of one node.
type CachedNodeStats struct {
	NodeName  string             `json:"node_name"`
	Penalty   float64            `json:"penalty"`
	Stats     node.StatsSnapshot `json:"stats"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NodeStatsCache stores node stats under per-node keys with a TTL, plus an
// index set of node names.
type NodeStatsCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewNodeStatsCache creates a cache. A non-positive ttl uses DefaultNodeStatsTTL.
func NewNodeStatsCache(client *redis.Client, ttl time.Duration) *NodeStatsCache {
	if ttl <= 0 {
		ttl = DefaultNodeStatsTTL
	}
	return &NodeStatsCache{
		client: client,
		prefix: nodeStatsKeyPrefix,
		ttl:    ttl,
	}
}

// Store replaces the cached stats of nodeName.
func (c *NodeStatsCache) Store(ctx context.Context, nodeName string, snapshot node.StatsSnapshot, penalty float64) error {
	if nodeName == "" {
		return errors.New("node name cannot be empty")
	}

	data, err := json.Marshal(CachedNodeStats{
		NodeName:  nodeName,
		Penalty:   penalty,
		Stats:     snapshot,
		UpdatedAt: biztime.NowUTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal node stats: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.buildKey(nodeName), data, c.ttl)
	pipe.SAdd(ctx, nodeStatsIndexKey, nodeName)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store node stats in redis: %w", err)
	}
	return nil
}

// Get returns the cached stats of nodeName, or nil when none are cached.
func (c *NodeStatsCache) Get(ctx context.Context, nodeName string) (*CachedNodeStats, error) {
	data, err := c.client.Get(ctx, c.buildKey(nodeName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node stats from redis: %w", err)
	}

	var stats CachedNodeStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node stats: %w", err)
	}
	return &stats, nil
}

// List returns the cached stats of every node, ordered by name. Index
// entries whose stats expired are removed.
func (c *NodeStatsCache) List(ctx context.Context) ([]*CachedNodeStats, error) {
	names, err := c.client.SMembers(ctx, nodeStatsIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cached nodes: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = c.buildKey(name)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get node stats from redis: %w", err)
	}

	var (
		out     []*CachedNodeStats
		expired []any
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, names[i])
			continue
		}
		var stats CachedNodeStats
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node stats for %s: %w", names[i], err)
		}
		out = append(out, &stats)
	}

	if len(expired) > 0 {
		if err := c.client.SRem(ctx, nodeStatsIndexKey, expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune node stats index: %w", err)
		}
	}
	return out, nil
}

// Delete drops the cached stats of nodeName.
func (c *NodeStatsCache) Delete(ctx context.Context, nodeName string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.buildKey(nodeName))
	pipe.SRem(ctx, nodeStatsIndexKey, nodeName)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete node stats from redis: %w", err)
	}
	return nil
}

// buildKey constructs the full Redis key with prefix
func (c *NodeStatsCache) buildKey(nodeName string) string {
	return c.prefix + nodeName
}
