package bootstrap

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/soundmesh/internal/application/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/cache"
	"github.com/orris-inc/soundmesh/internal/infrastructure/config"
	"github.com/orris-inc/soundmesh/internal/infrastructure/pubsub"
	"github.com/orris-inc/soundmesh/internal/infrastructure/repository"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

// Fleet is a fleet client with the optional sinks that feed it. The sink
// fields are nil when their backend is disabled.
type Fleet struct {
	Client *fleet.Client

	Failovers    *repository.FailoverRepository
	StatsSamples *repository.StatsSampleRepository
	StatsCache   *cache.NodeStatsCache
	Bus          *pubsub.RedisFleetEventBus

	redis *redis.Client
}

// NewFleet builds the client and registers every configured node. db may be
// nil; Redis is connected here when enabled.
func NewFleet(ctx context.Context, cfg *config.Config, db *gorm.DB, log logger.Interface) (*Fleet, error) {
	f := &Fleet{}
	opts := fleet.OptionsFromConfig(cfg.Client)
	opts.Logger = log

	if db != nil {
		f.Failovers = repository.NewFailoverRepository(db)
		f.StatsSamples = repository.NewStatsSampleRepository(db)
		opts.Failovers = f.Failovers
		opts.StatsSamples = f.StatsSamples
	}

	if cfg.Redis.Enabled {
		client, err := NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		f.redis = client
		f.StatsCache = cache.NewNodeStatsCache(client, cfg.Redis.StatsTTL)
		f.Bus = pubsub.NewRedisFleetEventBus(client, log)
		opts.StatsCache = f.StatsCache
		opts.Publisher = f.Bus
	}

	f.Client = fleet.NewClient(opts)
	for _, n := range cfg.Nodes {
		f.Client.AddNode(node.FromConfig(n))
	}

	return f, nil
}

// Close stops the client and releases Redis.
func (f *Fleet) Close() error {
	err := f.Client.Stop()
	if f.redis != nil {
		err = errors.Join(err, f.redis.Close())
	}
	return err
}
