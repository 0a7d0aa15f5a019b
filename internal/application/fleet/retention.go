package fleet

import (
	"context"
	"time"

	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/shared/biztime"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

const (
	DefaultStatsRetention     = 24 * time.Hour
	DefaultStatsPruneInterval = 10 * time.Minute
)

// StatsPruner deletes stats samples older than the retention window.
type StatsPruner struct {
	repo      fleetdomain.StatsSampleRepository
	retention time.Duration
	interval  time.Duration
	log       logger.Interface
	now       func() time.Time
}

func NewStatsPruner(repo fleetdomain.StatsSampleRepository, retention, interval time.Duration, log logger.Interface) *StatsPruner {
	if retention <= 0 {
		retention = DefaultStatsRetention
	}
	if interval <= 0 {
		interval = DefaultStatsPruneInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &StatsPruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		log:       log.Named("stats-pruner"),
		now:       biztime.NowUTC,
	}
}

// PruneOnce removes samples older than the retention window.
func (p *StatsPruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	removed, err := p.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		p.log.Infow("pruned stats samples", "removed", removed, "before", cutoff)
	}
	return removed, nil
}

// Run prunes once right away and then on every tick until ctx ends.
func (p *StatsPruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := p.PruneOnce(ctx); err != nil {
		p.log.Errorw("initial stats prune failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := p.PruneOnce(ctx); err != nil {
				p.log.Errorw("stats prune failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
