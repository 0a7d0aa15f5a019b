package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/shared/config"
)

func configForTest() config.ClientConfig {
	return config.ClientConfig{
		UserID:                 42,
		NumShards:              1,
		ClientName:             "soundmesh-test",
		ReconnectDelay:         time.Second,
		HealthyAfter:           time.Second,
		FailoverRetryDelay:     2 * time.Second,
		FailoverConnectTimeout: 3 * time.Second,
		MinMajorVersion:        3,
		UseLoadBalancer:        true,
		Penalty:                config.PenaltyConfig{NullOffset: 7000},
	}
}

type memoryFailoverRepo struct {
	mu      sync.Mutex
	records []*fleetdomain.FailoverRecord
}

func (r *memoryFailoverRepo) Create(_ context.Context, record *fleetdomain.FailoverRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return record.SetID(uint(len(r.records)))
}

func (r *memoryFailoverRepo) ListRecent(_ context.Context, limit int) ([]*fleetdomain.FailoverRecord, error) {
	all := r.all()
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *memoryFailoverRepo) ListByGuild(_ context.Context, guildID snowflake.ID, limit int) ([]*fleetdomain.FailoverRecord, error) {
	var out []*fleetdomain.FailoverRecord
	for _, rec := range r.all() {
		if rec.GuildID() == guildID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryFailoverRepo) all() []*fleetdomain.FailoverRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*fleetdomain.FailoverRecord, len(r.records))
	copy(out, r.records)
	return out
}

type memoryStatsSampleRepo struct {
	mu      sync.Mutex
	samples []*fleetdomain.StatsSample
	cutoffs []time.Time
}

func (r *memoryStatsSampleRepo) Create(_ context.Context, sample *fleetdomain.StatsSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
	return nil
}

func (r *memoryStatsSampleRepo) ListByNode(_ context.Context, nodeName string, _ int) ([]*fleetdomain.StatsSample, error) {
	var out []*fleetdomain.StatsSample
	for _, s := range r.all() {
		if s.NodeName() == nodeName {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memoryStatsSampleRepo) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, before)
	kept := r.samples[:0]
	for _, s := range r.samples {
		if !s.CreatedAt().Before(before) {
			kept = append(kept, s)
		}
	}
	removed := int64(len(r.samples) - len(kept))
	r.samples = kept
	return removed, nil
}

func (r *memoryStatsSampleRepo) prunes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cutoffs)
}

func (r *memoryStatsSampleRepo) lastCutoff() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cutoffs) == 0 {
		return time.Time{}
	}
	return r.cutoffs[len(r.cutoffs)-1]
}

func (r *memoryStatsSampleRepo) all() []*fleetdomain.StatsSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*fleetdomain.StatsSample, len(r.samples))
	copy(out, r.samples)
	return out
}

func (r *memoryStatsSampleRepo) len() int { return len(r.all()) }

type cachedStats struct {
	snapshot node.StatsSnapshot
	penalty  float64
}

type memoryStatsCache struct {
	mu      sync.Mutex
	entries map[string]cachedStats
}

func (c *memoryStatsCache) Store(_ context.Context, nodeName string, snapshot node.StatsSnapshot, penalty float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]cachedStats)
	}
	c.entries[nodeName] = cachedStats{snapshot: snapshot, penalty: penalty}
	return nil
}

func (c *memoryStatsCache) get(nodeName string) cachedStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[nodeName]
}

func (c *memoryStatsCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type memoryPublisher struct {
	mu     sync.Mutex
	events []fleetdomain.Event
}

func (p *memoryPublisher) Publish(_ context.Context, event fleetdomain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memoryPublisher) count(t fleetdomain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
