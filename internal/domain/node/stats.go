package node

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Memory is the node's JVM memory report, in bytes.
type Memory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

// CPU is the node's processor report. Loads are fractions in [0, 1].
type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// FrameStats are per-minute audio frame averages. Nodes omit them when no
// player is active.
type FrameStats struct {
	Sent    int64 `json:"sent"`
	Nulled  int64 `json:"nulled"`
	Deficit int64 `json:"deficit"`
}

// StatsSnapshot is a point-in-time copy of a node's reported load.
type StatsSnapshot struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         Memory      `json:"memory"`
	CPU            CPU         `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

func (s StatsSnapshot) clone() StatsSnapshot {
	if s.FrameStats != nil {
		fs := *s.FrameStats
		s.FrameStats = &fs
	}
	return s
}

// RemoteStats holds the latest stats pushed by one node. The same value is
// updated in place on every push so holders always observe fresh numbers.
type RemoteStats struct {
	mu        sync.RWMutex
	nodeName  string
	snapshot  StatsSnapshot
	updatedAt time.Time
}

// NewRemoteStats decodes the first stats payload received from a node.
func NewRemoteStats(nodeName string, payload []byte) (*RemoteStats, error) {
	rs := &RemoteStats{nodeName: nodeName}
	if err := rs.Update(payload); err != nil {
		return nil, err
	}
	return rs, nil
}

// Update replaces the snapshot with a newly pushed payload. Frame stats absent
// from the payload are cleared rather than kept from the previous push.
func (rs *RemoteStats) Update(payload []byte) error {
	var snap StatsSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("decode stats for node %s: %w", rs.nodeName, err)
	}

	rs.mu.Lock()
	rs.snapshot = snap
	rs.updatedAt = time.Now()
	rs.mu.Unlock()
	return nil
}

// NodeName returns the name of the node these stats belong to.
func (rs *RemoteStats) NodeName() string {
	return rs.nodeName
}

// Snapshot returns a deep copy of the current stats.
func (rs *RemoteStats) Snapshot() StatsSnapshot {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.snapshot.clone()
}

// UpdatedAt returns when the last push was applied.
func (rs *RemoteStats) UpdatedAt() time.Time {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.updatedAt
}
