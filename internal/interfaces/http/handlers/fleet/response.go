package fleet

import (
	"math"
	"time"

	"github.com/disgoorg/snowflake/v2"

	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/cache"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
)

// NodeResponse is one link as seen by this instance.
type NodeResponse struct {
	Name            string              `json:"name"`
	Region          string              `json:"region,omitempty"`
	Status          node.Status         `json:"status"`
	NodeVersion     int                 `json:"node_version,omitempty"`
	ConnectAttempts int                 `json:"connect_attempts"`
	Players         int                 `json:"players"`
	Penalty         *float64            `json:"penalty,omitempty"` // nil until the node reports stats
	Stats           *node.StatsSnapshot `json:"stats,omitempty"`
	StatsUpdatedAt  *time.Time          `json:"stats_updated_at,omitempty"`
}

// TrackResponse describes the track a player is on.
type TrackResponse struct {
	Identifier string  `json:"identifier"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	DurationMs int64   `json:"duration_ms"`
	Stream     bool    `json:"stream"`
	URL        *string `json:"url,omitempty"`
}

type PlayerResponse struct {
	GuildID    snowflake.ID   `json:"guild_id"`
	Node       string         `json:"node"`
	Paused     bool           `json:"paused"`
	Volume     int            `json:"volume"`
	PositionMs int64          `json:"position_ms"`
	Track      *TrackResponse `json:"track,omitempty"`
}

type SummaryResponse struct {
	Nodes            int            `json:"nodes"`
	NodesByStatus    map[string]int `json:"nodes_by_status"`
	Players          int            `json:"players"`
	PendingFailovers int            `json:"pending_failovers"`
}

type FailoverResponse struct {
	ID              uint         `json:"id"`
	GuildID         snowflake.ID `json:"guild_id"`
	FromNode        string       `json:"from_node"`
	ToNode          string       `json:"to_node,omitempty"`
	TrackIdentifier string       `json:"track_identifier,omitempty"`
	PositionMs      int64        `json:"position_ms"`
	Outcome         string       `json:"outcome"`
	CreatedAt       time.Time    `json:"created_at"`
}

type CachedStatsResponse struct {
	NodeName  string             `json:"node_name"`
	Penalty   float64            `json:"penalty"`
	Stats     node.StatsSnapshot `json:"stats"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func toNodeResponse(l *nodelink.Link, penalty float64) NodeResponse {
	resp := NodeResponse{
		Name:            l.Node().Name(),
		Region:          l.Node().Region(),
		Status:          l.Status(),
		NodeVersion:     l.NodeVersion(),
		ConnectAttempts: l.ConnectAttempts(),
		Players:         l.PlayerCount(),
	}

	if stats := l.Stats(); stats != nil {
		snapshot := stats.Snapshot()
		updated := stats.UpdatedAt()
		resp.Stats = &snapshot
		resp.StatsUpdatedAt = &updated
	}
	if !math.IsInf(penalty, 0) && !math.IsNaN(penalty) {
		resp.Penalty = &penalty
	}

	return resp
}

func toPlayerResponse(p *nodelink.Player) PlayerResponse {
	resp := PlayerResponse{
		GuildID:    p.GuildID(),
		Paused:     p.Paused(),
		Volume:     p.Volume(),
		PositionMs: p.LastPosition(),
	}
	if l := p.Link(); l != nil {
		resp.Node = l.Node().Name()
	}
	if t := p.Track(); t != nil {
		resp.Track = &TrackResponse{
			Identifier: t.Identifier,
			Title:      t.Title,
			Author:     t.Author,
			DurationMs: t.Duration,
			Stream:     t.Stream,
			URL:        t.URL,
		}
	}
	return resp
}

func toFailoverResponses(records []*fleetdomain.FailoverRecord) []FailoverResponse {
	out := make([]FailoverResponse, 0, len(records))
	for _, r := range records {
		out = append(out, FailoverResponse{
			ID:              r.ID(),
			GuildID:         r.GuildID(),
			FromNode:        r.FromNode(),
			ToNode:          r.ToNode(),
			TrackIdentifier: r.TrackIdentifier(),
			PositionMs:      r.PositionMs(),
			Outcome:         string(r.Outcome()),
			CreatedAt:       r.CreatedAt(),
		})
	}
	return out
}

func toCachedStatsResponses(entries []*cache.CachedNodeStats) []CachedStatsResponse {
	out := make([]CachedStatsResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, CachedStatsResponse{
			NodeName:  e.NodeName,
			Penalty:   e.Penalty,
			Stats:     e.Stats,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return out
}
