// Package fleet holds the audit trail of the node fleet: which sessions were
// moved between nodes and how loaded each node was over time.
package fleet

import (
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/orris-inc/soundmesh/internal/shared/biztime"
)

// FailoverOutcome tells whether a session found a new node.
type FailoverOutcome string

const (
	FailoverOutcomeMigrated FailoverOutcome = "migrated"
	FailoverOutcomeDeferred FailoverOutcome = "deferred"
)

func (o FailoverOutcome) IsValid() bool {
	return o == FailoverOutcomeMigrated || o == FailoverOutcomeDeferred
}

// FailoverRecord is one attempt to move a guild session off a dropped node.
// ToNode is empty when the attempt was deferred for lack of a node.
type FailoverRecord struct {
	id              uint
	guildID         snowflake.ID
	fromNode        string
	toNode          string
	trackIdentifier string
	positionMs      int64
	outcome         FailoverOutcome
	createdAt       time.Time
}

// NewFailoverRecord validates and creates a failover record.
func NewFailoverRecord(guildID snowflake.ID, fromNode, toNode, trackIdentifier string, positionMs int64, outcome FailoverOutcome) (*FailoverRecord, error) {
	if fromNode == "" {
		return nil, fmt.Errorf("failover record requires a source node")
	}
	if !outcome.IsValid() {
		return nil, fmt.Errorf("invalid failover outcome: %q", outcome)
	}
	if outcome == FailoverOutcomeMigrated && toNode == "" {
		return nil, fmt.Errorf("migrated failover record requires a target node")
	}
	if positionMs < 0 {
		positionMs = 0
	}

	return &FailoverRecord{
		guildID:         guildID,
		fromNode:        fromNode,
		toNode:          toNode,
		trackIdentifier: trackIdentifier,
		positionMs:      positionMs,
		outcome:         outcome,
		createdAt:       biztime.NowUTC(),
	}, nil
}

// ReconstructFailoverRecord rebuilds a record from storage without validation.
func ReconstructFailoverRecord(id uint, guildID snowflake.ID, fromNode, toNode, trackIdentifier string, positionMs int64, outcome FailoverOutcome, createdAt time.Time) *FailoverRecord {
	return &FailoverRecord{
		id:              id,
		guildID:         guildID,
		fromNode:        fromNode,
		toNode:          toNode,
		trackIdentifier: trackIdentifier,
		positionMs:      positionMs,
		outcome:         outcome,
		createdAt:       createdAt,
	}
}

func (r *FailoverRecord) ID() uint                 { return r.id }
func (r *FailoverRecord) GuildID() snowflake.ID    { return r.guildID }
func (r *FailoverRecord) FromNode() string         { return r.fromNode }
func (r *FailoverRecord) ToNode() string           { return r.toNode }
func (r *FailoverRecord) TrackIdentifier() string  { return r.trackIdentifier }
func (r *FailoverRecord) PositionMs() int64        { return r.positionMs }
func (r *FailoverRecord) Outcome() FailoverOutcome { return r.outcome }
func (r *FailoverRecord) CreatedAt() time.Time     { return r.createdAt }

// SetID is called by the repository once the record is stored.
func (r *FailoverRecord) SetID(id uint) error {
	if r.id != 0 {
		return fmt.Errorf("failover record already has ID %d", r.id)
	}
	r.id = id
	return nil
}
