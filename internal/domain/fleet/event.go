package fleet

import (
	"github.com/disgoorg/snowflake/v2"
)

// EventType names a fleet event relayed between instances.
type EventType string

const (
	EventNodeStatus   EventType = "node_status"
	EventNodeDropped  EventType = "node_dropped"
	EventFailover     EventType = "failover"
	EventFailoverWait EventType = "failover_deferred"
)

// Event is a fleet change worth telling other instances about.
type Event struct {
	Type       EventType    `json:"type"`
	NodeName   string       `json:"node_name"`
	Status     string       `json:"status,omitempty"`
	TargetNode string       `json:"target_node,omitempty"`
	GuildID    snowflake.ID `json:"guild_id,omitempty"`
	CloseCode  int          `json:"close_code,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Timestamp  int64        `json:"timestamp"`
	InstanceID string       `json:"instance_id,omitempty"` // Source instance ID to avoid self-delivery
}
