package nodelink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/disgoorg/snowflake/v2"
)

// Outbound op codes.
const (
	OpVoiceUpdate = "voiceUpdate"
	OpPlay        = "play"
	OpStop        = "stop"
	OpDestroy     = "destroy"
	OpSeek        = "seek"
	OpPause       = "pause"
	OpVolume      = "volume"
)

// Inbound op codes.
const (
	OpPlayerUpdate = "playerUpdate"
	OpStats        = "stats"
	OpEvent        = "event"
)

// Inbound event types.
const (
	EventTrackStart      = "TrackStartEvent"
	EventTrackEnd        = "TrackEndEvent"
	EventTrackException  = "TrackExceptionEvent"
	EventTrackStuck      = "TrackStuckEvent"
	EventWebSocketClosed = "WebSocketClosedEvent"
)

// Handshake headers.
const (
	headerAuthorization = "Authorization"
	headerNumShards     = "Num-Shards"
	headerUserID        = "User-Id"
	headerClientName    = "Client-Name"
	headerMajorVersion  = "Lavalink-Major-Version"
)

// snowflake.ID encodes as a JSON string, which is what nodes expect for
// guildId.

type voiceUpdatePacket struct {
	Op        string          `json:"op"`
	GuildID   snowflake.ID    `json:"guildId"`
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"`
}

type playPacket struct {
	Op        string       `json:"op"`
	GuildID   snowflake.ID `json:"guildId"`
	Track     string       `json:"track"`
	Volume    int          `json:"volume"`
	Pause     bool         `json:"pause"`
	StartTime int64        `json:"startTime,omitempty"`
	EndTime   int64        `json:"endTime,omitempty"`
}

type guildPacket struct {
	Op      string       `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
}

type seekPacket struct {
	Op       string       `json:"op"`
	GuildID  snowflake.ID `json:"guildId"`
	Position int64        `json:"position"`
}

type pausePacket struct {
	Op      string       `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
	Pause   bool         `json:"pause"`
}

type volumePacket struct {
	Op      string       `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
	Volume  int          `json:"volume"`
}

// PlayerState is the position report pushed by a node in playerUpdate.
// Time is the node's wall clock in unix milliseconds.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
}

// inboundMessage covers every field of every inbound op; unused fields stay
// zero.
type inboundMessage struct {
	Op      string       `json:"op"`
	GuildID guildIDField `json:"guildId"`
	State   *PlayerState `json:"state"`

	Type        string                `json:"type"`
	Track       string                `json:"track"`
	Reason      string                `json:"reason"`
	Exception   *RemoteTrackException `json:"exception"`
	Error       string                `json:"error"`
	ThresholdMs int64                 `json:"thresholdMs"`
	Code        int                   `json:"code"`
	ByRemote    bool                  `json:"byRemote"`
}

// guildIDField accepts a guild id encoded either as a JSON string or a number.
type guildIDField struct {
	ID    snowflake.ID
	Valid bool
}

func (g *guildIDField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	id, err := snowflake.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid guildId %s: %w", data, err)
	}
	g.ID = id
	g.Valid = true
	return nil
}
