package nodelink

import (
	"encoding/json"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/domain/track"
)

// handleMessage routes one inbound frame. Nothing here is fatal: malformed
// frames and unknown ops only produce debug events.
func (l *Link) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.debugf("dropping malformed message: %v", err)
		return
	}

	switch msg.Op {
	case OpPlayerUpdate:
		l.handlePlayerUpdate(&msg)
	case OpStats:
		l.handleStats(data)
	case OpEvent:
		l.handleEvent(&msg)
	default:
		l.debugf("received unknown op %q", msg.Op)
	}
}

func (l *Link) handlePlayerUpdate(msg *inboundMessage) {
	if !msg.GuildID.Valid || msg.State == nil {
		l.debugf("playerUpdate without guild or state")
		return
	}

	p, ok := l.Player(msg.GuildID.ID)
	if !ok {
		l.debugf("playerUpdate for unknown guild %s", msg.GuildID.ID)
		return
	}
	p.UpdateState(*msg.State)
}

func (l *Link) handleStats(data []byte) {
	l.mu.Lock()
	var err error
	if l.stats == nil {
		var stats *node.RemoteStats
		stats, err = node.NewRemoteStats(l.node.Name(), data)
		if err == nil {
			l.stats = stats
		}
	} else {
		err = l.stats.Update(data)
	}
	stats := l.stats
	l.mu.Unlock()

	if err != nil {
		l.debugf("dropping stats: %v", err)
		return
	}
	l.statsListeners.Emit(stats.Snapshot())
}

func (l *Link) handleEvent(msg *inboundMessage) {
	if msg.Type == EventWebSocketClosed {
		l.debugf("voice connection of guild %s closed (code %d, reason %q, by remote %t)",
			msg.GuildID.ID, msg.Code, msg.Reason, msg.ByRemote)
		return
	}

	if !msg.GuildID.Valid {
		l.debugf("event %q without guild", msg.Type)
		return
	}
	p, ok := l.Player(msg.GuildID.ID)
	if !ok {
		l.debugf("event %q for unknown guild %s", msg.Type, msg.GuildID.ID)
		return
	}

	switch msg.Type {
	case EventTrackStart:
		l.debugf("track started for guild %s", msg.GuildID.ID)
	case EventTrackEnd:
		p.handleTrackEnd(msg.Track, track.EndReason(msg.Reason))
	case EventTrackException:
		exc := msg.Exception
		if exc == nil {
			exc = &RemoteTrackException{Message: msg.Error}
		}
		p.handleTrackException(msg.Track, exc)
	case EventTrackStuck:
		p.handleTrackStuck(msg.Track, msg.ThresholdMs)
	default:
		l.debugf("received unknown event type %q", msg.Type)
	}
}
