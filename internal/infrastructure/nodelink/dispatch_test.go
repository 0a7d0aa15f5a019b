package nodelink

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink/nodelinktest"
)

type debugLog struct {
	mu   sync.Mutex
	msgs []string
}

func (d *debugLog) has(substr string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func captureDebug(l *Link) *debugLog {
	d := &debugLog{}
	l.OnDebug(func(msg string) {
		d.mu.Lock()
		d.msgs = append(d.msgs, msg)
		d.mu.Unlock()
	})
	return d
}

func TestDispatch_PlayerUpdate(t *testing.T) {
	fake, _, p := newConnectedPlayer(t)
	require.NoError(t, p.Play(testTrack(300000, true), 0, 0))

	fake.Push(map[string]any{
		"op":      "playerUpdate",
		"guildId": "1",
		"state":   map[string]any{"time": time.Now().UnixMilli(), "position": 120000},
	})

	require.Eventually(t, func() bool {
		pos := p.LastPosition()
		return pos >= 120000 && pos < 125000
	}, waitFor, 10*time.Millisecond)
}

func TestDispatch_NumericGuildID(t *testing.T) {
	fake, _, p := newConnectedPlayer(t)
	require.NoError(t, p.Play(testTrack(300000, true), 0, 0))

	fake.Push(map[string]any{
		"op":      "playerUpdate",
		"guildId": 1,
		"state":   map[string]any{"time": time.Now().UnixMilli(), "position": 60000},
	})

	require.Eventually(t, func() bool { return p.LastPosition() >= 60000 }, waitFor, 10*time.Millisecond)
}

func TestDispatch_UnknownAndMalformedAreDebugOnly(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())
	debug := captureDebug(l)
	connect(t, l)

	fake.Push(map[string]any{"op": "somethingNew"})
	fake.Push(map[string]any{"op": "playerUpdate", "guildId": "404", "state": map[string]any{"position": 1}})
	fake.Push(map[string]any{"op": "event", "type": "NoSuchEvent", "guildId": "404"})
	fake.Push("not an object")

	require.Eventually(t, func() bool {
		return debug.has(`unknown op "somethingNew"`) &&
			debug.has("playerUpdate for unknown guild 404") &&
			debug.has("for unknown guild 404") &&
			debug.has("malformed")
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, node.StatusConnected, l.Status())
}

func TestDispatch_TrackEnd(t *testing.T) {
	tests := []struct {
		reason       string
		mayStartNext bool
		clears       bool
	}{
		{"FINISHED", true, true},
		{"LOAD_FAILED", true, true},
		{"STOPPED", false, true},
		{"REPLACED", false, false},
		{"CLEANUP", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			fake, _, p := newConnectedPlayer(t)
			tr := testTrack(300000, true)
			require.NoError(t, p.Play(tr, 0, 0))

			ended := make(chan EndEvent, 1)
			p.OnEnd(func(ev EndEvent) { ended <- ev })

			fake.Push(map[string]any{"op": "event", "type": "TrackEndEvent", "guildId": "1", "track": tr.Encoded, "reason": tt.reason})

			select {
			case ev := <-ended:
				assert.Same(t, tr, ev.Track)
				assert.Equal(t, track.EndReason(tt.reason), ev.Reason)
				assert.Equal(t, tt.mayStartNext, ev.MayStartNext)
			case <-time.After(waitFor):
				t.Fatal("no end event")
			}
			assert.Equal(t, tt.clears, p.Track() == nil)
		})
	}
}

func TestDispatch_TrackExceptionAndStuck(t *testing.T) {
	fake, _, p := newConnectedPlayer(t)
	tr := testTrack(300000, true)
	require.NoError(t, p.Play(tr, 0, 0))

	errs := make(chan ErrorEvent, 2)
	stuck := make(chan StuckEvent, 1)
	p.OnError(func(ev ErrorEvent) { errs <- ev })
	p.OnStuck(func(ev StuckEvent) { stuck <- ev })

	fake.Push(map[string]any{
		"op": "event", "type": "TrackExceptionEvent", "guildId": "1", "track": tr.Encoded,
		"exception": map[string]any{"message": "video unavailable", "severity": "COMMON", "cause": "blocked"},
	})
	fake.Push(map[string]any{"op": "event", "type": "TrackExceptionEvent", "guildId": "1", "track": tr.Encoded, "error": "legacy failure"})
	fake.Push(map[string]any{"op": "event", "type": "TrackStuckEvent", "guildId": "1", "track": tr.Encoded, "thresholdMs": 10000})

	first := <-errs
	assert.Equal(t, "video unavailable", first.Exception.Message)
	assert.Equal(t, "COMMON", first.Exception.Severity)
	assert.Contains(t, first.Exception.Error(), "blocked")

	second := <-errs
	assert.Equal(t, "legacy failure", second.Exception.Message)

	ev := <-stuck
	assert.Same(t, tr, ev.Track)
	assert.Equal(t, int64(10000), ev.ThresholdMs)
}

func TestDispatch_WebSocketClosedEventIsDebug(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())
	debug := captureDebug(l)
	connect(t, l)

	fake.Push(map[string]any{"op": "event", "type": "WebSocketClosedEvent", "guildId": "1", "code": 4006, "reason": "session invalid", "byRemote": true})

	require.Eventually(t, func() bool { return debug.has("code 4006") }, waitFor, 10*time.Millisecond)
}

func TestGuildIDField(t *testing.T) {
	var msg inboundMessage
	require.NoError(t, json.Unmarshal([]byte(`{"guildId":"1234567890123"}`), &msg))
	assert.Equal(t, snowflake.ID(1234567890123), msg.GuildID.ID)
	assert.True(t, msg.GuildID.Valid)

	require.NoError(t, json.Unmarshal([]byte(`{"guildId":null}`), &msg))

	assert.Error(t, json.Unmarshal([]byte(`{"guildId":"abc"}`), &inboundMessage{}))
}
