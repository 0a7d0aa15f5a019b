package nodelink

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink/nodelinktest"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
)

const waitFor = 5 * time.Second

func testOptions() Options {
	return Options{
		UserID:          42,
		NumShards:       2,
		ClientName:      "soundmesh-test",
		ReconnectDelay:  50 * time.Millisecond,
		HealthyAfter:    100 * time.Millisecond,
		MinMajorVersion: 3,
	}
}

func newTestLink(t *testing.T, fake *nodelinktest.Node, opts Options) *Link {
	t.Helper()
	l := New(fake.Node("test-node", "eu"), opts)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func connect(t *testing.T, l *Link) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, l.Connect(ctx))
}

// statusRecorder collects every status change of a link.
type statusRecorder struct {
	mu      sync.Mutex
	changes []StatusChange
}

func recordStatus(l *Link) *statusRecorder {
	r := &statusRecorder{}
	l.OnStatusChange(func(c StatusChange) {
		r.mu.Lock()
		r.changes = append(r.changes, c)
		r.mu.Unlock()
	})
	return r
}

func (r *statusRecorder) all() []StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StatusChange, len(r.changes))
	copy(out, r.changes)
	return out
}

var allowedTransitions = map[node.Status][]node.Status{
	node.StatusIdle:         {node.StatusConnecting},
	node.StatusDisconnected: {node.StatusConnecting, node.StatusReconnecting, node.StatusIdle},
	node.StatusReconnecting: {node.StatusConnecting, node.StatusIdle},
	node.StatusConnecting:   {node.StatusConnected, node.StatusDisconnected, node.StatusIdle},
	node.StatusConnected:    {node.StatusDisconnected},
}

func assertValidTransitions(t *testing.T, changes []StatusChange) {
	t.Helper()
	for _, c := range changes {
		assert.True(t, c.To.IsValid(), "invalid status %d", c.To)
		assert.Contains(t, allowedTransitions[c.From], c.To, "unexpected transition %s -> %s", c.From, c.To)
	}
}

func TestLink_ConnectSendsHandshakeHeaders(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	assert.Equal(t, node.StatusIdle, l.Status())
	connect(t, l)

	assert.Equal(t, node.StatusConnected, l.Status())
	assert.Equal(t, 3, l.NodeVersion())

	handshakes := fake.Handshakes()
	require.Len(t, handshakes, 1)
	assert.Equal(t, "youshallnotpass", handshakes[0].Get("Authorization"))
	assert.Equal(t, "2", handshakes[0].Get("Num-Shards"))
	assert.Equal(t, "42", handshakes[0].Get("User-Id"))
	assert.Equal(t, "soundmesh-test", handshakes[0].Get("Client-Name"))
}

func TestLink_ConnectIsIdempotent(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), waitFor)
			defer cancel()
			assert.NoError(t, l.Connect(ctx))
		}()
	}
	wg.Wait()
	connect(t, l)

	assert.Len(t, fake.Handshakes(), 1)
}

func TestLink_SendWithoutConnectFails(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	err := l.Send(map[string]any{"op": "stop"})
	require.Error(t, err)
	assert.True(t, errors.IsNotConnectedError(err))

	connect(t, l)
	assert.NoError(t, l.Send(map[string]any{"op": "stop"}))
	fake.WaitForOp("stop", 1)
}

func TestLink_SendDuringAttemptIsFlushedInOrder(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	l.ConnectAsync()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Send(map[string]any{"op": "seek", "position": i}))
	}

	packets := fake.WaitForOp("seek", 3)
	for i, p := range packets {
		assert.EqualValues(t, i, p["position"])
	}
}

func TestLink_RejectsOldMajorVersion(t *testing.T) {
	fake := nodelinktest.New(t)
	fake.SetVersion("2")

	opts := testOptions()
	opts.MaxConnectAttempts = 2
	l := newTestLink(t, fake, opts)
	rec := recordStatus(l)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := l.Connect(ctx)

	require.Error(t, err)
	assert.True(t, errors.IsMaxAttemptsError(err))
	assert.Equal(t, node.StatusIdle, l.Status())
	assert.Len(t, fake.Handshakes(), 2)
	assertValidTransitions(t, rec.all())
}

func TestLink_RejectsMissingVersionHeader(t *testing.T) {
	fake := nodelinktest.New(t)
	fake.SetVersion("")

	opts := testOptions()
	opts.MaxConnectAttempts = 1
	l := newTestLink(t, fake, opts)

	var errs []error
	var mu sync.Mutex
	l.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.Error(t, l.Connect(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, errs)
	assert.True(t, errors.IsProtocolError(errs[0]))
}

func TestLink_TerminalFailureDropsQueuedPackets(t *testing.T) {
	fake := nodelinktest.New(t)
	fake.SetReject(true)

	opts := testOptions()
	opts.MaxConnectAttempts = 2
	l := newTestLink(t, fake, opts)

	var mu sync.Mutex
	var errs []error
	l.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	l.ConnectAsync()
	require.NoError(t, l.Send(map[string]any{"op": "stop"}))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := l.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsMaxAttemptsError(err))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range errs {
			if strings.HasPrefix(e.Error(), "dropped 1 queued packets") && errors.IsMaxAttemptsError(e) {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)

	// a fresh Connect after giving up starts over
	fake.SetReject(false)
	connect(t, l)
	assert.Equal(t, node.StatusConnected, l.Status())
}

func TestLink_RetriesUntilNodeAccepts(t *testing.T) {
	fake := nodelinktest.New(t)
	fake.SetReject(true)
	l := newTestLink(t, fake, testOptions())
	rec := recordStatus(l)

	l.ConnectAsync()
	require.Eventually(t, func() bool { return len(fake.Handshakes()) >= 2 }, waitFor, 10*time.Millisecond)

	fake.SetReject(false)
	require.Eventually(t, func() bool { return l.Status() == node.StatusConnected }, waitFor, 10*time.Millisecond)
	assertValidTransitions(t, rec.all())
}

func TestLink_HealthyConnectionResetsAttempts(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	connect(t, l)
	assert.Equal(t, 1, l.ConnectAttempts())
	require.Eventually(t, func() bool { return l.ConnectAttempts() == 0 }, waitFor, 10*time.Millisecond)
}

func TestLink_ExpectedCloseGoesIdle(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())
	connect(t, l)
	rec := recordStatus(l)

	events := make(chan DisconnectEvent, 1)
	l.OnDisconnect(func(ev DisconnectEvent) { events <- ev })

	p, err := l.CreatePlayer(snowflake.ID(1), "session", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, l.Disconnect(websocket.CloseNormalClosure, "bye"))

	select {
	case ev := <-events:
		assert.True(t, ev.Expected)
		assert.Equal(t, websocket.CloseNormalClosure, ev.Code)
	case <-time.After(waitFor):
		t.Fatal("no disconnect event")
	}

	require.Eventually(t, func() bool { return l.Status() == node.StatusIdle }, waitFor, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, fake.Handshakes(), 1, "expected close must not reconnect")
	assert.True(t, p.Destroyed())
	assert.Equal(t, 0, l.PlayerCount())
	assertValidTransitions(t, rec.all())
}

func TestLink_DisconnectWhenNotConnectedIsNoop(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	assert.NoError(t, l.Disconnect(0, ""))
	assert.Equal(t, node.StatusIdle, l.Status())
}

func TestLink_UnexpectedCloseReconnects(t *testing.T) {
	tests := []struct {
		name  string
		close func(*nodelinktest.Node)
		code  int
	}{
		{"close frame", func(n *nodelinktest.Node) { n.CloseWith(4000, "restarting") }, 4000},
		{"normal code without disconnect", func(n *nodelinktest.Node) { n.CloseWith(websocket.CloseNormalClosure, "") }, websocket.CloseNormalClosure},
		{"dropped socket", func(n *nodelinktest.Node) { n.Drop() }, websocket.CloseAbnormalClosure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := nodelinktest.New(t)
			l := newTestLink(t, fake, testOptions())
			connect(t, l)
			rec := recordStatus(l)

			events := make(chan DisconnectEvent, 1)
			l.OnDisconnect(func(ev DisconnectEvent) { events <- ev })

			tt.close(fake)

			select {
			case ev := <-events:
				assert.False(t, ev.Expected)
				assert.Equal(t, tt.code, ev.Code)
			case <-time.After(waitFor):
				t.Fatal("no disconnect event")
			}

			require.Eventually(t, func() bool {
				return l.Status() == node.StatusConnected && len(fake.Handshakes()) == 2
			}, waitFor, 10*time.Millisecond)

			changes := rec.all()
			assertValidTransitions(t, changes)
			require.GreaterOrEqual(t, len(changes), 4)
			assert.Equal(t, StatusChange{From: node.StatusConnected, To: node.StatusDisconnected}, changes[0])
			assert.Equal(t, StatusChange{From: node.StatusDisconnected, To: node.StatusReconnecting}, changes[1])
			assert.Equal(t, StatusChange{From: node.StatusReconnecting, To: node.StatusConnecting}, changes[2])
		})
	}
}

func TestLink_CloseStopsRetrying(t *testing.T) {
	fake := nodelinktest.New(t)
	fake.SetReject(true)
	opts := testOptions()
	opts.ReconnectDelay = time.Hour
	l := New(fake.Node("test-node", "eu"), opts)

	l.ConnectAsync()
	require.Eventually(t, func() bool { return len(fake.Handshakes()) == 1 }, waitFor, 10*time.Millisecond)

	require.NoError(t, l.Close())
	require.Eventually(t, func() bool { return l.Status() == node.StatusIdle }, waitFor, 10*time.Millisecond)

	err := l.Connect(context.Background())
	assert.True(t, errors.IsNotConnectedError(err))
}

func TestLink_StatsUpdatedInPlace(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	got := make(chan node.StatsSnapshot, 2)
	l.OnStats(func(s node.StatsSnapshot) { got <- s })

	connect(t, l)
	assert.Nil(t, l.Stats())

	fake.PushStats(3, 1, 0.25)
	first := <-got
	assert.Equal(t, 3, first.Players)
	stats := l.Stats()
	require.NotNil(t, stats)

	fake.PushStats(5, 2, 0.5)
	second := <-got
	assert.Equal(t, 5, second.Players)
	assert.Same(t, stats, l.Stats())
	assert.Equal(t, 0.5, stats.Snapshot().CPU.SystemLoad)
}

func TestLink_CreatePlayerEmitsNewPlayerOnce(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())
	connect(t, l)

	var created []*Player
	var mu sync.Mutex
	l.OnNewPlayer(func(p *Player) {
		mu.Lock()
		created = append(created, p)
		mu.Unlock()
	})

	event := json.RawMessage(`{"token":"abc","endpoint":"eu.discord.media"}`)
	p1, err := l.CreatePlayer(snowflake.ID(7), "s1", event)
	require.NoError(t, err)
	p2, err := l.CreatePlayer(snowflake.ID(7), "s2", event)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	mu.Lock()
	assert.Len(t, created, 1)
	mu.Unlock()

	updates := fake.WaitForOp(OpVoiceUpdate, 2)
	assert.Equal(t, "7", updates[0]["guildId"])
	assert.Equal(t, "s1", updates[0]["sessionId"])
	assert.Equal(t, "s2", updates[1]["sessionId"])
	assert.Equal(t, "s2", p1.VoiceCredentials().SessionID)
}

func TestLink_CreatePlayerFailsWhenNotConnected(t *testing.T) {
	fake := nodelinktest.New(t)
	l := newTestLink(t, fake, testOptions())

	_, err := l.CreatePlayer(snowflake.ID(7), "s1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotConnectedError(err))
	assert.Equal(t, 0, l.PlayerCount())
}

func TestOptions_ReconnectBackOff(t *testing.T) {
	constant := Options{ReconnectDelay: time.Second}.newReconnectBackOff()
	assert.Equal(t, time.Second, constant.NextBackOff())
	assert.Equal(t, time.Second, constant.NextBackOff())

	exp := Options{ReconnectDelay: time.Second, ReconnectMaxDelay: 4 * time.Second}.newReconnectBackOff()
	for i := 0; i < 10; i++ {
		d := exp.NextBackOff()
		assert.LessOrEqual(t, d, 4*time.Second+4*time.Second/5)
		assert.Greater(t, d, time.Duration(0))
	}
}
