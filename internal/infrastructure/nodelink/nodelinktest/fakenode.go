// Package nodelinktest provides an in-process fake audio node for tests.
package nodelinktest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/soundmesh/internal/domain/node"
)

// Packet is a decoded frame received by the fake node.
type Packet map[string]any

func (p Packet) Op() string {
	s, _ := p["op"].(string)
	return s
}

// Node is a websocket server speaking enough of the node protocol to drive a
// link. It records every handshake and every frame it receives.
type Node struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	version  string
	reject   bool
	conns    []*websocket.Conn
	headers  []http.Header
	received []Packet
}

// New starts a fake node advertising major version 3.
func New(t *testing.T) *Node {
	t.Helper()

	n := &Node{t: t, version: "3"}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// Node returns a node description pointing at this server.
func (n *Node) Node(name, region string) *node.Node {
	url := n.server.URL
	return node.New(name, "youshallnotpass", url, "ws"+strings.TrimPrefix(url, "http"), region)
}

// SetVersion changes the advertised major version. Empty omits the header.
func (n *Node) SetVersion(v string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.version = v
}

// SetReject makes handshakes fail with 503.
func (n *Node) SetReject(reject bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reject = reject
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	reject := n.reject
	version := n.version
	n.headers = append(n.headers, r.Header.Clone())
	n.mu.Unlock()

	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	respHeader := http.Header{}
	if version != "" {
		respHeader.Set("Lavalink-Major-Version", version)
	}
	conn, err := n.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		return
	}

	n.mu.Lock()
	n.conns = append(n.conns, conn)
	n.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var p Packet
		if json.Unmarshal(data, &p) == nil {
			n.mu.Lock()
			n.received = append(n.received, p)
			n.mu.Unlock()
		}
	}
}

// Handshakes returns the request headers of every handshake so far.
func (n *Node) Handshakes() []http.Header {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]http.Header, len(n.headers))
	copy(out, n.headers)
	return out
}

// Received returns every frame received so far.
func (n *Node) Received() []Packet {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Packet, len(n.received))
	copy(out, n.received)
	return out
}

// ReceivedOp returns the received frames with the given op.
func (n *Node) ReceivedOp(op string) []Packet {
	var out []Packet
	for _, p := range n.Received() {
		if p.Op() == op {
			out = append(out, p)
		}
	}
	return out
}

// WaitForOp waits until at least count frames with op have arrived.
func (n *Node) WaitForOp(op string, count int) []Packet {
	n.t.Helper()
	require.Eventually(n.t, func() bool {
		return len(n.ReceivedOp(op)) >= count
	}, 5*time.Second, 10*time.Millisecond, "waiting for %d %q packets", count, op)
	return n.ReceivedOp(op)
}

func (n *Node) current() *websocket.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.conns) == 0 {
		return nil
	}
	return n.conns[len(n.conns)-1]
}

// Push sends v as a JSON frame on the latest connection.
func (n *Node) Push(v any) {
	n.t.Helper()
	conn := n.current()
	require.NotNil(n.t, conn, "no connection to push on")
	require.NoError(n.t, conn.WriteJSON(v))
}

// PushStats sends a stats frame.
func (n *Node) PushStats(players, playing int, systemLoad float64) {
	n.Push(map[string]any{
		"op":             "stats",
		"players":        players,
		"playingPlayers": playing,
		"uptime":         1000,
		"memory":         map[string]any{"free": 1, "used": 1, "allocated": 2, "reservable": 4},
		"cpu":            map[string]any{"cores": 4, "systemLoad": systemLoad, "lavalinkLoad": systemLoad / 2},
	})
}

// CloseWith closes the latest connection with a close frame.
func (n *Node) CloseWith(code int, reason string) {
	conn := n.current()
	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()
}

// Drop kills the latest connection without a close frame.
func (n *Node) Drop() {
	if conn := n.current(); conn != nil {
		_ = conn.Close()
	}
}

// Close drops every connection and stops the server.
func (n *Node) Close() {
	n.mu.Lock()
	conns := n.conns
	n.conns = nil
	n.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	n.server.CloseClientConnections()
	n.server.Close()
}
