// Package nodelink maintains the websocket link to a single audio node:
// connection lifecycle, outbound packet gating, inbound dispatch and the
// players bound to that node.
package nodelink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/infrastructure/trackloader"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
	"github.com/orris-inc/soundmesh/internal/shared/goroutine"
	"github.com/orris-inc/soundmesh/internal/shared/listener"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
	"github.com/orris-inc/soundmesh/internal/shared/version"
)

// TrackResolver looks up tracks on a node's HTTP API.
type TrackResolver interface {
	Resolve(ctx context.Context, n *node.Node, query string) (*track.LoadResult, error)
}

// DisconnectEvent describes a closed node socket. Expected is true only when
// Disconnect was called and the node closed with normal closure.
type DisconnectEvent struct {
	Code     int
	Reason   string
	Expected bool
}

// StatusChange is emitted on every status transition.
type StatusChange struct {
	From node.Status
	To   node.Status
}

// connectAttempt is shared by every Connect call made while it is running.
// It stays outstanding across scheduled retries.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Link is the connection to one node.
type Link struct {
	node *node.Node
	opts Options
	log  logger.Interface

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	status        node.Status
	conn          *connection
	players       map[snowflake.ID]*Player
	stats         *node.RemoteStats
	expectedClose bool
	sentCloseCode int
	attempts      int
	nodeVersion   int
	attempt       *connectAttempt
	queue         [][]byte
	healthyTimer  *time.Timer
	backoff       backoff.BackOff
	closed        bool

	debugListeners      listener.Set[string]
	errorListeners      listener.Set[error]
	disconnectListeners listener.Set[DisconnectEvent]
	statsListeners      listener.Set[node.StatsSnapshot]
	newPlayerListeners  listener.Set[*Player]
	statusListeners     listener.Set[StatusChange]
}

// New creates an idle link. Nothing is dialed until Connect.
func New(n *node.Node, opts Options) *Link {
	opts = opts.withDefaults()
	if opts.Resolver == nil {
		opts.Resolver = trackloader.New(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Link{
		node:    n,
		opts:    opts,
		log:     opts.Logger.With("node", n.Name()),
		ctx:     ctx,
		cancel:  cancel,
		status:  node.StatusIdle,
		players: make(map[snowflake.ID]*Player),
		backoff: opts.newReconnectBackOff(),
	}
}

func (l *Link) Node() *node.Node { return l.node }

func (l *Link) Status() node.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Stats returns the node's latest stats, or nil before the first push.
func (l *Link) Stats() *node.RemoteStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// NodeVersion returns the major version the node reported on the last
// successful handshake.
func (l *Link) NodeVersion() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nodeVersion
}

// ConnectAttempts returns the number of consecutive connection attempts
// since the link was last healthy.
func (l *Link) ConnectAttempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// Listener registration. Each returns a function that removes the listener.
// Listeners run synchronously on the goroutine that produced the event.

func (l *Link) OnDebug(fn func(string)) func()               { return l.debugListeners.Add(fn) }
func (l *Link) OnError(fn func(error)) func()                { return l.errorListeners.Add(fn) }
func (l *Link) OnDisconnect(fn func(DisconnectEvent)) func() { return l.disconnectListeners.Add(fn) }
func (l *Link) OnStats(fn func(node.StatsSnapshot)) func()   { return l.statsListeners.Add(fn) }
func (l *Link) OnNewPlayer(fn func(*Player)) func()          { return l.newPlayerListeners.Add(fn) }
func (l *Link) OnStatusChange(fn func(StatusChange)) func()  { return l.statusListeners.Add(fn) }

func (l *Link) debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.log.Debugw(msg)
	l.debugListeners.Emit(msg)
}

func (l *Link) emitError(err error) {
	l.log.Warnw("link error", "error", err)
	l.errorListeners.Emit(err)
}

// setStatusLocked must be called with mu held. The returned change is
// emitted by the caller after unlocking.
func (l *Link) setStatusLocked(s node.Status) *StatusChange {
	if l.status == s {
		return nil
	}
	change := &StatusChange{From: l.status, To: s}
	l.status = s
	return change
}

func (l *Link) emitStatus(changes ...*StatusChange) {
	for _, c := range changes {
		if c == nil {
			continue
		}
		l.log.Debugw("link status changed", "from", c.From.String(), "to", c.To.String())
		l.statusListeners.Emit(*c)
	}
}

// Connect connects the link and waits for the outcome. It returns at once if
// the link is connected and joins the running attempt if there is one. The
// attempt keeps retrying in the background if ctx ends first.
func (l *Link) Connect(ctx context.Context) error {
	a, err := l.beginConnect()
	if err != nil || a == nil {
		return err
	}

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectAsync starts connecting if the link is neither connected nor
// connecting, without waiting for the outcome.
func (l *Link) ConnectAsync() {
	_, _ = l.beginConnect()
}

func (l *Link) beginConnect() (*connectAttempt, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, errors.NewNotConnectedError("link is closed", l.node.Name())
	}
	if l.status == node.StatusConnected {
		l.mu.Unlock()
		return nil, nil
	}
	if l.attempt != nil {
		a := l.attempt
		l.mu.Unlock()
		return a, nil
	}
	if l.status == node.StatusIdle {
		l.attempts = 0
		l.backoff.Reset()
	}
	a := l.newAttemptLocked()
	l.mu.Unlock()

	l.launchAttempt(a)
	return a, nil
}

func (l *Link) newAttemptLocked() *connectAttempt {
	a := &connectAttempt{done: make(chan struct{})}
	l.attempt = a
	return a
}

func (l *Link) launchAttempt(a *connectAttempt) {
	goroutine.SafeGo(l.log, "nodelink-connect-"+l.node.Name(), func() {
		l.runAttempt(a)
	})
}

// runAttempt dials until it succeeds, the link is closed or the attempt
// limit is reached. Failures wait for the reconnect back-off in between.
func (l *Link) runAttempt(a *connectAttempt) {
	for {
		l.mu.Lock()
		if l.closed {
			change := l.setStatusLocked(node.StatusIdle)
			l.mu.Unlock()
			l.emitStatus(change)
			l.finishAttempt(a, errors.NewNotConnectedError("link is closed", l.node.Name()))
			return
		}
		change := l.setStatusLocked(node.StatusConnecting)
		l.attempts++
		n := l.attempts
		l.mu.Unlock()

		l.emitStatus(change)
		l.debugf("connecting to %s (attempt %d)", l.node.WSHost(), n)

		ws, major, err := l.dial()
		if err == nil {
			if l.onConnected(a, ws, major) {
				return
			}
			_ = ws.Close()
			l.finishAttempt(a, errors.NewNotConnectedError("link is closed", l.node.Name()))
			return
		}

		l.emitError(fmt.Errorf("connect to node %s: %w", l.node.Name(), err))

		l.mu.Lock()
		if l.closed {
			change = l.setStatusLocked(node.StatusIdle)
			l.mu.Unlock()
			l.emitStatus(change)
			l.finishAttempt(a, errors.NewNotConnectedError("link is closed", l.node.Name()))
			return
		}
		changes := []*StatusChange{l.setStatusLocked(node.StatusDisconnected)}
		exhausted := l.opts.MaxConnectAttempts > 0 && l.attempts >= l.opts.MaxConnectAttempts
		var delay time.Duration
		if exhausted {
			changes = append(changes, l.setStatusLocked(node.StatusIdle))
		} else {
			delay = l.backoff.NextBackOff()
		}
		l.mu.Unlock()
		l.emitStatus(changes...)

		if exhausted {
			l.finishAttempt(a, errors.NewMaxAttemptsError(
				fmt.Sprintf("giving up on node %s after %d attempts", l.node.Name(), l.opts.MaxConnectAttempts),
				err.Error(),
			))
			return
		}
		if delay == backoff.Stop {
			delay = l.opts.ReconnectDelay
		}

		l.debugf("retrying connection in %s", delay)
		timer := time.NewTimer(delay)
		select {
		case <-l.ctx.Done():
			timer.Stop()
			l.mu.Lock()
			change = l.setStatusLocked(node.StatusIdle)
			l.mu.Unlock()
			l.emitStatus(change)
			l.finishAttempt(a, errors.NewNotConnectedError("link is closed", l.node.Name()))
			return
		case <-timer.C:
		}
	}
}

// finishAttempt resolves a failed attempt and drops the packets queued on it.
func (l *Link) finishAttempt(a *connectAttempt, err error) {
	l.mu.Lock()
	if l.attempt == a {
		l.attempt = nil
	}
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	a.err = err
	close(a.done)

	if dropped > 0 {
		l.emitError(fmt.Errorf("dropped %d queued packets: %w", dropped, err))
	}
}

func (l *Link) dial() (*websocket.Conn, int, error) {
	header := http.Header{}
	header.Set(headerAuthorization, l.node.Password())
	header.Set(headerNumShards, strconv.Itoa(l.opts.NumShards))
	header.Set(headerUserID, strconv.FormatUint(l.opts.UserID, 10))
	if l.opts.ClientName != "" {
		header.Set(headerClientName, l.opts.ClientName)
	}

	ws, resp, err := l.opts.Dialer.DialContext(l.ctx, l.node.WSHost(), header)
	if err != nil {
		if resp != nil {
			return nil, 0, fmt.Errorf("websocket dial failed: status=%d, err=%w", resp.StatusCode, err)
		}
		return nil, 0, fmt.Errorf("websocket dial: %w", err)
	}

	raw := resp.Header.Get(headerMajorVersion)
	major, ok := version.ParseMajor(raw)
	if !ok {
		_ = ws.Close()
		return nil, 0, errors.NewProtocolError("node did not report a valid major version", raw)
	}
	if major < l.opts.MinMajorVersion {
		_ = ws.Close()
		return nil, 0, errors.NewProtocolError(
			fmt.Sprintf("node major version %d is below the supported minimum %d", major, l.opts.MinMajorVersion),
		)
	}

	return ws, major, nil
}

// onConnected installs a fresh socket, flushes the packets queued while
// connecting and resolves the attempt. It reports false if the link was
// closed during the handshake.
func (l *Link) onConnected(a *connectAttempt, ws *websocket.Conn, major int) bool {
	c := newConnection(l, ws)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.conn = c
	l.nodeVersion = major
	l.expectedClose = false
	change := l.setStatusLocked(node.StatusConnected)
	queued := l.queue
	l.queue = nil
	if l.attempt == a {
		l.attempt = nil
	}
	var flushErr error
	for _, data := range queued {
		if err := c.enqueue(data); err != nil && flushErr == nil {
			flushErr = err
		}
	}
	l.healthyTimer = goroutine.SafeAfter(l.log, "nodelink-healthy-"+l.node.Name(), l.opts.HealthyAfter, func() {
		l.markHealthy(c)
	})
	l.mu.Unlock()

	c.start()
	l.emitStatus(change)
	l.debugf("connected to node %s (major version %d)", l.node.Name(), major)
	if len(queued) > 0 {
		l.debugf("flushed %d queued packets", len(queued))
	}
	if flushErr != nil {
		l.emitError(fmt.Errorf("flush queued packets: %w", flushErr))
	}

	close(a.done)
	return true
}

func (l *Link) markHealthy(c *connection) {
	l.mu.Lock()
	if l.conn != c {
		l.mu.Unlock()
		return
	}
	l.attempts = 0
	l.backoff.Reset()
	l.healthyTimer = nil
	l.mu.Unlock()

	l.debugf("connection healthy, attempt counter reset")
}

// Disconnect closes the socket with the given code and reason. It is a no-op
// unless the link is connected. A code of zero means normal closure.
func (l *Link) Disconnect(code int, reason string) error {
	if code == 0 {
		code = websocket.CloseNormalClosure
	}

	l.mu.Lock()
	if l.status != node.StatusConnected || l.conn == nil {
		l.mu.Unlock()
		return nil
	}
	l.expectedClose = true
	l.sentCloseCode = code
	c := l.conn
	l.mu.Unlock()

	l.debugf("disconnecting (code %d, reason %q)", code, reason)
	return c.close(code, reason)
}

// Close disconnects the link for good and stops any pending retry.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	c := l.conn
	if c != nil {
		l.expectedClose = true
		l.sentCloseCode = websocket.CloseNormalClosure
	}
	var change *StatusChange
	if c == nil && l.attempt == nil {
		change = l.setStatusLocked(node.StatusIdle)
	}
	l.mu.Unlock()

	l.cancel()
	l.emitStatus(change)
	if c != nil {
		return c.close(websocket.CloseNormalClosure, "link closed")
	}
	return nil
}

// handleClose runs once per socket, on its read goroutine, after the socket
// is gone.
func (l *Link) handleClose(c *connection, code int, reason string) {
	l.mu.Lock()
	if l.conn != c {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	if l.healthyTimer != nil {
		l.healthyTimer.Stop()
		l.healthyTimer = nil
	}
	requested := l.expectedClose
	l.expectedClose = false
	if requested && code == websocket.CloseAbnormalClosure {
		code = l.sentCloseCode
	}
	expected := requested && code == websocket.CloseNormalClosure
	change := l.setStatusLocked(node.StatusDisconnected)
	l.mu.Unlock()

	l.emitStatus(change)
	l.debugf("connection closed (code %d, reason %q, expected %t)", code, reason, expected)
	l.disconnectListeners.Emit(DisconnectEvent{Code: code, Reason: reason, Expected: expected})

	// Whatever the listeners did not take over has no socket anymore.
	for _, p := range l.DetachPlayers() {
		p.destroyLocal()
	}

	l.mu.Lock()
	var next *StatusChange
	var a *connectAttempt
	switch {
	case expected || l.closed:
		next = l.setStatusLocked(node.StatusIdle)
	case l.attempt == nil && l.status == node.StatusDisconnected:
		next = l.setStatusLocked(node.StatusReconnecting)
		a = l.newAttemptLocked()
	}
	l.mu.Unlock()

	l.emitStatus(next)
	if a != nil {
		l.launchAttempt(a)
	}
}

// Send encodes packet and writes it to the node. While a connection attempt
// is running the packet is queued and written once it succeeds.
func (l *Link) Send(packet any) error {
	data, err := json.Marshal(packet)
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	return l.sendRaw(data)
}

func (l *Link) sendRaw(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.status == node.StatusConnected && l.conn != nil:
		return l.conn.enqueue(data)
	case l.attempt != nil && !l.closed:
		if len(l.queue) >= maxQueuedPackets {
			return fmt.Errorf("send queue full for node %s", l.node.Name())
		}
		l.queue = append(l.queue, data)
		return nil
	default:
		return errors.NewNotConnectedError("link is not connected", l.node.Name())
	}
}

// CreatePlayer returns the guild's player on this link, creating it if
// needed, and sends it the voice session credentials.
func (l *Link) CreatePlayer(guildID snowflake.ID, sessionID string, event json.RawMessage) (*Player, error) {
	l.mu.Lock()
	p, exists := l.players[guildID]
	if !exists {
		p = newPlayer(l, guildID)
		l.players[guildID] = p
	}
	l.mu.Unlock()

	if err := p.SendVoiceUpdate(sessionID, event); err != nil {
		if !exists {
			l.removePlayer(guildID, p)
		}
		return nil, err
	}

	if !exists {
		l.debugf("created player for guild %s", guildID)
		l.newPlayerListeners.Emit(p)
	}
	return p, nil
}

// Player returns the guild's player on this link.
func (l *Link) Player(guildID snowflake.ID) (*Player, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[guildID]
	return p, ok
}

// Players returns the link's players ordered by guild ID.
func (l *Link) Players() []*Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedPlayersLocked()
}

func (l *Link) PlayerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// DetachPlayers removes and returns every player, ordered by guild ID. The
// players keep their link reference until they are attached elsewhere.
func (l *Link) DetachPlayers() []*Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	players := l.sortedPlayersLocked()
	l.players = make(map[snowflake.ID]*Player)
	return players
}

func (l *Link) sortedPlayersLocked() []*Player {
	players := make([]*Player, 0, len(l.players))
	for _, p := range l.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].guildID < players[j].guildID })
	return players
}

// putPlayer stores p under its guild and returns the player it replaced.
func (l *Link) putPlayer(p *Player) *Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.players[p.guildID]
	l.players[p.guildID] = p
	return prev
}

// removePlayer deletes the guild's entry only if it still points at p.
func (l *Link) removePlayer(guildID snowflake.ID, p *Player) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.players[guildID]; ok && cur == p {
		delete(l.players, guildID)
		return true
	}
	return false
}

// ResolveTrack asks the node to resolve an identifier or search query.
func (l *Link) ResolveTrack(ctx context.Context, query string) (*track.LoadResult, error) {
	l.debugf("resolving track %q", query)
	return l.opts.Resolver.Resolve(ctx, l.node, query)
}
