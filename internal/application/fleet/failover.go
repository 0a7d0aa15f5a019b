package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
	"github.com/orris-inc/soundmesh/internal/shared/goroutine"
)

// pendingFailover is a player taken off a dropped node together with what
// it was playing at the time. timer, deferred and done are guarded by the
// client's mutex.
type pendingFailover struct {
	// mu is held while the player is being moved.
	mu sync.Mutex

	from     *nodelink.Link
	region   string
	player   *nodelink.Player
	track    *track.AudioTrack
	position int64
	deferred bool
	done     bool
	timer    *time.Timer
}

func (pf *pendingFailover) stop() {
	if pf.timer != nil {
		pf.timer.Stop()
		pf.timer = nil
	}
}

func (c *Client) handleDisconnect(l *nodelink.Link, ev nodelink.DisconnectEvent) {
	c.disconnectListeners.Emit(LinkEvent[nodelink.DisconnectEvent]{Link: l, Data: ev})

	if !ev.Expected {
		c.publish(fleetdomain.Event{
			Type:      fleetdomain.EventNodeDropped,
			NodeName:  l.Node().Name(),
			CloseCode: ev.Code,
			Reason:    ev.Reason,
		})
	}

	c.failover(l, ev)
}

// failover runs on the dropped link's read goroutine, before the link drops
// whatever players it still holds. Players are either destroyed or taken
// over here.
func (c *Client) failover(l *nodelink.Link, ev nodelink.DisconnectEvent) {
	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()

	if ev.Expected || stopped || l.PlayerCount() == 0 {
		for _, p := range l.DetachPlayers() {
			p.Destroy()
		}
		return
	}

	players := l.DetachPlayers()
	c.log.Warnw("node dropped, moving its players",
		"node", l.Node().Name(),
		"players", len(players),
		"code", ev.Code,
		"reason", ev.Reason,
	)

	// Snapshot everything first so placement time does not skew positions.
	batch := make([]*pendingFailover, 0, len(players))
	for _, p := range players {
		batch = append(batch, c.snapshot(l, p))
	}
	for _, pf := range batch {
		c.place(pf)
	}
}

// snapshot captures p's playback. A player that was already waiting to be
// placed keeps its earlier snapshot, since it never played since. A waiting
// player of an older session for the same guild is dropped.
func (c *Client) snapshot(l *nodelink.Link, p *nodelink.Player) *pendingFailover {
	guildID := p.GuildID()

	c.mu.RLock()
	prev := c.pending[guildID]
	c.mu.RUnlock()

	switch {
	case prev != nil && prev.player == p:
		// A move onto l may still be running.
		prev.mu.Lock()
		c.mu.Lock()
		if c.pending[guildID] == prev && !prev.done {
			prev.stop()
			c.mu.Unlock()
			prev.mu.Unlock()
			return prev
		}
		c.mu.Unlock()
		prev.mu.Unlock()
	case prev != nil:
		c.discard(prev, "guild has a newer session")
	}

	return &pendingFailover{
		from:     l,
		region:   l.Node().Region(),
		player:   p,
		track:    p.Track(),
		position: p.LastPosition(),
	}
}

// place moves pf onto the best connected link for its region. An idle pick
// is connected first, within FailoverConnectTimeout. Without any usable
// link the move is retried later.
func (c *Client) place(pf *pendingFailover) {
	if pf.player.Destroyed() {
		c.finish(pf)
		return
	}

	target, err := c.placementLink(pf.region)
	if err != nil {
		c.retryLater(pf, err)
		return
	}
	if target.Status() != node.StatusConnected {
		c.awaitTarget(pf, target)
		return
	}
	if _, err := c.moveTo(pf, target); err != nil {
		c.retryLater(pf, err)
	}
}

// awaitTarget keeps pf parked while target connects and moves it once the
// link is up. A target that does not come up sends pf back to the retry
// loop.
func (c *Client) awaitTarget(pf *pendingFailover, target *nodelink.Link) {
	if !c.park(pf) {
		return
	}

	c.log.Infow("waiting for node before moving player",
		"guild_id", pf.player.GuildID(),
		"node", target.Node().Name(),
		"timeout", c.opts.FailoverConnectTimeout,
	)

	goroutine.SafeGo(c.log, "fleet-failover-connect", func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.FailoverConnectTimeout)
		defer cancel()

		if err := target.Connect(ctx); err != nil {
			c.retryLater(pf, fmt.Errorf("connect node %s: %w", target.Node().Name(), err))
			return
		}
		if !c.isPending(pf) {
			return
		}
		if _, err := c.moveTo(pf, target); err != nil {
			c.retryLater(pf, err)
		}
	})
}

// moveTo attaches pf's player to target, which must be connected, and
// restores its voice session and track. The failover is announced only
// after both went out. It returns the player now serving the guild. An
// error means pf is still unplaced and its player holds no link.
func (c *Client) moveTo(pf *pendingFailover, target *nodelink.Link) (*nodelink.Player, error) {
	p := pf.player
	guildID := p.GuildID()

	pf.mu.Lock()
	defer pf.mu.Unlock()

	c.mu.RLock()
	done, cur := pf.done, c.pending[guildID]
	c.mu.RUnlock()

	stale := !done && cur != nil && cur != pf
	if stale || (!done && p.Destroyed()) {
		c.finish(pf)
		p.Abandon()
	}
	if done || stale || p.Destroyed() {
		if live, ok := c.Player(guildID); ok {
			return live, nil
		}
		return nil, errors.NewPlayerDestroyedError("player left before it was placed", guildID.String())
	}

	if other, ok := c.linkedPlayer(guildID); ok && other != p {
		c.finish(pf)
		p.Abandon()
		c.log.Infow("guild already has a live player, dropping the moved one",
			"guild_id", guildID,
			"from", pf.from.Node().Name(),
		)
		return other, nil
	}

	if target.Status() != node.StatusConnected {
		return nil, errors.NewNotConnectedError("node is not connected", target.Node().Name())
	}
	if err := p.AttachTo(target); err != nil {
		return nil, err
	}
	if creds := p.VoiceCredentials(); creds.SessionID != "" {
		if err := p.SendVoiceUpdate(creds.SessionID, creds.Event); err != nil {
			p.Detach()
			return nil, err
		}
	}
	if pf.track != nil {
		if err := p.Play(pf.track, pf.position, 0); err != nil {
			p.Detach()
			return nil, err
		}
	}
	if target.Status() != node.StatusConnected {
		// Packets queued on a reconnect attempt may never be delivered.
		p.Detach()
		return nil, errors.NewNotConnectedError("node dropped during the move", target.Node().Name())
	}
	c.finish(pf)

	c.log.Infow("player moved to new node",
		"guild_id", guildID,
		"from", pf.from.Node().Name(),
		"to", target.Node().Name(),
		"position_ms", pf.position,
	)

	c.failoverListeners.Emit(FailoverEvent{From: pf.from, Player: p})
	c.record(pf, target.Node().Name(), fleetdomain.FailoverOutcomeMigrated)
	c.publish(fleetdomain.Event{
		Type:       fleetdomain.EventFailover,
		NodeName:   pf.from.Node().Name(),
		TargetNode: target.Node().Name(),
		GuildID:    guildID,
	})
	return p, nil
}

// resume places a waiting player for a guild that joined voice again. The
// new credentials replace the ones captured when its node dropped.
func (c *Client) resume(ctx context.Context, pf *pendingFailover, region, sessionID string, event json.RawMessage) (*nodelink.Player, error) {
	pf.player.SetVoiceCredentials(sessionID, event)

	target, err := c.connectedLink(ctx, region)
	if err != nil {
		return nil, err
	}

	p, err := c.moveTo(pf, target)
	if err != nil {
		c.retryLater(pf, err)
		return nil, fmt.Errorf("move player to node %s: %w", target.Node().Name(), err)
	}

	c.log.Debugw("voice session resumed",
		"guild_id", p.GuildID(),
		"node", target.Node().Name(),
	)
	return p, nil
}

// retryLater parks pf until the next retry. Only the first deferral is
// recorded.
func (c *Client) retryLater(pf *pendingFailover, cause error) {
	if pf.player.Destroyed() {
		c.finish(pf)
		return
	}

	c.mu.Lock()
	if pf.done {
		c.mu.Unlock()
		return
	}
	if c.stopped || !c.parkLocked(pf) {
		pf.done = true
		c.mu.Unlock()
		pf.player.Abandon()
		return
	}
	first := !pf.deferred
	pf.deferred = true
	pf.stop()
	pf.timer = goroutine.SafeAfter(c.log, "fleet-failover-retry", c.opts.FailoverRetryDelay, func() {
		c.retry(pf)
	})
	c.mu.Unlock()

	c.log.Warnw("no node for player, retrying later",
		"guild_id", pf.player.GuildID(),
		"from", pf.from.Node().Name(),
		"retry_in", c.opts.FailoverRetryDelay,
		"error", cause,
	)

	if first {
		c.record(pf, "", fleetdomain.FailoverOutcomeDeferred)
		c.publish(fleetdomain.Event{
			Type:     fleetdomain.EventFailoverWait,
			NodeName: pf.from.Node().Name(),
			GuildID:  pf.player.GuildID(),
			Reason:   cause.Error(),
		})
	}
}

func (c *Client) retry(pf *pendingFailover) {
	c.mu.Lock()
	if c.stopped || pf.done || c.pending[pf.player.GuildID()] != pf {
		c.mu.Unlock()
		return
	}
	pf.stop()
	c.mu.Unlock()

	c.place(pf)
}

// park registers pf as the guild's waiting player. A guild already waiting
// with another player keeps that one and pf's player is dropped.
func (c *Client) park(pf *pendingFailover) bool {
	c.mu.Lock()
	if pf.done {
		c.mu.Unlock()
		return false
	}
	if c.stopped || !c.parkLocked(pf) {
		pf.done = true
		c.mu.Unlock()
		pf.player.Abandon()
		return false
	}
	c.mu.Unlock()
	return true
}

func (c *Client) parkLocked(pf *pendingFailover) bool {
	guildID := pf.player.GuildID()
	if cur, ok := c.pending[guildID]; ok && cur != pf {
		return false
	}
	c.pending[guildID] = pf
	return true
}

func (c *Client) unparkLocked(pf *pendingFailover) {
	guildID := pf.player.GuildID()
	if c.pending[guildID] == pf {
		delete(c.pending, guildID)
	}
	pf.stop()
}

// finish marks pf as settled, either placed or dropped.
func (c *Client) finish(pf *pendingFailover) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pf.done = true
	c.unparkLocked(pf)
}

// discard drops a waiting player once no move of it is running.
func (c *Client) discard(pf *pendingFailover, reason string) {
	pf.mu.Lock()
	c.mu.Lock()
	settled := pf.done
	pf.done = true
	c.unparkLocked(pf)
	c.mu.Unlock()
	pf.mu.Unlock()

	if settled {
		return
	}
	pf.player.Abandon()
	c.log.Infow("dropped waiting player",
		"guild_id", pf.player.GuildID(),
		"from", pf.from.Node().Name(),
		"reason", reason,
	)
}

func (c *Client) isPending(pf *pendingFailover) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !pf.done && c.pending[pf.player.GuildID()] == pf
}

func (c *Client) pendingFor(guildID snowflake.ID) (*pendingFailover, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pf, ok := c.pending[guildID]
	return pf, ok
}

// takePending removes the guild's waiting player, waiting out a move of it
// that may be running. It reports false when there was none or it got
// placed meanwhile.
func (c *Client) takePending(guildID snowflake.ID) (*pendingFailover, bool) {
	pf, ok := c.pendingFor(guildID)
	if !ok {
		return nil, false
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if pf.done || c.pending[guildID] != pf {
		return nil, false
	}
	pf.done = true
	c.unparkLocked(pf)
	return pf, true
}

// PendingFailovers returns the number of players waiting for a node.
func (c *Client) PendingFailovers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

func (c *Client) record(pf *pendingFailover, toNode string, outcome fleetdomain.FailoverOutcome) {
	if c.opts.Failovers == nil {
		return
	}

	identifier := ""
	if pf.track != nil {
		identifier = pf.track.Identifier
	}
	rec, err := fleetdomain.NewFailoverRecord(pf.player.GuildID(), pf.from.Node().Name(), toNode, identifier, pf.position, outcome)
	if err != nil {
		c.log.Warnw("failed to build failover record", "error", err)
		return
	}

	goroutine.SafeGo(c.log, "fleet-failover-audit", func() {
		ctx, cancel := context.WithTimeout(c.ctx, sinkTimeout)
		defer cancel()
		if err := c.opts.Failovers.Create(ctx, rec); err != nil {
			c.log.Warnw("failed to store failover record",
				"guild_id", pf.player.GuildID(),
				"outcome", outcome,
				"error", err,
			)
		}
	})
}
