// Package fleet coordinates the links to every configured node: it picks a
// node for new sessions and moves sessions off nodes that drop.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"

	"github.com/orris-inc/soundmesh/internal/application/balancer"
	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/shared/config"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
	"github.com/orris-inc/soundmesh/internal/shared/goroutine"
	"github.com/orris-inc/soundmesh/internal/shared/listener"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

const (
	DefaultFailoverRetryDelay     = 10 * time.Second
	DefaultFailoverConnectTimeout = 15 * time.Second

	sinkTimeout = 5 * time.Second
)

// EventPublisher relays fleet events to other instances.
type EventPublisher interface {
	Publish(ctx context.Context, event fleetdomain.Event) error
}

// StatsCache keeps the latest stats of every node for readers outside this
// process.
type StatsCache interface {
	Store(ctx context.Context, nodeName string, snapshot node.StatsSnapshot, penalty float64) error
}

// Options configures a Client. Publisher, StatsCache, Failovers and
// StatsSamples are optional; errors from them are logged and otherwise
// ignored.
type Options struct {
	Link               nodelink.Options
	UseLoadBalancer    bool
	Penalty            balancer.PenaltyParams
	FailoverRetryDelay time.Duration
	// FailoverConnectTimeout bounds the wait for an idle node picked for a
	// moved player.
	FailoverConnectTimeout time.Duration

	Publisher    EventPublisher
	StatsCache   StatsCache
	Failovers    fleetdomain.FailoverRepository
	StatsSamples fleetdomain.StatsSampleRepository

	Logger logger.Interface
}

// OptionsFromConfig maps the client section of the configuration.
func OptionsFromConfig(cfg config.ClientConfig) Options {
	return Options{
		Link:                   nodelink.OptionsFromConfig(cfg),
		UseLoadBalancer:        cfg.UseLoadBalancer,
		Penalty:                balancer.ParamsFromConfig(cfg.Penalty),
		FailoverRetryDelay:     cfg.FailoverRetryDelay,
		FailoverConnectTimeout: cfg.FailoverConnectTimeout,
	}
}

// LinkEvent is a link event re-emitted by the client together with the link
// that produced it.
type LinkEvent[T any] struct {
	Link *nodelink.Link
	Data T
}

// FailoverEvent is emitted after a player was moved off From.
type FailoverEvent struct {
	From   *nodelink.Link
	Player *nodelink.Player
}

type entry struct {
	link        *nodelink.Link
	unsubscribe []func()
}

// Client owns one link per node.
type Client struct {
	opts     Options
	log      logger.Interface
	balancer *balancer.LoadBalancer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	links   []*nodelink.Link
	entries map[string]*entry
	pending map[snowflake.ID]*pendingFailover
	stopped bool

	debugListeners      listener.Set[LinkEvent[string]]
	errorListeners      listener.Set[LinkEvent[error]]
	disconnectListeners listener.Set[LinkEvent[nodelink.DisconnectEvent]]
	statsListeners      listener.Set[LinkEvent[node.StatsSnapshot]]
	newPlayerListeners  listener.Set[LinkEvent[*nodelink.Player]]
	failoverListeners   listener.Set[FailoverEvent]
}

// NewClient creates a client without any node.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Link.Logger == nil {
		opts.Link.Logger = opts.Logger
	}
	if opts.FailoverRetryDelay <= 0 {
		opts.FailoverRetryDelay = DefaultFailoverRetryDelay
	}
	if opts.FailoverConnectTimeout <= 0 {
		opts.FailoverConnectTimeout = DefaultFailoverConnectTimeout
	}
	if opts.Penalty == (balancer.PenaltyParams{}) {
		opts.Penalty = balancer.DefaultPenaltyParams()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:    opts,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		pending: make(map[snowflake.ID]*pendingFailover),
	}
	c.balancer = balancer.New(c, opts.Penalty)
	return c
}

func (c *Client) OnDebug(fn func(LinkEvent[string])) func() { return c.debugListeners.Add(fn) }
func (c *Client) OnError(fn func(LinkEvent[error])) func()  { return c.errorListeners.Add(fn) }
func (c *Client) OnDisconnect(fn func(LinkEvent[nodelink.DisconnectEvent])) func() {
	return c.disconnectListeners.Add(fn)
}
func (c *Client) OnStats(fn func(LinkEvent[node.StatsSnapshot])) func() {
	return c.statsListeners.Add(fn)
}
func (c *Client) OnNewPlayer(fn func(LinkEvent[*nodelink.Player])) func() {
	return c.newPlayerListeners.Add(fn)
}
func (c *Client) OnFailover(fn func(FailoverEvent)) func() { return c.failoverListeners.Add(fn) }

// Balancer returns the penalty balancer over the client's links.
func (c *Client) Balancer() *balancer.LoadBalancer { return c.balancer }

// AddNode registers n and returns its link. Adding a node whose name is
// already registered returns the existing link.
func (c *Client) AddNode(n *node.Node) *nodelink.Link {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[n.Name()]; ok {
		return e.link
	}

	l := nodelink.New(n, c.opts.Link)
	e := &entry{link: l}
	e.unsubscribe = []func(){
		l.OnDebug(func(msg string) {
			c.debugListeners.Emit(LinkEvent[string]{Link: l, Data: msg})
		}),
		l.OnError(func(err error) {
			c.errorListeners.Emit(LinkEvent[error]{Link: l, Data: err})
		}),
		l.OnDisconnect(func(ev nodelink.DisconnectEvent) {
			c.handleDisconnect(l, ev)
		}),
		l.OnStats(func(s node.StatsSnapshot) {
			c.handleStats(l, s)
		}),
		l.OnNewPlayer(func(p *nodelink.Player) {
			c.newPlayerListeners.Emit(LinkEvent[*nodelink.Player]{Link: l, Data: p})
		}),
		l.OnStatusChange(func(change nodelink.StatusChange) {
			c.handleStatusChange(l, change)
		}),
	}

	c.entries[n.Name()] = e
	c.links = append(c.links, l)

	c.log.Infow("node added",
		"node", n.Name(),
		"region", n.Region(),
	)
	return l
}

// RemoveNode unregisters the named node and closes its link. It reports
// whether the node was registered.
func (c *Client) RemoveNode(name string) bool {
	c.mu.Lock()
	e, ok := c.entries[name]
	if ok {
		delete(c.entries, name)
		for i, l := range c.links {
			if l == e.link {
				c.links = append(c.links[:i:i], c.links[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	for _, unsubscribe := range e.unsubscribe {
		unsubscribe()
	}
	if err := e.link.Close(); err != nil {
		c.log.Warnw("failed to close removed node link",
			"node", name,
			"error", err,
		)
	}

	c.log.Infow("node removed", "node", name)
	return true
}

// Link returns the link of the named node.
func (c *Client) Link(name string) (*nodelink.Link, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.link, true
}

// Links returns every link in registration order.
func (c *Client) Links() []*nodelink.Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*nodelink.Link, len(c.links))
	copy(out, c.links)
	return out
}

// Start connects every link concurrently and waits until all are connected.
// The first failure is returned; links that failed keep retrying in the
// background per their reconnect policy.
func (c *Client) Start(ctx context.Context) error {
	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()
	if stopped {
		return errors.NewNotConnectedError("client is stopped")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range c.Links() {
		g.Go(func() error {
			if err := l.Connect(gctx); err != nil {
				return fmt.Errorf("connect node %s: %w", l.Node().Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop closes every link and cancels pending failover retries. Players that
// were still waiting for a node are destroyed. A stopped client cannot be
// started again.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	pending := make([]*pendingFailover, 0, len(c.pending))
	for _, pf := range c.pending {
		pf.done = true
		pf.stop()
		pending = append(pending, pf)
	}
	c.pending = make(map[snowflake.ID]*pendingFailover)
	links := make([]*nodelink.Link, len(c.links))
	copy(links, c.links)
	c.mu.Unlock()

	c.cancel()
	for _, pf := range pending {
		pf.player.Abandon()
	}

	var g errgroup.Group
	for _, l := range links {
		g.Go(func() error {
			if err := l.Close(); err != nil {
				return fmt.Errorf("close node %s: %w", l.Node().Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	c.log.Infow("fleet client stopped",
		"nodes", len(links),
		"cancelled_failovers", len(pending),
	)
	return err
}

// IdealLink picks the link a new session in region should use. With the
// load balancer enabled the least penalised link wins and an idle pick is
// connected in the background; otherwise the first connected link in the
// region, then the first connected link anywhere.
func (c *Client) IdealLink(region string) (*nodelink.Link, error) {
	if c.opts.UseLoadBalancer {
		return c.balancer.IdealLink(region, true)
	}
	return firstConnected(c.Links(), region)
}

// placementLink picks the link a player moved off a dropped node should go
// to. Only connected links are scored; an idle or reconnecting link is
// returned only when none is connected, and it is never connected here.
func (c *Client) placementLink(region string) (*nodelink.Link, error) {
	links := c.Links()
	if !c.opts.UseLoadBalancer {
		return firstConnected(links, region)
	}

	connected := make([]*nodelink.Link, 0, len(links))
	for _, l := range links {
		if l.Status() == node.StatusConnected {
			connected = append(connected, l)
		}
	}
	if len(connected) > 0 {
		return balancer.SelectIdeal(connected, region, false, c.opts.Penalty)
	}
	return c.balancer.IdealLink(region, false)
}

func firstConnected(links []*nodelink.Link, region string) (*nodelink.Link, error) {
	if len(links) == 0 {
		return nil, errors.NewUnderflowError("no nodes added")
	}
	for _, l := range links {
		if l.Status() == node.StatusConnected && l.Node().Region() == region {
			return l, nil
		}
	}
	for _, l := range links {
		if l.Status() == node.StatusConnected {
			return l, nil
		}
	}
	return nil, errors.NewUnderflowError("no node available")
}

// Player finds the guild's player on any link, or among the players
// waiting for a node after a failover.
func (c *Client) Player(guildID snowflake.ID) (*nodelink.Player, bool) {
	if p, ok := c.linkedPlayer(guildID); ok {
		return p, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if pf, ok := c.pending[guildID]; ok {
		return pf.player, true
	}
	return nil, false
}

func (c *Client) linkedPlayer(guildID snowflake.ID) (*nodelink.Player, bool) {
	for _, l := range c.Links() {
		if p, ok := l.Player(guildID); ok {
			return p, true
		}
	}
	return nil, false
}

// Players returns the players of every link, grouped by link in
// registration order.
func (c *Client) Players() []*nodelink.Player {
	var out []*nodelink.Player
	for _, l := range c.Links() {
		out = append(out, l.Players()...)
	}
	return out
}

// JoinVoice binds the guild's voice session to a node. The node is picked
// for the normalised voice region and, when it is not connected yet, JoinVoice
// waits for it within ctx. A guild that already has a player keeps it and
// gets the new credentials; a player still waiting for a node after a
// failover is placed right away.
func (c *Client) JoinVoice(ctx context.Context, guildID snowflake.ID, region, sessionID string, event json.RawMessage) (*nodelink.Player, error) {
	if sessionID == "" {
		return nil, errors.NewValidationError("voice session id is required")
	}

	if p, ok := c.linkedPlayer(guildID); ok {
		if err := p.SendVoiceUpdate(sessionID, event); err != nil {
			return nil, fmt.Errorf("update voice session: %w", err)
		}
		return p, nil
	}

	normalized := node.NormalizeRegion(region)
	if pf, ok := c.pendingFor(guildID); ok {
		return c.resume(ctx, pf, normalized, sessionID, event)
	}

	l, err := c.connectedLink(ctx, normalized)
	if err != nil {
		return nil, err
	}

	p, err := l.CreatePlayer(guildID, sessionID, event)
	if err != nil {
		return nil, fmt.Errorf("create player on node %s: %w", l.Node().Name(), err)
	}

	c.log.Debugw("voice session joined",
		"guild_id", guildID,
		"node", l.Node().Name(),
	)
	return p, nil
}

// connectedLink picks the ideal link for region and waits within ctx for it
// to connect.
func (c *Client) connectedLink(ctx context.Context, region string) (*nodelink.Link, error) {
	l, err := c.IdealLink(region)
	if err != nil {
		return nil, err
	}
	if l.Status() != node.StatusConnected {
		if err := l.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect node %s: %w", l.Node().Name(), err)
		}
	}
	return l, nil
}

// LeaveVoice destroys the guild's player, including one still waiting for a
// node. It reports whether one existed.
func (c *Client) LeaveVoice(guildID snowflake.ID) bool {
	if p, ok := c.linkedPlayer(guildID); ok {
		p.Destroy()
		return true
	}

	pf, ok := c.takePending(guildID)
	if !ok {
		return false
	}
	pf.player.Abandon()
	c.log.Debugw("pending player dropped on leave",
		"guild_id", guildID,
		"from", pf.from.Node().Name(),
	)
	return true
}

func (c *Client) handleStatusChange(l *nodelink.Link, change nodelink.StatusChange) {
	c.log.Debugw("node status changed",
		"node", l.Node().Name(),
		"from", change.From.String(),
		"to", change.To.String(),
	)
	c.publish(fleetdomain.Event{
		Type:     fleetdomain.EventNodeStatus,
		NodeName: l.Node().Name(),
		Status:   change.To.String(),
	})
}

func (c *Client) handleStats(l *nodelink.Link, s node.StatsSnapshot) {
	c.statsListeners.Emit(LinkEvent[node.StatsSnapshot]{Link: l, Data: s})

	if c.opts.StatsCache == nil && c.opts.StatsSamples == nil {
		return
	}

	name := l.Node().Name()
	penalty := c.opts.Penalty.Compute(s).Total
	goroutine.SafeGo(c.log, "fleet-stats-sink-"+name, func() {
		ctx, cancel := context.WithTimeout(c.ctx, sinkTimeout)
		defer cancel()

		if c.opts.StatsCache != nil {
			if err := c.opts.StatsCache.Store(ctx, name, s, penalty); err != nil {
				c.log.Warnw("failed to cache node stats",
					"node", name,
					"error", err,
				)
			}
		}
		if c.opts.StatsSamples != nil {
			sample, err := fleetdomain.NewStatsSample(name, penalty, s)
			if err != nil {
				c.log.Warnw("failed to build stats sample", "node", name, "error", err)
				return
			}
			if err := c.opts.StatsSamples.Create(ctx, sample); err != nil {
				c.log.Warnw("failed to store stats sample",
					"node", name,
					"error", err,
				)
			}
		}
	})
}

// publish relays event in the background when a publisher is configured.
func (c *Client) publish(event fleetdomain.Event) {
	if c.opts.Publisher == nil {
		return
	}
	goroutine.SafeGo(c.log, "fleet-event-publish", func() {
		ctx, cancel := context.WithTimeout(c.ctx, sinkTimeout)
		defer cancel()
		if err := c.opts.Publisher.Publish(ctx, event); err != nil {
			c.log.Warnw("failed to publish fleet event",
				"type", event.Type,
				"node", event.NodeName,
				"error", err,
			)
		}
	})
}
