package watch

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/orris-inc/soundmesh/internal/application/balancer"
	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/shared/biztime"
)

const timeLayout = "15:04:05"

// printer writes one line per fleet event. Events arrive from many link
// goroutines, so writes are serialized.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	params balancer.PenaltyParams
	now    func() time.Time
}

func newPrinter(w io.Writer, params balancer.PenaltyParams) *printer {
	return &printer{w: w, params: params, now: time.Now}
}

func (p *printer) line(kind, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %-9s %s\n", biztime.Format(p.now(), timeLayout), kind, fmt.Sprintf(format, args...))
}

func (p *printer) status(nodeName string, change nodelink.StatusChange) {
	p.line("status", "%s %s -> %s", nodeName, change.From, change.To)
}

func (p *printer) stats(nodeName string, s node.StatsSnapshot) {
	b := p.params.Compute(s)
	p.line("stats", "%s players=%d/%d cpu=%.1f%% penalty=%.0f",
		nodeName, s.PlayingPlayers, s.Players, s.CPU.SystemLoad*100, b.Total)
}

func (p *printer) disconnect(nodeName string, ev nodelink.DisconnectEvent) {
	if ev.Expected {
		p.line("closed", "%s", nodeName)
		return
	}
	p.line("dropped", "%s code=%d reason=%q", nodeName, ev.Code, ev.Reason)
}

func (p *printer) failover(from, to string, guildID fmt.Stringer) {
	p.line("failover", "guild %s %s -> %s", guildID, from, to)
}

func (p *printer) error(nodeName string, err error) {
	p.line("error", "%s %v", nodeName, err)
}

func (p *printer) remote(ev fleetdomain.Event) {
	at := biztime.Format(biztime.FromUnix(ev.Timestamp), timeLayout)
	switch ev.Type {
	case fleetdomain.EventFailover:
		p.line("remote", "[%s@%s] failover guild %s %s -> %s", ev.InstanceID, at, ev.GuildID, ev.NodeName, ev.TargetNode)
	case fleetdomain.EventFailoverWait:
		p.line("remote", "[%s@%s] failover deferred guild %s from %s: %s", ev.InstanceID, at, ev.GuildID, ev.NodeName, ev.Reason)
	case fleetdomain.EventNodeDropped:
		p.line("remote", "[%s@%s] %s dropped code=%d", ev.InstanceID, at, ev.NodeName, ev.CloseCode)
	default:
		p.line("remote", "[%s@%s] %s %s %s", ev.InstanceID, at, ev.Type, ev.NodeName, ev.Status)
	}
}
