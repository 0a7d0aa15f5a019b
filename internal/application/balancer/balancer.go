// Package balancer picks the node link best suited for a new session.
package balancer

import (
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
)

// Candidate is what selection needs to know about a link.
type Candidate interface {
	Node() *node.Node
	Status() node.Status
	Stats() *node.RemoteStats
	ConnectAsync()
}

// LinkSource lists the links to choose from in registration order.
type LinkSource interface {
	Links() []*nodelink.Link
}

// LoadBalancer selects links by penalty, preferring the requested region.
type LoadBalancer struct {
	source LinkSource
	params PenaltyParams
}

func New(source LinkSource, params PenaltyParams) *LoadBalancer {
	return &LoadBalancer{source: source, params: params}
}

func (b *LoadBalancer) Params() PenaltyParams { return b.params }

// IdealLink returns the least penalised link in region, falling back to the
// least penalised link anywhere. An idle pick is connected in the
// background when autoConnect is set.
func (b *LoadBalancer) IdealLink(region string, autoConnect bool) (*nodelink.Link, error) {
	return SelectIdeal(b.source.Links(), region, autoConnect, b.params)
}

// Penalty scores one link.
func (b *LoadBalancer) Penalty(l Candidate) float64 {
	return b.params.Penalty(l.Stats())
}

// SelectIdeal implements the selection over any candidate type. Only links
// at least Connected are scored; ties go to the first registered link.
func SelectIdeal[L Candidate](links []L, region string, autoConnect bool, params PenaltyParams) (L, error) {
	var zero L
	if len(links) == 0 {
		return zero, errors.NewUnderflowError("no nodes added")
	}

	type scored struct {
		link    L
		penalty float64
	}
	var candidates []scored
	for _, l := range links {
		if !l.Status().AtLeast(node.StatusConnected) {
			continue
		}
		candidates = append(candidates, scored{link: l, penalty: params.Penalty(l.Stats())})
	}

	pick := func(match func(L) bool) (L, bool) {
		var best scored
		found := false
		for _, c := range candidates {
			if !match(c.link) {
				continue
			}
			if !found || c.penalty < best.penalty {
				best = c
				found = true
			}
		}
		return best.link, found
	}

	chosen, ok := pick(func(l L) bool { return l.Node().Region() == region })
	if !ok {
		chosen, ok = pick(func(L) bool { return true })
	}
	if !ok {
		for _, l := range links {
			if l.Status().AtLeast(node.StatusConnected) {
				chosen, ok = l, true
				break
			}
		}
	}
	if !ok {
		return zero, errors.NewUnderflowError("no node available")
	}

	if autoConnect && chosen.Status() == node.StatusIdle {
		chosen.ConnectAsync()
	}
	return chosen, nil
}
