package balancer

import (
	"math"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/shared/config"
)

// PenaltyParams are the tuning constants of the penalty formula:
//
//	cpu     = floor(CPUBase^(CPUScale*systemLoad)*CPUMultiplier - CPUMultiplier)
//	deficit = floor(FrameBase^(FrameScale*framesDeficit/FrameWindow)*DeficitMultiplier - DeficitMultiplier)
//	null    = floor((FrameBase^(FrameScale*framesNulled/FrameWindow)*NullMultiplier - NullOffset)*NullFactor)
//
// deficit and null only apply when the node reports frame stats.
type PenaltyParams struct {
	CPUBase           float64
	CPUScale          float64
	CPUMultiplier     float64
	FrameBase         float64
	FrameScale        float64
	FrameWindow       float64
	DeficitMultiplier float64
	NullMultiplier    float64
	NullOffset        float64
	NullFactor        float64
}

// DefaultPenaltyParams returns the stock constants.
func DefaultPenaltyParams() PenaltyParams {
	return PenaltyParams{
		CPUBase:           1.05,
		CPUScale:          100,
		CPUMultiplier:     10,
		FrameBase:         1.03,
		FrameScale:        500,
		FrameWindow:       3000,
		DeficitMultiplier: 600,
		NullMultiplier:    300,
		NullOffset:        6300,
		NullFactor:        2,
	}
}

// ParamsFromConfig overlays the configured constants on the defaults. Unset
// (zero) entries keep their default.
func ParamsFromConfig(cfg config.PenaltyConfig) PenaltyParams {
	p := DefaultPenaltyParams()
	overlay := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	overlay(&p.CPUBase, cfg.CPUBase)
	overlay(&p.CPUScale, cfg.CPUScale)
	overlay(&p.CPUMultiplier, cfg.CPUMultiplier)
	overlay(&p.FrameBase, cfg.FrameBase)
	overlay(&p.FrameScale, cfg.FrameScale)
	overlay(&p.FrameWindow, cfg.FrameWindow)
	overlay(&p.DeficitMultiplier, cfg.DeficitMultiplier)
	overlay(&p.NullMultiplier, cfg.NullMultiplier)
	overlay(&p.NullOffset, cfg.NullOffset)
	overlay(&p.NullFactor, cfg.NullFactor)
	return p
}

// Breakdown is a penalty split into its terms.
type Breakdown struct {
	Players float64 `json:"players"`
	CPU     float64 `json:"cpu"`
	Deficit float64 `json:"deficit"`
	Null    float64 `json:"null"`
	Total   float64 `json:"total"`
}

// CPUPenalty scores a system load in [0, 1].
func (p PenaltyParams) CPUPenalty(systemLoad float64) float64 {
	return math.Floor(math.Pow(p.CPUBase, p.CPUScale*systemLoad)*p.CPUMultiplier - p.CPUMultiplier)
}

// DeficitPenalty scores the per-minute frame deficit.
func (p PenaltyParams) DeficitPenalty(framesDeficit int64) float64 {
	return math.Floor(math.Pow(p.FrameBase, p.FrameScale*float64(framesDeficit)/p.FrameWindow)*p.DeficitMultiplier - p.DeficitMultiplier)
}

// NullPenalty scores the per-minute count of nulled frames.
func (p PenaltyParams) NullPenalty(framesNulled int64) float64 {
	return math.Floor((math.Pow(p.FrameBase, p.FrameScale*float64(framesNulled)/p.FrameWindow)*p.NullMultiplier - p.NullOffset) * p.NullFactor)
}

// Compute scores a stats snapshot. Lower is better.
func (p PenaltyParams) Compute(s node.StatsSnapshot) Breakdown {
	b := Breakdown{
		Players: float64(s.PlayingPlayers),
		CPU:     p.CPUPenalty(s.CPU.SystemLoad),
	}
	if s.FrameStats != nil {
		b.Deficit = p.DeficitPenalty(s.FrameStats.Deficit)
		b.Null = p.NullPenalty(s.FrameStats.Nulled)
	}
	b.Total = b.Players + b.CPU + b.Deficit + b.Null
	return b
}

// Penalty scores a node's stats. Missing stats score +Inf.
func (p PenaltyParams) Penalty(stats *node.RemoteStats) float64 {
	if stats == nil {
		return math.Inf(1)
	}
	return p.Compute(stats.Snapshot()).Total
}
