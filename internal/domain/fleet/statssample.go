package fleet

import (
	"fmt"
	"time"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/shared/biztime"
)

// StatsSample is a stored copy of one node stats push, with the penalty the
// balancer computed for it.
type StatsSample struct {
	id        uint
	nodeName  string
	penalty   float64
	stats     node.StatsSnapshot
	createdAt time.Time
}

func NewStatsSample(nodeName string, penalty float64, stats node.StatsSnapshot) (*StatsSample, error) {
	if nodeName == "" {
		return nil, fmt.Errorf("stats sample requires a node name")
	}
	return &StatsSample{
		nodeName:  nodeName,
		penalty:   penalty,
		stats:     stats,
		createdAt: biztime.NowUTC(),
	}, nil
}

func ReconstructStatsSample(id uint, nodeName string, penalty float64, stats node.StatsSnapshot, createdAt time.Time) *StatsSample {
	return &StatsSample{
		id:        id,
		nodeName:  nodeName,
		penalty:   penalty,
		stats:     stats,
		createdAt: createdAt,
	}
}

func (s *StatsSample) ID() uint                  { return s.id }
func (s *StatsSample) NodeName() string          { return s.nodeName }
func (s *StatsSample) Penalty() float64          { return s.penalty }
func (s *StatsSample) Stats() node.StatsSnapshot { return s.stats }
func (s *StatsSample) CreatedAt() time.Time      { return s.createdAt }

func (s *StatsSample) SetID(id uint) error {
	if s.id != 0 {
		return fmt.Errorf("stats sample already has ID %d", s.id)
	}
	s.id = id
	return nil
}
