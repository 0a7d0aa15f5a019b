package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/orris-inc/soundmesh/internal/shared/constants"
)

// StatsSampleModel represents one stored node stats push.
// The headline numbers are columns so they can be filtered on; the full
// payload is kept as JSON.
type StatsSampleModel struct {
	ID             uint           `gorm:"primarykey"`
	NodeName       string         `gorm:"type:varchar(100);not null;index:idx_stats_node_created,priority:1"`
	Penalty        float64        `gorm:"not null;default:0"`
	Players        int            `gorm:"not null;default:0"`
	PlayingPlayers int            `gorm:"not null;default:0"`
	SystemLoad     float64        `gorm:"not null;default:0"`
	Stats          datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_stats_node_created,priority:2;index:idx_stats_created"`
}

// TableName specifies the table name for GORM
func (StatsSampleModel) TableName() string {
	return constants.TableStatsSamples
}
