package models

import (
	"time"

	"github.com/orris-inc/soundmesh/internal/shared/constants"
)

// FailoverRecordModel represents the database persistence model for failover audit entries
type FailoverRecordModel struct {
	ID              uint      `gorm:"primarykey"`
	GuildID         uint64    `gorm:"not null;index:idx_failover_guild_created,priority:1"`
	FromNode        string    `gorm:"type:varchar(100);not null;index:idx_failover_from_node"`
	ToNode          string    `gorm:"type:varchar(100);not null;default:''"` // empty when deferred
	TrackIdentifier string    `gorm:"type:varchar(255);not null;default:''"`
	PositionMs      int64     `gorm:"not null;default:0"`
	Outcome         string    `gorm:"type:varchar(16);not null"`
	CreatedAt       time.Time `gorm:"not null;index:idx_failover_guild_created,priority:2"`
}

// TableName specifies the table name for GORM
func (FailoverRecordModel) TableName() string {
	return constants.TableFailoverRecords
}
