package repository

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"

	"github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/soundmesh/internal/infrastructure/persistence/models"
	"github.com/orris-inc/soundmesh/internal/shared/constants"
)

// FailoverRepository stores failover audit records with gorm.
type FailoverRepository struct {
	db     *gorm.DB
	mapper mappers.FailoverRecordMapper
}

func NewFailoverRepository(db *gorm.DB) *FailoverRepository {
	return &FailoverRepository{
		db:     db,
		mapper: mappers.NewFailoverRecordMapper(),
	}
}

func (r *FailoverRepository) Create(ctx context.Context, record *fleet.FailoverRecord) error {
	model := r.mapper.ToModel(record)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create failover record: %w", err)
	}

	return record.SetID(model.ID)
}

// ListRecent returns the newest records first.
func (r *FailoverRepository) ListRecent(ctx context.Context, limit int) ([]*fleet.FailoverRecord, error) {
	var rows []*models.FailoverRecordModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list failover records: %w", err)
	}
	return r.mapper.ToEntities(rows), nil
}

// ListByGuild returns the guild's records, newest first.
func (r *FailoverRepository) ListByGuild(ctx context.Context, guildID snowflake.ID, limit int) ([]*fleet.FailoverRecord, error) {
	var rows []*models.FailoverRecordModel
	if err := r.db.WithContext(ctx).
		Where("guild_id = ?", uint64(guildID)).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list failover records for guild %s: %w", guildID, err)
	}
	return r.mapper.ToEntities(rows), nil
}

// clampLimit applies the default page size to non-positive limits and caps
// the rest.
func clampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultPageSize
	}
	return min(limit, constants.MaxPageSize)
}
