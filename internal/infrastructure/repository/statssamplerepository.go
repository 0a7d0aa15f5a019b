package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/soundmesh/internal/infrastructure/persistence/models"
)

// StatsSampleRepository stores node stats history with gorm.
type StatsSampleRepository struct {
	db     *gorm.DB
	mapper mappers.StatsSampleMapper
}

func NewStatsSampleRepository(db *gorm.DB) *StatsSampleRepository {
	return &StatsSampleRepository{
		db:     db,
		mapper: mappers.NewStatsSampleMapper(),
	}
}

func (r *StatsSampleRepository) Create(ctx context.Context, sample *fleet.StatsSample) error {
	model, err := r.mapper.ToModel(sample)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create stats sample: %w", err)
	}

	return sample.SetID(model.ID)
}

// ListByNode returns the node's samples, newest first.
func (r *StatsSampleRepository) ListByNode(ctx context.Context, nodeName string, limit int) ([]*fleet.StatsSample, error) {
	var rows []*models.StatsSampleModel
	if err := r.db.WithContext(ctx).
		Where("node_name = ?", nodeName).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stats samples for node %s: %w", nodeName, err)
	}
	return r.mapper.ToEntities(rows)
}

// DeleteBefore removes samples older than before and returns how many were
// removed.
func (r *StatsSampleRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.StatsSampleModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete stats samples: %w", result.Error)
	}
	return result.RowsAffected, nil
}
