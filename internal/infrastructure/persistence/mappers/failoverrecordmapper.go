package mappers

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/infrastructure/persistence/models"
)

// FailoverRecordMapper handles the conversion between failover records and persistence models
type FailoverRecordMapper interface {
	// ToEntity converts a persistence model to a domain entity
	ToEntity(model *models.FailoverRecordModel) *fleet.FailoverRecord

	// ToModel converts a domain entity to a persistence model
	ToModel(entity *fleet.FailoverRecord) *models.FailoverRecordModel

	// ToEntities converts multiple persistence models to domain entities
	ToEntities(models []*models.FailoverRecordModel) []*fleet.FailoverRecord
}

// FailoverRecordMapperImpl is the concrete implementation of FailoverRecordMapper
type FailoverRecordMapperImpl struct{}

// NewFailoverRecordMapper creates a new failover record mapper
func NewFailoverRecordMapper() FailoverRecordMapper {
	return &FailoverRecordMapperImpl{}
}

func (m *FailoverRecordMapperImpl) ToEntity(model *models.FailoverRecordModel) *fleet.FailoverRecord {
	if model == nil {
		return nil
	}

	return fleet.ReconstructFailoverRecord(
		model.ID,
		snowflake.ID(model.GuildID),
		model.FromNode,
		model.ToNode,
		model.TrackIdentifier,
		model.PositionMs,
		fleet.FailoverOutcome(model.Outcome),
		model.CreatedAt,
	)
}

func (m *FailoverRecordMapperImpl) ToModel(entity *fleet.FailoverRecord) *models.FailoverRecordModel {
	if entity == nil {
		return nil
	}

	return &models.FailoverRecordModel{
		ID:              entity.ID(),
		GuildID:         uint64(entity.GuildID()),
		FromNode:        entity.FromNode(),
		ToNode:          entity.ToNode(),
		TrackIdentifier: entity.TrackIdentifier(),
		PositionMs:      entity.PositionMs(),
		Outcome:         string(entity.Outcome()),
		CreatedAt:       entity.CreatedAt(),
	}
}

func (m *FailoverRecordMapperImpl) ToEntities(models []*models.FailoverRecordModel) []*fleet.FailoverRecord {
	entities := make([]*fleet.FailoverRecord, 0, len(models))
	for _, model := range models {
		if entity := m.ToEntity(model); entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities
}
