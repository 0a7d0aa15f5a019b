package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/persistence/models"
)

// StatsSampleMapper handles the conversion between stats samples and persistence models
type StatsSampleMapper interface {
	// ToEntity converts a persistence model to a domain entity
	ToEntity(model *models.StatsSampleModel) (*fleet.StatsSample, error)

	// ToModel converts a domain entity to a persistence model
	ToModel(entity *fleet.StatsSample) (*models.StatsSampleModel, error)

	// ToEntities converts multiple persistence models to domain entities
	ToEntities(models []*models.StatsSampleModel) ([]*fleet.StatsSample, error)
}

// StatsSampleMapperImpl is the concrete implementation of StatsSampleMapper
type StatsSampleMapperImpl struct{}

// NewStatsSampleMapper creates a new stats sample mapper
func NewStatsSampleMapper() StatsSampleMapper {
	return &StatsSampleMapperImpl{}
}

func (m *StatsSampleMapperImpl) ToEntity(model *models.StatsSampleModel) (*fleet.StatsSample, error) {
	if model == nil {
		return nil, nil
	}

	var stats node.StatsSnapshot
	if len(model.Stats) > 0 {
		if err := json.Unmarshal(model.Stats, &stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats of sample %d: %w", model.ID, err)
		}
	}

	return fleet.ReconstructStatsSample(model.ID, model.NodeName, model.Penalty, stats, model.CreatedAt), nil
}

func (m *StatsSampleMapperImpl) ToModel(entity *fleet.StatsSample) (*models.StatsSampleModel, error) {
	if entity == nil {
		return nil, nil
	}

	stats := entity.Stats()
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats: %w", err)
	}

	return &models.StatsSampleModel{
		ID:             entity.ID(),
		NodeName:       entity.NodeName(),
		Penalty:        entity.Penalty(),
		Players:        stats.Players,
		PlayingPlayers: stats.PlayingPlayers,
		SystemLoad:     stats.CPU.SystemLoad,
		Stats:          datatypes.JSON(data),
		CreatedAt:      entity.CreatedAt(),
	}, nil
}

func (m *StatsSampleMapperImpl) ToEntities(models []*models.StatsSampleModel) ([]*fleet.StatsSample, error) {
	entities := make([]*fleet.StatsSample, 0, len(models))

	for _, model := range models {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to map model ID %d: %w", model.ID, err)
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}

	return entities, nil
}
