package migration

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

// Manager handles database migrations with different strategies
type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager picks the strategy by name. "goose" (the default) runs the
// bundled versioned scripts; "auto" lets gorm reconcile tables.
func NewManager(strategyName, driver string, log logger.Interface) (*Manager, error) {
	if log == nil {
		log = logger.NewNop()
	}

	var strategy Strategy
	switch strings.ToLower(strategyName) {
	case "", "goose":
		if _, _, err := gooseTarget(driver); err != nil {
			return nil, err
		}
		strategy = NewGooseStrategy(driver, log)
	case "auto":
		strategy = NewGormAutoMigrateStrategy(log)
	default:
		return nil, fmt.Errorf("unknown migration strategy %q", strategyName)
	}

	return NewManagerWithStrategy(strategy, log), nil
}

// NewManagerWithStrategy creates a new migration manager with a specific strategy
func NewManagerWithStrategy(strategy Strategy, log logger.Interface) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		strategy: strategy,
		logger:   log.With("component", "migration.manager"),
	}
}

// Migrate executes the configured migration strategy
func (m *Manager) Migrate(db *gorm.DB) error {
	m.logger.Infow("starting database migration", "strategy", m.strategy.GetName())

	if err := m.strategy.Migrate(db); err != nil {
		m.logger.Errorw("migration failed",
			"strategy", m.strategy.GetName(),
			"error", err)
		return fmt.Errorf("migration failed using %s strategy: %w", m.strategy.GetName(), err)
	}

	return nil
}

func (m *Manager) GetStrategy() Strategy {
	return m.strategy
}
