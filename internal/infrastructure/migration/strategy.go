package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/orris-inc/soundmesh/internal/infrastructure/persistence/models"
	"github.com/orris-inc/soundmesh/internal/shared/constants"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

//go:embed scripts/sqlite/*.sql scripts/mysql/*.sql
var scripts embed.FS

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Strategy applies the schema to a database.
type Strategy interface {
	Migrate(db *gorm.DB) error
	GetName() string
}

// Models lists every table the application owns.
func Models() []interface{} {
	return []interface{}{
		&models.FailoverRecordModel{},
		&models.StatsSampleModel{},
	}
}

// GormAutoMigrateStrategy lets gorm reconcile tables from the models.
type GormAutoMigrateStrategy struct {
	logger logger.Interface
}

func NewGormAutoMigrateStrategy(log logger.Interface) Strategy {
	return &GormAutoMigrateStrategy{logger: log.With("component", "migration.auto")}
}

func (s *GormAutoMigrateStrategy) Migrate(db *gorm.DB) error {
	all := Models()
	if err := db.AutoMigrate(all...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	s.logger.Infow("auto migration completed", "models_count", len(all))
	return nil
}

func (s *GormAutoMigrateStrategy) GetName() string {
	return "auto"
}

// GooseStrategy runs the versioned SQL scripts bundled for the driver.
type GooseStrategy struct {
	driver string
	logger logger.Interface
}

func NewGooseStrategy(driver string, log logger.Interface) Strategy {
	return &GooseStrategy{
		driver: driver,
		logger: log.With("component", "migration.goose"),
	}
}

func (s *GooseStrategy) GetName() string {
	return "goose"
}

func (s *GooseStrategy) Migrate(db *gorm.DB) error {
	return s.run(db, func(sqlDB *sql.DB, dir string) error {
		currentVersion, err := goose.GetDBVersion(sqlDB)
		if err != nil {
			return fmt.Errorf("failed to get current version: %w", err)
		}

		if err := goose.Up(sqlDB, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		finalVersion, err := goose.GetDBVersion(sqlDB)
		if err != nil {
			return fmt.Errorf("failed to get final version: %w", err)
		}

		s.logger.Infow("migration completed successfully",
			"from_version", currentVersion,
			"to_version", finalVersion)
		return nil
	})
}

func (s *GooseStrategy) MigrateDown(db *gorm.DB, steps int) error {
	return s.run(db, func(sqlDB *sql.DB, dir string) error {
		for i := 0; i < steps; i++ {
			if err := goose.Down(sqlDB, dir); err != nil {
				return fmt.Errorf("failed to run down migration: %w", err)
			}
		}
		s.logger.Infow("down migration completed", "steps", steps)
		return nil
	})
}

func (s *GooseStrategy) GetVersion(db *gorm.DB) (int64, error) {
	var version int64
	err := s.run(db, func(sqlDB *sql.DB, _ string) error {
		v, err := goose.GetDBVersion(sqlDB)
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func (s *GooseStrategy) run(db *gorm.DB, fn func(sqlDB *sql.DB, dir string) error) error {
	dialect, dir, err := gooseTarget(s.driver)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(scripts)
	goose.SetLogger(&gooseLogger{log: s.logger})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := fn(sqlDB, dir); err != nil {
		s.logger.Errorw("goose migration failed", "driver", s.driver, "error", err)
		return err
	}
	return nil
}

func gooseTarget(driver string) (dialect, dir string, err error) {
	switch driver {
	case constants.DriverSQLite:
		return "sqlite3", "scripts/sqlite", nil
	case constants.DriverMySQL:
		return "mysql", "scripts/mysql", nil
	default:
		return "", "", fmt.Errorf("no migrations for driver %q", driver)
	}
}

// gooseLogger forwards goose output to the application logger.
type gooseLogger struct {
	log logger.Interface
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Debugw(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Errorw(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
