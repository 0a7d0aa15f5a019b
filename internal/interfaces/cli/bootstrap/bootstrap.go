// Package bootstrap wires configuration, logging and the fleet for the CLI
// commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/orris-inc/soundmesh/internal/infrastructure/config"
	"github.com/orris-inc/soundmesh/internal/shared/biztime"
	"github.com/orris-inc/soundmesh/internal/shared/constants"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

// Flags are the options every command shares.
type Flags struct {
	Env        string
	ConfigPath string
	EnvFile    string
}

// Register adds the shared flags as persistent flags of root.
func (f *Flags) Register(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&f.Env, "env", "e", "", "Environment (development, test, production)")
	root.PersistentFlags().StringVarP(&f.ConfigPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	root.PersistentFlags().StringVar(&f.EnvFile, "env-file", ".env", "Dotenv file loaded before the config")
}

// LoadConfig reads the dotenv file, then the config file and environment.
// A missing dotenv file is fine.
func LoadConfig(f *Flags) (*config.Config, error) {
	if f.EnvFile != "" {
		if err := godotenv.Load(f.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f.EnvFile, err)
		}
	}

	env := f.Env
	if env == "" {
		env = os.Getenv("SOUNDMESH_ENV")
	}
	mode := ""
	if env != "" {
		mode = MapEnvToMode(env)
	}

	if f.ConfigPath != "" {
		return config.LoadFile(f.ConfigPath, mode)
	}
	return config.Load(mode)
}

// Init loads the config and sets up logging and the display timezone.
func Init(f *Flags) (*config.Config, logger.Interface, error) {
	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := biztime.Init(cfg.Server.Timezone); err != nil {
		return nil, nil, err
	}

	return cfg, logger.NewLogger(), nil
}

// MapEnvToMode turns an environment name into a server mode.
func MapEnvToMode(environment string) string {
	switch strings.ToLower(environment) {
	case "production", "prod", constants.ModeRelease:
		return constants.ModeRelease
	case "test", "testing":
		return constants.ModeTest
	default:
		return constants.ModeDebug
	}
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, cfg *config.Config, log logger.Interface) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.GetAddr(), err)
	}

	log.Infow("redis connection established", "address", cfg.Redis.GetAddr())
	return client, nil
}
