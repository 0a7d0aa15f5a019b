package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/soundmesh/internal/shared/config"
)

type Config struct {
	Server   sharedConfig.ServerConfig   `mapstructure:"server"`
	Client   sharedConfig.ClientConfig   `mapstructure:"client"`
	Nodes    []sharedConfig.NodeConfig   `mapstructure:"nodes"`
	Database sharedConfig.DatabaseConfig `mapstructure:"database"`
	Logger   sharedConfig.LoggerConfig   `mapstructure:"logger"`
	Redis    sharedConfig.RedisConfig    `mapstructure:"redis"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex

	validate = validator.New()
)

// Load loads configuration from file and environment variables.
// A missing config file is not an error; defaults and env still apply.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	return load(v, env)
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path, env string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v, env)
}

func load(v *viper.Viper, env string) (*Config, error) {
	v.SetEnvPrefix("SOUNDMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Validate checks node definitions for missing fields and duplicate names.
func Validate(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Nodes))
	for i := range cfg.Nodes {
		n := &cfg.Nodes[i]
		if err := validate.Struct(n); err != nil {
			return fmt.Errorf("invalid node config at index %d: %w", i, err)
		}
		if _, ok := seen[n.Name]; ok {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}

	if cfg.Client.NumShards <= 0 {
		return fmt.Errorf("client.num_shards must be positive, got %d", cfg.Client.NumShards)
	}

	return nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.timezone", "UTC")

	// Client defaults
	v.SetDefault("client.user_id", 0)
	v.SetDefault("client.num_shards", 1)
	v.SetDefault("client.client_name", "soundmesh")
	v.SetDefault("client.max_connect_attempts", 0)
	v.SetDefault("client.reconnect_delay", 30*time.Second)
	v.SetDefault("client.reconnect_max_delay", 0)
	v.SetDefault("client.healthy_after", 10*time.Second)
	v.SetDefault("client.failover_retry_delay", 10*time.Second)
	v.SetDefault("client.failover_connect_timeout", 15*time.Second)
	v.SetDefault("client.min_major_version", 3)
	v.SetDefault("client.use_load_balancer", true)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "soundmesh.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.migration", "goose")
	v.SetDefault("database.stats_retention", 24*time.Hour)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stats_ttl", 2*time.Minute)
}
