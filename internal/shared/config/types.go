package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	Timezone string `mapstructure:"timezone"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientConfig controls how links to the audio nodes behave.
type ClientConfig struct {
	UserID                 uint64        `mapstructure:"user_id"`
	NumShards              int           `mapstructure:"num_shards"`
	ClientName             string        `mapstructure:"client_name"`
	MaxConnectAttempts     int           `mapstructure:"max_connect_attempts"`
	ReconnectDelay         time.Duration `mapstructure:"reconnect_delay"`
	ReconnectMaxDelay      time.Duration `mapstructure:"reconnect_max_delay"`
	HealthyAfter           time.Duration `mapstructure:"healthy_after"`
	FailoverRetryDelay     time.Duration `mapstructure:"failover_retry_delay"`
	FailoverConnectTimeout time.Duration `mapstructure:"failover_connect_timeout"`
	MinMajorVersion        int           `mapstructure:"min_major_version"`
	UseLoadBalancer        bool          `mapstructure:"use_load_balancer"`
	Penalty                PenaltyConfig `mapstructure:"penalty"`
}

// PenaltyConfig overrides load balancer penalty constants. Zero keeps the
// built-in value.
type PenaltyConfig struct {
	CPUBase           float64 `mapstructure:"cpu_base"`
	CPUScale          float64 `mapstructure:"cpu_scale"`
	CPUMultiplier     float64 `mapstructure:"cpu_multiplier"`
	FrameBase         float64 `mapstructure:"frame_base"`
	FrameScale        float64 `mapstructure:"frame_scale"`
	FrameWindow       float64 `mapstructure:"frame_window"`
	DeficitMultiplier float64 `mapstructure:"deficit_multiplier"`
	NullMultiplier    float64 `mapstructure:"null_multiplier"`
	NullOffset        float64 `mapstructure:"null_offset"`
	NullFactor        float64 `mapstructure:"null_factor"`
}

// NodeConfig is the static description of one remote audio node.
type NodeConfig struct {
	Name     string `mapstructure:"name" json:"name" validate:"required"`
	Password string `mapstructure:"password" json:"password"`
	HTTPHost string `mapstructure:"http_host" json:"http_host" validate:"required,url"`
	WSHost   string `mapstructure:"ws_host" json:"ws_host" validate:"required,url"`
	Region   string `mapstructure:"region" json:"region"`
}

type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	Migration       string `mapstructure:"migration"`

	StatsRetention time.Duration `mapstructure:"stats_retention"`
}

func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
