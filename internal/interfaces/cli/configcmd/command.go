// Package configcmd prints the effective configuration.
package configcmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orris-inc/soundmesh/internal/infrastructure/config"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/bootstrap"
)

const mask = "******"

func NewCommand(flags *bootstrap.Flags) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  `Print the configuration after defaults, the config file, the dotenv file and SOUNDMESH_* variables are merged. Passwords are masked unless --show-secrets is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap.LoadConfig(flags)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), cfg, showSecrets)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords in clear text")

	return cmd
}

type configView struct {
	Server   serverView   `yaml:"server"`
	Client   clientView   `yaml:"client"`
	Nodes    []nodeView   `yaml:"nodes"`
	Database databaseView `yaml:"database"`
	Logger   loggerView   `yaml:"logger"`
	Redis    redisView    `yaml:"redis"`
}

type serverView struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Mode     string `yaml:"mode"`
	Timezone string `yaml:"timezone"`
}

type clientView struct {
	UserID                 uint64             `yaml:"user_id"`
	NumShards              int                `yaml:"num_shards"`
	ClientName             string             `yaml:"client_name"`
	MaxConnectAttempts     int                `yaml:"max_connect_attempts"`
	ReconnectDelay         string             `yaml:"reconnect_delay"`
	ReconnectMaxDelay      string             `yaml:"reconnect_max_delay"`
	HealthyAfter           string             `yaml:"healthy_after"`
	FailoverRetryDelay     string             `yaml:"failover_retry_delay"`
	FailoverConnectTimeout string             `yaml:"failover_connect_timeout"`
	MinMajorVersion        int                `yaml:"min_major_version"`
	UseLoadBalancer        bool               `yaml:"use_load_balancer"`
	Penalty                map[string]float64 `yaml:"penalty,omitempty"`
}

type nodeView struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password,omitempty"`
	HTTPHost string `yaml:"http_host"`
	WSHost   string `yaml:"ws_host"`
	Region   string `yaml:"region,omitempty"`
}

type databaseView struct {
	Enabled        bool   `yaml:"enabled"`
	Driver         string `yaml:"driver"`
	Path           string `yaml:"path,omitempty"`
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	Database       string `yaml:"database,omitempty"`
	Migration      string `yaml:"migration"`
	StatsRetention string `yaml:"stats_retention"`
}

type loggerView struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

type redisView struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	StatsTTL string `yaml:"stats_ttl"`
}

func write(w io.Writer, cfg *config.Config, showSecrets bool) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newView(cfg, showSecrets)); err != nil {
		return err
	}
	return enc.Close()
}

func newView(cfg *config.Config, showSecrets bool) configView {
	secret := func(s string) string {
		if s == "" || showSecrets {
			return s
		}
		return mask
	}

	v := configView{
		Server: serverView{
			Enabled:  cfg.Server.Enabled,
			Host:     cfg.Server.Host,
			Port:     cfg.Server.Port,
			Mode:     cfg.Server.Mode,
			Timezone: cfg.Server.Timezone,
		},
		Client: clientView{
			UserID:                 cfg.Client.UserID,
			NumShards:              cfg.Client.NumShards,
			ClientName:             cfg.Client.ClientName,
			MaxConnectAttempts:     cfg.Client.MaxConnectAttempts,
			ReconnectDelay:         duration(cfg.Client.ReconnectDelay),
			ReconnectMaxDelay:      duration(cfg.Client.ReconnectMaxDelay),
			HealthyAfter:           duration(cfg.Client.HealthyAfter),
			FailoverRetryDelay:     duration(cfg.Client.FailoverRetryDelay),
			FailoverConnectTimeout: duration(cfg.Client.FailoverConnectTimeout),
			MinMajorVersion:        cfg.Client.MinMajorVersion,
			UseLoadBalancer:        cfg.Client.UseLoadBalancer,
			Penalty:                penaltyOverrides(cfg),
		},
		Nodes: make([]nodeView, 0, len(cfg.Nodes)),
		Database: databaseView{
			Enabled:        cfg.Database.Enabled,
			Driver:         cfg.Database.Driver,
			Migration:      cfg.Database.Migration,
			StatsRetention: duration(cfg.Database.StatsRetention),
		},
		Logger: loggerView{
			Level:      cfg.Logger.Level,
			Format:     cfg.Logger.Format,
			OutputPath: cfg.Logger.OutputPath,
		},
		Redis: redisView{
			Enabled:  cfg.Redis.Enabled,
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: secret(cfg.Redis.Password),
			DB:       cfg.Redis.DB,
			StatsTTL: duration(cfg.Redis.StatsTTL),
		},
	}

	if cfg.Database.Driver == "sqlite" {
		v.Database.Path = cfg.Database.Path
	} else {
		v.Database.Host = cfg.Database.Host
		v.Database.Port = cfg.Database.Port
		v.Database.Username = cfg.Database.Username
		v.Database.Password = secret(cfg.Database.Password)
		v.Database.Database = cfg.Database.Database
	}

	for _, n := range cfg.Nodes {
		v.Nodes = append(v.Nodes, nodeView{
			Name:     n.Name,
			Password: secret(n.Password),
			HTTPHost: n.HTTPHost,
			WSHost:   n.WSHost,
			Region:   n.Region,
		})
	}

	return v
}

// penaltyOverrides lists only the constants that differ from the built-in
// values.
func penaltyOverrides(cfg *config.Config) map[string]float64 {
	p := cfg.Client.Penalty
	all := map[string]float64{
		"cpu_base":           p.CPUBase,
		"cpu_scale":          p.CPUScale,
		"cpu_multiplier":     p.CPUMultiplier,
		"frame_base":         p.FrameBase,
		"frame_scale":        p.FrameScale,
		"frame_window":       p.FrameWindow,
		"deficit_multiplier": p.DeficitMultiplier,
		"null_multiplier":    p.NullMultiplier,
		"null_offset":        p.NullOffset,
		"null_factor":        p.NullFactor,
	}
	for k, val := range all {
		if val == 0 {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

func duration(d time.Duration) string {
	return d.String()
}
