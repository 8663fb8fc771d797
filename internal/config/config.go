package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/claude/liftlog/internal/tracing"
	"github.com/claude/liftlog/internal/workout"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Client    ClientConfig    `yaml:"client"`
	Training  TrainingConfig  `yaml:"training"`
	Tracing   tracing.Config  `yaml:"tracing"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MigrationsPath is the directory holding the SQL migrations.
	MigrationsPath string `yaml:"migrations_path"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// ClientConfig configures liftlog-train.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	StateDir  string `yaml:"state_dir"`
	// UserID pins the user for servers in dev mode. Zero asks the server.
	UserID int `yaml:"user_id"`
	// Tailscale dials the server through an embedded tsnet node.
	Tailscale TailscaleConfig `yaml:"tailscale"`
	// RoutineCacheTTL is how long fetched routines are reused.
	RoutineCacheTTL string `yaml:"routine_cache_ttl"`
}

// TrainingConfig tunes the workout engine.
type TrainingConfig struct {
	DefaultRest   string   `yaml:"default_rest"`
	RestPresets   []string `yaml:"rest_presets"`
	RemoteTimeout string   `yaml:"remote_timeout"`
	HistoryLimit  int      `yaml:"history_limit"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Engine converts the training section into an engine configuration. Empty
// values keep the engine defaults.
func (t TrainingConfig) Engine() (workout.Config, error) {
	var cfg workout.Config
	if t.DefaultRest != "" {
		d, err := workout.ParseRestDuration(t.DefaultRest)
		if err != nil {
			return cfg, fmt.Errorf("training.default_rest: %w", err)
		}
		cfg.DefaultRest = d
	}
	for _, p := range t.RestPresets {
		d, err := workout.ParseRestDuration(p)
		if err != nil {
			return cfg, fmt.Errorf("training.rest_presets: %w", err)
		}
		cfg.RestPresets = append(cfg.RestPresets, workout.RestPreset{Name: p, Duration: d})
	}
	if t.RemoteTimeout != "" {
		d, err := time.ParseDuration(t.RemoteTimeout)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("training.remote_timeout: invalid duration %q", t.RemoteTimeout)
		}
		cfg.RemoteTimeout = d
	}
	if t.HistoryLimit < 0 {
		return cfg, fmt.Errorf("training.history_limit must not be negative")
	}
	cfg.HistoryLimit = t.HistoryLimit
	return cfg, nil
}

// RoutineTTL parses the client's routine cache lifetime; empty means zero.
func (c ClientConfig) RoutineTTL() (time.Duration, error) {
	if c.RoutineCacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RoutineCacheTTL)
	if err != nil {
		return 0, fmt.Errorf("client.routine_cache_ttl: %w", err)
	}
	return d, nil
}

// Load reads the server config from a YAML file, then applies environment
// variable overrides. A .env file in the working directory is loaded first.
// Env vars use the prefix LIFTLOG_ and underscore-separated paths:
//
//	LIFTLOG_SERVER_HOST, LIFTLOG_SERVER_PORT,
//	LIFTLOG_DB_HOST, LIFTLOG_DB_PORT, LIFTLOG_DB_NAME,
//	LIFTLOG_DB_USER, LIFTLOG_DB_PASSWORD, LIFTLOG_DB_SSLMODE,
//	LIFTLOG_TAILSCALE_ENABLED, LIFTLOG_TAILSCALE_HOSTNAME,
//	LIFTLOG_TRACING_ENABLED, LIFTLOG_TRACING_EXPORTER
func Load(path string) (*Config, error) {
	cfg, err := read(path, false)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadClient reads the client config. A missing file is not an error; the
// defaults and environment are enough to reach a local server. Client
// overrides: LIFTLOG_CLIENT_SERVER_URL, LIFTLOG_CLIENT_STATE_DIR,
// LIFTLOG_CLIENT_USER_ID, LIFTLOG_TRAINING_DEFAULT_REST,
// LIFTLOG_TRAINING_REMOTE_TIMEOUT.
func LoadClient(path string) (*Config, error) {
	cfg, err := read(path, true)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateClient(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func read(path string, optional bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	stateDir := ".liftlog"
	if dir, err := os.UserConfigDir(); err == nil {
		stateDir = filepath.Join(dir, "liftlog")
	}
	return &Config{
		Server:    ServerConfig{MigrationsPath: "migrations"},
		Tailscale: TailscaleConfig{Hostname: "liftlog"},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
			StateDir:  stateDir,
		},
		Tracing: tracing.Config{ServiceName: "liftlog"},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("LIFTLOG_SERVER_HOST", &cfg.Server.Host)
	setInt("LIFTLOG_SERVER_PORT", &cfg.Server.Port)
	setString("LIFTLOG_SERVER_MIGRATIONS_PATH", &cfg.Server.MigrationsPath)

	setString("LIFTLOG_DB_HOST", &cfg.Database.Host)
	setInt("LIFTLOG_DB_PORT", &cfg.Database.Port)
	setString("LIFTLOG_DB_NAME", &cfg.Database.Name)
	setString("LIFTLOG_DB_USER", &cfg.Database.User)
	setString("LIFTLOG_DB_PASSWORD", &cfg.Database.Password)
	setString("LIFTLOG_DB_SSLMODE", &cfg.Database.SSLMode)

	setBool("LIFTLOG_TAILSCALE_ENABLED", &cfg.Tailscale.Enabled)
	setString("LIFTLOG_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
	setString("LIFTLOG_TAILSCALE_STATE_DIR", &cfg.Tailscale.StateDir)

	setString("LIFTLOG_CLIENT_SERVER_URL", &cfg.Client.ServerURL)
	setString("LIFTLOG_CLIENT_STATE_DIR", &cfg.Client.StateDir)
	setInt("LIFTLOG_CLIENT_USER_ID", &cfg.Client.UserID)

	setString("LIFTLOG_TRAINING_DEFAULT_REST", &cfg.Training.DefaultRest)
	setString("LIFTLOG_TRAINING_REMOTE_TIMEOUT", &cfg.Training.RemoteTimeout)

	setBool("LIFTLOG_TRACING_ENABLED", &cfg.Tracing.Enabled)
	setString("LIFTLOG_TRACING_EXPORTER", &cfg.Tracing.Exporter)
	setString("LIFTLOG_TRACING_OTLP_ENDPOINT", &cfg.Tracing.OTLPEndpoint)
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.StateDir == "" {
		return fmt.Errorf("tailscale.state_dir is required when tailscale is enabled")
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.ServerURL == "" {
		return fmt.Errorf("client.server_url is required")
	}
	if c.Client.StateDir == "" {
		return fmt.Errorf("client.state_dir is required")
	}
	if c.Client.UserID < 0 {
		return fmt.Errorf("client.user_id must not be negative")
	}
	if _, err := c.Client.RoutineTTL(); err != nil {
		return err
	}
	if _, err := c.Training.Engine(); err != nil {
		return err
	}
	return nil
}
