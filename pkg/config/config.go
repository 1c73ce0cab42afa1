package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// DefaultConfigPath is read when no --config flag is given.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for csn-graph.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, DSNs) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	CSN        CSNConfig        `yaml:"csn"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Graph      GraphConfig      `yaml:"graph"`
	Database   DatabaseConfig   `yaml:"database"`
	Datasource DatasourceConfig `yaml:"datasource"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CSNConfig locates the CSN metadata files.
type CSNConfig struct {
	Directory string `yaml:"directory" env:"CSN_DIRECTORY" env-default:"./csn" validate:"required"`
	// CacheSize bounds the number of decoded CSN documents held in memory.
	CacheSize int `yaml:"cache_size" env:"CSN_CACHE_SIZE" env-default:"32" validate:"min=1"`
}

// DiscoveryConfig tunes relationship discovery.
type DiscoveryConfig struct {
	MinConfidence float64 `yaml:"min_confidence" env:"DISCOVERY_MIN_CONFIDENCE" env-default:"0.5" validate:"min=0,max=1"`
	// BridgeThreshold is the share of a bridge entity's columns that must be
	// foreign keys before it is treated as a many-to-many junction.
	BridgeThreshold float64 `yaml:"bridge_threshold" env:"DISCOVERY_BRIDGE_THRESHOLD" env-default:"0.5" validate:"gt=0,max=1"`
	// OverridesFile is an optional YAML list of manual relationships applied on refresh.
	OverridesFile string `yaml:"overrides_file" env:"DISCOVERY_OVERRIDES_FILE" env-default:""`
}

// GraphConfig controls graph building and caching.
type GraphConfig struct {
	MaxRecordsPerTable int    `yaml:"max_records_per_table" env:"GRAPH_MAX_RECORDS_PER_TABLE" env-default:"20" validate:"min=1,max=100"`
	// FilterOrphans and UseCache default to true in Load. They carry no
	// env-default because cleanenv would overwrite an explicit YAML false.
	FilterOrphans bool   `yaml:"filter_orphans" env:"GRAPH_FILTER_ORPHANS"`
	UseCache      bool   `yaml:"use_cache" env:"GRAPH_USE_CACHE"`
	GraphType     string `yaml:"graph_type" env:"GRAPH_TYPE" env-default:"schema" validate:"oneof=schema data csn"`
}

// DefaultGraphType returns the configured graph type.
func (g *GraphConfig) DefaultGraphType() models.GraphType {
	return models.GraphType(g.GraphType)
}

// DatabaseConfig holds PostgreSQL configuration for the ontology and graph store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432" validate:"min=1,max=65535"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"csn_graph"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10" validate:"min=1"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// DatasourceConfig selects the live data source used for data graphs.
type DatasourceConfig struct {
	// Type is a registered adapter name (postgres, mssql, sqlite). Empty disables data graphs.
	Type string `yaml:"type" env:"DATASOURCE_TYPE" env-default:""`
	DSN  string `yaml:"-" env:"DATASOURCE_DSN"` // Secret - not in YAML
	// Options holds adapter-specific settings, including the data product list.
	Options map[string]any `yaml:"options"`
}

// Enabled reports whether a data source is configured.
func (d *DatasourceConfig) Enabled() bool {
	return d.Type != ""
}

// MetricsConfig controls the Prometheus endpoint started by serve.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"false"`
	Addr    string `yaml:"addr" env:"METRICS_ADDR" env-default:"127.0.0.1:9464"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error: defaults and environment variables apply.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
		Graph: GraphConfig{
			FilterOrphans: true,
			UseCache:      true,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
