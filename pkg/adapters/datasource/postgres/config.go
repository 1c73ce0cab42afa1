package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"

	// DSN, when set, is used verbatim instead of the discrete fields.
	DSN string
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromDatasourceConfig builds a Config from a DSN or, when empty, from options.
func FromDatasourceConfig(cfg datasource.Config) (*Config, error) {
	if cfg.DSN != "" {
		return FromDSN(cfg.DSN)
	}
	return FromMap(cfg.Options)
}

// FromDSN parses a postgres:// or postgresql:// URL.
func FromDSN(dsn string) (*Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid postgres DSN scheme %q", u.Scheme)
	}

	cfg := &Config{
		Host:     u.Hostname(),
		Port:     DefaultPort(),
		Database: trimSlash(u.Path),
		SSLMode:  u.Query().Get("sslmode"),
		DSN:      config.ResolveDSNHostForDocker(dsn),
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &cfg.Port); err != nil {
			return nil, fmt.Errorf("invalid postgres port %q", p)
		}
	}
	return cfg, nil
}

func trimSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}

// FromMap creates a Config from a generic config map.
func FromMap(options map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    datasource.IntOption(options, "port", DefaultPort()),
		SSLMode: DefaultSSLMode(),
	}

	if cfg.Host = datasource.StringOption(options, "host"); cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	if cfg.User = datasource.StringOption(options, "user"); cfg.User == "" {
		return nil, fmt.Errorf("user is required")
	}

	cfg.Password = datasource.StringOption(options, "password")

	cfg.Database = datasource.StringOption(options, "database")
	if cfg.Database == "" {
		// Support legacy "name" field
		cfg.Database = datasource.StringOption(options, "name")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode := datasource.StringOption(options, "ssl_mode"); sslMode != "" {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}

// ConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped to handle special characters
// in passwords (e.g., @, /, #, ?) that would otherwise break URL parsing.
// When running in Docker, localhost is resolved to host.docker.internal.
func (c *Config) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		c.Port,
		url.QueryEscape(c.Database),
		sslMode,
	)
}
