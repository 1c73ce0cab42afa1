package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/config"
)

// Authentication methods.
const (
	AuthMethodSQL              = "sql"
	AuthMethodServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod determines which authentication to use: "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int

	// DSN, when set, is used verbatim with the sqlserver driver.
	DSN string
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromDatasourceConfig builds a Config from a DSN or, when empty, from options.
func FromDatasourceConfig(cfg datasource.Config) (*Config, error) {
	if cfg.DSN != "" {
		return FromDSN(cfg.DSN)
	}
	return FromMap(cfg.Options)
}

// FromDSN parses a sqlserver:// URL. The database comes from the
// "database" query parameter.
func FromDSN(dsn string) (*Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid sqlserver DSN: %w", err)
	}
	if u.Scheme != "sqlserver" {
		return nil, fmt.Errorf("invalid sqlserver DSN scheme %q", u.Scheme)
	}

	cfg := &Config{
		Host:       u.Hostname(),
		Port:       DefaultPort(),
		Database:   u.Query().Get("database"),
		AuthMethod: AuthMethodSQL,
		DSN:        config.ResolveDSNHostForDocker(dsn),
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid sqlserver port %q", p)
		}
		cfg.Port = n
	}
	return cfg, nil
}

// FromMap creates a Config from a generic config map and auto-detects auth method.
func FromMap(options map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              datasource.IntOption(options, "port", DefaultPort()),
		Encrypt:           true,
		ConnectionTimeout: datasource.IntOption(options, "connection_timeout", DefaultConnectionTimeout()),
	}

	if cfg.Host = datasource.StringOption(options, "host"); cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	cfg.Database = datasource.StringOption(options, "database")
	if cfg.Database == "" {
		// Support legacy "name" field
		cfg.Database = datasource.StringOption(options, "name")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	if _, ok := options["encrypt"]; ok {
		// "strict" is accepted as true
		cfg.Encrypt = datasource.BoolOption(options, "encrypt") || datasource.StringOption(options, "encrypt") == "strict"
	}
	cfg.TrustServerCertificate = datasource.BoolOption(options, "trust_server_certificate")

	username := datasource.StringOption(options, "username")
	if username == "" {
		username = datasource.StringOption(options, "user")
	}

	// Auto-detect auth method or use explicitly provided
	cfg.AuthMethod = datasource.StringOption(options, "auth_method")
	if cfg.AuthMethod == "" {
		switch {
		case datasource.StringOption(options, "client_id") != "":
			cfg.AuthMethod = AuthMethodServicePrincipal
		case username != "":
			cfg.AuthMethod = AuthMethodSQL
		default:
			return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
		}
	}

	switch cfg.AuthMethod {
	case AuthMethodSQL:
		if username == "" {
			return nil, fmt.Errorf("username is required for SQL authentication")
		}
		cfg.Username = username
		// Password can be empty for some scenarios
		cfg.Password = datasource.StringOption(options, "password")

	case AuthMethodServicePrincipal:
		cfg.TenantID = datasource.StringOption(options, "tenant_id")
		cfg.ClientID = datasource.StringOption(options, "client_id")
		cfg.ClientSecret = datasource.StringOption(options, "client_secret")

	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthMethodSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthMethodServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	return nil
}

// DriverName returns the database/sql driver for the auth method.
func (c *Config) DriverName() string {
	if c.AuthMethod == AuthMethodServicePrincipal {
		return "azuresql"
	}
	return "sqlserver"
}

// ConnectionString builds a sqlserver:// URL for the configured auth method.
func (c *Config) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}

	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(c.Host)

	if c.AuthMethod == AuthMethodServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID+"@"+c.TenantID)
		query.Add("password", c.ClientSecret)
		return fmt.Sprintf("sqlserver://%s:%d?%s", host, c.Port, query.Encode())
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		host,
		c.Port,
		query.Encode(),
	)
}
