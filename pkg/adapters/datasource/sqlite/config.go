package sqlite

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

// MainSchema is the schema name SQLite gives the primary database.
const MainSchema = "main"

// Config locates a SQLite database file.
type Config struct {
	// Path is a filesystem path or a file: URI.
	Path string
	// ReadWrite opens the file writable. Data sources are read-only by default.
	ReadWrite bool
}

// FromDatasourceConfig uses the DSN as the path, falling back to the "path" option.
func FromDatasourceConfig(cfg datasource.Config) (*Config, error) {
	c := &Config{
		Path:      cfg.DSN,
		ReadWrite: datasource.BoolOption(cfg.Options, "read_write"),
	}
	if c.Path == "" {
		c.Path = datasource.StringOption(cfg.Options, "path")
	}
	if c.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return c, nil
}

// ConnectionString returns a go-sqlite3 DSN. Plain paths are opened read-only
// unless ReadWrite is set; file: URIs are used as given.
func (c *Config) ConnectionString() string {
	if strings.HasPrefix(c.Path, "file:") {
		return c.Path
	}
	mode := "ro"
	if c.ReadWrite {
		mode = "rw"
	}
	return fmt.Sprintf("file:%s?mode=%s&_foreign_keys=1", c.Path, mode)
}
