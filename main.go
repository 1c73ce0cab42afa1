package main

import (
	"os"

	"github.com/ekaya-inc/csn-graph/pkg/cli"

	// Data source adapters register themselves in init().
	_ "github.com/ekaya-inc/csn-graph/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/csn-graph/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/csn-graph/pkg/adapters/datasource/sqlite"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(cli.Execute(Version))
}
