// Package cli implements the csn-graph command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/config"
)

// errReported marks a failure whose structured result was already printed.
var errReported = errors.New("failure reported")

// rootOptions carries the persistent flags and what PersistentPreRunE loads from them.
type rootOptions struct {
	version    string
	configPath string
	debug      bool
	pretty     bool

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	rootCmd, opts := newRootCmd(version)
	err := rootCmd.Execute()
	if opts.logger != nil {
		_ = opts.logger.Sync()
	}
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(version string) (*cobra.Command, *rootOptions) {
	opts := &rootOptions{version: version, out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:           "csn-graph",
		Short:         "CSN metadata graph engine",
		Long:          "Parse CSN metadata, discover relationships and serve cached, queryable graphs of data products, tables and records.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.out = cmd.OutOrStdout()
			if cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(opts.configPath, version)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			logger, err := newLogger(opts.debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "Indent JSON output")

	rootCmd.AddCommand(newVersionCmd(opts))
	rootCmd.AddCommand(newEntitiesCmd(opts))
	rootCmd.AddCommand(newRelationshipsCmd(opts))
	rootCmd.AddCommand(newRefreshCmd(opts))
	rootCmd.AddCommand(newGraphCmd(opts))
	rootCmd.AddCommand(newNeighborsCmd(opts))
	rootCmd.AddCommand(newPathCmd(opts))
	rootCmd.AddCommand(newTraverseCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))

	return rootCmd, opts
}

// newLogger builds a production logger writing to stderr, or a development
// logger with --debug. Stdout is reserved for results and the MCP stdio transport.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// open wires an app for a command. The caller must Close it.
func (o *rootOptions) open(ctx context.Context, opts openOptions) (*app, error) {
	return newApp(ctx, o.cfg, o.logger, opts)
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the csn-graph version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(opts.out, "csn-graph version %s\n", opts.version)
			return err
		},
	}
}
