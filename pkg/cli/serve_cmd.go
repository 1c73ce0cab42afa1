package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/mcp"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
	"github.com/ekaya-inc/csn-graph/pkg/middleware"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		transport string
		addr      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every operation as MCP tools",
		Long: "Serve the csn-graph MCP tools over stdio (default) or streamable HTTP at /mcp. " +
			"When metrics are enabled, Prometheus metrics are served at /metrics on metrics.addr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != transportStdio && transport != transportHTTP {
				return fmt.Errorf("unsupported transport %q: use %q or %q", transport, transportStdio, transportHTTP)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(ctx, openOptions{store: true, dataSource: true, tolerant: true})
			if err != nil {
				return err
			}
			defer a.Close()

			server := mcp.NewGraphServer(opts.version, a.toolDeps(), opts.logger)

			if opts.cfg.Metrics.Enabled {
				metricsMux := http.NewServeMux()
				metricsMux.Handle("/metrics", metrics.Handler())
				go func() {
					logger := opts.logger.Named("metrics")
					if err := runHTTP(ctx, opts.cfg.Metrics.Addr, middleware.RequestLogger(logger)(metricsMux), logger); err != nil {
						opts.logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
			}

			if transport == transportStdio {
				return server.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}

			logger := opts.logger.Named("http")
			mux := http.NewServeMux()
			mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(server.NewStreamableHTTPServer()))
			return runHTTP(ctx, addr, middleware.RequestLogger(logger)(mux), logger)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", transportStdio, "MCP transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")
	return cmd
}

// runHTTP serves handler on addr until ctx is cancelled, then shuts down gracefully.
func runHTTP(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve on %s: %w", addr, err)
	}
	return nil
}
