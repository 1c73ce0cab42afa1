package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/csn-graph/pkg/models"
	"github.com/ekaya-inc/csn-graph/pkg/services"
)

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the ontology and every supported graph",
		Long: "Clear the CSN caches and the relationship store, rediscover relationships, " +
			"clear every cached graph and rebuild each graph type the configured backends support.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.storeCommand(cmd, true, func(ctx context.Context, a *app) (any, error) {
				return a.graphs.Refresh(ctx)
			})
		},
	}
}

// parseGraphTypeFlag maps an empty flag to the configured default.
func parseGraphTypeFlag(raw string) (models.GraphType, error) {
	if raw == "" {
		return "", nil
	}
	return models.ParseGraphType(raw)
}

func newGraphCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build, fetch and manage cached graphs",
	}
	cmd.AddCommand(newGraphGetCmd(opts))
	cmd.AddCommand(newGraphStatusCmd(opts))
	cmd.AddCommand(newGraphClearCmd(opts))
	return cmd
}

func newGraphGetCmd(opts *rootOptions) *cobra.Command {
	var (
		graphType   string
		noCache     bool
		maxRecords  int
		keepOrphans bool
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a graph, served from the cache when allowed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gt, err := parseGraphTypeFlag(graphType)
			if err != nil {
				return opts.printResult(nil, err)
			}
			req := services.GraphRequest{GraphType: gt, MaxRecordsPerTable: maxRecords}
			if cmd.Flags().Changed("no-cache") {
				useCache := !noCache
				req.UseCache = &useCache
			}
			if cmd.Flags().Changed("keep-orphans") {
				filter := !keepOrphans
				req.FilterOrphans = &filter
			}
			return opts.storeCommand(cmd, true, func(ctx context.Context, a *app) (any, error) {
				return a.graphs.GetGraph(ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&graphType, "type", "t", "", "schema, data or csn (default from configuration)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Rebuild instead of serving a cached snapshot")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "Data graphs only: records sampled per table, 1..100")
	cmd.Flags().BoolVar(&keepOrphans, "keep-orphans", false, "Data graphs only: keep records without edges")
	return cmd
}

func newGraphStatusCmd(opts *rootOptions) *cobra.Command {
	var graphType string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a graph snapshot is cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gt, err := parseGraphTypeFlag(graphType)
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.storeCommand(cmd, false, func(ctx context.Context, a *app) (any, error) {
				if gt == "" {
					gt = a.cfg.Graph.DefaultGraphType()
				}
				return a.graphs.CacheStatus(ctx, gt)
			})
		},
	}
	cmd.Flags().StringVarP(&graphType, "type", "t", "", "schema, data or csn (default from configuration)")
	return cmd
}

func newGraphClearCmd(opts *rootOptions) *cobra.Command {
	var graphType string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete one cached graph snapshot, or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gt, err := parseGraphTypeFlag(graphType)
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.storeCommand(cmd, false, func(ctx context.Context, a *app) (any, error) {
				if gt == "" {
					if err := a.graphs.ClearCache(ctx, nil); err != nil {
						return nil, err
					}
					return map[string]any{"cleared": models.AllGraphTypes}, nil
				}
				if err := a.graphs.ClearCache(ctx, &gt); err != nil {
					return nil, err
				}
				return map[string]any{"cleared": []models.GraphType{gt}}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&graphType, "type", "t", "", "schema, data or csn (all when omitted)")
	return cmd
}
