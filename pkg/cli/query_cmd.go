package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/csn-graph/pkg/services"
)

// queryFlags are shared by the graph query commands.
type queryFlags struct {
	graphType string
	direction string
	edgeTypes []string
}

func (f *queryFlags) register(cmd *cobra.Command, withDirection bool) {
	cmd.Flags().StringVarP(&f.graphType, "type", "t", "", "schema, data or csn (default from configuration)")
	if withDirection {
		cmd.Flags().StringVarP(&f.direction, "direction", "d", "both", "outgoing, incoming or both")
		cmd.Flags().StringSliceVarP(&f.edgeTypes, "edge-type", "e", nil, "Only follow these edge types (repeatable)")
	}
}

func newNeighborsCmd(opts *rootOptions) *cobra.Command {
	var (
		flags queryFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "neighbors NODE_KEY",
		Short: "List nodes one edge away from a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gt, err := parseGraphTypeFlag(flags.graphType)
			if err != nil {
				return opts.printResult(nil, err)
			}
			dir, err := services.ParseDirection(flags.direction)
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.storeCommand(cmd, true, func(ctx context.Context, a *app) (any, error) {
				neighbors, err := a.graphs.GetNeighbors(ctx, gt, args[0], dir, flags.edgeTypes, limit)
				if err != nil {
					return nil, err
				}
				return map[string]any{"node_key": args[0], "neighbors": neighbors, "count": len(neighbors)}, nil
			})
		},
	}
	flags.register(cmd, true)
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum neighbors to return (0 = no limit)")
	return cmd
}

func newPathCmd(opts *rootOptions) *cobra.Command {
	var (
		flags   queryFlags
		maxHops int
	)
	cmd := &cobra.Command{
		Use:   "path START END",
		Short: "Find the shortest directed path between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gt, err := parseGraphTypeFlag(flags.graphType)
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.storeCommand(cmd, true, func(ctx context.Context, a *app) (any, error) {
				path, err := a.graphs.ShortestPath(ctx, gt, args[0], args[1], maxHops)
				if err != nil {
					return nil, err
				}
				return map[string]any{"found": path != nil, "path": path}, nil
			})
		},
	}
	flags.register(cmd, false)
	cmd.Flags().IntVar(&maxHops, "max-hops", services.DefaultMaxHops, "Maximum path length in edges")
	return cmd
}

func newTraverseCmd(opts *rootOptions) *cobra.Command {
	var (
		flags queryFlags
		depth int
	)
	cmd := &cobra.Command{
		Use:   "traverse START",
		Short: "List every node within --depth edges of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gt, err := parseGraphTypeFlag(flags.graphType)
			if err != nil {
				return opts.printResult(nil, err)
			}
			dir, err := services.ParseDirection(flags.direction)
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.storeCommand(cmd, true, func(ctx context.Context, a *app) (any, error) {
				nodes, err := a.graphs.Traverse(ctx, gt, args[0], depth, dir, flags.edgeTypes)
				if err != nil {
					return nil, err
				}
				return map[string]any{"start": args[0], "nodes": nodes, "count": len(nodes)}, nil
			})
		},
	}
	flags.register(cmd, true)
	cmd.Flags().IntVar(&depth, "depth", 2, "Maximum depth in edges")
	return cmd
}
