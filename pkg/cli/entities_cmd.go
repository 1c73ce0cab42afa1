package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

func newEntitiesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Inspect the CSN entity catalog",
	}
	cmd.AddCommand(newEntitiesListCmd(opts))
	cmd.AddCommand(newEntitiesShowCmd(opts))
	cmd.AddCommand(newEntitiesStatsCmd(opts))
	return cmd
}

func newEntitiesListCmd(opts *rootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entity simple names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), openOptions{})
			if err != nil {
				return opts.printResult(nil, err)
			}
			defer a.Close()

			needle := strings.ToLower(filter)
			names := make([]string, 0)
			for _, name := range a.parser.ListEntities() {
				if needle == "" || strings.Contains(strings.ToLower(name), needle) {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			return opts.printResult(map[string]any{"entities": names, "count": len(names)}, nil)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Keep names containing this case-insensitive substring")
	return cmd
}

func newEntitiesShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show the columns, keys and associations of one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), openOptions{})
			if err != nil {
				return opts.printResult(nil, err)
			}
			defer a.Close()

			entity, err := a.parser.GetEntityMetadata(args[0])
			if err != nil {
				return opts.printResult(nil, err)
			}
			if entity == nil {
				return opts.printResult(nil, fmt.Errorf("entity %q: %w", args[0], apperrors.ErrNotFound))
			}
			return opts.printResult(map[string]any{
				"entity":       entity,
				"foreign_keys": a.parser.GetForeignKeys(entity.Name),
			}, nil)
		},
	}
}

func newEntitiesStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize associations: cardinalities, many-to-many bridges and complexity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), openOptions{})
			if err != nil {
				return opts.printResult(nil, err)
			}
			defer a.Close()

			pairs := a.assocs.FindManyToManyRelationships()
			if pairs == nil {
				pairs = []models.ManyToManyPair{}
			}
			return opts.printResult(map[string]any{
				"cardinality":  a.assocs.GetCardinalityStatistics(),
				"many_to_many": pairs,
				"complexity":   a.assocs.GetRelationshipComplexityMetrics(),
			}, nil)
		},
	}
}
