package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

func newRelationshipsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "relationships",
		Aliases: []string{"rels"},
		Short:   "Discover and curate entity relationships",
	}
	cmd.AddCommand(newRelationshipsDiscoverCmd(opts))
	cmd.AddCommand(newRelationshipsListCmd(opts))
	cmd.AddCommand(newRelationshipsAddCmd(opts))
	cmd.AddCommand(newRelationshipsVerifyCmd(opts))
	cmd.AddCommand(newRelationshipsDisableCmd(opts))
	cmd.AddCommand(newRelationshipsStatsCmd(opts))
	return cmd
}

func relationshipsPayload(rels []*models.Relationship) map[string]any {
	if rels == nil {
		rels = []*models.Relationship{}
	}
	return map[string]any{"relationships": rels, "count": len(rels)}
}

func newRelationshipsDiscoverCmd(opts *rootOptions) *cobra.Command {
	var minConfidence float64
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run discovery over the CSN corpus without touching the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), openOptions{})
			if err != nil {
				return opts.printResult(nil, err)
			}
			defer a.Close()

			rels, err := a.ontology.DiscoverRelationships(cmd.Context(), minConfidence)
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.printResult(relationshipsPayload(rels), nil)
		},
	}
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum confidence in [0,1]")
	return cmd
}

// storeCommand opens an app with the graph store and runs fn inside a store scope.
func (o *rootOptions) storeCommand(cmd *cobra.Command, withSource bool, fn func(ctx context.Context, a *app) (any, error)) error {
	a, err := o.open(cmd.Context(), openOptions{store: true, dataSource: withSource})
	if err != nil {
		return o.printResult(nil, err)
	}
	defer a.Close()

	var data any
	err = a.withStore(cmd.Context(), func(ctx context.Context) error {
		var fnErr error
		data, fnErr = fn(ctx, a)
		return fnErr
	})
	return o.printResult(data, err)
}

func newRelationshipsListCmd(opts *rootOptions) *cobra.Command {
	var (
		all   bool
		table string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List relationships persisted in the ontology store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.storeCommand(cmd, false, func(ctx context.Context, a *app) (any, error) {
				rels, err := a.ontology.ListRelationships(ctx, !all, table)
				if err != nil {
					return nil, err
				}
				return relationshipsPayload(rels), nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include disabled relationships")
	cmd.Flags().StringVar(&table, "table", "", "Only relationships where this entity is source or target")
	return cmd
}

func newRelationshipsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		rel         models.Relationship
		cardinality string
		notes       string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a manual relationship",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.storeCommand(cmd, false, func(ctx context.Context, a *app) (any, error) {
				if cardinality != "" {
					if !models.IsValidCardinality(cardinality) {
						return nil, fmt.Errorf("invalid cardinality %q: %w", cardinality, apperrors.ErrInvalidInput)
					}
					rel.Cardinality = models.Cardinality(cardinality)
				}
				switch rel.RelationshipType {
				case "", models.RelationshipTypeForeignKey, models.RelationshipTypeAssociation:
				case models.RelationshipTypeComposition:
					rel.IsComposition = true
				default:
					return nil, fmt.Errorf("invalid relationship type %q: %w", rel.RelationshipType, apperrors.ErrInvalidInput)
				}
				if notes != "" {
					rel.Notes = &notes
				}
				return a.ontology.AddManualRelationship(ctx, rel)
			})
		},
	}
	cmd.Flags().StringVar(&rel.FromEntity, "from-entity", "", "Source entity name")
	cmd.Flags().StringVar(&rel.FromColumn, "from-column", "", "Source column name")
	cmd.Flags().StringVar(&rel.ToEntity, "to-entity", "", "Target entity name")
	cmd.Flags().StringVar(&rel.ToColumn, "to-column", "", "Target column name")
	cmd.Flags().StringVar(&rel.RelationshipType, "type", "", "foreign_key (default), composition or association")
	cmd.Flags().StringVar(&cardinality, "cardinality", "", "one_to_one, one_to_many, many_to_one or many_to_many")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-text notes")
	_ = cmd.MarkFlagRequired("from-entity")
	_ = cmd.MarkFlagRequired("from-column")
	_ = cmd.MarkFlagRequired("to-entity")
	return cmd
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid relationship id %q: %w", raw, apperrors.ErrInvalidInput)
	}
	return id, nil
}

func newRelationshipsVerifyCmd(opts *rootOptions) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "verify ID",
		Short: "Mark a relationship as verified by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.storeCommand(cmd, false, func(ctx context.Context, a *app) (any, error) {
				var notesPtr *string
				if cmd.Flags().Changed("notes") {
					notesPtr = &notes
				}
				rel, err := a.ontology.VerifyRelationship(ctx, id, notesPtr)
				if err != nil {
					return nil, err
				}
				if rel == nil {
					return nil, fmt.Errorf("relationship %s: %w", id, apperrors.ErrNotFound)
				}
				return rel, nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Replace the relationship notes")
	return cmd
}

func newRelationshipsDisableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable ID",
		Short: "Disable a relationship; it keeps its slot and is skipped by graph builds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return opts.printResult(nil, err)
			}
			return opts.storeCommand(cmd, false, func(ctx context.Context, a *app) (any, error) {
				disabled, err := a.ontology.DisableRelationship(ctx, id)
				if err != nil {
					return nil, err
				}
				if !disabled {
					return nil, fmt.Errorf("relationship %s: %w", id, apperrors.ErrNotFound)
				}
				return map[string]any{"id": id, "disabled": true}, nil
			})
		},
	}
}

func newRelationshipsStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Ontology statistics by confidence band, discovery method and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.storeCommand(cmd, false, func(ctx context.Context, a *app) (any, error) {
				return a.ontology.GetStatistics(ctx)
			})
		},
	}
}
