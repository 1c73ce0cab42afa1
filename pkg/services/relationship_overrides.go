package services

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// RelationshipOverride is one manual relationship declared in the overrides file.
type RelationshipOverride struct {
	FromEntity    string `yaml:"from_entity" validate:"required"`
	FromColumn    string `yaml:"from_column" validate:"required"`
	ToEntity      string `yaml:"to_entity" validate:"required"`
	ToColumn      string `yaml:"to_column"`
	Type          string `yaml:"relationship_type" validate:"omitempty,oneof=foreign_key composition association"`
	Cardinality   string `yaml:"cardinality" validate:"omitempty,oneof=one_to_one one_to_many many_to_one many_to_many"`
	IsComposition bool   `yaml:"is_composition"`
	Notes         string `yaml:"notes"`
}

type overridesFile struct {
	Relationships []RelationshipOverride `yaml:"relationships" validate:"dive"`
}

var overrideValidator = validator.New()

// LoadRelationshipOverrides reads a YAML overrides file of the form
//
//	relationships:
//	  - from_entity: Invoice
//	    from_column: PurchaseOrder
//	    to_entity: PurchaseOrder
//	    to_column: PurchaseOrder
func LoadRelationshipOverrides(path string) ([]models.Relationship, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}
	return ParseRelationshipOverrides(data)
}

// ParseRelationshipOverrides decodes and validates overrides YAML.
func ParseRelationshipOverrides(data []byte) ([]models.Relationship, error) {
	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid overrides file: %w: %w", apperrors.ErrParse, err)
	}
	if err := overrideValidator.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid overrides file: %w: %w", apperrors.ErrInvalidInput, err)
	}

	rels := make([]models.Relationship, 0, len(file.Relationships))
	for _, o := range file.Relationships {
		rel := models.Relationship{
			FromEntity:       o.FromEntity,
			FromColumn:       o.FromColumn,
			ToEntity:         o.ToEntity,
			ToColumn:         o.ToColumn,
			RelationshipType: o.Type,
			Cardinality:      models.Cardinality(o.Cardinality),
			IsComposition:    o.IsComposition,
		}
		if o.Notes != "" {
			notes := o.Notes
			rel.Notes = &notes
		}
		rels = append(rels, rel)
	}
	return rels, nil
}
