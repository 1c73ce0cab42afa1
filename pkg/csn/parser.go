package csn

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/jsonutil"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// CDS types that mark an element as an association rather than a column.
const (
	TypeAssociation = "cds.Association"
	TypeComposition = "cds.Composition"
)

type rawObject = orderedmap.OrderedMap[string, json.RawMessage]

type definition struct {
	Kind     string     `json:"kind"`
	Elements *rawObject `json:"elements"`
}

type element struct {
	Type        json.RawMessage   `json:"type"`
	Target      string            `json:"target"`
	Cardinality *cardinality      `json:"cardinality"`
	Keys        []keyRef          `json:"keys"`
	On          []json.RawMessage `json:"on"`
	Length      json.RawMessage   `json:"length"`
	Scale       json.RawMessage   `json:"scale"`
	Key         json.RawMessage   `json:"key"`
	NotNull     json.RawMessage   `json:"notNull"`
}

type cardinality struct {
	Src json.RawMessage `json:"src"`
	Min json.RawMessage `json:"min"`
	Max json.RawMessage `json:"max"`
}

type keyRef struct {
	Ref []json.RawMessage `json:"ref"`
}

// Parser indexes the entities of a CSN directory and extracts typed metadata.
// The entity index and parsed entities are memoized until ClearCache.
type Parser struct {
	store  *FileStore
	logger *zap.Logger

	mu       sync.Mutex
	index    map[string]string // simple name -> file path
	order    []string
	entities map[string]*models.Entity
}

// NewParser creates a parser over store.
func NewParser(store *FileStore, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		store:  store,
		logger: logger.Named("csn-parser"),
	}
}

// ClearCache resets the document cache, the entity index and parsed entities.
func (p *Parser) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.store.ClearCache()
	p.index = nil
	p.order = nil
	p.entities = nil
}

// ListEntities returns the simple names of every entity in the corpus.
func (p *Parser) ListEntities() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureIndexLocked()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// GetEntityMetadata returns the parsed entity, or nil when it does not exist.
func (p *Parser) GetEntityMetadata(name string) (*models.Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.entityLocked(models.SimpleName(name))
}

// Entities returns every parsed entity in index order. Entities whose file can
// no longer be read are skipped.
func (p *Parser) Entities() []*models.Entity {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureIndexLocked()
	out := make([]*models.Entity, 0, len(p.order))
	for _, name := range p.order {
		entity, err := p.entityLocked(name)
		if err != nil {
			p.logger.Warn("Skipping entity", zap.String("entity", name), zap.Error(err))
			continue
		}
		if entity != nil {
			out = append(out, entity)
		}
	}
	return out
}

// GetPrimaryKeys returns the key columns of name in declared order.
func (p *Parser) GetPrimaryKeys(name string) []string {
	entity, err := p.GetEntityMetadata(name)
	if err != nil || entity == nil {
		return nil
	}
	return append([]string(nil), entity.PrimaryKeys...)
}

// GetForeignKeys derives column references from the many-to-one associations of name.
func (p *Parser) GetForeignKeys(name string) []models.ForeignKey {
	entity, err := p.GetEntityMetadata(name)
	if err != nil || entity == nil {
		return nil
	}

	var fks []models.ForeignKey
	for _, assoc := range entity.Associations {
		if assoc.Cardinality != models.CardinalityManyToOne {
			continue
		}
		fks = append(fks, AssociationForeignKeys(assoc, p.GetPrimaryKeys(assoc.TargetEntity))...)
	}
	return fks
}

// GetColumnMetadata returns one column of an entity, or nil when either is missing.
func (p *Parser) GetColumnMetadata(entityName, columnName string) (*models.Column, error) {
	entity, err := p.GetEntityMetadata(entityName)
	if err != nil || entity == nil {
		return nil, err
	}
	col := entity.Column(columnName)
	if col == nil {
		return nil, nil
	}
	c := *col
	return &c, nil
}

func (p *Parser) ensureIndexLocked() {
	if p.index != nil {
		return
	}

	p.index = make(map[string]string)
	p.order = nil
	p.entities = make(map[string]*models.Entity)

	files, err := p.store.Files()
	if err != nil {
		p.logger.Error("Failed to list CSN files", zap.String("dir", p.store.Dir()), zap.Error(err))
		return
	}

	for _, path := range files {
		doc, err := p.store.Load(path)
		if err != nil {
			p.logger.Warn("Skipping unreadable CSN file", zap.String("file", path), zap.Error(err))
			metrics.CSNFilesSkipped.Inc()
			continue
		}

		for pair := doc.Definitions.Oldest(); pair != nil; pair = pair.Next() {
			var def definition
			if err := json.Unmarshal(pair.Value, &def); err != nil || def.Kind != models.EntityKind {
				continue
			}
			simple := models.SimpleName(pair.Key)
			if existing, ok := p.index[simple]; ok {
				p.logger.Warn("Duplicate entity name, keeping first definition",
					zap.String("entity", simple),
					zap.String("kept", existing),
					zap.String("ignored", path))
				continue
			}
			p.index[simple] = path
			p.order = append(p.order, simple)
		}
	}

	p.logger.Info("Indexed CSN entities",
		zap.Int("files", len(files)),
		zap.Int("entities", len(p.order)))
}

func (p *Parser) entityLocked(name string) (*models.Entity, error) {
	p.ensureIndexLocked()

	if entity, ok := p.entities[name]; ok {
		return entity, nil
	}

	path, ok := p.index[name]
	if !ok {
		return nil, nil
	}

	doc, err := p.store.Load(path)
	if err != nil {
		return nil, err
	}

	qualified, raw, ok := findDefinition(doc.Definitions, name)
	if !ok {
		return nil, nil
	}

	entity, err := p.parseEntity(qualified, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse entity %s in %s: %w", name, path, err)
	}
	entity.SourceFile = path

	p.entities[name] = entity
	return entity, nil
}

// findDefinition returns the first entity definition whose key equals name or
// ends in "."+name.
func findDefinition(defs *Definitions, name string) (string, json.RawMessage, bool) {
	suffix := "." + name
	for pair := defs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != name && !strings.HasSuffix(pair.Key, suffix) {
			continue
		}
		var def definition
		if err := json.Unmarshal(pair.Value, &def); err != nil || def.Kind != models.EntityKind {
			continue
		}
		return pair.Key, pair.Value, true
	}
	return "", nil, false
}

func (p *Parser) parseEntity(qualified string, raw json.RawMessage) (*models.Entity, error) {
	fields, keys, err := decodeOrdered(raw)
	if err != nil {
		return nil, err
	}

	var def definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, err
	}

	name := models.SimpleName(qualified)
	entity := &models.Entity{
		QualifiedName: qualified,
		Name:          name,
		Kind:          models.EntityKind,
		Label:         collectAnnotations(keys, fields).label(),
		Columns:       []models.Column{},
		PrimaryKeys:   []string{},
		Associations:  []models.Association{},
	}
	if entity.Label == "" {
		entity.Label = name
	}

	if def.Elements == nil {
		return entity, nil
	}

	for pair := def.Elements.Oldest(); pair != nil; pair = pair.Next() {
		elemFields, elemKeys, err := decodeOrdered(pair.Value)
		if err != nil {
			p.logger.Warn("Skipping malformed element",
				zap.String("entity", name),
				zap.String("element", pair.Key),
				zap.Error(err))
			continue
		}

		var el element
		if err := json.Unmarshal(pair.Value, &el); err != nil {
			p.logger.Warn("Skipping malformed element",
				zap.String("entity", name),
				zap.String("element", pair.Key),
				zap.Error(err))
			continue
		}

		typeName, isRef := elementType(el.Type)
		if isAssociation(typeName, isRef, el.Target) {
			assoc, ok := parseAssociation(name, pair.Key, typeName, el)
			if !ok {
				p.logger.Warn("Skipping association without target",
					zap.String("entity", name),
					zap.String("association", pair.Key))
				continue
			}
			entity.Associations = append(entity.Associations, assoc)
			continue
		}

		if typeName == "" {
			continue
		}

		col := parseColumn(pair.Key, typeName, el, collectAnnotations(elemKeys, elemFields))
		entity.Columns = append(entity.Columns, col)
		if col.IsKey {
			entity.PrimaryKeys = append(entity.PrimaryKeys, col.Name)
		}
	}

	return entity, nil
}

func parseColumn(name, typeName string, el element, ann annotations) models.Column {
	isKey := jsonutil.FlexibleBoolValue(el.Key)
	notNull := jsonutil.FlexibleBoolValue(el.NotNull)
	semanticType, semanticProps := ann.semantics()

	return models.Column{
		Name:               name,
		Type:               typeName,
		Length:             jsonutil.FlexibleIntValue(el.Length),
		Scale:              jsonutil.FlexibleIntValue(el.Scale),
		IsKey:              isKey,
		Nullable:           !isKey && !notNull,
		Label:              ann.label(),
		Description:        ann.description(),
		SemanticType:       semanticType,
		SemanticProperties: semanticProps,
		Annotations:        ann.values(),
	}
}

// elementType returns the type name of an element. isRef is true when the
// type is an object carrying a ref.
func elementType(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, false
	}
	var obj keyRef
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.Ref) > 0 {
		return joinRef(obj.Ref), true
	}
	return "", false
}

func isAssociation(typeName string, isRef bool, target string) bool {
	if typeName == TypeAssociation || typeName == TypeComposition || isRef {
		return true
	}
	return typeName == "" && target != ""
}

func parseAssociation(source, field, typeName string, el element) (models.Association, bool) {
	if strings.TrimSpace(el.Target) == "" {
		return models.Association{}, false
	}

	assoc := models.Association{
		SourceEntity:  source,
		FieldName:     field,
		TargetEntity:  models.SimpleName(el.Target),
		Cardinality:   associationCardinality(el.Cardinality),
		Conditions:    ParseOnClause(el.On),
		IsComposition: typeName == TypeComposition,
		Confidence:    1.0,
	}
	for _, k := range el.Keys {
		if len(k.Ref) > 0 {
			assoc.ForeignKeys = append(assoc.ForeignKeys, refSegment(k.Ref[0]))
		}
	}
	return assoc, true
}

// associationCardinality maps CSN {src, max} to a cardinality. max "*" means
// the target end is many.
func associationCardinality(c *cardinality) models.Cardinality {
	if c == nil {
		return models.CardinalityManyToOne
	}
	targetMany := jsonutil.FlexibleStringValue(c.Max) == "*"
	src := jsonutil.FlexibleStringValue(c.Src)

	switch {
	case targetMany && src == "*":
		return models.CardinalityManyToMany
	case targetMany:
		return models.CardinalityOneToMany
	case src == "1":
		return models.CardinalityOneToOne
	default:
		return models.CardinalityManyToOne
	}
}

// AssociationForeignKeys derives column references for assoc. Managed keys
// reference same-named target elements; ON-conditions pair the local column
// with the path behind the association name. Without either, the field
// references the first target primary key.
func AssociationForeignKeys(assoc models.Association, targetPKs []string) []models.ForeignKey {
	var fks []models.ForeignKey

	for _, k := range assoc.ForeignKeys {
		fks = append(fks, models.ForeignKey{
			Column:           k,
			ReferencesTable:  assoc.TargetEntity,
			ReferencesColumn: k,
		})
	}
	if len(fks) > 0 {
		return fks
	}

	prefix := assoc.FieldName + "."
	for _, c := range assoc.Conditions {
		if c.Operator != "=" {
			continue
		}
		local, remote := c.Left, c.Right
		if strings.HasPrefix(local, prefix) {
			local, remote = remote, local
		}
		// backlinks ($self) describe the reverse direction
		if !strings.HasPrefix(remote, prefix) || strings.HasPrefix(local, prefix) || local == "$self" {
			continue
		}
		fks = append(fks, models.ForeignKey{
			Column:           strings.TrimPrefix(local, "$self."),
			ReferencesTable:  assoc.TargetEntity,
			ReferencesColumn: strings.TrimPrefix(remote, prefix),
		})
	}
	if len(fks) > 0 {
		return fks
	}

	ref := ""
	if len(targetPKs) > 0 {
		ref = targetPKs[0]
	}
	return []models.ForeignKey{{
		Column:           assoc.FieldName,
		ReferencesTable:  assoc.TargetEntity,
		ReferencesColumn: ref,
	}}
}

func decodeOrdered(raw json.RawMessage) (map[string]json.RawMessage, []string, error) {
	om := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, om); err != nil {
		return nil, nil, err
	}
	fields := make(map[string]json.RawMessage, om.Len())
	keys := make([]string, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		fields[pair.Key] = pair.Value
		keys = append(keys, pair.Key)
	}
	return fields, keys, nil
}
