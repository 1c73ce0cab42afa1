package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/audit"
	"github.com/ekaya-inc/csn-graph/pkg/logging"
	"github.com/ekaya-inc/csn-graph/pkg/models"
	sqlpkg "github.com/ekaya-inc/csn-graph/pkg/sql"
)

// Record sampling bounds.
const (
	DefaultMaxRecordsPerTable = 20
	MaxRecordsPerTableLimit   = 100
)

// csnSchema is the schema segment of table keys in CSN graphs.
const csnSchema = "csn"

// GraphBuildOptions selects and tunes a graph build.
type GraphBuildOptions struct {
	GraphType          models.GraphType
	MaxRecordsPerTable int
	FilterOrphans      bool
}

// Validate checks the graph type and the sampling bound.
func (o GraphBuildOptions) Validate() error {
	if _, err := models.ParseGraphType(string(o.GraphType)); err != nil {
		return err
	}
	if o.GraphType == models.GraphTypeData &&
		(o.MaxRecordsPerTable < 1 || o.MaxRecordsPerTable > MaxRecordsPerTableLimit) {
		return fmt.Errorf("max_records_per_table %d outside [1,%d]: %w",
			o.MaxRecordsPerTable, MaxRecordsPerTableLimit, apperrors.ErrInvalidInput)
	}
	return nil
}

// GraphBuilder materializes graphs from a data source, the CSN corpus and
// the relationship ontology.
type GraphBuilder interface {
	Build(ctx context.Context, opts GraphBuildOptions, rels []*models.Relationship) (*models.Graph, error)

	// Supports reports whether graphType can be built. Schema and data graphs need a data source.
	Supports(graphType models.GraphType) bool
}

type graphBuilder struct {
	source   datasource.DataSource // nil when no data source is configured
	entities EntityCatalog
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewGraphBuilder creates a GraphBuilder. source may be nil, in which case
// only CSN graphs can be built.
func NewGraphBuilder(source datasource.DataSource, entities EntityCatalog, logger *zap.Logger) GraphBuilder {
	return &graphBuilder{
		source:   source,
		entities: entities,
		auditor:  audit.NewSecurityAuditor(logger),
		logger:   logger.Named("graph-builder"),
	}
}

var _ GraphBuilder = (*graphBuilder)(nil)

func (b *graphBuilder) Supports(graphType models.GraphType) bool {
	if graphType == models.GraphTypeCSN {
		return b.entities != nil
	}
	return b.source != nil
}

func (b *graphBuilder) Build(ctx context.Context, opts GraphBuildOptions, rels []*models.Relationship) (*models.Graph, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		graph *models.Graph
		err   error
	)
	switch opts.GraphType {
	case models.GraphTypeSchema:
		graph, err = b.buildSchemaGraph(ctx, rels)
	case models.GraphTypeData:
		graph, err = b.buildDataGraph(ctx, rels, opts)
	case models.GraphTypeCSN:
		if b.entities == nil {
			return nil, fmt.Errorf("no CSN catalog configured: %w", apperrors.ErrSourceUnavailable)
		}
		graph = b.buildCSNGraph(rels)
	}
	if err != nil {
		return nil, err
	}

	graph.ComputeStats()
	b.logger.Info("Graph built",
		zap.String("graph_type", string(opts.GraphType)),
		zap.Int("nodes", graph.Stats.NodeCount),
		zap.Int("edges", graph.Stats.EdgeCount),
		zap.Duration("duration", time.Since(start)))
	return graph, nil
}

// tableRef is a physical table placed in the graph.
type tableRef struct {
	key     string
	schema  string
	name    string
	product string
}

func tableKey(schema, table string) string {
	return "table-" + schema + "-" + table
}

func productKey(product string) string {
	return "product-" + product
}

func (b *graphBuilder) requireSource() error {
	if b.source == nil {
		return fmt.Errorf("no data source configured: %w", apperrors.ErrSourceUnavailable)
	}
	return nil
}

// collectTables lists every product and its tables. A table in several
// products belongs to the first.
func (b *graphBuilder) collectTables(ctx context.Context) ([]datasource.DataProduct, []*tableRef, error) {
	products, err := b.source.GetDataProducts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list data products: %s: %w", logging.SanitizeError(err), apperrors.ErrSourceUnavailable)
	}

	seen := make(map[string]bool)
	var tables []*tableRef
	for _, p := range products {
		list, err := b.source.GetTables(ctx, p.SchemaName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list tables of %s: %s: %w", p.SchemaName, logging.SanitizeError(err), apperrors.ErrSourceUnavailable)
		}
		for _, t := range list {
			schema := t.Schema
			if schema == "" {
				schema = p.SchemaName
			}
			key := tableKey(schema, t.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			tables = append(tables, &tableRef{key: key, schema: schema, name: t.Name, product: p.ProductName})
		}
	}
	return products, tables, nil
}

func (b *graphBuilder) buildSchemaGraph(ctx context.Context, rels []*models.Relationship) (*models.Graph, error) {
	if err := b.requireSource(); err != nil {
		return nil, err
	}

	products, tables, err := b.collectTables(ctx)
	if err != nil {
		return nil, err
	}

	graph := &models.Graph{
		GraphType:   models.GraphTypeSchema,
		Description: fmt.Sprintf("Schema graph of %d data products", len(products)),
		Nodes:       make([]models.GraphNode, 0, len(products)+len(tables)),
		Edges:       make([]models.GraphEdge, 0),
	}

	for _, p := range products {
		label := p.DisplayName
		if label == "" {
			label = p.ProductName
		}
		props := map[string]any{"schema": p.SchemaName}
		if p.Description != "" {
			props["description"] = p.Description
		}
		graph.Nodes = append(graph.Nodes, models.GraphNode{
			Key:        productKey(p.ProductName),
			Label:      label,
			Type:       models.NodeTypeProduct,
			Properties: styleNode(props, models.NodeTypeProduct, p.ProductName),
		})
	}

	entities := b.entityIndex()
	index := newNameIndex[*tableRef]()
	for _, t := range tables {
		index.add(t.name, t)
		props := map[string]any{"schema": t.schema, "table": t.name, "product": t.product}
		if e, ok := entities.resolve(t.name); ok {
			props["entity"] = e.QualifiedName
			if e.Label != "" {
				props["title"] = e.Label
			}
		}
		graph.Nodes = append(graph.Nodes, models.GraphNode{
			Key:        t.key,
			Label:      t.name,
			Type:       models.NodeTypeTable,
			Properties: styleNode(props, models.NodeTypeTable, t.product),
		})
		graph.Edges = append(graph.Edges, models.GraphEdge{
			From:       productKey(t.product),
			To:         t.key,
			Type:       models.EdgeTypeContains,
			Properties: styleEdge(nil, models.EdgeTypeContains),
		})
	}

	for _, rel := range rels {
		from, okFrom := index.resolve(rel.FromEntity)
		to, okTo := index.resolve(rel.ToEntity)
		if !okFrom || !okTo || from.key == to.key {
			continue
		}
		graph.Edges = append(graph.Edges, relationshipEdge(from.key, to.key, rel))
	}

	return graph, nil
}

// entityIndex maps physical table names to CSN entities.
func (b *graphBuilder) entityIndex() *nameIndex[*models.Entity] {
	idx := newNameIndex[*models.Entity]()
	if b.entities == nil {
		return idx
	}
	for _, e := range b.entities.Entities() {
		idx.add(e.Name, e)
	}
	return idx
}

// relationshipEdge carries ontology metadata onto a graph edge.
func relationshipEdge(from, to string, rel *models.Relationship) models.GraphEdge {
	edgeType := models.EdgeTypeFK
	switch {
	case rel.IsComposition || rel.RelationshipType == models.RelationshipTypeComposition:
		edgeType = models.EdgeTypeComposition
	case rel.RelationshipType == models.RelationshipTypeAssociation:
		edgeType = models.EdgeTypeAssociation
	}

	props := map[string]any{
		"from_column":      rel.FromColumn,
		"to_column":        rel.ToColumn,
		"cardinality":      rel.Cardinality.Short(),
		"is_composition":   rel.IsComposition,
		"is_many_to_many":  rel.IsManyToMany,
		"confidence":       rel.Confidence,
		"discovery_method": rel.DiscoveryMethod,
	}
	if len(rel.Conditions) > 0 {
		props["on_clause"] = models.SummarizeConditions(rel.Conditions)
	}
	if rel.ID != uuid.Nil {
		props["relationship_id"] = rel.ID.String()
	}

	return models.GraphEdge{
		From:       from,
		To:         to,
		Type:       edgeType,
		Label:      rel.FromColumn,
		Properties: styleEdge(props, edgeType),
	}
}

func (b *graphBuilder) buildCSNGraph(rels []*models.Relationship) *models.Graph {
	entities := b.entities.Entities()
	graph := &models.Graph{
		GraphType:   models.GraphTypeCSN,
		Description: fmt.Sprintf("CSN entity graph of %d entities", len(entities)),
		Nodes:       make([]models.GraphNode, 0, len(entities)),
		Edges:       make([]models.GraphEdge, 0),
	}

	keys := make(map[string]string, len(entities))
	for _, e := range entities {
		if _, dup := keys[e.Name]; dup {
			continue
		}
		key := tableKey(csnSchema, e.Name)
		keys[e.Name] = key

		namespace := ""
		if i := strings.LastIndex(e.QualifiedName, "."); i >= 0 {
			namespace = e.QualifiedName[:i]
		}
		label := e.Name
		if e.Label != "" {
			label = e.Label
		}
		props := map[string]any{
			"qualified_name": e.QualifiedName,
			"namespace":      namespace,
			"primary_keys":   e.PrimaryKeys,
			"column_count":   len(e.Columns),
		}
		graph.Nodes = append(graph.Nodes, models.GraphNode{
			Key:        key,
			Label:      label,
			Type:       models.NodeTypeTable,
			Properties: styleNode(props, models.NodeTypeTable, namespace),
		})
	}

	for _, rel := range rels {
		from, okFrom := keys[rel.FromEntity]
		to, okTo := keys[rel.ToEntity]
		if !okFrom || !okTo || from == to {
			continue
		}
		graph.Edges = append(graph.Edges, relationshipEdge(from, to, rel))
	}

	return graph
}

// sampledTable is one table's record sample.
type sampledTable struct {
	ref     *tableRef
	columns *nameIndex[string]
	pks     []string
	records []sampledRecord
}

type sampledRecord struct {
	key string
	row map[string]any
}

func (b *graphBuilder) buildDataGraph(ctx context.Context, rels []*models.Relationship, opts GraphBuildOptions) (*models.Graph, error) {
	if err := b.requireSource(); err != nil {
		return nil, err
	}

	_, tables, err := b.collectTables(ctx)
	if err != nil {
		return nil, err
	}

	graph := &models.Graph{
		GraphType: models.GraphTypeData,
		Nodes:     make([]models.GraphNode, 0),
		Edges:     make([]models.GraphEdge, 0),
	}

	index := newNameIndex[*sampledTable]()
	var sampled []*sampledTable
	for _, t := range tables {
		st, dropped, err := b.sampleTable(ctx, t, opts.MaxRecordsPerTable)
		graph.Stats.RecordsDropped += dropped
		if err != nil {
			b.logger.Warn("Skipping table sample",
				zap.String("table", t.schema+"."+t.name),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		sampled = append(sampled, st)
		index.add(t.name, st)

		for _, rec := range st.records {
			props := map[string]any{
				"schema":  t.schema,
				"table":   t.name,
				"product": t.product,
				"values":  rec.row,
			}
			graph.Nodes = append(graph.Nodes, models.GraphNode{
				Key:        rec.key,
				Label:      t.name + " " + strings.TrimPrefix(rec.key, "record-"+t.schema+"-"+t.name+"-"),
				Type:       models.NodeTypeRecord,
				Properties: styleNode(props, models.NodeTypeRecord, t.product),
			})
		}
	}

	for _, rel := range rels {
		src, okSrc := index.resolve(rel.FromEntity)
		dst, okDst := index.resolve(rel.ToEntity)
		if !okSrc || !okDst {
			continue
		}
		graph.Edges = append(graph.Edges, matchRecords(src, dst, rel)...)
	}

	graph.Stats.TotalNodesBeforeFilter = len(graph.Nodes)
	if opts.FilterOrphans {
		graph.Nodes, graph.Stats.OrphansFiltered = filterOrphans(graph.Nodes, graph.Edges)
	}
	graph.Description = fmt.Sprintf("Data graph of %d sampled tables", len(sampled))

	return graph, nil
}

// sampleTable reads up to limit records ordered by primary key. Records whose
// primary key values are all missing are dropped and counted.
func (b *graphBuilder) sampleTable(ctx context.Context, t *tableRef, limit int) (*sampledTable, int, error) {
	columns, err := b.source.GetTableStructure(ctx, t.schema, t.name)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read table structure: %w", err)
	}
	pks := datasource.PrimaryKeys(columns)
	if len(pks) == 0 {
		return nil, 0, fmt.Errorf("table has no primary key")
	}

	names := make([]string, len(columns))
	colIndex := newNameIndex[string]()
	for i, c := range columns {
		names[i] = c.Name
		colIndex.add(c.Name, c.Name)
	}

	sourceType := b.source.GetConnectionInfo().Type
	query, err := buildSampleQuery(b.source.Flavor(), t.schema, t.name, names, pks, limit)
	if err != nil {
		var rejected *sqlpkg.InjectionCheckResult
		if errors.As(err, &rejected) {
			b.auditor.LogIdentifierRejected(sourceType, audit.IdentifierDetails{
				Kind:        rejected.Kind,
				Value:       rejected.Value,
				Fingerprint: rejected.Fingerprint,
				Table:       t.schema + "." + t.name,
			})
		}
		return nil, 0, err
	}
	b.auditor.LogSampleQuery(sourceType, t.schema+"."+t.name, query)

	result, err := b.source.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to sample records: %w", err)
	}

	st := &sampledTable{ref: t, columns: colIndex, pks: pks}
	dropped := 0
	seen := make(map[string]bool, len(result.Rows))
	for _, row := range result.Rows {
		if len(st.records) >= limit {
			break
		}
		var parts []string
		for _, pk := range pks {
			if v, ok := stringValue(row[pk]); ok {
				parts = append(parts, v)
			}
		}
		if len(parts) == 0 {
			dropped++
			b.logger.Warn("Dropping record without primary key values",
				zap.String("table", t.schema+"."+t.name))
			continue
		}
		key := "record-" + t.schema + "-" + t.name + "-" + strings.Join(parts, "-")
		// Hyphenated or partially missing key values can render the same key.
		if seen[key] {
			dropped++
			b.logger.Warn("Dropping record with duplicate key",
				zap.String("table", t.schema+"."+t.name),
				zap.String("key", key))
			continue
		}
		seen[key] = true
		st.records = append(st.records, sampledRecord{key: key, row: normalizeRow(row)})
	}
	return st, dropped, nil
}

// buildSampleQuery renders a bounded SELECT in the source's dialect. Every
// identifier is screened before it is quoted into the statement.
func buildSampleQuery(flavor sqlbuilder.Flavor, schema, table string, columns, orderBy []string, limit int) (string, error) {
	checks := sqlpkg.CheckIdentifiers("schema", schema)
	checks = append(checks, sqlpkg.CheckIdentifiers("table", table)...)
	checks = append(checks, sqlpkg.CheckIdentifiers("column", columns...)...)
	if len(checks) > 0 {
		return "", fmt.Errorf("%w: %w", checks[0], apperrors.ErrInvalidInput)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = flavor.Quote(c)
	}
	order := make([]string, len(orderBy))
	for i, c := range orderBy {
		order[i] = flavor.Quote(c)
	}

	sb := flavor.NewSelectBuilder()
	sb.Select(quoted...).
		From(flavor.Quote(schema) + "." + flavor.Quote(table)).
		OrderBy(order...).
		Limit(limit)

	sql, args := sb.Build()
	interpolated, err := flavor.Interpolate(sql, args)
	if err != nil {
		return "", fmt.Errorf("failed to render sample query: %w", err)
	}
	return interpolated, nil
}

// matchRecords emits one edge per source record whose FK value equals a
// target record's key column value.
func matchRecords(src, dst *sampledTable, rel *models.Relationship) []models.GraphEdge {
	fromCol, ok := src.columns.resolve(rel.FromColumn)
	if !ok {
		return nil
	}
	toCol := ""
	if rel.ToColumn != "" {
		toCol, ok = dst.columns.resolve(rel.ToColumn)
		if !ok {
			return nil
		}
	} else {
		toCol = dst.pks[0]
	}

	targets := make(map[string][]string)
	for _, rec := range dst.records {
		if v, ok := stringValue(rec.row[toCol]); ok {
			targets[v] = append(targets[v], rec.key)
		}
	}

	var edges []models.GraphEdge
	for _, rec := range src.records {
		v, ok := stringValue(rec.row[fromCol])
		if !ok {
			continue
		}
		for _, target := range targets[v] {
			if target == rec.key {
				continue
			}
			edges = append(edges, relationshipEdge(rec.key, target, rel))
		}
	}
	return edges
}

// filterOrphans drops nodes with no incident edge.
func filterOrphans(nodes []models.GraphNode, edges []models.GraphEdge) ([]models.GraphNode, int) {
	connected := make(map[string]bool, len(edges)*2)
	for _, e := range edges {
		connected[e.From] = true
		connected[e.To] = true
	}
	kept := make([]models.GraphNode, 0, len(nodes))
	for _, n := range nodes {
		if connected[n.Key] {
			kept = append(kept, n)
		}
	}
	return kept, len(nodes) - len(kept)
}

// stringValue renders a key value as canonical text so that the same value
// read through different column types compares equal. nil and empty values
// are missing.
func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case []byte:
		s := strings.TrimSpace(string(t))
		return s, s != ""
	case [16]byte:
		return uuid.UUID(t).String(), true
	case time.Time:
		return t.Format(time.RFC3339Nano), true
	case pgtype.Numeric:
		if !t.Valid {
			return "", false
		}
		dv, err := t.Value()
		if err != nil {
			return "", false
		}
		s, ok := stringValue(dv)
		return trimDecimalZeros(s), ok
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return "", false
		}
		if _, self := dv.(driver.Valuer); self {
			return fmt.Sprint(dv), true
		}
		return stringValue(dv)
	case fmt.Stringer:
		s := strings.TrimSpace(t.String())
		return s, s != ""
	default:
		return fmt.Sprint(t), true
	}
}

// trimDecimalZeros drops a zero fraction so 5.00 and 5 render alike.
func trimDecimalZeros(s string) string {
	if !strings.Contains(s, ".") || strings.ContainsAny(s, "eE") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// normalizeRow makes driver values JSON friendly.
func normalizeRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch t := v.(type) {
		case []byte:
			out[k] = string(t)
		case [16]byte:
			out[k] = uuid.UUID(t).String()
		default:
			out[k] = v
		}
	}
	return out
}
