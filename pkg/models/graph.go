package models

import (
	"fmt"
	"time"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
)

// GraphType names a materialized graph snapshot.
type GraphType string

const (
	GraphTypeSchema GraphType = "schema"
	GraphTypeData   GraphType = "data"
	GraphTypeCSN    GraphType = "csn"
)

// AllGraphTypes lists every graph type in a stable order.
var AllGraphTypes = []GraphType{GraphTypeSchema, GraphTypeData, GraphTypeCSN}

// ParseGraphType validates s against the closed set of graph types.
func ParseGraphType(s string) (GraphType, error) {
	switch GraphType(s) {
	case GraphTypeSchema, GraphTypeData, GraphTypeCSN:
		return GraphType(s), nil
	}
	return "", fmt.Errorf("unknown graph_type %q (want schema, data or csn): %w", s, apperrors.ErrInvalidInput)
}

// Node types.
const (
	NodeTypeProduct = "product"
	NodeTypeTable   = "table"
	NodeTypeRecord  = "record"
)

// Edge types.
const (
	EdgeTypeContains    = "contains"
	EdgeTypeFK          = "fk"
	EdgeTypeComposition = "composition"
	EdgeTypeAssociation = "association"
)

// GraphNode is a vertex of a materialized graph.
type GraphNode struct {
	Key        string         `json:"id"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge is a directed edge between two node keys.
type GraphEdge struct {
	From       string         `json:"from"`
	To         string         `json:"to"`
	Type       string         `json:"type"`
	Label      string         `json:"label,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphStats carries counters reported with a built or loaded graph.
type GraphStats struct {
	NodeCount              int            `json:"node_count"`
	EdgeCount              int            `json:"edge_count"`
	NodesByType            map[string]int `json:"nodes_by_type,omitempty"`
	EdgesByType            map[string]int `json:"edges_by_type,omitempty"`
	OrphansFiltered        int            `json:"orphans_filtered,omitempty"`
	TotalNodesBeforeFilter int            `json:"total_nodes_before_filter,omitempty"`
	RecordsDropped         int            `json:"records_dropped,omitempty"`
}

// Graph is a complete node and edge snapshot.
type Graph struct {
	GraphType   GraphType   `json:"graph_type"`
	Description string      `json:"description,omitempty"`
	Nodes       []GraphNode `json:"nodes"`
	Edges       []GraphEdge `json:"edges"`
	Stats       GraphStats  `json:"stats"`
	CachedAt    *time.Time  `json:"cached_at,omitempty"`
	FromCache   bool        `json:"from_cache"`
}

// ComputeStats fills node and edge counters from the current contents.
// Filter counters already set on g.Stats are preserved.
func (g *Graph) ComputeStats() {
	g.Stats.NodeCount = len(g.Nodes)
	g.Stats.EdgeCount = len(g.Edges)
	g.Stats.NodesByType = make(map[string]int)
	g.Stats.EdgesByType = make(map[string]int)
	for _, n := range g.Nodes {
		g.Stats.NodesByType[n.Type]++
	}
	for _, e := range g.Edges {
		g.Stats.EdgesByType[e.Type]++
	}
}

// CacheStatus describes the stored snapshot for one graph type.
type CacheStatus struct {
	GraphType   GraphType  `json:"graph_type"`
	Exists      bool       `json:"exists"`
	NodeCount   int        `json:"node_count"`
	EdgeCount   int        `json:"edge_count"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}
