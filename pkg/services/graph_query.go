package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// DefaultMaxHops bounds ShortestPath when the caller gives no limit.
const DefaultMaxHops = 10

// Direction selects which incident edges a query follows.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// ParseDirection validates a direction. Empty means both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "":
		return DirectionBoth, nil
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown direction %q (want outgoing, incoming or both): %w", s, apperrors.ErrInvalidInput)
}

// Neighbor is a node adjacent to the queried node and the edge reaching it.
type Neighbor struct {
	Node      models.GraphNode `json:"node"`
	Edge      models.GraphEdge `json:"edge"`
	Direction Direction        `json:"direction"`
}

// Path is a node and edge sequence. Length counts edges.
type Path struct {
	Nodes  []models.GraphNode `json:"nodes"`
	Edges  []models.GraphEdge `json:"edges"`
	Length int                `json:"length"`
}

// TraversedNode is a node reached by Traverse at Depth edges from the start.
type TraversedNode struct {
	Node  models.GraphNode `json:"node"`
	Depth int              `json:"depth"`
}

// ConnectedComponent represents a group of nodes connected by edges in either direction.
type ConnectedComponent struct {
	Nodes []string `json:"nodes"`
	Size  int      `json:"size"`
}

// GraphIndex is a read-only adjacency view of a materialized graph.
// Nodes and edges are addressed by key, in insertion order.
type GraphIndex struct {
	graph    *models.Graph
	nodes    map[string]int // key -> index into graph.Nodes
	outgoing map[string][]int
	incoming map[string][]int
}

// NewGraphIndex indexes graph. Edges whose endpoints are unknown are ignored.
func NewGraphIndex(graph *models.Graph) *GraphIndex {
	idx := &GraphIndex{
		graph:    graph,
		nodes:    make(map[string]int, len(graph.Nodes)),
		outgoing: make(map[string][]int),
		incoming: make(map[string][]int),
	}
	for i, n := range graph.Nodes {
		if _, dup := idx.nodes[n.Key]; !dup {
			idx.nodes[n.Key] = i
		}
	}
	for i, e := range graph.Edges {
		if !idx.HasNode(e.From) || !idx.HasNode(e.To) {
			continue
		}
		idx.outgoing[e.From] = append(idx.outgoing[e.From], i)
		idx.incoming[e.To] = append(idx.incoming[e.To], i)
	}
	return idx
}

// Graph returns the indexed graph.
func (g *GraphIndex) Graph() *models.Graph {
	return g.graph
}

func (g *GraphIndex) HasNode(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

func (g *GraphIndex) node(key string) models.GraphNode {
	return g.graph.Nodes[g.nodes[key]]
}

// step is one edge leaving a node in the requested direction.
type step struct {
	edge int
	next string
	dir  Direction
}

func (g *GraphIndex) steps(key string, dir Direction, edgeTypes map[string]bool) []step {
	var out []step
	if dir == DirectionOutgoing || dir == DirectionBoth {
		for _, ei := range g.outgoing[key] {
			e := g.graph.Edges[ei]
			if edgeTypes == nil || edgeTypes[e.Type] {
				out = append(out, step{edge: ei, next: e.To, dir: DirectionOutgoing})
			}
		}
	}
	if dir == DirectionIncoming || dir == DirectionBoth {
		for _, ei := range g.incoming[key] {
			e := g.graph.Edges[ei]
			if edgeTypes == nil || edgeTypes[e.Type] {
				out = append(out, step{edge: ei, next: e.From, dir: DirectionIncoming})
			}
		}
	}
	return out
}

func edgeTypeSet(edgeTypes []string) map[string]bool {
	if len(edgeTypes) == 0 {
		return nil
	}
	set := make(map[string]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		set[t] = true
	}
	return set
}

// GetNeighbors returns nodes one edge away from key, each node once with the
// first edge that reached it. limit 0 means no limit. An unknown key yields an
// empty result.
func (g *GraphIndex) GetNeighbors(key string, dir Direction, edgeTypes []string, limit int) ([]Neighbor, error) {
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("limit %d must not be negative: %w", limit, apperrors.ErrInvalidInput)
	}
	if dir == "" {
		dir = DirectionBoth
	}

	neighbors := make([]Neighbor, 0)
	if !g.HasNode(key) {
		return neighbors, nil
	}
	seen := make(map[string]bool)
	for _, s := range g.steps(key, dir, edgeTypeSet(edgeTypes)) {
		if limit > 0 && len(neighbors) >= limit {
			break
		}
		if seen[s.next] {
			continue
		}
		seen[s.next] = true
		neighbors = append(neighbors, Neighbor{
			Node:      g.node(s.next),
			Edge:      g.graph.Edges[s.edge],
			Direction: s.dir,
		})
	}
	return neighbors, nil
}

// ShortestPath runs a BFS along outgoing edges. Among equal-length paths the
// one found first in edge insertion order wins. Returns nil when no path of at
// most maxHops edges exists.
func (g *GraphIndex) ShortestPath(start, end string, maxHops int) (*Path, error) {
	if maxHops <= 0 {
		return nil, fmt.Errorf("max_hops %d must be positive: %w", maxHops, apperrors.ErrInvalidInput)
	}
	if !g.HasNode(start) || !g.HasNode(end) {
		return nil, nil
	}
	if start == end {
		return &Path{Nodes: []models.GraphNode{g.node(start)}, Edges: []models.GraphEdge{}, Length: 0}, nil
	}

	type visit struct {
		prev string
		edge int
		hops int
	}
	visited := map[string]visit{start: {edge: -1}}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		hops := visited[current].hops
		if hops >= maxHops {
			continue
		}
		for _, s := range g.steps(current, DirectionOutgoing, nil) {
			if _, seen := visited[s.next]; seen {
				continue
			}
			visited[s.next] = visit{prev: current, edge: s.edge, hops: hops + 1}
			if s.next == end {
				return g.unwind(end, func(k string) (string, int) {
					v := visited[k]
					return v.prev, v.edge
				}, hops+1), nil
			}
			queue = append(queue, s.next)
		}
	}
	return nil, nil
}

func (g *GraphIndex) unwind(end string, prev func(string) (string, int), length int) *Path {
	nodes := make([]models.GraphNode, length+1)
	edges := make([]models.GraphEdge, length)
	key := end
	for i := length; i >= 0; i-- {
		nodes[i] = g.node(key)
		if i == 0 {
			break
		}
		p, ei := prev(key)
		edges[i-1] = g.graph.Edges[ei]
		key = p
	}
	return &Path{Nodes: nodes, Edges: edges, Length: length}
}

// Traverse returns every node within depth edges of start, start included,
// in breadth-first order without duplicates.
func (g *GraphIndex) Traverse(start string, depth int, dir Direction, edgeTypes []string) ([]TraversedNode, error) {
	if depth < 0 {
		return nil, fmt.Errorf("depth %d must not be negative: %w", depth, apperrors.ErrInvalidInput)
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = DirectionBoth
	}

	result := make([]TraversedNode, 0)
	if !g.HasNode(start) {
		return result, nil
	}

	types := edgeTypeSet(edgeTypes)
	seen := map[string]bool{start: true}
	frontier := []string{start}
	result = append(result, TraversedNode{Node: g.node(start), Depth: 0})

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, key := range frontier {
			for _, s := range g.steps(key, dir, types) {
				if seen[s.next] {
					continue
				}
				seen[s.next] = true
				next = append(next, s.next)
				result = append(result, TraversedNode{Node: g.node(s.next), Depth: d})
			}
		}
		frontier = next
	}
	return result, nil
}

// FindConnectedComponents groups nodes connected through edges in either
// direction. Components are sorted by size (largest first); single-node
// components are returned separately as islands.
func (g *GraphIndex) FindConnectedComponents() ([]ConnectedComponent, []string) {
	visited := make(map[string]bool, len(g.nodes))
	var components []ConnectedComponent
	var islands []string

	for _, n := range g.graph.Nodes {
		if visited[n.Key] {
			continue
		}
		component := g.dfs(n.Key, visited)
		if len(component) == 1 {
			islands = append(islands, component[0])
			continue
		}
		components = append(components, ConnectedComponent{Nodes: component, Size: len(component)})
	}

	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Size > components[j].Size
	})
	return components, islands
}

// dfs returns all nodes in the component containing start.
func (g *GraphIndex) dfs(start string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true
		component = append(component, current)

		for _, s := range g.steps(current, DirectionBoth, nil) {
			if !visited[s.next] {
				stack = append(stack, s.next)
			}
		}
	}
	return component
}

// LogConnectivity logs a connectivity summary of the graph.
func LogConnectivity(graphType models.GraphType, components []ConnectedComponent, islands []string, logger *zap.Logger) {
	largest := 0
	if len(components) > 0 {
		largest = components[0].Size
	}
	preview := islands
	if len(preview) > 5 {
		preview = preview[:5]
	}
	logger.Info("Graph connectivity",
		zap.String("graph_type", string(graphType)),
		zap.Int("components", len(components)),
		zap.Int("largest_component", largest),
		zap.Int("islands", len(islands)),
		zap.Strings("island_preview", preview))
}
