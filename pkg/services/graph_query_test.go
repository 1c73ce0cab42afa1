package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// queryGraph:
//
//	a -fk-> b -fk-> c -fk-> d
//	a -composition-> c
//	e -fk-> a
//	x (island)
func queryGraph() *GraphIndex {
	node := func(k string) models.GraphNode {
		return models.GraphNode{Key: k, Label: k, Type: models.NodeTypeTable}
	}
	edge := func(from, to, typ string) models.GraphEdge {
		return models.GraphEdge{From: from, To: to, Type: typ}
	}
	return NewGraphIndex(&models.Graph{
		GraphType: models.GraphTypeSchema,
		Nodes:     []models.GraphNode{node("a"), node("b"), node("c"), node("d"), node("e"), node("x")},
		Edges: []models.GraphEdge{
			edge("a", "b", models.EdgeTypeFK),
			edge("b", "c", models.EdgeTypeFK),
			edge("c", "d", models.EdgeTypeFK),
			edge("a", "c", models.EdgeTypeComposition),
			edge("e", "a", models.EdgeTypeFK),
			edge("a", "ghost", models.EdgeTypeFK),
		},
	})
}

func neighborKeys(ns []Neighbor) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Node.Key
	}
	return out
}

func pathKeys(p *Path) []string {
	out := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		out[i] = n.Key
	}
	return out
}

func TestGraphIndex_GetNeighborsOncePerNode(t *testing.T) {
	g := NewGraphIndex(&models.Graph{
		GraphType: models.GraphTypeSchema,
		Nodes: []models.GraphNode{
			{Key: "order", Type: models.NodeTypeTable},
			{Key: "partner", Type: models.NodeTypeTable},
		},
		Edges: []models.GraphEdge{
			{From: "order", To: "partner", Type: models.EdgeTypeFK, Label: "SoldTo"},
			{From: "order", To: "partner", Type: models.EdgeTypeFK, Label: "ShipTo"},
			{From: "partner", To: "order", Type: models.EdgeTypeFK, Label: "LastOrder"},
		},
	})

	both, err := g.GetNeighbors("order", DirectionBoth, nil, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"partner"}, neighborKeys(both))
	assert.Equal(t, "SoldTo", both[0].Edge.Label, "first edge wins")

	limited, err := g.GetNeighbors("order", DirectionOutgoing, nil, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGraphIndex_GetNeighbors(t *testing.T) {
	g := queryGraph()

	out, err := g.GetNeighbors("a", DirectionOutgoing, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, neighborKeys(out), "dangling edge to ghost is ignored")

	in, err := g.GetNeighbors("a", DirectionIncoming, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, neighborKeys(in))
	assert.Equal(t, DirectionIncoming, in[0].Direction)

	both, err := g.GetNeighbors("a", DirectionBoth, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "e"}, neighborKeys(both))

	typed, err := g.GetNeighbors("a", DirectionOutgoing, []string{models.EdgeTypeComposition}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, neighborKeys(typed))

	limited, err := g.GetNeighbors("a", DirectionBoth, nil, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	unknown, err := g.GetNeighbors("nope", DirectionBoth, nil, 0)
	require.NoError(t, err)
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)

	_, err = g.GetNeighbors("a", "sideways", nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = g.GetNeighbors("a", DirectionBoth, nil, -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGraphIndex_ShortestPath(t *testing.T) {
	g := queryGraph()

	path, err := g.ShortestPath("a", "d", DefaultMaxHops)
	require.NoError(t, err)
	require.NotNil(t, path)
	assert.Equal(t, []string{"a", "c", "d"}, pathKeys(path))
	assert.Equal(t, 2, path.Length)
	require.Len(t, path.Edges, 2)
	assert.Equal(t, models.EdgeTypeComposition, path.Edges[0].Type)

	path, err = g.ShortestPath("e", "d", DefaultMaxHops)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "a", "c", "d"}, pathKeys(path))
}

func TestGraphIndex_ShortestPathSameNode(t *testing.T) {
	path, err := queryGraph().ShortestPath("a", "a", 1)
	require.NoError(t, err)
	require.NotNil(t, path)
	assert.Equal(t, 0, path.Length)
	assert.Equal(t, []string{"a"}, pathKeys(path))
	assert.Empty(t, path.Edges)
}

func TestGraphIndex_ShortestPathAbsent(t *testing.T) {
	g := queryGraph()

	tests := []struct {
		name       string
		start, end string
		maxHops    int
	}{
		{"against edge direction", "d", "a", DefaultMaxHops},
		{"beyond max hops", "e", "d", 2},
		{"island", "a", "x", DefaultMaxHops},
		{"unknown start", "nope", "a", DefaultMaxHops},
		{"unknown end", "a", "nope", DefaultMaxHops},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := g.ShortestPath(tt.start, tt.end, tt.maxHops)
			require.NoError(t, err)
			assert.Nil(t, path)
		})
	}

	_, err := g.ShortestPath("a", "d", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGraphIndex_Traverse(t *testing.T) {
	g := queryGraph()

	nodes, err := g.Traverse("a", 1, DirectionOutgoing, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "a", nodes[0].Node.Key)
	assert.Equal(t, 0, nodes[0].Depth)
	assert.Equal(t, 1, nodes[1].Depth)

	nodes, err = g.Traverse("a", 5, DirectionOutgoing, nil)
	require.NoError(t, err)
	depths := make(map[string]int)
	for _, n := range nodes {
		_, dup := depths[n.Node.Key]
		assert.False(t, dup, "node %s visited twice", n.Node.Key)
		depths[n.Node.Key] = n.Depth
	}
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}, depths)

	nodes, err = g.Traverse("d", 10, DirectionBoth, []string{models.EdgeTypeFK})
	require.NoError(t, err)
	assert.Len(t, nodes, 5, "x stays unreachable")

	nodes, err = g.Traverse("a", 0, DirectionBoth, nil)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	nodes, err = g.Traverse("nope", 3, DirectionBoth, nil)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	_, err = g.Traverse("a", -1, DirectionBoth, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGraphIndex_FindConnectedComponents(t *testing.T) {
	components, islands := queryGraph().FindConnectedComponents()

	require.Len(t, components, 1)
	assert.Equal(t, 5, components[0].Size)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, components[0].Nodes)
	assert.Equal(t, []string{"x"}, islands)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionBoth, d)

	d, err = ParseDirection("incoming")
	require.NoError(t, err)
	assert.Equal(t, DirectionIncoming, d)

	_, err = ParseDirection("up")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
