package csn

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ekaya-inc/csn-graph/pkg/models"
)

const mostConnectedLimit = 10

// associationGraph maps entity names onto gonum node ids.
type associationGraph struct {
	directed   *simple.DirectedGraph
	undirected *simple.UndirectedGraph
	ids        map[string]int64
	names      []string
}

func newAssociationGraph() *associationGraph {
	return &associationGraph{
		directed:   simple.NewDirectedGraph(),
		undirected: simple.NewUndirectedGraph(),
		ids:        make(map[string]int64),
	}
}

func (g *associationGraph) addEntity(name string) int64 {
	if id, ok := g.ids[name]; ok {
		return id
	}
	id := int64(len(g.names))
	g.ids[name] = id
	g.names = append(g.names, name)
	g.directed.AddNode(simple.Node(id))
	g.undirected.AddNode(simple.Node(id))
	return id
}

func (g *associationGraph) addAssociation(from, to string) {
	fromID := g.addEntity(from)
	toID := g.addEntity(to)
	// simple graphs reject self loops
	if fromID == toID {
		return
	}
	if !g.directed.HasEdgeFromTo(fromID, toID) {
		g.directed.SetEdge(g.directed.NewEdge(simple.Node(fromID), simple.Node(toID)))
	}
	if !g.undirected.HasEdgeBetween(fromID, toID) {
		g.undirected.SetEdge(g.undirected.NewEdge(simple.Node(fromID), simple.Node(toID)))
	}
}

// GetRelationshipComplexityMetrics summarizes how densely the corpus is connected.
func (a *AssociationParser) GetRelationshipComplexityMetrics() models.ComplexityMetrics {
	entities := a.parser.Entities()
	assocs := a.ParseAllAssociations()
	pairs := a.FindManyToManyRelationships()

	g := newAssociationGraph()
	for _, e := range entities {
		g.addEntity(e.Name)
	}

	outgoing := make(map[string]int)
	incoming := make(map[string]int)
	metrics := models.ComplexityMetrics{
		TotalEntities:     len(entities),
		TotalAssociations: len(assocs),
		ManyToManyCount:   len(pairs),
	}

	for _, assoc := range assocs {
		g.addAssociation(assoc.SourceEntity, assoc.TargetEntity)
		outgoing[assoc.SourceEntity]++
		incoming[assoc.TargetEntity]++
		if assoc.IsComposition {
			metrics.CompositionCount++
		}
		if len(assoc.Conditions) > 0 {
			metrics.AssociationsWithConditions++
		}
	}

	metrics.EntitiesWithAssociations = len(outgoing)
	for _, n := range outgoing {
		if n > metrics.MaxAssociationsPerEntity {
			metrics.MaxAssociationsPerEntity = n
		}
	}
	if len(entities) > 0 {
		metrics.AvgAssociationsPerEntity = float64(len(assocs)) / float64(len(entities))
	}

	metrics.ConnectedComponents = len(topo.ConnectedComponents(g.undirected))
	for _, scc := range topo.TarjanSCC(g.directed) {
		if len(scc) > 1 {
			metrics.CyclicGroups++
		}
	}

	connectivity := make([]models.EntityConnectivity, 0, len(g.names))
	for _, name := range g.names {
		if outgoing[name]+incoming[name] == 0 {
			continue
		}
		connectivity = append(connectivity, models.EntityConnectivity{
			Entity:   name,
			Outgoing: outgoing[name],
			Incoming: incoming[name],
		})
	}
	sort.SliceStable(connectivity, func(i, j int) bool {
		ti := connectivity[i].Outgoing + connectivity[i].Incoming
		tj := connectivity[j].Outgoing + connectivity[j].Incoming
		return ti > tj
	})
	if len(connectivity) > mostConnectedLimit {
		connectivity = connectivity[:mostConnectedLimit]
	}
	metrics.MostConnected = connectivity

	return metrics
}
