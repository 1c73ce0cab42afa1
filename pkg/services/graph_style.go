package services

import (
	"hash/fnv"

	"github.com/ekaya-inc/csn-graph/pkg/models"
)

var nodePalette = []string{
	"#4E79A7", "#F28E2B", "#E15759", "#76B7B2",
	"#59A14F", "#EDC948", "#B07AA1", "#FF9DA7",
}

var nodeShapes = map[string]string{
	models.NodeTypeProduct: "hexagon",
	models.NodeTypeTable:   "box",
	models.NodeTypeRecord:  "dot",
}

var nodeSizes = map[string]int{
	models.NodeTypeProduct: 40,
	models.NodeTypeTable:   25,
	models.NodeTypeRecord:  12,
}

var edgeStyles = map[string]struct {
	color  string
	width  int
	dashes bool
}{
	models.EdgeTypeContains:    {"#BAB0AC", 1, true},
	models.EdgeTypeFK:          {"#4E79A7", 2, false},
	models.EdgeTypeComposition: {"#E15759", 3, false},
	models.EdgeTypeAssociation: {"#76B7B2", 2, true},
}

// paletteColor hashes node type and product into the palette. Same input, same color.
func paletteColor(nodeType, product string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(nodeType))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(product))
	return nodePalette[h.Sum32()%uint32(len(nodePalette))]
}

// styleNode adds type, group and display hints to props.
func styleNode(props map[string]any, nodeType, product string) map[string]any {
	if props == nil {
		props = make(map[string]any)
	}
	group := product
	if group == "" {
		group = nodeType
	}
	props["type"] = nodeType
	props["group"] = group
	props["color"] = paletteColor(nodeType, product)
	props["shape"] = nodeShapes[nodeType]
	props["size"] = nodeSizes[nodeType]
	return props
}

// styleEdge adds display hints to props.
func styleEdge(props map[string]any, edgeType string) map[string]any {
	if props == nil {
		props = make(map[string]any)
	}
	if s, ok := edgeStyles[edgeType]; ok {
		props["color"] = s.color
		props["width"] = s.width
		props["dashes"] = s.dashes
	}
	return props
}
