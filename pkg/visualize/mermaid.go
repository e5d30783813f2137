package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// MermaidGenerator renders a dataflow as a Mermaid flowchart, reading left to right from the
// inputs to the probes.
type MermaidGenerator struct{}

// Generate returns the flowchart wrapped in a markdown code block.
func (m *MermaidGenerator) Generate(g *Graph) string {
	return fmt.Sprintf("```mermaid\n%s```\n", dot.MermaidFlowchart(buildMermaidGraph(g), dot.MermaidLeftToRight))
}

// buildMermaidGraph is BuildDotGraph with the attributes the Mermaid writer understands: shapes
// are dot.MermaidShape values and styles are CSS.
func buildMermaidGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)

	nodes := make(map[string]dot.Node, len(g.Operators))
	for _, op := range g.Operators {
		s := styleOf(op.Kind)
		nodes[op.ID] = graph.Node(op.ID).
			Attr("label", fmt.Sprintf("%s (%s)", op.Name, op.Kind)).
			Attr("shape", s.mermaid).
			Attr("style", "fill:"+s.fill)
	}
	connect(graph, nodes, g.Channels, nil)

	return graph
}
