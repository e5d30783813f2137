package visualize

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

// Generate creates a Graphviz DOT diagram from the graph.
func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}

// Generator renders a graph in some diagram format.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator for a format: "dot" or "mermaid".
func NewGenerator(format string) (Generator, bool) {
	switch format {
	case "dot":
		return &DotGenerator{}, true
	case "mermaid":
		return &MermaidGenerator{}, true
	default:
		return nil, false
	}
}
