// Package visualize renders the operator graph of a dataflow as a diagram.
package visualize

import (
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/deltajoin/pkg/dataflow"
)

// Graph represents the visualization graph of a dataflow.
type Graph struct {
	Name      string
	Operators []OperatorNode
	Channels  []Channel
}

// OperatorNode represents a single operator in the graph.
type OperatorNode struct {
	ID   string
	Name string
	Kind string
}

// Channel represents an edge between two operators.
type Channel struct {
	From, To string
	Pact     string
}

// BuildGraph constructs a visualization graph from the topology of a dataflow.
func BuildGraph(t dataflow.Topology) *Graph {
	g := &Graph{
		Name:      t.Name,
		Operators: make([]OperatorNode, 0, len(t.Nodes)),
		Channels:  make([]Channel, 0, len(t.Edges)),
	}

	for _, n := range t.Nodes {
		g.Operators = append(g.Operators, OperatorNode{ID: n.ID, Name: operatorName(n.ID), Kind: n.Kind})
	}
	for _, e := range t.Edges {
		g.Channels = append(g.Channels, Channel{From: e.From, To: e.To, Pact: e.Pact})
	}

	return g
}

// operatorName strips the unique suffix from an operator label.
func operatorName(id string) string {
	if i := strings.LastIndex(id, "#"); i > 0 {
		return id[:i]
	}
	return id
}

// IsExchange reports whether a channel moves updates between workers.
func (c Channel) IsExchange() bool {
	return c.Pact == dataflow.PactExchange || c.Pact == dataflow.PactBroadcast
}

type nodeStyle struct {
	shape, style, fill string
	// mermaid is the Mermaid counterpart of shape, one of the dot.MermaidShape values.
	mermaid any
}

var styles = map[string]nodeStyle{
	"input":     {"ellipse", "filled", "lightgreen", dot.MermaidShapeStadium},
	"arrange":   {"cylinder", "filled", "lightyellow", dot.MermaidShapeCylinder},
	"exchange":  {"box", "filled,rounded", "lightyellow", dot.MermaidShapeRound},
	"broadcast": {"box", "filled,rounded", "mistyrose", dot.MermaidShapeAsymmetric},
	"unary":     {"box", "filled,rounded", "lightblue", dot.MermaidShapeSubroutine},
	"probe":     {"box", "filled,rounded", "lightcyan", dot.MermaidShapeCircle},
	"inspect":   {"box", "filled,rounded", "lightcyan", dot.MermaidShapeRound},
}

var defaultStyle = nodeStyle{"box", "filled,rounded", "white", dot.MermaidShapeRound}

func styleOf(kind string) nodeStyle {
	if s, ok := styles[kind]; ok {
		return s
	}
	return defaultStyle
}

// BuildDotGraph creates a Graphviz graph from the visualization graph.
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR") // Left to right layout.
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t") // Label at top.
	graph.Attr("fontsize", "16")

	nodes := make(map[string]dot.Node, len(g.Operators))
	for _, op := range g.Operators {
		s := styleOf(op.Kind)
		nodes[op.ID] = graph.Node(op.ID).
			Attr("label", op.Name+"\n("+op.Kind+")").
			Attr("shape", s.shape).
			Attr("style", s.style).
			Attr("fillcolor", s.fill).
			Attr("fontname", "helvetica")
	}

	connect(graph, nodes, g.Channels, func(e dot.Edge, ch Channel) {
		e.Attr("fontname", "helvetica").Attr("fontsize", "10")
		if ch.IsExchange() {
			e.Dashed().Attr("color", "blue")
		}
	})

	return graph
}

// connect adds the channels between known operators. Only edges that cross workers are
// labelled, pipelines are the default.
func connect(graph *dot.Graph, nodes map[string]dot.Node, channels []Channel, decorate func(dot.Edge, Channel)) {
	for _, ch := range channels {
		from, fromExists := nodes[ch.From]
		to, toExists := nodes[ch.To]
		if !fromExists || !toExists {
			continue
		}
		edge := graph.Edge(from, to)
		if ch.IsExchange() {
			edge.Attr("label", ch.Pact)
		}
		if decorate != nil {
			decorate(edge, ch)
		}
	}
}
