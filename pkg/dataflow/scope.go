package dataflow

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/deltajoin/internal/dag"
	"github.com/l7mp/deltajoin/pkg/timestamp"
)

// Pacts describe how an edge moves updates between operators.
const (
	PactPipeline  = "pipeline"  // stays on the worker
	PactExchange  = "exchange"  // routed to the worker owning the key
	PactBroadcast = "broadcast" // copied to every worker
)

// operator is a scheduled operator instance on one worker.
type operator interface {
	schedule() (bool, error)
}

type closer interface {
	Close() error
}

// Scope is one dataflow on one worker. Operators are added to the scope while the dataflow is
// being built and are scheduled by the worker afterwards.
type Scope[T timestamp.Timestamp[T]] struct {
	name   string
	index  int
	worker *Worker
	shared *shared[T]
	graph  *dag.Graph
	log    logr.Logger

	nextLocation int
	operators    []operator
	inputs       []closer
	err          error
}

// Build builds a dataflow on a worker. Every worker must build the same dataflows in the same
// order. Build returns once all workers have built the dataflow.
func Build[T timestamp.Timestamp[T]](w *Worker, name string, build func(*Scope[T]) error) error {
	index := len(w.dataflows)
	sh, err := sharedFor[T](w.fabric, index, name)
	if err != nil {
		return NewBuildError(name, err)
	}

	s := &Scope[T]{
		name:   name,
		index:  index,
		worker: w,
		shared: sh,
		graph:  dag.New(),
		log:    w.log.WithName(name),
	}

	if err := build(s); err != nil {
		return NewBuildError(name, err)
	}
	if s.err != nil {
		return NewBuildError(name, s.err)
	}
	w.dataflows = append(w.dataflows, s)

	if err := sh.arrive(w.ctx, w.Peers()); err != nil {
		return NewBuildError(name, err)
	}

	s.log.V(2).Info("dataflow built", "operators", len(s.graph.Nodes))
	return nil
}

// Name returns the name of the dataflow.
func (s *Scope[T]) Name() string { return s.name }

// Worker returns the worker the scope runs on.
func (s *Scope[T]) Worker() *Worker { return s.worker }

// Index returns the index of the worker the scope runs on.
func (s *Scope[T]) Index() int { return s.worker.index }

// Peers returns the number of workers.
func (s *Scope[T]) Peers() int { return s.worker.fabric.peers }

// Partitions returns the number of hash partitions of keyed streams.
func (s *Scope[T]) Partitions() int { return s.worker.fabric.partitions }

// Logger returns the logger of the dataflow.
func (s *Scope[T]) Logger() logr.Logger { return s.log }

// Err returns the first error recorded while building the dataflow.
func (s *Scope[T]) Err() error { return s.err }

// fail records a build error, reported by Build once the build function returns.
func (s *Scope[T]) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// location allocates a new location. All workers allocate locations in the same order.
func (s *Scope[T]) location(kind locationKind) location {
	s.nextLocation++
	return location{kind: kind, id: s.nextLocation}
}

// node adds an operator node to the topology and returns its unique label.
func (s *Scope[T]) node(name, kind string) string {
	label := fmt.Sprintf("%s#%d", name, len(s.graph.Nodes))
	s.graph.AddNode(label, kind)
	return label
}

func (s *Scope[T]) edge(from, to, pact string) {
	if err := s.graph.AddEdge(from, to, pact); err != nil {
		s.fail(err)
	}
}

func (s *Scope[T]) step() (bool, error) {
	worked := false
	for _, op := range s.operators {
		ok, err := op.schedule()
		if err != nil {
			return worked, err
		}
		worked = worked || ok
	}
	return worked, nil
}

func (s *Scope[T]) complete() bool { return s.shared.tracker.empty() }

func (s *Scope[T]) closeInputs() error {
	for _, in := range s.inputs {
		if err := in.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Node is an operator in the topology of a dataflow.
type Node struct {
	ID   string
	Kind string
}

// Edge connects two operators.
type Edge struct {
	From, To string
	Pact     string
}

// Topology is the operator graph of a dataflow, in construction order.
type Topology struct {
	Name  string
	Nodes []Node
	Edges []Edge
}

// Topology returns the operator graph of the dataflow.
func (s *Scope[T]) Topology() Topology {
	t := Topology{Name: s.name}
	for _, n := range s.graph.Nodes {
		t.Nodes = append(t.Nodes, Node{ID: n, Kind: s.graph.NodeAttr(n)})
		for _, to := range s.graph.Edges(n) {
			t.Edges = append(t.Edges, Edge{From: n, To: to, Pact: s.graph.EdgeLabel(n, to)})
		}
	}
	return t
}

// Roots returns the operators without inputs.
func (t Topology) Roots() []string {
	g := t.graph()
	return g.Roots()
}

// Leaves returns the operators whose output is not consumed.
func (t Topology) Leaves() []string {
	g := t.graph()
	return g.Leaves()
}

// Upstream returns the operators an operator depends on.
func (t Topology) Upstream(id string) []string {
	g := t.graph()
	return g.Upstream(id)
}

func (t Topology) graph() *dag.Graph {
	g := dag.New()
	for _, n := range t.Nodes {
		g.AddNode(n.ID, n.Kind)
	}
	for _, e := range t.Edges {
		_ = g.AddEdge(e.From, e.To, e.Pact)
	}
	return g
}
