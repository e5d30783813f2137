package dag

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDag(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "DAG Suite")
}

var _ = Describe("Graph", func() {
	var g *Graph

	BeforeEach(func() {
		g = New()
		Expect(g.AddNode("input-a", "Input")).To(BeTrue())
		Expect(g.AddNode("input-b", "Input")).To(BeTrue())
		Expect(g.AddNode("join", "HalfJoin")).To(BeTrue())
		Expect(g.AddNode("probe", "Probe")).To(BeTrue())
		Expect(g.AddEdge("input-a", "join", "broadcast")).To(Succeed())
		Expect(g.AddEdge("input-b", "join", "exchange")).To(Succeed())
		Expect(g.AddEdge("join", "probe", "pipeline")).To(Succeed())
	})

	It("should refuse duplicate nodes", func() {
		Expect(g.AddNode("join", "HalfJoin")).To(BeFalse())
		Expect(g.HasNode("join")).To(BeTrue())
		Expect(g.NodeAttr("join")).To(Equal("HalfJoin"))
	})

	It("should refuse edges against construction order", func() {
		Expect(g.AddEdge("probe", "join", "pipeline")).NotTo(Succeed())
		Expect(g.AddEdge("nope", "join", "pipeline")).NotTo(Succeed())
	})

	It("should report edges with labels", func() {
		Expect(g.HasEdge("input-b", "join")).To(BeTrue())
		Expect(g.HasEdge("join", "input-b")).To(BeFalse())
		Expect(g.EdgeLabel("input-a", "join")).To(Equal("broadcast"))
		Expect(g.Edges("input-a")).To(Equal([]string{"join"}))
	})

	It("should find roots, leaves and upstream nodes", func() {
		Expect(g.Roots()).To(Equal([]string{"input-a", "input-b"}))
		Expect(g.Leaves()).To(Equal([]string{"probe"}))
		Expect(g.Upstream("probe")).To(Equal([]string{"input-a", "input-b", "join"}))
		Expect(g.Upstream("input-a")).To(BeEmpty())
	})
})
