package metrics

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Suite")
}

var _ = Describe("Metrics", func() {
	It("should count per label", func() {
		ValueClones.WithLabelValues("test-op").Add(3)
		Expect(testutil.ToFloat64(ValueClones.WithLabelValues("test-op"))).To(BeNumerically("==", 3))
	})

	It("should track gauges per worker", func() {
		ArrangementEntries.WithLabelValues("test-arr", Worker(2)).Set(7)
		Expect(testutil.ToFloat64(ArrangementEntries.WithLabelValues("test-arr", "2"))).To(BeNumerically("==", 7))
	})
})
