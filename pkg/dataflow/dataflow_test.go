package dataflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"

	"github.com/l7mp/deltajoin/internal/dag"
	"github.com/l7mp/deltajoin/internal/testutils"
	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/zset"
)

const loglevel = -10

type (
	tm = timestamp.Time
	kv = zset.KV[string, int]
)

func TestDataflow(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dataflow Suite")
}

var _ = Describe("Execute", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		log    logr.Logger
		leaks  goleak.Option
	)

	BeforeEach(func() {
		leaks = goleak.IgnoreCurrent()
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		log = testutils.NewLogger(loglevel)
	})

	AfterEach(func() {
		cancel()
		Expect(goleak.Find(leaks)).To(Succeed())
	})

	It("should pass updates through an input in time order", func() {
		collector := testutils.NewCollector[string, tm]()
		err := Execute(ctx, Options{Workers: 1, Logger: log}, func(w *Worker) error {
			var input *InputHandle[string, tm]
			var probe *Probe[tm]
			if err := Build(w, "passthrough", func(s *Scope[tm]) error {
				var stream *Stream[string, tm]
				input, stream = NewInput[string](s, "words")
				probe = stream.Inspect(collector.Observe(w.Index())).Probe()
				return nil
			}); err != nil {
				return err
			}

			if err := input.UpdateAt("later", 3, 1); err != nil {
				return err
			}
			if err := input.Insert("now"); err != nil {
				return err
			}
			if err := input.AdvanceTo(1); err != nil {
				return err
			}
			return w.StepWhile(func() bool { return probe.LessThan(input.Time()) })
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(collector.Updates()).To(Equal([]zset.Update[string, tm]{
			{Data: "now", Time: 0, Diff: 1},
			{Data: "later", Time: 3, Diff: 1},
		}))
	})

	It("should consolidate updates before sending them", func() {
		collector := testutils.NewCollector[string, tm]()
		err := Execute(ctx, Options{Workers: 1, Logger: log}, func(w *Worker) error {
			return Build(w, "consolidate", func(s *Scope[tm]) error {
				input, stream := NewInput[string](s, "words")
				stream.Inspect(collector.Observe(w.Index()))
				if err := input.Insert("a"); err != nil {
					return err
				}
				if err := input.Insert("a"); err != nil {
					return err
				}
				if err := input.Insert("b"); err != nil {
					return err
				}
				return input.Remove("b")
			})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(collector.Updates()).To(Equal([]zset.Update[string, tm]{{Data: "a", Time: 0, Diff: 2}}))
	})

	It("should reject times behind the input frontier", func() {
		var updateErr, advanceErr error
		err := Execute(ctx, Options{Workers: 1, Logger: log}, func(w *Worker) error {
			return Build(w, "out-of-order", func(s *Scope[tm]) error {
				input, _ := NewInput[string](s, "words")
				if err := input.AdvanceTo(2); err != nil {
					return err
				}
				updateErr = input.UpdateAt("x", 1, 1)
				advanceErr = input.AdvanceTo(1)
				return nil
			})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(errors.Is(updateErr, timestamp.ErrOutOfOrder)).To(BeTrue())
		Expect(errors.Is(advanceErr, timestamp.ErrOutOfOrder)).To(BeTrue())
	})

	It("should refuse updates on a closed input", func() {
		var closedErr error
		err := Execute(ctx, Options{Workers: 1, Logger: log}, func(w *Worker) error {
			return Build(w, "closed", func(s *Scope[tm]) error {
				input, _ := NewInput[string](s, "words")
				if err := input.Close(); err != nil {
					return err
				}
				closedErr = input.Insert("x")
				return input.Close()
			})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(closedErr).To(MatchError(ErrInputClosed))
	})

	It("should map updates keeping their time and multiplicity", func() {
		collector := testutils.NewCollector[int, tm]()
		err := Execute(ctx, Options{Workers: 1, Logger: log}, func(w *Worker) error {
			return Build(w, "map", func(s *Scope[tm]) error {
				input, stream := NewInput[string](s, "words")
				Map(stream, "length", func(d string, _ tm) int { return len(d) }).
					Inspect(collector.Observe(w.Index()))
				return input.UpdateAt("three", 2, -1)
			})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(collector.Updates()).To(Equal([]zset.Update[int, tm]{{Data: 5, Time: 2, Diff: -1}}))
	})

	It("should concatenate streams", func() {
		collector := testutils.NewCollector[string, tm]()
		err := Execute(ctx, Options{Workers: 1, Logger: log}, func(w *Worker) error {
			return Build(w, "concat", func(s *Scope[tm]) error {
				left, l := NewInput[string](s, "left")
				right, r := NewInput[string](s, "right")
				Concat("both", l, r).Inspect(collector.Observe(w.Index()))
				if err := left.Insert("l"); err != nil {
					return err
				}
				return right.Insert("r")
			})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(collector.Updates()).To(ConsistOf(
			zset.Update[string, tm]{Data: "l", Time: 0, Diff: 1},
			zset.Update[string, tm]{Data: "r", Time: 0, Diff: 1},
		))
	})

	It("should broadcast every update to every worker", func() {
		const workers = 3
		received := make([][]zset.Update[string, tm], workers)
		err := Execute(ctx, Options{Workers: workers, Logger: log}, func(w *Worker) error {
			return Build(w, "broadcast", func(s *Scope[tm]) error {
				input, stream := NewInput[string](s, "words")
				Broadcast(stream, "replicate").Inspect(func(u zset.Update[string, tm]) {
					received[w.Index()] = append(received[w.Index()], u)
				})
				if w.Index() != 0 {
					return nil
				}
				for i := 0; i < 3; i++ {
					if err := input.UpdateAt(fmt.Sprintf("w%d", i), tm(i), 1); err != nil {
						return err
					}
				}
				return nil
			})
		})
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < workers; i++ {
			Expect(received[i]).To(Equal([]zset.Update[string, tm]{
				{Data: "w0", Time: 0, Diff: 1},
				{Data: "w1", Time: 1, Diff: 1},
				{Data: "w2", Time: 2, Diff: 1},
			}), fmt.Sprintf("worker %d", i))
		}
	})

	It("should partition keyed updates across the arrangement shards", func() {
		const workers = 4
		arranged := make([]*Arranged[string, int, tm], workers)
		err := Execute(ctx, Options{Workers: workers, Partitions: 16, Logger: log}, func(w *Worker) error {
			var input *InputHandle[kv, tm]
			if err := Build(w, "arrange", func(s *Scope[tm]) error {
				var stream *Stream[kv, tm]
				input, stream = NewInput[kv](s, "pairs")
				arranged[w.Index()] = Arrange(stream, "pairs-by-key", nil)
				return nil
			}); err != nil {
				return err
			}

			// every worker feeds a disjoint range of keys
			for i := 0; i < 25; i++ {
				key := fmt.Sprintf("key-%d", w.Index()*25+i)
				if err := input.Insert(kv{Key: key, Value: i}); err != nil {
					return err
				}
			}
			if err := input.AdvanceTo(1); err != nil {
				return err
			}
			a := arranged[w.Index()]
			return w.StepWhile(func() bool { return a.Frontier().LessThan(1) })
		})
		Expect(err).NotTo(HaveOccurred())

		total := 0
		for i, a := range arranged {
			trace := a.Trace()
			Expect(trace.Worker()).To(Equal(i))
			for _, key := range trace.Keys() {
				Expect(a.Distributor().Worker(key)).To(Equal(i), key)
			}
			total += trace.Len()
		}
		Expect(total).To(Equal(100))
	})

	It("should let custom operators hold times until their input is complete", func() {
		const workers = 2
		collector := testutils.NewCollector[int, tm]()
		err := Execute(ctx, Options{Workers: workers, Logger: log}, func(w *Worker) error {
			var input *InputHandle[string, tm]
			var probe *Probe[tm]
			if err := Build(w, "count", func(s *Scope[tm]) error {
				var stream *Stream[string, tm]
				input, stream = NewInput[string](s, "words")
				counts := map[tm]int{}
				probe = UnaryFrontier(stream, "count", func(h *OperatorHandle[int, tm], in []zset.Update[string, tm]) error {
					for _, u := range in {
						if _, ok := counts[u.Time]; !ok {
							h.Hold(u.Time)
						}
						counts[u.Time] += int(u.Diff)
					}
					frontier := h.InputFrontier()
					for t, n := range counts {
						if frontier.LessEqual(t) {
							continue
						}
						if err := h.Emit([]zset.Update[int, tm]{{Data: n, Time: t, Diff: 1}}); err != nil {
							return err
						}
						h.Release(t)
						delete(counts, t)
					}
					return nil
				}).Inspect(collector.Observe(w.Index())).Probe()
				return nil
			}); err != nil {
				return err
			}

			for round := 0; round < 3; round++ {
				for i := 0; i <= round; i++ {
					if err := input.Insert(fmt.Sprintf("r%d-%d", round, i)); err != nil {
						return err
					}
				}
				if err := input.AdvanceTo(tm(round + 1)); err != nil {
					return err
				}
				if err := w.StepWhile(func() bool { return probe.LessThan(input.Time()) }); err != nil {
					return err
				}
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		out, err := collector.Consolidated()
		Expect(err).NotTo(HaveOccurred())
		// each worker inserts round+1 words in every round, so the per-time count over both
		// workers is 2*(round+1), emitted once on each worker
		Expect(out).To(ConsistOf(
			zset.Update[int, tm]{Data: 1, Time: 0, Diff: 2},
			zset.Update[int, tm]{Data: 2, Time: 1, Diff: 2},
			zset.Update[int, tm]{Data: 3, Time: 2, Diff: 2},
		))
	})

	It("should keep probe frontiers monotone", func() {
		var mu sync.Mutex
		var frontiers []timestamp.Antichain[tm]
		err := Execute(ctx, Options{Workers: 2, Logger: log}, func(w *Worker) error {
			var input *InputHandle[string, tm]
			var probe *Probe[tm]
			if err := Build(w, "monotone", func(s *Scope[tm]) error {
				var stream *Stream[string, tm]
				input, stream = NewInput[string](s, "words")
				probe = Broadcast(stream, "replicate").Probe()
				return nil
			}); err != nil {
				return err
			}

			for t := tm(1); t <= 5; t++ {
				if err := input.Insert(fmt.Sprintf("%d", t)); err != nil {
					return err
				}
				if err := input.AdvanceTo(t); err != nil {
					return err
				}
				if err := w.StepWhile(func() bool {
					if w.Index() == 0 {
						mu.Lock()
						frontiers = append(frontiers, probe.Frontier())
						mu.Unlock()
					}
					return probe.LessThan(t)
				}); err != nil {
					return err
				}
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		for i := 1; i < len(frontiers); i++ {
			Expect(frontiers[i-1].Precedes(frontiers[i])).To(BeTrue(),
				fmt.Sprintf("%s -> %s", frontiers[i-1], frontiers[i]))
		}
	})

	It("should let a worker wait for the progress of others", func() {
		err := Execute(ctx, Options{Workers: 2, Logger: log}, func(w *Worker) error {
			var input *InputHandle[string, tm]
			var probe *Probe[tm]
			if err := Build(w, "wait", func(s *Scope[tm]) error {
				var stream *Stream[string, tm]
				input, stream = NewInput[string](s, "words")
				probe = stream.Probe()
				return nil
			}); err != nil {
				return err
			}

			if w.Index() == 1 {
				if err := input.Close(); err != nil {
					return err
				}
				return probe.Wait(w.Context(), 3)
			}
			return input.AdvanceTo(3)
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should support partially ordered times", func() {
		collector := testutils.NewCollector[string, timestamp.Product]()
		err := Execute(ctx, Options{Workers: 2, Logger: log}, func(w *Worker) error {
			var input *InputHandle[string, timestamp.Product]
			var probe *Probe[timestamp.Product]
			if err := Build(w, "product", func(s *Scope[timestamp.Product]) error {
				var stream *Stream[string, timestamp.Product]
				input, stream = NewInput[string](s, "words")
				probe = Broadcast(stream, "replicate").Inspect(collector.Observe(w.Index())).Probe()
				return nil
			}); err != nil {
				return err
			}
			if w.Index() != 0 {
				return nil
			}

			if err := input.UpdateAt("inner", timestamp.NewProduct(0, 1), 1); err != nil {
				return err
			}
			if err := input.AdvanceTo(timestamp.NewProduct(1, 0)); err != nil {
				return err
			}
			// (0,1) is incomparable with (1,0), so it does not hold back the probe at (1,0)
			if err := w.StepWhile(func() bool { return probe.LessThan(timestamp.NewProduct(1, 0)) }); err != nil {
				return err
			}
			if !probe.LessEqual(timestamp.NewProduct(1, 1)) {
				return errors.New("frontier passed a held capability")
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(collector.Len()).To(Equal(2))
	})

	It("should stop every worker on the first error", func() {
		boom := errors.New("boom")
		err := Execute(ctx, Options{Workers: 3, Logger: log}, func(w *Worker) error {
			var input *InputHandle[string, tm]
			var probe *Probe[tm]
			if err := Build(w, "failing", func(s *Scope[tm]) error {
				var stream *Stream[string, tm]
				input, stream = NewInput[string](s, "words")
				probe = stream.Probe()
				return nil
			}); err != nil {
				return err
			}
			if w.Index() == 2 {
				return boom
			}
			if err := input.AdvanceTo(1); err != nil {
				return err
			}
			// worker 2 never closes its input, so this only returns on cancellation
			return w.StepWhile(func() bool { return probe.LessThan(5) })
		})
		Expect(err).To(MatchError(boom))
	})

	It("should report operator errors", func() {
		err := Execute(ctx, Options{Workers: 2, Logger: log}, func(w *Worker) error {
			return Build(w, "operator-error", func(s *Scope[tm]) error {
				input, stream := NewInput[string](s, "words")
				UnaryFrontier(stream, "fail", func(_ *OperatorHandle[string, tm], in []zset.Update[string, tm]) error {
					if len(in) > 0 {
						return errors.New("cannot process")
					}
					return nil
				})
				return input.Insert("x")
			})
		})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("cannot process"))
	})

	It("should detect workers building different dataflows", func() {
		err := Execute(ctx, Options{Workers: 2, Logger: log}, func(w *Worker) error {
			return Build(w, fmt.Sprintf("dataflow-%d", w.Index()), func(s *Scope[tm]) error {
				NewInput[string](s, "words")
				return nil
			})
		})
		Expect(err).To(MatchError(ErrDataflowMismatch))
	})

	It("should reject fewer partitions than workers", func() {
		err := Execute(ctx, Options{Workers: 4, Partitions: 2, Logger: log}, func(w *Worker) error { return nil })
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Topology", func() {
	It("should record operators and pacts in construction order", func() {
		var topology Topology
		err := Execute(context.Background(), Options{Workers: 1}, func(w *Worker) error {
			return Build(w, "topology", func(s *Scope[tm]) error {
				_, stream := NewInput[kv](s, "pairs")
				Arrange(stream, "by-key", nil)
				b := Broadcast(stream, "replicate")
				Concat("all", b, stream).Probe()
				topology = s.Topology()
				return nil
			})
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(topology.Name).To(Equal("topology"))
		Expect(topology.Nodes).To(Equal([]Node{
			{ID: "pairs#0", Kind: "input"},
			{ID: "by-key#1", Kind: "arrange"},
			{ID: "replicate#2", Kind: "broadcast"},
			{ID: "all#3", Kind: "concat"},
			{ID: "probe#4", Kind: "probe"},
		}))
		Expect(topology.Edges).To(ContainElements(
			Edge{From: "pairs#0", To: "by-key#1", Pact: PactExchange},
			Edge{From: "pairs#0", To: "replicate#2", Pact: PactBroadcast},
			Edge{From: "replicate#2", To: "all#3", Pact: PactPipeline},
		))
		Expect(topology.Roots()).To(Equal([]string{"pairs#0"}))
		Expect(topology.Leaves()).To(ConsistOf("by-key#1", "probe#4"))
		Expect(topology.Upstream("all#3")).To(Equal([]string{"pairs#0", "replicate#2"}))
	})
})

var _ = Describe("Channels", func() {
	It("should signal the receiving worker after the bundle is in its mailbox", func() {
		w := &Worker{index: 0, ctx: context.Background(), fabric: newFabric(2, 2), log: logr.Discard()}
		sh, err := sharedFor[tm](w.fabric, 0, "wakeups")
		Expect(err).NotTo(HaveOccurred())
		s := &Scope[tm]{name: "wakeups", worker: w, shared: sh, graph: dag.New(), log: logr.Discard()}
		loc, ch, _ := connect[int, tm](s)

		// worker 1 consumes every progress signal before the bundle lands and finds nothing
		sh.tracker.wake = func() {
			select {
			case <-w.fabric.activity[1]:
			default:
			}
		}
		send := sender(s, ch, loc)
		send(1, bundle[int, tm]{time: 3, updates: []zset.Update[int, tm]{{Data: 1, Time: 3, Diff: 1}}})

		Expect(w.fabric.activity[1]).To(Receive())
		Expect(ch.mailboxes[1].drain()).To(HaveLen(1))
		Expect(w.fabric.activity[0]).NotTo(Receive())
		Expect(s.Err()).NotTo(HaveOccurred())
	})
})
