// Package dataflow is the execution substrate of the delta-join engine: a fixed pool of workers,
// each running the same dataflow graph over a disjoint shard of keyed state, connected only by
// explicit message exchange.
//
// Key components:
//   - Execute: starts the workers and tears the whole computation down on the first error.
//   - Scope: one dataflow graph on one worker; all workers build the same graphs in the same order.
//   - InputHandle: feeds updates into a dataflow at a logical time and advances that time.
//   - Stream: a stream of updates; Map, Concat and Inspect transform it in place, Broadcast
//     replicates it to every worker, Arrange partitions it by key into per-worker shards.
//   - UnaryFrontier: builds custom operators that may hold back updates until a frontier passes.
//   - Probe: reports the frontier below which a stream will produce no more output.
//
// Within a worker operators run cooperatively on a single goroutine: a step schedules every
// operator once, each processing whatever input is available. Progress is tracked by counting
// pointstamps (input capabilities, messages in flight, times held by operators) in a tracker
// shared by the workers of a dataflow. A producer always registers its pointstamps before the
// consumer retires its own, so frontiers never move backwards.
//
// Example usage:
//
//	err := dataflow.Execute(ctx, dataflow.Options{Workers: 4, Logger: log}, func(w *dataflow.Worker) error {
//		var input *dataflow.InputHandle[string, timestamp.Time]
//		var probe *dataflow.Probe[timestamp.Time]
//		if err := dataflow.Build(w, "example", func(s *dataflow.Scope[timestamp.Time]) error {
//			var stream *dataflow.Stream[string, timestamp.Time]
//			input, stream = dataflow.NewInput[string](s, "words")
//			probe = stream.Inspect(func(u zset.Update[string, timestamp.Time]) { ... }).Probe()
//			return nil
//		}); err != nil {
//			return err
//		}
//		...
//	})
package dataflow
