/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The deltajoin command runs the delta cross-join example: two relations keyed by the same empty
// key are fed through worker 0, joined by two half-joins over broadcast changes and arranged
// shards, and the inputs and results are printed per worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/l7mp/deltajoin/internal/buildinfo"
	"github.com/l7mp/deltajoin/pkg/config"
	"github.com/l7mp/deltajoin/pkg/dataflow"
	"github.com/l7mp/deltajoin/pkg/join"
	"github.com/l7mp/deltajoin/pkg/timestamp"
	"github.com/l7mp/deltajoin/pkg/visualize"
	"github.com/l7mp/deltajoin/pkg/zset"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

type (
	numbers = zset.KV[string, uint64]
	fruits  = zset.KV[string, string]
	row     = join.Result[string, uint64, string]
)

func main() {
	var configFile, metricsAddr, topology string
	var workers, partitions int

	flag.StringVar(&configFile, "config", "", "Path to a YAML config file.")
	flag.IntVar(&workers, "workers", 0, "Number of workers (overrides the config file).")
	flag.IntVar(&partitions, "partitions", 0, "Number of key partitions (overrides the config file).")
	flag.StringVar(&metricsAddr, "metrics-bind-address", "", "The address the metric endpoint binds to.")
	flag.StringVar(&topology, "topology", "", "Print the dataflow topology in the given format (dot or mermaid) and exit.")

	opts := zap.Options{
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	c := config.Default()
	var loadErr error
	if configFile != "" {
		if loaded, err := config.Load(configFile); err != nil {
			loadErr = err
		} else {
			c = loaded
		}
	}
	c.Logging.ApplyTo(&opts, flag.CommandLine)

	logger := zap.New(zap.UseFlagOptions(&opts))
	setupLog := logger.WithName("setup")
	if loadErr != nil {
		setupLog.Error(loadErr, "unable to load config")
		os.Exit(1)
	}

	buildInfo := buildinfo.New(version, commitHash, buildDate)
	setupLog.Info(fmt.Sprintf("starting deltajoin %s", buildInfo.String()))

	if workers > 0 {
		c.Workers = workers
	}
	if partitions > 0 {
		c.Partitions = partitions
	}
	if metricsAddr != "" {
		c.MetricsBindAddress = metricsAddr
	}
	if err := c.Validate(); err != nil {
		setupLog.Error(err, "invalid config")
		os.Exit(1)
	}

	ctx := signals.SetupSignalHandler()

	if c.MetricsEnabled() {
		srv := serveMetrics(c.MetricsBindAddress, setupLog)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	execOpts := c.DataflowOptions()
	execOpts.Logger = logger.WithName("dataflow")
	if err := run(ctx, execOpts, topology, os.Stdout); err != nil {
		setupLog.Error(err, "problem running the delta join")
		os.Exit(1)
	}
}

// run executes the example and writes the inspected collections, or the topology, to out. Lines
// written by different workers do not interleave.
func run(ctx context.Context, opts dataflow.Options, topology string, out io.Writer) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	return dataflow.Execute(ctx, opts, func(w *dataflow.Worker) error {
		index := w.Index()

		var handle1 *dataflow.InputHandle[numbers, timestamp.Time]
		var handle2 *dataflow.InputHandle[fruits, timestamp.Time]
		var probe *dataflow.Probe[timestamp.Time]
		if err := dataflow.Build(w, "delta-cross-join", func(s *dataflow.Scope[timestamp.Time]) error {
			var input1 *dataflow.Stream[numbers, timestamp.Time]
			var input2 *dataflow.Stream[fruits, timestamp.Time]
			handle1, input1 = dataflow.NewInput[numbers](s, "input1")
			handle2, input2 = dataflow.NewInput[fruits](s, "input2")

			input1 = input1.Inspect(func(u zset.Update[numbers, timestamp.Time]) {
				printf("input1 from worker %d: %s\n", index, u)
			})
			input2 = input2.Inspect(func(u zset.Update[fruits, timestamp.Time]) {
				printf("input2 from worker %d: %s\n", index, u)
			})

			joined, err := join.CrossJoin(input1, input2, join.WithName("cross-join"))
			if err != nil {
				return err
			}

			probe = joined.Inspect(func(u zset.Update[row, timestamp.Time]) {
				printf("worker %d produced: %s\n", index, u)
			}).Probe()

			if topology != "" && index == 0 {
				gen, ok := visualize.NewGenerator(topology)
				if !ok {
					return fmt.Errorf("unknown topology format %q", topology)
				}
				printf("%s", gen.Generate(visualize.BuildGraph(s.Topology())))
			}
			return nil
		}); err != nil {
			return err
		}

		if topology != "" {
			return nil
		}

		// Introduce (key, value) data through worker 0 where the key is the empty string.
		if index == 0 {
			if err := feed(handle1, handle2); err != nil {
				return err
			}
		}

		return w.StepWhile(func() bool { return probe.LessThan(handle1.Time()) })
	})
}

func feed(handle1 *dataflow.InputHandle[numbers, timestamp.Time], handle2 *dataflow.InputHandle[fruits, timestamp.Time]) error {
	for t, v := range []uint64{1, 2} {
		if err := handle1.Insert(numbers{Key: "", Value: v}); err != nil {
			return err
		}
		if err := handle1.AdvanceTo(timestamp.Time(t + 1)); err != nil {
			return err
		}
	}
	if err := handle1.Flush(); err != nil {
		return err
	}

	for t, v := range []string{"apple", "orange"} {
		if err := handle2.Insert(fruits{Key: "", Value: v}); err != nil {
			return err
		}
		if err := handle2.AdvanceTo(timestamp.Time(t + 1)); err != nil {
			return err
		}
	}
	return handle2.Flush()
}

func serveMetrics(addr string, log logr.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	return srv
}
