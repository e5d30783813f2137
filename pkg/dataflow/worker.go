package dataflow

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Options configures an execution.
type Options struct {
	// Workers is the number of workers. Defaults to 1.
	Workers int
	// Partitions is the number of hash partitions keyed streams are cut into. Zero means one
	// partition per worker.
	Partitions int
	// Logger is the base logger, specialised per worker and dataflow.
	Logger logr.Logger
}

// runnable is a built dataflow as seen by the worker that steps it.
type runnable interface {
	step() (bool, error)
	complete() bool
	closeInputs() error
}

// Worker is one of the identical workers of an execution. A worker is not safe for concurrent
// use: the function passed to Execute, the handles it creates and the operators it builds all run
// on the worker's goroutine.
type Worker struct {
	index     int
	ctx       context.Context
	fabric    *fabric
	dataflows []runnable
	log       logr.Logger
}

// Execute runs fn on every worker and then drives each worker until all of its dataflows are
// complete. The first error stops every worker and is returned.
func Execute(ctx context.Context, opts Options, fn func(*Worker) error) error {
	peers := opts.Workers
	if peers <= 0 {
		peers = 1
	}
	if opts.Partitions != 0 && opts.Partitions < peers {
		return errors.New("number of partitions must not be smaller than the number of workers")
	}

	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	f := newFabric(peers, opts.Partitions)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < peers; i++ {
		w := &Worker{
			index:  i,
			ctx:    ctx,
			fabric: f,
			log:    log.WithValues("worker", i),
		}
		g.Go(func() error { return w.run(fn) })
	}

	log.V(2).Info("execution started", "workers", peers, "partitions", opts.Partitions)
	err := g.Wait()
	log.V(2).Info("execution finished", "error", err)

	return err
}

func (w *Worker) run(fn func(*Worker) error) error {
	if err := fn(w); err != nil {
		return NewWorkerError(w.index, err)
	}

	for _, df := range w.dataflows {
		if err := df.closeInputs(); err != nil {
			return NewWorkerError(w.index, err)
		}
	}

	if err := w.StepWhile(func() bool { return !w.complete() }); err != nil {
		return NewWorkerError(w.index, err)
	}

	w.log.V(2).Info("worker finished")
	return nil
}

// Index returns the index of the worker, between 0 and Peers()-1.
func (w *Worker) Index() int { return w.index }

// Peers returns the number of workers.
func (w *Worker) Peers() int { return w.fabric.peers }

// Context returns the context of the execution, cancelled when any worker fails.
func (w *Worker) Context() context.Context { return w.ctx }

// Logger returns the logger of the worker.
func (w *Worker) Logger() logr.Logger { return w.log }

// Step schedules every operator of every dataflow once. It reports whether any operator did
// work.
func (w *Worker) Step() (bool, error) {
	if err := w.ctx.Err(); err != nil {
		return false, err
	}

	worked := false
	for _, df := range w.dataflows {
		ok, err := df.step()
		if err != nil {
			return worked, err
		}
		worked = worked || ok
	}
	return worked, nil
}

// StepWhile steps the worker as long as cond holds. When a step does no work the worker parks
// until some progress is made anywhere in the execution.
func (w *Worker) StepWhile(cond func() bool) error {
	activity := w.fabric.activity[w.index]
	for cond() {
		worked, err := w.Step()
		if err != nil {
			return err
		}
		if worked {
			continue
		}

		select {
		case <-activity:
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	}
	return nil
}

func (w *Worker) complete() bool {
	for _, df := range w.dataflows {
		if !df.complete() {
			return false
		}
	}
	return true
}
