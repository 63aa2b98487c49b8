package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inflow-io/inflow/internal/workqueue"
	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// Processor handles one dequeued item. A nil error marks the item complete;
// an error (or panic) sends it back through the queue's retry logic.
type Processor interface {
	Process(ctx context.Context, item workqueue.Item) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, item workqueue.Item) error

func (f ProcessorFunc) Process(ctx context.Context, item workqueue.Item) error {
	return f(ctx, item)
}

// Options configures a Worker.
type Options struct {
	Concurrency    int
	PollInterval   time.Duration
	StopGrace      time.Duration
	ProcessTimeout time.Duration
	Logger         logpkg.Logger
}

// Worker continuously drains a queue, dispatching items to a Processor with
// bounded concurrency.
type Worker struct {
	queue     workqueue.Queue
	processor Processor

	concurrency    int
	pollInterval   time.Duration
	stopGrace      time.Duration
	processTimeout time.Duration

	mu         sync.Mutex
	running    bool
	loopCancel context.CancelFunc
	procCtx    context.Context
	procCancel context.CancelFunc
	done       chan struct{}
	inFlight   sync.WaitGroup
	sem        chan struct{}

	logger logpkg.Logger
}

// New creates a Worker. Queue and processor are required.
func New(queue workqueue.Queue, processor Processor, opts Options) (*Worker, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	return &Worker{
		queue:          queue,
		processor:      processor,
		concurrency:    opts.Concurrency,
		pollInterval:   opts.PollInterval,
		stopGrace:      opts.StopGrace,
		processTimeout: opts.ProcessTimeout,
		sem:            make(chan struct{}, opts.Concurrency),
		logger:         opts.Logger.With(logpkg.Component("worker")),
	}, nil
}

// Start launches the dequeue loop. It returns immediately; processing
// happens on background goroutines until Stop is called or ctx is
// cancelled. Starting a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("worker already running")
		return
	}
	w.running = true
	loopCtx, loopCancel := context.WithCancel(ctx)
	procCtx, procCancel := context.WithCancel(ctx)
	w.loopCancel = loopCancel
	w.procCtx = procCtx
	w.procCancel = procCancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker started",
		logpkg.Int("concurrency", w.concurrency),
		logpkg.Dur("poll_interval", w.pollInterval))

	go w.loop(loopCtx)
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}
		item, ok := w.queue.Dequeue(0)
		if !ok {
			select {
			case <-ctx.Done():
			case <-time.After(w.pollInterval):
			}
			continue
		}

		// Block until a concurrency slot frees up, so a full pool applies
		// backpressure to the dequeue loop itself.
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			// Shutting down with the item already marked processing; push
			// it back through retry so it is not stranded.
			w.queue.Fail(item.ID, "worker shutting down", 0)
			continue
		}
		w.inFlight.Add(1)
		go w.process(w.procCtx, item)
	}
}

// process runs one item through the processor, translating the outcome
// into Complete or Fail. A handler panic is contained and counted as a
// failure.
func (w *Worker) process(ctx context.Context, item workqueue.Item) {
	defer w.inFlight.Done()
	defer func() { <-w.sem }()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked",
				logpkg.Str("item_id", item.ID),
				logpkg.Str("panic", fmt.Sprint(r)))
			w.queue.Fail(item.ID, fmt.Sprintf("panic: %v", r), 0)
		}
	}()

	w.logger.Debug("processing item",
		logpkg.Str("item_id", item.ID),
		logpkg.Int("retry", item.RetryCount))

	procCtx := ctx
	if w.processTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, w.processTimeout)
		defer cancel()
	}

	if err := w.processor.Process(procCtx, item); err != nil {
		w.logger.Error("item processing failed",
			logpkg.Str("item_id", item.ID),
			logpkg.Str("key", item.Key),
			logpkg.Int("retry", item.RetryCount),
			logpkg.Err(err))
		w.queue.Fail(item.ID, err.Error(), 0)
		return
	}

	w.queue.Complete(item.ID, 0)
	w.logger.Info("item processed",
		logpkg.Str("item_id", item.ID),
		logpkg.Str("key", item.Key),
		logpkg.Int("retry", item.RetryCount))
}

// Stop shuts the worker down: the dequeue loop exits, then in-flight items
// get the grace period to finish before their contexts are cancelled.
// Stopping a stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	loopCancel := w.loopCancel
	procCancel := w.procCancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("stopping worker")

	// Stop dequeuing first, then give in-flight items the grace period.
	loopCancel()
	<-done

	finished := make(chan struct{})
	go func() {
		w.inFlight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(w.stopGrace):
		w.logger.Warn("grace period elapsed, cancelling in-flight items")
	}
	procCancel()
	w.inFlight.Wait()
}
