package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inflow-io/inflow/internal/archive"
	"github.com/inflow-io/inflow/internal/breaker"
	cfgpkg "github.com/inflow-io/inflow/internal/config"
	"github.com/inflow-io/inflow/internal/debounce"
	"github.com/inflow-io/inflow/internal/forward"
	"github.com/inflow-io/inflow/internal/ratelimit"
	"github.com/inflow-io/inflow/internal/worker"
	"github.com/inflow-io/inflow/internal/workqueue"
	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// Outcome classifies what happened to an ingested event.
type Outcome string

const (
	// OutcomeBuffered means the event was accepted into the debounce buffer.
	OutcomeBuffered Outcome = "buffered"
	// OutcomeBanned means the sender is under a temporary ban.
	OutcomeBanned Outcome = "banned"
	// OutcomeRateLimited means the sender exhausted its request window.
	OutcomeRateLimited Outcome = "rate_limited"
)

// Decision is the result of running one event through admission control.
type Decision struct {
	Outcome Outcome
	Rate    ratelimit.Result
	Ban     ratelimit.BanInfo
}

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
}

// Runtime wires admission control, buffering, the queue, the worker pool
// and the failure archive into a single-node instance.
type Runtime struct {
	config cfgpkg.Config
	logger logpkg.Logger

	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	queue    *workqueue.Memory
	buffer   *debounce.Buffer
	worker   *worker.Worker
	archive  *archive.Archive
}

// Open builds the runtime from configuration. Call Start to begin
// processing and Close to shut down.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	limiter, err := ratelimit.New(ratelimit.Options{
		MaxRequests: cfg.Rate.MaxRequests,
		Window:      time.Duration(cfg.Rate.WindowSeconds) * time.Second,
		SpikeMax:    cfg.Rate.SpikeMax,
		SpikeWindow: time.Duration(cfg.Rate.SpikeWindow) * time.Second,
		BanDuration: time.Duration(cfg.Rate.BanSeconds) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	breakers := breaker.NewRegistry(breaker.Options{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Breaker.RecoveryMs) * time.Millisecond,
		HalfOpenMax:      cfg.Breaker.HalfOpenMax,
		Logger:           logger,
	})

	queue := workqueue.NewMemory(cfg.Queue.MaxRetries, logger)

	rt := &Runtime{
		config:   cfg,
		logger:   logger.With(logpkg.Component("runtime")),
		limiter:  limiter,
		breakers: breakers,
		queue:    queue,
	}

	if cfg.Archive.Enabled {
		arc, err := archive.Open(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		rt.archive = arc
		queue.SetDeadLetterHook(arc.Record)
	}

	buffer, err := debounce.New(rt.enqueueFlush, debounce.Options{
		Window:    time.Duration(cfg.Debounce.WindowMs) * time.Millisecond,
		MaxEvents: cfg.Debounce.MaxEvents,
		Separator: cfg.Debounce.Separator,
		Logger:    logger,
	})
	if err != nil {
		rt.closePartial()
		return nil, err
	}
	rt.buffer = buffer

	processor, err := rt.buildProcessor(logger)
	if err != nil {
		rt.closePartial()
		return nil, err
	}
	w, err := worker.New(queue, processor, worker.Options{
		Concurrency:    cfg.Worker.Concurrency,
		PollInterval:   time.Duration(cfg.Worker.PollMs) * time.Millisecond,
		StopGrace:      time.Duration(cfg.Worker.StopGraceMs) * time.Millisecond,
		ProcessTimeout: time.Duration(cfg.Worker.ProcessTimeout) * time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		rt.closePartial()
		return nil, err
	}
	rt.worker = w
	return rt, nil
}

// buildProcessor picks the downstream delivery path. Without a forward URL
// events are drained with a log line, which keeps a partial deployment
// observable instead of wedging the queue.
func (r *Runtime) buildProcessor(logger logpkg.Logger) (worker.Processor, error) {
	if r.config.Forward.URL == "" {
		drain := logger.With(logpkg.Component("forward"))
		drain.Warn("no forward url configured, items will be logged and dropped")
		return worker.ProcessorFunc(func(ctx context.Context, item workqueue.Item) error {
			drain.Info("item drained",
				logpkg.Str("item_id", item.ID),
				logpkg.Str("key", item.Key))
			return nil
		}), nil
	}

	fb, err := r.breakers.GetOrCreate("forward")
	if err != nil {
		return nil, err
	}
	return forward.New(forward.Options{
		URL:     r.config.Forward.URL,
		Timeout: time.Duration(r.config.Forward.TimeoutMs) * time.Millisecond,
		Breaker: fb,
		Logger:  logger,
	})
}

// Start launches background processing.
func (r *Runtime) Start(ctx context.Context) {
	r.worker.Start(ctx)
	r.logger.Info("runtime started")
}

// Close drains buffers and stops background work. The buffer is flushed
// before the worker stops so tail events get a delivery attempt inside the
// grace period. A flush failure means buffered tail events were dropped;
// it is reported alongside any archive close error.
func (r *Runtime) Close() error {
	var errs []error
	if r.buffer != nil {
		if err := r.buffer.FlushAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.worker != nil {
		r.worker.Stop()
	}
	if err := r.closePartial(); err != nil {
		errs = append(errs, err)
	}
	r.logger.Info("runtime closed")
	return errors.Join(errs...)
}

func (r *Runtime) closePartial() error {
	if r.archive != nil {
		return r.archive.Close()
	}
	return nil
}

// Ingest runs one event through admission control. Order matters: an
// active ban short-circuits before the rate window is consulted, and a
// request rejected by the rate limit is never counted toward spike
// detection.
func (r *Runtime) Ingest(key, body, sourceID, label string) Decision {
	if r.limiter.IsBanned(key) {
		info, _ := r.limiter.GetBanInfo(key)
		r.logger.Warn("event from banned sender blocked",
			logpkg.Str("key", key),
			logpkg.Str("reason", info.Reason))
		return Decision{Outcome: OutcomeBanned, Ban: info}
	}

	rate := r.limiter.Check(key)
	if !rate.Allowed {
		r.logger.Warn("rate limit exceeded",
			logpkg.Str("key", key),
			logpkg.Str("reason", rate.Reason))
		return Decision{Outcome: OutcomeRateLimited, Rate: rate}
	}

	if r.limiter.DetectSpike(key) {
		reason := "spike detected: too many events in short period"
		r.limiter.Ban(key, 0, reason)
		info, _ := r.limiter.GetBanInfo(key)
		r.logger.Warn("sender auto-banned due to spike", logpkg.Str("key", key))
		return Decision{Outcome: OutcomeBanned, Ban: info}
	}

	r.buffer.Add(key, body, sourceID, label)
	return Decision{Outcome: OutcomeBuffered, Rate: rate}
}

// enqueueFlush turns a coalesced flush into a queue item.
func (r *Runtime) enqueueFlush(f debounce.Flush) error {
	itemID, err := r.queue.Enqueue(workqueue.Item{
		Key:      f.Key,
		Body:     f.Body,
		Label:    f.Label,
		SourceID: f.FirstID,
	})
	if err != nil {
		return fmt.Errorf("enqueue flushed events: %w", err)
	}
	r.logger.Info("coalesced events queued",
		logpkg.Str("key", f.Key),
		logpkg.Str("item_id", itemID),
		logpkg.Int("events", f.Count))
	return nil
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.queue == nil {
		return errors.New("queue not open")
	}
	if r.archive != nil {
		if _, err := r.archive.List(1, ""); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

// QueueMetrics returns a snapshot of queue counters.
func (r *Runtime) QueueMetrics() workqueue.Metrics { return r.queue.GetMetrics() }

// BufferStats returns debounce buffer occupancy.
func (r *Runtime) BufferStats() debounce.Stats { return r.buffer.GetStats() }

// DeadLetters lists items currently in the live dead letter queue.
func (r *Runtime) DeadLetters(limit int) []workqueue.Item { return r.queue.DeadLetters(limit) }

// RetryDeadLetter requeues a dead lettered item with a fresh retry budget.
// The archived copy is kept as the audit record of the original failure.
func (r *Runtime) RetryDeadLetter(itemID string) bool {
	return r.queue.RetryDeadLetter(itemID, 0)
}

// Limiter exposes the rate limiter for inspection surfaces.
func (r *Runtime) Limiter() *ratelimit.Limiter { return r.limiter }

// Breakers exposes the circuit breaker registry.
func (r *Runtime) Breakers() *breaker.Registry { return r.breakers }

// Archive returns the failure archive, or nil when disabled.
func (r *Runtime) Archive() *archive.Archive { return r.archive }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
