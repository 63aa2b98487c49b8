package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inflow-io/inflow/internal/workqueue"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newWorker(t *testing.T, q workqueue.Queue, p Processor, opts Options) *Worker {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.StopGrace == 0 {
		opts.StopGrace = time.Second
	}
	w, err := New(q, p, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestProcessesAndCompletes(t *testing.T) {
	q := workqueue.NewMemory(5, nil)
	var processed atomic.Int32
	p := ProcessorFunc(func(ctx context.Context, item workqueue.Item) error {
		processed.Add(1)
		return nil
	})
	w := newWorker(t, q, p, Options{})

	for i := 0; i < 5; i++ {
		q.Enqueue(workqueue.Item{Key: "k", Body: "b", SourceID: "s"})
	}
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool { return q.GetMetrics().Completed == 5 })
	if processed.Load() != 5 {
		t.Fatalf("processed = %d, want 5", processed.Load())
	}
}

func TestHandlerErrorFailsItem(t *testing.T) {
	q := workqueue.NewMemory(5, nil)
	p := ProcessorFunc(func(ctx context.Context, item workqueue.Item) error {
		return errors.New("downstream 502")
	})
	w := newWorker(t, q, p, Options{})

	q.Enqueue(workqueue.Item{Key: "k", Body: "b", SourceID: "s"})
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool { return q.GetMetrics().Failed == 1 })
	m := q.GetMetrics()
	if m.Completed != 0 || m.Pending != 1 {
		t.Fatalf("failed item should be rescheduled: %+v", m)
	}
}

func TestHandlerPanicFailsItem(t *testing.T) {
	q := workqueue.NewMemory(5, nil)
	p := ProcessorFunc(func(ctx context.Context, item workqueue.Item) error {
		panic("boom")
	})
	w := newWorker(t, q, p, Options{})

	q.Enqueue(workqueue.Item{Key: "k", Body: "b", SourceID: "s"})
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool { return q.GetMetrics().Failed == 1 })
}

func TestConcurrencyBound(t *testing.T) {
	q := workqueue.NewMemory(5, nil)
	var mu sync.Mutex
	active, peak := 0, 0
	release := make(chan struct{})
	p := ProcessorFunc(func(ctx context.Context, item workqueue.Item) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		<-release
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})
	w := newWorker(t, q, p, Options{Concurrency: 2, PollInterval: time.Millisecond})

	for i := 0; i < 6; i++ {
		q.Enqueue(workqueue.Item{Key: "k", Body: "b", SourceID: "s"})
	}
	w.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return active == 2
	})
	close(release)
	waitFor(t, 2*time.Second, func() bool { return q.GetMetrics().Completed == 6 })
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestStopWaitsForInFlight(t *testing.T) {
	q := workqueue.NewMemory(5, nil)
	started := make(chan struct{})
	p := ProcessorFunc(func(ctx context.Context, item workqueue.Item) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	w := newWorker(t, q, p, Options{StopGrace: time.Second})

	q.Enqueue(workqueue.Item{Key: "k", Body: "b", SourceID: "s"})
	w.Start(context.Background())
	<-started
	w.Stop()

	if m := q.GetMetrics(); m.Completed != 1 {
		t.Fatalf("in-flight item should finish during grace: %+v", m)
	}
}

func TestStopCancelsAfterGrace(t *testing.T) {
	q := workqueue.NewMemory(5, nil)
	started := make(chan struct{})
	p := ProcessorFunc(func(ctx context.Context, item workqueue.Item) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	w := newWorker(t, q, p, Options{StopGrace: 50 * time.Millisecond})

	q.Enqueue(workqueue.Item{Key: "k", Body: "b", SourceID: "s"})
	w.Start(context.Background())
	<-started
	w.Stop()

	if m := q.GetMetrics(); m.Failed != 1 {
		t.Fatalf("hung item should be failed after grace: %+v", m)
	}
}

func TestStartTwiceIsNoOp(t *testing.T) {
	q := workqueue.NewMemory(5, nil)
	p := ProcessorFunc(func(ctx context.Context, item workqueue.Item) error { return nil })
	w := newWorker(t, q, p, Options{})

	w.Start(context.Background())
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}
