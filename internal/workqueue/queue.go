package workqueue

import (
	"sync"
	"time"

	"github.com/inflow-io/inflow/pkg/id"
	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// retryDelays is the backoff ladder applied between attempts. Attempts past
// the ladder reuse the last rung.
var retryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	6 * time.Hour,
}

// processingWindow bounds the rolling sample used for the average
// processing time metric.
const processingWindow = 1000

// Queue is the work queue contract the worker drives. All time-sensitive
// methods take nowMs; <=0 means current time.
type Queue interface {
	Enqueue(item Item) (string, error)
	Dequeue(nowMs int64) (Item, bool)
	Complete(itemID string, nowMs int64)
	Fail(itemID, errMsg string, nowMs int64)
	GetMetrics() Metrics
	DeadLetters(limit int) []Item
	RetryDeadLetter(itemID string, nowMs int64) bool
}

// DeadLetterHook observes items as they enter the dead letter queue. Called
// outside the queue lock.
type DeadLetterHook func(Item)

// Memory is an in-process Queue. State is lost on restart; suitable for a
// single-instance deployment where the upstream can redeliver.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*Item
	pending    []string
	processing map[string]struct{}
	completed  map[string]struct{}
	failed     map[string]struct{}
	deadLetter map[string]*Item

	processingTimes []float64

	onDeadLetter DeadLetterHook
	maxRetries   int
	gen          *id.Generator
	logger       logpkg.Logger
}

// NewMemory creates an empty in-memory queue. maxRetries applies to items
// enqueued without an explicit limit; zero disables retries and negative
// values use 5.
func NewMemory(maxRetries int, logger logpkg.Logger) *Memory {
	if maxRetries < 0 {
		maxRetries = 5
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Memory{
		items:      make(map[string]*Item),
		processing: make(map[string]struct{}),
		completed:  make(map[string]struct{}),
		failed:     make(map[string]struct{}),
		deadLetter: make(map[string]*Item),
		maxRetries: maxRetries,
		gen:        id.NewGenerator(),
		logger:     logger.With(logpkg.Component("workqueue")),
	}
}

// SetDeadLetterHook installs fn to observe dead-lettered items. Must be
// called before the queue is in use.
func (q *Memory) SetDeadLetterHook(fn DeadLetterHook) { q.onDeadLetter = fn }

// Enqueue adds item and returns its id. A missing id is assigned; missing
// timestamps and retry limits get defaults.
func (q *Memory) Enqueue(item Item) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.ID == "" {
		item.ID = q.gen.Next().String()
	}
	if item.CreatedAtMs <= 0 {
		item.CreatedAtMs = time.Now().UnixMilli()
	}
	if item.ScheduledAtMs <= 0 {
		item.ScheduledAtMs = item.CreatedAtMs
	}
	if item.MaxRetries <= 0 {
		item.MaxRetries = q.maxRetries
	}
	item.Status = StatusPending

	stored := item
	q.items[item.ID] = &stored
	q.pending = append(q.pending, item.ID)
	return item.ID, nil
}

// Dequeue pops the next pending item and marks it processing. An item whose
// retry delay has not elapsed is pushed back and ok=false is returned; the
// caller polls again later.
func (q *Memory) Dequeue(nowMs int64) (Item, bool) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Item{}, false
	}
	itemID := q.pending[0]
	q.pending = q.pending[1:]

	item, ok := q.items[itemID]
	if !ok {
		return Item{}, false
	}
	if item.ScheduledAtMs > nowMs {
		// Not ready yet, re-queue at the tail.
		q.pending = append(q.pending, itemID)
		return Item{}, false
	}

	item.Status = StatusProcessing
	q.processing[itemID] = struct{}{}
	return *item, true
}

// Complete marks itemID as done and records its end-to-end latency.
func (q *Memory) Complete(itemID string, nowMs int64) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[itemID]
	if !ok {
		return
	}
	item.Status = StatusCompleted
	delete(q.processing, itemID)
	q.completed[itemID] = struct{}{}

	q.processingTimes = append(q.processingTimes, float64(nowMs-item.CreatedAtMs))
	if len(q.processingTimes) > processingWindow {
		q.processingTimes = q.processingTimes[len(q.processingTimes)-processingWindow:]
	}
}

// Fail records an attempt failure. The item is rescheduled along the
// backoff ladder until it exhausts MaxRetries, then moves to the dead
// letter queue.
func (q *Memory) Fail(itemID, errMsg string, nowMs int64) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()

	item, ok := q.items[itemID]
	if !ok {
		q.mu.Unlock()
		return
	}
	item.Error = errMsg
	item.RetryCount++
	delete(q.processing, itemID)

	if item.RetryCount <= item.MaxRetries {
		delayIdx := item.RetryCount - 1
		if delayIdx >= len(retryDelays) {
			delayIdx = len(retryDelays) - 1
		}
		delay := retryDelays[delayIdx]
		item.ScheduledAtMs = nowMs + delay.Milliseconds()
		item.Status = StatusPending
		q.pending = append(q.pending, itemID)
		q.failed[itemID] = struct{}{}
		retry, maxRetries := item.RetryCount, item.MaxRetries
		q.mu.Unlock()

		q.logger.Warn("item failed, retry scheduled",
			logpkg.Str("item_id", itemID),
			logpkg.Int("retry", retry),
			logpkg.Int("max_retries", maxRetries),
			logpkg.Dur("delay", delay),
			logpkg.Str("error", errMsg))
		return
	}

	item.Status = StatusDeadLetter
	q.deadLetter[itemID] = item
	q.failed[itemID] = struct{}{}
	dead := *item
	hook := q.onDeadLetter
	q.mu.Unlock()

	q.logger.Error("item exhausted retries, dead lettered",
		logpkg.Str("item_id", itemID),
		logpkg.Int("retries", dead.RetryCount),
		logpkg.Str("error", errMsg))
	if hook != nil {
		hook(dead)
	}
}

// GetMetrics returns a snapshot of queue counters.
func (q *Memory) GetMetrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := len(q.completed) + len(q.failed)
	var errorRate float64
	if total > 0 {
		errorRate = float64(len(q.failed)) / float64(total) * 100
	}
	var avg float64
	if len(q.processingTimes) > 0 {
		var sum float64
		for _, v := range q.processingTimes {
			sum += v
		}
		avg = sum / float64(len(q.processingTimes))
	}
	return Metrics{
		Pending:             len(q.pending),
		Processing:          len(q.processing),
		Completed:           len(q.completed),
		Failed:              len(q.failed),
		DeadLetter:          len(q.deadLetter),
		AvgProcessingTimeMs: avg,
		ErrorRate:           errorRate,
	}
}

// DeadLetters returns up to limit dead lettered items. A non-positive limit
// uses 100.
func (q *Memory) DeadLetters(limit int) []Item {
	if limit <= 0 {
		limit = 100
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.deadLetter))
	for _, item := range q.deadLetter {
		out = append(out, *item)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// RetryDeadLetter moves itemID out of the dead letter queue with a fresh
// retry budget. Returns false if the item is not dead lettered.
func (q *Memory) RetryDeadLetter(itemID string, nowMs int64) bool {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.deadLetter[itemID]
	if !ok {
		return false
	}
	delete(q.deadLetter, itemID)

	item.RetryCount = 0
	item.Status = StatusPending
	item.ScheduledAtMs = nowMs
	item.Error = ""
	q.pending = append(q.pending, itemID)
	return true
}
