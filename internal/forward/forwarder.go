package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inflow-io/inflow/internal/breaker"
	"github.com/inflow-io/inflow/internal/workqueue"
	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// payload is the JSON body delivered downstream for each processed item.
type payload struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	Body       string `json:"body"`
	Label      string `json:"label,omitempty"`
	SourceID   string `json:"sourceId"`
	RetryCount int    `json:"retryCount"`
	QueuedAtMs int64  `json:"queuedAtMs"`
}

// Options configures a Forwarder.
type Options struct {
	URL     string
	Timeout time.Duration
	Breaker *breaker.Breaker
	Client  *http.Client
	Logger  logpkg.Logger
}

// Forwarder delivers work items to a downstream HTTP endpoint. Calls run
// through a circuit breaker so a dead downstream fails fast instead of
// tying up worker slots; rejected and failed deliveries surface as errors,
// which sends the item back through queue retry.
type Forwarder struct {
	url     string
	client  *http.Client
	breaker *breaker.Breaker
	logger  logpkg.Logger
}

// New creates a Forwarder. URL and breaker are required.
func New(opts Options) (*Forwarder, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("url required")
	}
	if opts.Breaker == nil {
		return nil, fmt.Errorf("breaker required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	return &Forwarder{
		url:     opts.URL,
		client:  opts.Client,
		breaker: opts.Breaker,
		logger:  opts.Logger.With(logpkg.Component("forward")),
	}, nil
}

// Process implements the worker's Processor contract.
func (f *Forwarder) Process(ctx context.Context, item workqueue.Item) error {
	_, err := breaker.Do(ctx, f.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.deliver(ctx, item)
	}, nil)
	return err
}

func (f *Forwarder) deliver(ctx context.Context, item workqueue.Item) error {
	body, err := json.Marshal(payload{
		ID:         item.ID,
		Key:        item.Key,
		Body:       item.Body,
		Label:      item.Label,
		SourceID:   item.SourceID,
		RetryCount: item.RetryCount,
		QueuedAtMs: item.CreatedAtMs,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", f.url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("downstream returned %d", resp.StatusCode)
	}
	f.logger.Debug("item delivered",
		logpkg.Str("item_id", item.ID),
		logpkg.Int("status", resp.StatusCode))
	return nil
}
