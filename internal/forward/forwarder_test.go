package forward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/inflow-io/inflow/internal/breaker"
	"github.com/inflow-io/inflow/internal/workqueue"
)

func newTestForwarder(t *testing.T, url string, b *breaker.Breaker) *Forwarder {
	t.Helper()
	f, err := New(Options{URL: url, Breaker: b})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func newTestBreakerOpts(t *testing.T, threshold int) *breaker.Breaker {
	t.Helper()
	b, err := breaker.New("forward", breaker.Options{FailureThreshold: threshold})
	if err != nil {
		t.Fatalf("breaker.New: %v", err)
	}
	return b
}

func TestDeliversPayload(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestForwarder(t, srv.URL, newTestBreakerOpts(t, 5))
	item := workqueue.Item{
		ID:          "item-1",
		Key:         "lead-1",
		Body:        "hello\nworld",
		Label:       "Ada",
		SourceID:    "src-1",
		RetryCount:  2,
		CreatedAtMs: 12345,
	}
	if err := f.Process(context.Background(), item); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.ID != "item-1" || got.Body != "hello\nworld" || got.RetryCount != 2 || got.QueuedAtMs != 12345 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestForwarder(t, srv.URL, newTestBreakerOpts(t, 5))
	err := f.Process(context.Background(), workqueue.Item{ID: "x"})
	if err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := newTestBreakerOpts(t, 2)
	f := newTestForwarder(t, srv.URL, b)

	f.Process(context.Background(), workqueue.Item{ID: "a"})
	f.Process(context.Background(), workqueue.Item{ID: "b"})
	if b.State() != breaker.Open {
		t.Fatalf("breaker should be open, state = %s", b.State())
	}

	err := f.Process(context.Background(), workqueue.Item{ID: "c"})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("open breaker must not hit downstream: %d hits", hits.Load())
	}
}

func TestNewValidation(t *testing.T) {
	b := newTestBreakerOpts(t, 1)
	if _, err := New(Options{Breaker: b}); err == nil {
		t.Fatalf("expected error for missing url")
	}
	if _, err := New(Options{URL: "http://x"}); err == nil {
		t.Fatalf("expected error for missing breaker")
	}
}
