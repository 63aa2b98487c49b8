package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, clk *fakeClock, opts Options) *Limiter {
	t.Helper()
	opts.Now = clk.now
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{MaxRequests: 3, Window: time.Hour})

	for i := 0; i < 3; i++ {
		res := l.Check("lead-1")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-(i+1) {
			t.Fatalf("request %d remaining = %d", i, res.Remaining)
		}
	}
	res := l.Check("lead-1")
	if res.Allowed {
		t.Fatalf("fourth request should be blocked")
	}
	if res.RetryAfter < 1 {
		t.Fatalf("retryAfter = %d, want >= 1", res.RetryAfter)
	}
}

func TestCheckSlidingWindowExpiry(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{MaxRequests: 2, Window: time.Minute})

	l.Check("lead-1")
	l.Check("lead-1")
	if l.Check("lead-1").Allowed {
		t.Fatalf("should be limited")
	}
	clk.advance(61 * time.Second)
	if !l.Check("lead-1").Allowed {
		t.Fatalf("window should have slid past old requests")
	}
}

func TestBlockedRequestNotRecorded(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{MaxRequests: 1, Window: time.Minute})

	l.Check("lead-1")
	for i := 0; i < 5; i++ {
		l.Check("lead-1")
	}
	// Only the single allowed request should age out.
	clk.advance(61 * time.Second)
	if !l.Check("lead-1").Allowed {
		t.Fatalf("blocked attempts must not extend the window")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{MaxRequests: 1, Window: time.Hour})

	if !l.Check("a").Allowed {
		t.Fatalf("first key should pass")
	}
	if !l.Check("b").Allowed {
		t.Fatalf("second key should be unaffected by first")
	}
	if l.Check("a").Allowed {
		t.Fatalf("first key should now be limited")
	}
}

func TestDetectSpike(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{
		MaxRequests: 100,
		Window:      time.Hour,
		SpikeMax:    3,
		SpikeWindow: time.Minute,
	})

	l.Check("lead-1")
	l.Check("lead-1")
	if l.DetectSpike("lead-1") {
		t.Fatalf("two requests should not be a spike")
	}
	l.Check("lead-1")
	if !l.DetectSpike("lead-1") {
		t.Fatalf("three requests in a minute should be a spike")
	}
	clk.advance(2 * time.Minute)
	if l.DetectSpike("lead-1") {
		t.Fatalf("spike should clear after the spike window passes")
	}
}

func TestBanLifecycle(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{MaxRequests: 10, Window: time.Hour})

	if l.IsBanned("lead-1") {
		t.Fatalf("fresh key should not be banned")
	}
	l.Ban("lead-1", 10*time.Minute, "spike")
	if !l.IsBanned("lead-1") {
		t.Fatalf("ban should be active")
	}
	info, ok := l.GetBanInfo("lead-1")
	if !ok || info.Reason != "spike" {
		t.Fatalf("GetBanInfo = %+v, %v", info, ok)
	}
	clk.advance(11 * time.Minute)
	if l.IsBanned("lead-1") {
		t.Fatalf("ban should expire")
	}
	if _, ok := l.GetBanInfo("lead-1"); ok {
		t.Fatalf("expired ban should be gone")
	}
}

func TestUnban(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{MaxRequests: 10, Window: time.Hour})

	l.Ban("lead-1", time.Hour, "manual")
	l.Unban("lead-1")
	if l.IsBanned("lead-1") {
		t.Fatalf("unban should lift the ban immediately")
	}
}

func TestSnapshotDoesNotRecord(t *testing.T) {
	clk := &fakeClock{t: time.UnixMilli(1_000_000)}
	l := newTestLimiter(t, clk, Options{MaxRequests: 2, Window: time.Hour})

	for i := 0; i < 5; i++ {
		l.Snapshot("lead-1")
	}
	res := l.Check("lead-1")
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("snapshot must not consume quota: %+v", res)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{MaxRequests: 0, Window: time.Hour}); err == nil {
		t.Fatalf("expected error for zero maxRequests")
	}
	if _, err := New(Options{MaxRequests: 1, Window: 0}); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
