package archive

import (
	"fmt"
	"testing"

	"github.com/inflow-io/inflow/internal/workqueue"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func testItem(i int) workqueue.Item {
	return workqueue.Item{
		ID:          fmt.Sprintf("%032d", i),
		Key:         fmt.Sprintf("lead-%d", i%2),
		Body:        fmt.Sprintf("body %d", i),
		SourceID:    fmt.Sprintf("src-%d", i),
		Status:      workqueue.StatusDeadLetter,
		RetryCount:  i,
		MaxRetries:  5,
		CreatedAtMs: int64(1_000_000 + i),
		Error:       fmt.Sprintf("downstream %d", 500+i%2),
	}
}

func TestRecordAndGet(t *testing.T) {
	a := openTestArchive(t)
	item := testItem(1)
	a.Record(item)

	got, ok, err := a.Get(item.ID)
	if err != nil || !ok {
		t.Fatalf("Get: %v, ok=%v", err, ok)
	}
	if got.ID != item.ID || got.Error != item.Error || got.RetryCount != item.RetryCount {
		t.Fatalf("got = %+v", got)
	}

	if _, ok, err := a.Get("missing"); err != nil || ok {
		t.Fatalf("missing item: ok=%v err=%v", ok, err)
	}
}

func TestListOrderedWithLimit(t *testing.T) {
	a := openTestArchive(t)
	for i := 4; i >= 0; i-- {
		a.Record(testItem(i))
	}

	items, err := a.List(3, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	// Time-ordered ids scan in queue order regardless of insert order.
	for i, item := range items {
		if item.ID != fmt.Sprintf("%032d", i) {
			t.Fatalf("items[%d].ID = %s", i, item.ID)
		}
	}
}

func TestListWithCELFilter(t *testing.T) {
	a := openTestArchive(t)
	for i := 0; i < 4; i++ {
		a.Record(testItem(i))
	}

	items, err := a.List(100, `error.contains("501")`)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.Error != "downstream 501" {
			t.Fatalf("filter leaked item: %+v", item)
		}
	}

	items, err = a.List(100, "retry_count >= 2")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("retry_count filter: len = %d, want 2", len(items))
	}
}

func TestListRejectsBadFilter(t *testing.T) {
	a := openTestArchive(t)
	if _, err := a.List(10, "not a valid ((( expression"); err == nil {
		t.Fatalf("expected error for invalid CEL")
	}
}

func TestDelete(t *testing.T) {
	a := openTestArchive(t)
	item := testItem(1)
	a.Record(item)
	if err := a.Delete(item.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := a.Get(item.ID); ok {
		t.Fatalf("item should be gone after delete")
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a.Record(testItem(7))
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	items, err := b.List(10, "")
	if err != nil || len(items) != 1 {
		t.Fatalf("List after reopen: %v, %d items", err, len(items))
	}
}
