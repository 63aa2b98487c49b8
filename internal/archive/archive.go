package archive

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/inflow-io/inflow/internal/storage/pebble"
	"github.com/inflow-io/inflow/internal/workqueue"
	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// Archive is a durable, append-mostly record of items that exhausted their
// retries. The live queue stays in memory; the archive exists so failures
// survive a restart and can be inspected after the fact.
type Archive struct {
	db     *pebblestore.DB
	logger logpkg.Logger
}

// Open creates or opens the archive under dataDir.
func Open(dataDir string, logger logpkg.Logger) (*Archive, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir required")
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: filepath.Join(dataDir, "archive"),
		Fsync:   pebblestore.FsyncModeInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Archive{
		db:     db,
		logger: logger.With(logpkg.Component("archive")),
	}, nil
}

// Close releases the underlying store.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}

// Record persists a dead lettered item. Designed to be installed as the
// queue's dead letter hook; errors are logged rather than propagated so a
// disk problem never blocks the queue.
func (a *Archive) Record(item workqueue.Item) {
	b, err := json.Marshal(item)
	if err != nil {
		a.logger.Error("marshal dead letter", logpkg.Str("item_id", item.ID), logpkg.Err(err))
		return
	}
	if err := a.db.Set(deadLetterKey(item.ID), b); err != nil {
		a.logger.Error("persist dead letter", logpkg.Str("item_id", item.ID), logpkg.Err(err))
		return
	}
	a.logger.Info("dead letter archived",
		logpkg.Str("item_id", item.ID),
		logpkg.Str("key", item.Key))
}

// List returns up to limit archived items in queue order, optionally
// filtered by a CEL expression over the item's fields.
func (a *Archive) List(limit int, filterExpr string) ([]workqueue.Item, error) {
	if limit <= 0 {
		limit = 100
	}
	filter, err := newCELFilter(filterExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	lo, hi := deadLetterBounds()
	iter, err := a.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]workqueue.Item, 0, limit)
	for ok := iter.First(); ok && len(out) < limit; ok = iter.Next() {
		var item workqueue.Item
		if err := json.Unmarshal(iter.Value(), &item); err != nil {
			a.logger.Warn("skipping undecodable archive entry",
				logpkg.Str("key", string(iter.Key())), logpkg.Err(err))
			continue
		}
		if filter.Eval(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Get returns one archived item by id.
func (a *Archive) Get(itemID string) (workqueue.Item, bool, error) {
	b, err := a.db.Get(deadLetterKey(itemID))
	if err != nil {
		if err == pebblestore.ErrNotFound {
			return workqueue.Item{}, false, nil
		}
		return workqueue.Item{}, false, err
	}
	var item workqueue.Item
	if err := json.Unmarshal(b, &item); err != nil {
		return workqueue.Item{}, false, err
	}
	return item, true, nil
}

// Delete removes an archived item, typically after a successful manual
// retry.
func (a *Archive) Delete(itemID string) error {
	return a.db.Delete(deadLetterKey(itemID))
}
