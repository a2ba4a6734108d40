package store

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/btree"

	"github.com/katyfelkner/fairseq-server/pkg/common"
)

// idItem indexes a record's position by its id.
type idItem struct {
	id  int64
	pos int
}

func (a idItem) Less(b btree.Item) bool { return a.id < b.(idItem).id }

// MemStore materializes a wrapped store's full contents in memory: an
// id-ordered btree index over a flat record slice. It owns a copy of every
// record, so the source may be row-streamed and closed afterwards.
// Invalidation is by explicit rebuild only.
type MemStore struct {
	source string // path of the backing store, used as the snapshot key
	recs   []common.Record
	tree   *btree.BTree
}

// NewMemStore drains src into memory, asserting id uniqueness across the
// whole store. src is left exhausted but open; the caller still owns it.
func NewMemStore(src Store, sourcePath string) (*MemStore, error) {
	ms := &MemStore{
		source: sourcePath,
		tree:   btree.New(32),
	}
	slog.Info("loading data to memory", "source", sourcePath)
	var dupErr error
	err := src.Scan(func(rec common.Record) bool {
		if prev := ms.tree.ReplaceOrInsert(idItem{id: rec.ID, pos: len(ms.recs)}); prev != nil {
			dupErr = fmt.Errorf("record id %d: %w", rec.ID, common.ErrDuplicateID)
			return false
		}
		ms.recs = append(ms.recs, rec)
		if len(ms.recs)%100000 == 0 {
			slog.Info("loading data to memory", "records", len(ms.recs), "mem", heapInUse())
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, dupErr
	}
	slog.Info("loaded data to memory", "records", len(ms.recs), "mem", heapInUse())
	return ms, nil
}

func (ms *MemStore) Len() int { return len(ms.recs) }

// Source is the path of the store this cache was built from.
func (ms *MemStore) Source() string { return ms.source }

// Scan replays records in materialization order.
func (ms *MemStore) Scan(fn func(common.Record) bool) error {
	for _, rec := range ms.recs {
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

// ProjectLengths sorts the (id, x_len, y_len) projection by the requested
// column. The sort is stable, so equal lengths keep materialization order.
func (ms *MemStore) ProjectLengths(col common.SortColumn, dir common.SortDir) ([]common.LengthStat, error) {
	if !col.Valid() || !dir.Valid() {
		return nil, fmt.Errorf("projection sort %s %s: %w", col, dir, common.ErrUnsupportedStrategy)
	}
	stats := make([]common.LengthStat, len(ms.recs))
	for i, rec := range ms.recs {
		stats[i] = common.LengthStat{ID: rec.ID, XLen: int64(rec.XLen()), YLen: int64(rec.YLen())}
	}
	key := func(st common.LengthStat) int64 {
		if col == common.ColXLen {
			return st.XLen
		}
		return st.YLen
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if dir == common.Asc {
			return key(stats[i]) < key(stats[j])
		}
		return key(stats[i]) > key(stats[j])
	})
	return stats, nil
}

func (ms *MemStore) SupportsProjection() bool { return true }

// GetByIDs resolves ids through the btree index.
func (ms *MemStore) GetByIDs(ids []int64) ([]common.Record, error) {
	recs := make([]common.Record, 0, len(ids))
	for _, id := range ids {
		item := ms.tree.Get(idItem{id: id})
		if item == nil {
			return nil, fmt.Errorf("record id %d: %w", id, common.ErrMissingRecord)
		}
		recs = append(recs, ms.recs[item.(idItem).pos])
	}
	return recs, nil
}

func (ms *MemStore) Close() error { return nil }

func heapInUse() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return humanize.IBytes(m.HeapInuse)
}
