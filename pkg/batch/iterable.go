package batch

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/katyfelkner/fairseq-server/pkg/common"
	"github.com/katyfelkner/fairseq-server/pkg/store"
)

// Options configures how a store is opened and bucketed.
type Options struct {
	// BatchSize is the token budget B: every batch satisfies
	// size * maxRecordLen <= B.
	BatchSize int
	// SortBy is the scan/bucketing strategy. Only the indexed store
	// supports strategies; it must be empty for flat files.
	SortBy string
	// LenRand is the jitter window for length-sorted scans.
	LenRand int
	// Seed drives bucket-order shuffling and flat-file shuffles.
	Seed int64
	// Shuffle reorders flat-file records between passes.
	Shuffle bool
	// KeepInMem wraps the store in a cache, reloading a same-path
	// snapshot when one exists.
	KeepInMem bool
	Truncate  bool
	MaxSrcLen int
	MaxTgtLen int
}

// Iterable drives one record store through a bucketing strategy, producing
// batches under the token budget. It is stateful and not safe for
// concurrent consumers.
type Iterable struct {
	data     store.Store
	dataPath string
	budget   int
	sortBy   string
	spec     Spec
	rng      *rand.Rand
}

// Open builds an Iterable over the store at dataPath: ".db" files open the
// indexed store, anything else the flat-file store. With KeepInMem the store
// is materialized into a cache, preferring an existing snapshot keyed by the
// same path.
func Open(dataPath string, spec Spec, opts Options) (*Iterable, error) {
	if _, err := os.Stat(dataPath); err != nil {
		return nil, fmt.Errorf("training data: %w", err)
	}
	var (
		st  store.Store
		err error
	)
	if strings.HasSuffix(dataPath, ".db") {
		sortBy := opts.SortBy
		if sortBy == "" {
			sortBy = store.SortRandom
		}
		st, err = store.OpenSQLite(dataPath, store.SQLiteOptions{
			SortBy:    sortBy,
			LenRand:   opts.LenRand,
			Truncate:  opts.Truncate,
			MaxSrcLen: opts.MaxSrcLen,
			MaxTgtLen: opts.MaxTgtLen,
		})
	} else {
		if opts.SortBy != "" && opts.SortBy != store.SortRandom {
			return nil, fmt.Errorf("sort_by=%q on flat-file data: %w", opts.SortBy, common.ErrUnsupportedStrategy)
		}
		st, err = store.OpenTSV(dataPath, store.TSVOptions{
			Shuffle:   opts.Shuffle,
			Truncate:  opts.Truncate,
			MaxSrcLen: opts.MaxSrcLen,
			MaxTgtLen: opts.MaxTgtLen,
			Seed:      opts.Seed,
		})
	}
	if err != nil {
		return nil, err
	}
	if opts.KeepInMem {
		ms, err := loadOrBuildCache(st, dataPath)
		st.Close()
		if err != nil {
			return nil, err
		}
		st = ms
	}
	it, err := NewIterable(st, dataPath, spec, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	return it, nil
}

func loadOrBuildCache(src store.Store, dataPath string) (*store.MemStore, error) {
	snap := store.SnapshotPath(dataPath)
	if _, err := os.Stat(snap); err == nil {
		ms, err := store.LoadSnapshot(snap)
		if err == nil && ms.Source() == dataPath {
			return ms, nil
		}
		slog.Warn("ignoring unusable snapshot", "path", snap, "error", err)
	}
	ms, err := store.NewMemStore(src, dataPath)
	if err != nil {
		return nil, err
	}
	if err := store.SaveSnapshot(ms, snap); err != nil {
		// Rebuilding next run costs time, not correctness.
		slog.Warn("could not save snapshot", "path", snap, "error", err)
	}
	return ms, nil
}

// NewIterable wraps an already-open store. Strategy support is checked here,
// at configuration time, never mid-iteration.
func NewIterable(st store.Store, dataPath string, spec Spec, opts Options) (*Iterable, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size %d must be positive", opts.BatchSize)
	}
	if opts.SortBy == store.SortEqLenRandomly && !st.SupportsProjection() {
		return nil, fmt.Errorf("%s requires scalar-column sorts: %w", opts.SortBy, common.ErrUnsupportedStrategy)
	}
	slog.Info("batch iterable ready", "data", dataPath, "batch_size", opts.BatchSize, "sort_by", opts.SortBy)
	return &Iterable{
		data:     st,
		dataPath: dataPath,
		budget:   opts.BatchSize,
		sortBy:   opts.SortBy,
		spec:     spec,
		rng:      rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// NumItems is the record count of the underlying store.
func (it *Iterable) NumItems() int { return it.data.Len() }

// NumBatches estimates the batch count per pass. The true count depends on
// the length distribution.
func (it *Iterable) NumBatches() int {
	return int(math.Ceil(float64(it.data.Len()) / float64(it.budget)))
}

// Close releases the underlying store.
func (it *Iterable) Close() error { return it.data.Close() }

// Each runs one full pass, calling fn for every batch until fn returns false
// or the pass ends. Each call is an independent pass.
func (it *Iterable) Each(fn func(*Batch) bool) error {
	if it.sortBy == store.SortEqLenRandomly {
		return it.eachEqLenRandom(fn)
	}
	return it.eachSequential(fn)
}

// eachSequential streams records in store order, flushing a batch whenever
// the next record would break the (count+1) * maxLen <= budget rule.
func (it *Iterable) eachSequential(fn func(*Batch) bool) error {
	var (
		cur     []common.Record
		maxLen  int
		iterErr error
		stopped bool
	)
	err := it.data.Scan(func(rec common.Record) bool {
		if rec.XLen() == 0 || (rec.HasY() && rec.YLen() == 0) {
			slog.Warn("skipping a record, either source or target is empty", "id", rec.ID)
			return true
		}
		thisLen := rec.MaxLen()
		if (len(cur)+1)*max(maxLen, thisLen) <= it.budget {
			cur = append(cur, rec)
			maxLen = max(maxLen, thisLen)
			return true
		}
		if thisLen > it.budget {
			iterErr = fmt.Errorf("record %d with x_len:%d y_len:%d against budget %d: %w",
				rec.ID, rec.XLen(), rec.YLen(), it.budget, common.ErrBatchOverflow)
			return false
		}
		b, err := New(cur, it.spec)
		if err != nil {
			iterErr = err
			return false
		}
		if !fn(b) {
			stopped = true
			return false
		}
		cur = []common.Record{rec}
		maxLen = thisLen
		return true
	})
	if err != nil {
		return err
	}
	if iterErr != nil || stopped {
		return iterErr
	}
	if len(cur) > 0 {
		b, err := New(cur, it.spec)
		if err != nil {
			return err
		}
		fn(b)
	}
	return nil
}

// eachEqLenRandom forms token-budget buckets from a length-only projection
// (target length descending, jittered on the indexed store), shuffles the
// bucket order, then reconstitutes each bucket by id. Every pass presents
// batches in a fresh order while each batch stays length-homogeneous.
func (it *Iterable) eachEqLenRandom(fn func(*Batch) bool) error {
	buckets, err := it.makeEqLenBuckets()
	if err != nil {
		return err
	}
	if len(buckets) == 0 {
		return fmt.Errorf("no batches from %s: %w", it.dataPath, common.ErrNoData)
	}
	slog.Info("shuffling length-sorted buckets", "batches", len(buckets))
	it.rng.Shuffle(len(buckets), func(i, j int) {
		buckets[i], buckets[j] = buckets[j], buckets[i]
	})
	for _, ids := range buckets {
		recs, err := it.data.GetByIDs(ids)
		if err != nil {
			return err
		}
		b, err := New(recs, it.spec)
		if err != nil {
			return err
		}
		if !fn(b) {
			return nil
		}
	}
	return nil
}

func (it *Iterable) makeEqLenBuckets() ([][]int64, error) {
	stats, err := it.data.ProjectLengths(common.ColYLen, common.Desc)
	if err != nil {
		return nil, err
	}
	var (
		buckets [][]int64
		cur     []int64
		maxLen  int
	)
	for _, st := range stats {
		if st.XLen == 0 || st.YLen == 0 {
			slog.Warn("skipping a record, either source or target is empty", "id", st.ID)
			continue
		}
		thisLen := int(max(st.XLen, st.YLen))
		if (len(cur)+1)*max(maxLen, thisLen) <= it.budget {
			cur = append(cur, st.ID)
			maxLen = max(maxLen, thisLen)
			continue
		}
		if thisLen > it.budget {
			return nil, fmt.Errorf("record %d with x_len:%d y_len:%d against budget %d: %w",
				st.ID, st.XLen, st.YLen, it.budget, common.ErrBatchOverflow)
		}
		buckets = append(buckets, cur)
		cur = []int64{st.ID}
		maxLen = thisLen
	}
	if len(cur) > 0 {
		buckets = append(buckets, cur)
	}
	return buckets, nil
}
