// Package store provides the durable record stores feeding the batching
// engine: a whitespace/tab-delimited flat-file store, a SQLite-backed
// indexed store, and an in-memory cache that can wrap either.
package store

import "github.com/katyfelkner/fairseq-server/pkg/common"

// Store is a read-only source of integer-sequence record pairs.
//
// A Store is stateful (pass counters, shuffle state) and must not be shared
// by concurrent consumers without external synchronization.
type Store interface {
	// Len reports the number of records: the materialized count for
	// in-memory stores, a line/row count otherwise.
	Len() int

	// Scan runs one full pass over the store in its configured order,
	// calling fn for each record until fn returns false or the pass ends.
	// Records filtered at ingestion (empty or over-length sides) are
	// skipped with a logged warning and never surface here.
	Scan(fn func(common.Record) bool) error

	// ProjectLengths returns the (id, x_len, y_len) projection sorted by
	// the given column and direction. Stores that cannot sort scalar
	// columns return ErrUnsupportedStrategy.
	ProjectLengths(col common.SortColumn, dir common.SortDir) ([]common.LengthStat, error)

	// SupportsProjection reports whether ProjectLengths and GetByIDs are
	// available, so strategy misconfiguration fails at setup time rather
	// than mid-iteration.
	SupportsProjection() bool

	// GetByIDs returns exactly one record per requested id, in
	// unspecified order. A missing id is ErrMissingRecord.
	GetByIDs(ids []int64) ([]common.Record, error)

	Close() error
}

// Scan-order strategies for the indexed store.
const (
	SortRandom        = "random"
	SortXLenAsc       = "x_len_asc"
	SortXLenDesc      = "x_len_desc"
	SortYLenAsc       = "y_len_asc"
	SortYLenDesc      = "y_len_desc"
	SortEqLenRandomly = "eq_len_rand_batch"
)
