package common

import "errors"

// Sentinel errors shared across the dataset engine. Store backends, the
// batch builder and the preprocessor wrap these, so errors.Is checks work
// across package boundaries.
var (
	// ErrBatchOverflow: a single record alone exceeds the token budget.
	// Fatal to the batching run; signals misconfigured max lengths.
	ErrBatchOverflow = errors.New("fairseq-server: record exceeds token budget")

	// ErrInvalidAlignment: a BOS/EOS precondition was violated, or records
	// within one batch disagree on target-side presence.
	ErrInvalidAlignment = errors.New("fairseq-server: invalid batch alignment")

	// ErrDuplicateID: cache construction found two records sharing an id.
	ErrDuplicateID = errors.New("fairseq-server: duplicate record id")

	// ErrMissingRecord: random access by id found no matching row.
	ErrMissingRecord = errors.New("fairseq-server: record id not found")

	// ErrCorpusMismatch: raw parallel files have unequal line counts.
	ErrCorpusMismatch = errors.New("fairseq-server: parallel corpus line counts differ")

	// ErrUnsupportedStrategy: a sort/bucketing strategy was requested
	// against a backend that cannot provide it.
	ErrUnsupportedStrategy = errors.New("fairseq-server: strategy not supported by this store")

	// ErrNoData: a store or pass produced no usable records.
	ErrNoData = errors.New("fairseq-server: no training data")

	// ErrBadSnapshot: a cache snapshot file failed magic, version or
	// checksum verification.
	ErrBadSnapshot = errors.New("fairseq-server: corrupt cache snapshot")
)
