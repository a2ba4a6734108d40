package monitor

import (
	"sync/atomic"
)

// IngestStats counts per-record outcomes during corpus preprocessing and
// store ingestion. Safe for concurrent workers.
type IngestStats struct {
	ReadCount      uint64
	StoredCount    uint64
	SkippedCount   uint64
	TruncatedCount uint64
}

func NewIngestStats() *IngestStats {
	return &IngestStats{}
}

func (s *IngestStats) RecordRead() {
	atomic.AddUint64(&s.ReadCount, 1)
}

func (s *IngestStats) RecordStored() {
	atomic.AddUint64(&s.StoredCount, 1)
}

func (s *IngestStats) RecordSkipped() {
	atomic.AddUint64(&s.SkippedCount, 1)
}

func (s *IngestStats) RecordTruncated() {
	atomic.AddUint64(&s.TruncatedCount, 1)
}

// Snapshot returns a consistent-enough copy for reporting.
func (s *IngestStats) Snapshot() IngestStats {
	return IngestStats{
		ReadCount:      atomic.LoadUint64(&s.ReadCount),
		StoredCount:    atomic.LoadUint64(&s.StoredCount),
		SkippedCount:   atomic.LoadUint64(&s.SkippedCount),
		TruncatedCount: atomic.LoadUint64(&s.TruncatedCount),
	}
}
