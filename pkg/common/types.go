// Package common holds the record model and the sentinel errors shared by
// every layer of the dataset engine.
package common

import "fmt"

// Record is one training example: a source token sequence and an optional
// target token sequence, tagged with an id that is unique within its store.
// Records are immutable once produced; nothing in this repository mutates a
// Record's sequences in place.
type Record struct {
	ID int64
	X  []int64
	Y  []int64 // nil when the record has no target side
}

// HasY reports whether the record carries a target sequence.
func (r Record) HasY() bool { return r.Y != nil }

// XLen is the source sequence length.
func (r Record) XLen() int { return len(r.X) }

// YLen is the target sequence length, 0 if absent.
func (r Record) YLen() int { return len(r.Y) }

// MaxLen is the larger of the two side lengths. Bucketing admits records
// based on this value.
func (r Record) MaxLen() int {
	if len(r.X) > len(r.Y) {
		return len(r.X)
	}
	return len(r.Y)
}

// String is for debug printing.
func (r Record) String() string {
	return fmt.Sprintf("Record{ID: %d, XLen: %d, YLen: %d}", r.ID, len(r.X), len(r.Y))
}

// SeqPair is a tokenized record pair headed for a store; ids are assigned at
// write time. Y may be nil for monolingual data.
type SeqPair struct {
	X []int64
	Y []int64
}

// LengthStat is the fixed-field projection row used by the equal-length
// batching pass: just the id and the two side lengths, no sequences.
type LengthStat struct {
	ID   int64
	XLen int64
	YLen int64
}

// SortColumn names a projectable length column.
type SortColumn string

// SortDir is a sort direction for projections.
type SortDir string

const (
	ColXLen SortColumn = "x_len"
	ColYLen SortColumn = "y_len"

	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// Valid reports whether the column is one of the declared projection columns.
func (c SortColumn) Valid() bool { return c == ColXLen || c == ColYLen }

// Valid reports whether the direction is asc or desc.
func (d SortDir) Valid() bool { return d == Asc || d == Desc }
