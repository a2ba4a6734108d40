// Package batch turns record stores into padded, aligned training batches
// under a token budget.
package batch

import (
	"fmt"
	"sort"

	"github.com/katyfelkner/fairseq-server/pkg/common"
)

// Spec is the alignment configuration applied to every batch.
type Spec struct {
	// SortDesc re-sorts each batch descending by source length (stable
	// within ties) to front-load long sequences.
	SortDesc bool
	// BatchFirst selects batch-major matrices; false transposes to
	// sequence-major.
	BatchFirst bool

	AddBOSX bool
	AddEOSX bool
	AddBOSY bool
	AddEOSY bool

	Pad int64
	BOS int64
	EOS int64
}

// Batch is a transient aligned group of records: rectangular padded matrices
// plus length vectors. It owns freshly allocated buffers and never aliases
// record storage. Construct, consume once, discard.
type Batch struct {
	XSeqs [][]int64
	YSeqs [][]int64 // nil when the records carry no target side
	XLens []int64
	YLens []int64

	HasY    bool
	MaxXLen int
	MaxYLen int
	XToks   int64 // total source tokens, for throughput accounting
	YToks   int64

	Pad        int64
	BOS        int64
	EOS        int64
	BatchFirst bool

	size int
}

// Size is the number of records in the batch.
func (b *Batch) Size() int { return b.size }

// New builds a Batch from a non-empty record list. Input records are never
// mutated: BOS/EOS insertion produces augmented copies, so records cached by
// a store stay safe to reuse across passes.
func New(recs []common.Record, spec Spec) (*Batch, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("empty batch: %w", common.ErrNoData)
	}
	hasY := recs[0].HasY()
	for _, rec := range recs[1:] {
		if rec.HasY() != hasY {
			return nil, fmt.Errorf("record %d: mixed target-side presence in one batch: %w",
				rec.ID, common.ErrInvalidAlignment)
		}
	}

	xs := make([][]int64, len(recs))
	for i, rec := range recs {
		seq, err := align(rec.X, spec.AddBOSX, spec.AddEOSX, spec)
		if err != nil {
			return nil, fmt.Errorf("record %d x: %w", rec.ID, err)
		}
		xs[i] = seq
	}
	var ys [][]int64
	if hasY {
		ys = make([][]int64, len(recs))
		for i, rec := range recs {
			seq, err := align(rec.Y, spec.AddBOSY, spec.AddEOSY, spec)
			if err != nil {
				return nil, fmt.Errorf("record %d y: %w", rec.ID, err)
			}
			ys[i] = seq
		}
	}

	if spec.SortDesc {
		idx := make([]int, len(recs))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return len(xs[idx[a]]) > len(xs[idx[b]]) })
		xs = reorder(xs, idx)
		if hasY {
			ys = reorder(ys, idx)
		}
	}

	b := &Batch{
		HasY:       hasY,
		Pad:        spec.Pad,
		BOS:        spec.BOS,
		EOS:        spec.EOS,
		BatchFirst: spec.BatchFirst,
		size:       len(recs),
	}
	b.XLens, b.XToks, b.MaxXLen = lengths(xs)
	b.XSeqs = pad(xs, b.MaxXLen, spec.Pad)
	if hasY {
		b.YLens, b.YToks, b.MaxYLen = lengths(ys)
		b.YSeqs = pad(ys, b.MaxYLen, spec.Pad)
	}
	if !spec.BatchFirst {
		b.XSeqs = transpose(b.XSeqs)
		if hasY {
			b.YSeqs = transpose(b.YSeqs)
		}
	}
	return b, nil
}

// align enforces the BOS/EOS contract on a copy of seq. With add=true a
// missing sentinel is inserted; with add=false an already-present sentinel is
// a contract violation (the caller handed over pre-augmented records).
func align(seq []int64, addBOS, addEOS bool, spec Spec) ([]int64, error) {
	if len(seq) == 0 {
		return nil, fmt.Errorf("empty sequence: %w", common.ErrInvalidAlignment)
	}
	out := make([]int64, 0, len(seq)+2)
	if addBOS && seq[0] != spec.BOS {
		out = append(out, spec.BOS)
	} else if !addBOS && seq[0] == spec.BOS {
		return nil, fmt.Errorf("sequence already starts with BOS %d: %w", spec.BOS, common.ErrInvalidAlignment)
	}
	out = append(out, seq...)
	if addEOS && seq[len(seq)-1] != spec.EOS {
		out = append(out, spec.EOS)
	} else if !addEOS && seq[len(seq)-1] == spec.EOS {
		return nil, fmt.Errorf("sequence already ends with EOS %d: %w", spec.EOS, common.ErrInvalidAlignment)
	}
	return out, nil
}

func lengths(seqs [][]int64) (lens []int64, total int64, max int) {
	lens = make([]int64, len(seqs))
	for i, seq := range seqs {
		lens[i] = int64(len(seq))
		total += int64(len(seq))
		if len(seq) > max {
			max = len(seq)
		}
	}
	return lens, total, max
}

// pad left-aligns each sequence in a [batch, maxLen] matrix filled with the
// pad value.
func pad(seqs [][]int64, maxLen int, padVal int64) [][]int64 {
	out := make([][]int64, len(seqs))
	for i, seq := range seqs {
		row := make([]int64, maxLen)
		copy(row, seq)
		for j := len(seq); j < maxLen; j++ {
			row[j] = padVal
		}
		out[i] = row
	}
	return out
}

func transpose(m [][]int64) [][]int64 {
	if len(m) == 0 {
		return m
	}
	out := make([][]int64, len(m[0]))
	for j := range out {
		row := make([]int64, len(m))
		for i := range m {
			row[i] = m[i][j]
		}
		out[j] = row
	}
	return out
}

func reorder(seqs [][]int64, idx []int) [][]int64 {
	out := make([][]int64, len(seqs))
	for i, k := range idx {
		out[i] = seqs[k]
	}
	return out
}
