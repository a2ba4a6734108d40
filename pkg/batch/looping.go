package batch

import (
	"fmt"

	"github.com/katyfelkner/fairseq-server/pkg/common"
)

// Looping replays a wrapped iterable until a target total batch count is
// reached, crossing source-exhaustion boundaries transparently. Each
// wrap-around is an independent pass, so randomized strategies present a
// different batch order every time.
type Looping struct {
	it    *Iterable
	total int
	count int
}

// NewLooping wraps it with a target of total batches.
func NewLooping(it *Iterable, total int) *Looping {
	return &Looping{it: it, total: total}
}

// Count is the number of batches delivered so far.
func (l *Looping) Count() int { return l.count }

// Each delivers batches until exactly total have been produced across all
// passes, stopping mid-pass when the target lands there. No batch is ever
// emitted after the total-th.
func (l *Looping) Each(fn func(*Batch) bool) error {
	for l.count < l.total {
		delivered := 0
		stopped := false
		err := l.it.Each(func(b *Batch) bool {
			if !fn(b) {
				stopped = true
				return false
			}
			l.count++
			delivered++
			return l.count < l.total
		})
		if err != nil {
			return err
		}
		if stopped {
			return nil
		}
		if delivered == 0 {
			// An empty pass would loop forever.
			return fmt.Errorf("wrapped iterable produced no batches: %w", common.ErrNoData)
		}
	}
	return nil
}
