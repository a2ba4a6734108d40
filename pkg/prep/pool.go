package prep

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/katyfelkner/fairseq-server/pkg/common"
	"github.com/katyfelkner/fairseq-server/pkg/monitor"
	"github.com/katyfelkner/fairseq-server/pkg/store"
)

// LengthPolicy is the truncate-or-filter rule applied after tokenization.
type LengthPolicy struct {
	Truncate bool
	MaxSrc   int
	MaxTgt   int
}

// apply enforces the policy on one tokenized pair. The second return is
// false when the pair is filtered out.
func (p LengthPolicy) apply(x, y []int64, stats *monitor.IngestStats) ([]int64, []int64, bool) {
	if p.Truncate {
		if len(x) > p.MaxSrc || len(y) > p.MaxTgt {
			if stats != nil {
				stats.RecordTruncated()
			}
		}
		if len(x) > p.MaxSrc {
			x = x[:p.MaxSrc]
		}
		if len(y) > p.MaxTgt {
			y = y[:p.MaxTgt]
		}
	} else if len(x) > p.MaxSrc || len(y) > p.MaxTgt {
		return nil, nil, false
	}
	if len(x) == 0 || len(y) == 0 {
		return nil, nil, false
	}
	return x, y, true
}

// TokenizeParallel tokenizes raw pairs across a fixed-size worker pool.
// Workers are stateless beyond their tokenizer and length configuration;
// filtered pairs are compacted out of the result. Relative input order is
// preserved, though consumers re-sort by length before batching anyway.
func TokenizeParallel(ctx context.Context, pairs []RawPair, srcTok, tgtTok Tokenizer,
	policy LengthPolicy, workers int, stats *monitor.IngestStats) ([]common.SeqPair, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	slog.Info("tokenizing parallel data", "pairs", len(pairs), "workers", workers)

	results := make([]*common.SeqPair, len(pairs))
	jobs := make(chan int)
	g, ctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for i := range jobs {
				rec, ok, err := tokenizePair(pairs[i], srcTok, tgtTok, policy, stats)
				if err != nil {
					return err
				}
				if ok {
					results[i] = &rec
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for i := range pairs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]common.SeqPair, 0, len(pairs))
	for _, rec := range results {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func tokenizePair(pair RawPair, srcTok, tgtTok Tokenizer, policy LengthPolicy,
	stats *monitor.IngestStats) (common.SeqPair, bool, error) {
	if stats != nil {
		stats.RecordRead()
	}
	x, err := srcTok(pair.Src)
	if err != nil {
		return common.SeqPair{}, false, err
	}
	y, err := tgtTok(pair.Tgt)
	if err != nil {
		return common.SeqPair{}, false, err
	}
	x, y, ok := policy.apply(x, y, stats)
	if !ok {
		if stats != nil {
			stats.RecordSkipped()
		}
		return common.SeqPair{}, false, nil
	}
	if stats != nil {
		stats.RecordStored()
	}
	return common.SeqPair{X: x, Y: y}, true, nil
}

// BuildSQLite reads raw parallel corpora, tokenizes them across the worker
// pool and writes the indexed store. Nothing is written unless the corpus
// zips cleanly.
func BuildSQLite(ctx context.Context, srcPath, tgtPath, outPath string, srcTok, tgtTok Tokenizer,
	policy LengthPolicy, workers int, stats *monitor.IngestStats) (int, error) {
	pairs, err := ReadRawParallelLines(srcPath, tgtPath)
	if err != nil {
		return 0, err
	}
	recs, err := TokenizeParallel(ctx, pairs, srcTok, tgtTok, policy, workers, stats)
	if err != nil {
		return 0, err
	}
	return store.WriteSQLite(outPath, recs)
}
