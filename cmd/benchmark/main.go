package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/katyfelkner/fairseq-server/pkg/batch"
)

// benchmark measures batching throughput over a prepared store: batches/sec,
// tokens/sec and padding efficiency (live tokens vs matrix cells).
func main() {
	dataPath := flag.String("data", "", "path to a prepared store (.db or .tsv)")
	batchSize := flag.Int("batch-size", 2048, "token budget per batch")
	sortBy := flag.String("sort-by", "", "scan/bucketing strategy (indexed store only)")
	keepInMem := flag.Bool("keep-in-mem", false, "wrap the store in the in-memory cache")
	passes := flag.Int("passes", 1, "number of full passes")
	seed := flag.Int64("seed", 1, "RNG seed")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("usage: benchmark -data <store> [-batch-size N] [-sort-by eq_len_rand_batch]")
	}

	spec := batch.Spec{BatchFirst: true, AddEOSX: true, AddEOSY: true, Pad: 0, BOS: 1, EOS: 2}
	it, err := batch.Open(*dataPath, spec, batch.Options{
		BatchSize: *batchSize,
		SortBy:    *sortBy,
		Seed:      *seed,
		KeepInMem: *keepInMem,
	})
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer it.Close()

	fmt.Printf("records=%d estimated batches/pass=%d\n", it.NumItems(), it.NumBatches())

	for pass := 1; pass <= *passes; pass++ {
		var (
			batches int
			tokens  int64
			cells   int64
		)
		start := time.Now()
		err := it.Each(func(b *batch.Batch) bool {
			batches++
			tokens += b.XToks + b.YToks
			cells += int64(b.Size()) * int64(b.MaxXLen+b.MaxYLen)
			return true
		})
		if err != nil {
			log.Fatalf("pass %d: %v", pass, err)
		}
		elapsed := time.Since(start)
		eff := 0.0
		if cells > 0 {
			eff = float64(tokens) / float64(cells)
		}
		fmt.Printf("pass %d: %d batches in %v (%.0f batches/s, %.0f tokens/s, padding efficiency %.1f%%)\n",
			pass, batches, elapsed,
			float64(batches)/elapsed.Seconds(),
			float64(tokens)/elapsed.Seconds(),
			100*eff)
	}
}
