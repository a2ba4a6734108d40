package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/katyfelkner/fairseq-server/pkg/config"
	"github.com/katyfelkner/fairseq-server/pkg/monitor"
	"github.com/katyfelkner/fairseq-server/pkg/prep"
)

// prep builds a record store from two line-aligned, pre-tokenized corpus
// files. The output format follows the -out extension: ".db" builds the
// indexed SQLite store, anything else the flat TSV format.
func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	srcPath := flag.String("src", "", "source-side corpus file")
	tgtPath := flag.String("tgt", "", "target-side corpus file")
	outPath := flag.String("out", "", "output store path (.db for SQLite)")
	truncate := flag.Bool("truncate", false, "truncate over-length records instead of skipping")
	maxSrcLen := flag.Int("max-src-len", 0, "max source length (overrides config)")
	maxTgtLen := flag.Int("max-tgt-len", 0, "max target length (overrides config)")
	workers := flag.Int("workers", 0, "tokenizer pool size (overrides config)")
	flag.Parse()

	if *srcPath == "" || *tgtPath == "" || *outPath == "" {
		log.Fatal("usage: prep -src <file> -tgt <file> -out <store> [-truncate]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	policy := prep.LengthPolicy{
		Truncate: cfg.Prep.Truncate || *truncate,
		MaxSrc:   cfg.Prep.MaxSrcLen,
		MaxTgt:   cfg.Prep.MaxTgtLen,
	}
	if *maxSrcLen > 0 {
		policy.MaxSrc = *maxSrcLen
	}
	if *maxTgtLen > 0 {
		policy.MaxTgt = *maxTgtLen
	}
	poolSize := cfg.Prep.Workers
	if *workers > 0 {
		poolSize = *workers
	}

	stats := monitor.NewIngestStats()
	ctx := context.Background()

	var stored int
	if strings.HasSuffix(*outPath, ".db") {
		stored, err = prep.BuildSQLite(ctx, *srcPath, *tgtPath, *outPath,
			prep.FieldTokenizer, prep.FieldTokenizer, policy, poolSize, stats)
	} else {
		pairs, rerr := prep.ReadRawParallelLines(*srcPath, *tgtPath)
		if rerr != nil {
			log.Fatalf("read corpus: %v", rerr)
		}
		recs, terr := prep.TokenizeParallel(ctx, pairs,
			prep.FieldTokenizer, prep.FieldTokenizer, policy, poolSize, stats)
		if terr != nil {
			log.Fatalf("tokenize: %v", terr)
		}
		err = prep.WriteParallelTSV(*outPath, recs)
		stored = len(recs)
	}
	if err != nil {
		log.Fatalf("build store: %v", err)
	}

	snap := stats.Snapshot()
	log.Printf("done: %d stored at %s (read=%d skipped=%d truncated=%d)",
		stored, *outPath, snap.ReadCount, snap.SkippedCount, snap.TruncatedCount)
}
