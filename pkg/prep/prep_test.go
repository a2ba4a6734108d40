package prep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/katyfelkner/fairseq-server/pkg/common"
	"github.com/katyfelkner/fairseq-server/pkg/monitor"
	"github.com/katyfelkner/fairseq-server/pkg/store"
)

func writeLines(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFieldTokenizer(t *testing.T) {
	seq, err := FieldTokenizer("  5 6  7 ")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if !reflect.DeepEqual(seq, []int64{5, 6, 7}) {
		t.Errorf("got %v", seq)
	}
	if _, err := FieldTokenizer("5 six 7"); err == nil {
		t.Error("expected error for a non-numeric token")
	}
}

func TestReadRawParallelLines(t *testing.T) {
	src := writeLines(t, "train.src", "hello world\n\nfoo\n")
	tgt := writeLines(t, "train.tgt", "bonjour monde\n\nbar\n")
	pairs, err := ReadRawParallelLines(src, tgt)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []RawPair{
		{Src: "hello world", Tgt: "bonjour monde"},
		{Src: "foo", Tgt: "bar"},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("got %v, want %v", pairs, want)
	}
}

func TestReadRawParallelLinesMismatch(t *testing.T) {
	src := writeLines(t, "train.src", "a\nb\nc\n")
	tgt := writeLines(t, "train.tgt", "x\ny\n")
	if _, err := ReadRawParallelLines(src, tgt); !errors.Is(err, common.ErrCorpusMismatch) {
		t.Fatalf("got %v, want ErrCorpusMismatch", err)
	}
}

func TestReadRawParallelLinesDropsHalfEmptyPairs(t *testing.T) {
	src := writeLines(t, "train.src", "a\n\nc\n")
	tgt := writeLines(t, "train.tgt", "x\ny\n\n")
	pairs, err := ReadRawParallelLines(src, tgt)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Src != "a" {
		t.Errorf("got %v, want only the fully populated pair", pairs)
	}
}

func TestLengthPolicy(t *testing.T) {
	long := []int64{1, 2, 3, 4}
	short := []int64{5}

	x, y, ok := LengthPolicy{Truncate: true, MaxSrc: 2, MaxTgt: 2}.apply(long, short, nil)
	if !ok || !reflect.DeepEqual(x, []int64{1, 2}) || !reflect.DeepEqual(y, short) {
		t.Errorf("truncate: got %v %v %v", x, y, ok)
	}

	if _, _, ok := (LengthPolicy{MaxSrc: 2, MaxTgt: 2}).apply(long, short, nil); ok {
		t.Error("filter policy should drop an over-length pair")
	}

	if _, _, ok := (LengthPolicy{MaxSrc: 8, MaxTgt: 8}).apply([]int64{}, short, nil); ok {
		t.Error("empty side should never survive")
	}
}

func TestTokenizeParallelMatchesSerial(t *testing.T) {
	var pairs []RawPair
	lines := []string{"1 2 3", "4", "5 6", "7 8 9 10", "11 12"}
	for _, l := range lines {
		pairs = append(pairs, RawPair{Src: l, Tgt: l})
	}
	policy := LengthPolicy{MaxSrc: 16, MaxTgt: 16}

	serial, err := TokenizeParallel(context.Background(), pairs, FieldTokenizer, FieldTokenizer, policy, 1, nil)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	parallel, err := TokenizeParallel(context.Background(), pairs, FieldTokenizer, FieldTokenizer, policy, 4, nil)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !reflect.DeepEqual(serial, parallel) {
		t.Errorf("worker count changed the output:\nserial   %v\nparallel %v", serial, parallel)
	}
	if len(parallel) != len(pairs) {
		t.Errorf("got %d pairs, want %d", len(parallel), len(pairs))
	}
}

func TestTokenizeParallelStats(t *testing.T) {
	pairs := []RawPair{
		{Src: "1 2 3 4", Tgt: "5"},
		{Src: "1", Tgt: "2"},
	}
	stats := monitor.NewIngestStats()
	out, err := TokenizeParallel(context.Background(), pairs, FieldTokenizer, FieldTokenizer,
		LengthPolicy{MaxSrc: 2, MaxTgt: 2}, 2, stats)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d pairs, want 1", len(out))
	}
	snap := stats.Snapshot()
	if snap.ReadCount != 2 || snap.StoredCount != 1 || snap.SkippedCount != 1 {
		t.Errorf("stats: %+v", snap)
	}
}

func TestTokenizeParallelPropagatesTokenizerError(t *testing.T) {
	pairs := []RawPair{{Src: "1", Tgt: "not numbers"}}
	_, err := TokenizeParallel(context.Background(), pairs, FieldTokenizer, FieldTokenizer,
		LengthPolicy{MaxSrc: 8, MaxTgt: 8}, 2, nil)
	if err == nil {
		t.Fatal("expected tokenizer error to surface")
	}
}

func TestReadRawMonoRecs(t *testing.T) {
	path := writeLines(t, "mono.txt", "1 2 3 4\n\n5 6\n")
	recs, err := ReadRawMonoRecs(path, true, 3, FieldTokenizer)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := [][]int64{{1, 2, 3}, {5, 6}}
	if !reflect.DeepEqual(recs, want) {
		t.Errorf("got %v, want %v", recs, want)
	}

	recs, err = ReadRawMonoRecs(path, false, 3, FieldTokenizer)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(recs, [][]int64{{5, 6}}) {
		t.Errorf("filter policy: got %v", recs)
	}
}

func TestWriteParallelTSVRoundTrip(t *testing.T) {
	recs := []common.SeqPair{
		{X: []int64{1, 2}, Y: []int64{3}},
		{X: []int64{4}, Y: []int64{5, 6}},
	}
	path := filepath.Join(t.TempDir(), "out.tsv")
	if err := WriteParallelTSV(path, recs); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "1 2\t3\n4\t5 6\n" {
		t.Errorf("got %q", data)
	}
}

func TestBuildSQLiteEndToEnd(t *testing.T) {
	src := writeLines(t, "train.src", "1 2\n3 4 5\n")
	tgt := writeLines(t, "train.tgt", "6\n7 8\n")
	out := filepath.Join(t.TempDir(), "train.db")

	stats := monitor.NewIngestStats()
	n, err := BuildSQLite(context.Background(), src, tgt, out, FieldTokenizer, FieldTokenizer,
		LengthPolicy{MaxSrc: 8, MaxTgt: 8}, 2, stats)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d rows, want 2", n)
	}

	s, err := store.OpenSQLite(out, store.SQLiteOptions{LenRand: 1})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	if s.Len() != 2 {
		t.Errorf("store length: got %d", s.Len())
	}
	stats2 := stats.Snapshot()
	if stats2.StoredCount != 2 || stats2.SkippedCount != 0 {
		t.Errorf("stats: %+v", stats2)
	}
}
