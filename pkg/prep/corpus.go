// Package prep turns raw parallel/monolingual corpora into store input:
// strict line-aligned reading, a parallel tokenizing worker pool, and TSV
// writers for pre-tokenized data.
package prep

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/katyfelkner/fairseq-server/pkg/common"
)

// RawPair is one untokenized parallel example.
type RawPair struct {
	Src string
	Tgt string
}

// Tokenizer maps a raw line to a token id sequence. Tokenization algorithms
// are external; this package only fans them out.
type Tokenizer func(line string) ([]int64, error)

// FieldTokenizer parses pre-tokenized text: whitespace-separated base-10
// token ids.
func FieldTokenizer(line string) ([]int64, error) {
	fields := strings.Fields(line)
	seq := make([]int64, len(fields))
	for i, tok := range fields {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("prep: bad token %q: %w", tok, err)
		}
		seq[i] = v
	}
	return seq, nil
}

// ReadRawParallelLines zips two line-aligned files strictly. Unequal line
// counts are ErrCorpusMismatch, reported before any store is written. Pairs
// with an empty side are dropped.
func ReadRawParallelLines(srcPath, tgtPath string) ([]RawPair, error) {
	srcF, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer srcF.Close()
	tgtF, err := os.Open(tgtPath)
	if err != nil {
		return nil, err
	}
	defer tgtF.Close()

	srcSc := newLineScanner(srcF)
	tgtSc := newLineScanner(tgtF)
	var pairs []RawPair
	for {
		srcOK := srcSc.Scan()
		tgtOK := tgtSc.Scan()
		if srcOK != tgtOK {
			return nil, fmt.Errorf("%s vs %s: %w", srcPath, tgtPath, common.ErrCorpusMismatch)
		}
		if !srcOK {
			break
		}
		src := strings.TrimSpace(srcSc.Text())
		tgt := strings.TrimSpace(tgtSc.Text())
		if src == "" || tgt == "" {
			continue
		}
		pairs = append(pairs, RawPair{Src: src, Tgt: tgt})
	}
	if err := srcSc.Err(); err != nil {
		return nil, err
	}
	if err := tgtSc.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// ReadRawMonoRecs tokenizes a monolingual file with the truncate-or-filter
// length policy. Blank lines are skipped.
func ReadRawMonoRecs(path string, truncate bool, maxLen int, tok Tokenizer) ([][]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := newLineScanner(f)
	var recs [][]int64
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		seq, err := tok(line)
		if err != nil {
			return nil, err
		}
		if len(seq) > maxLen {
			if !truncate {
				continue
			}
			seq = seq[:maxLen]
		}
		if len(seq) == 0 {
			continue
		}
		recs = append(recs, seq)
	}
	return recs, sc.Err()
}

// WriteParallelTSV writes tokenized pairs in the flat-file format: x-field,
// tab, y-field, each field space-separated ids.
func WriteParallelTSV(path string, recs []common.SeqPair) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, rec := range recs {
		writeSeq(w, rec.X)
		if rec.Y != nil {
			w.WriteByte('\t')
			writeSeq(w, rec.Y)
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteMonoTSV writes one space-separated sequence per line.
func WriteMonoTSV(path string, seqs [][]int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, seq := range seqs {
		writeSeq(w, seq)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSeq(w *bufio.Writer, seq []int64) {
	for i, v := range seq {
		if i > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(strconv.FormatInt(v, 10))
	}
}

func newLineScanner(f *os.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return sc
}
