package store

import (
	"bufio"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/katyfelkner/fairseq-server/pkg/common"
)

// TSVOptions configures the flat-file store.
type TSVOptions struct {
	// InMem holds all records in memory after the first pass. Implied by
	// Shuffle and LongestFirst; leave off for large corpora.
	InMem bool
	// Shuffle reorders the materialized records before each pass.
	Shuffle bool
	// LongestFirst sorts descending by target (source, if no target)
	// length on the first pass only.
	LongestFirst bool
	// Truncate clips over-length sides instead of skipping the record.
	Truncate  bool
	MaxSrcLen int
	MaxTgtLen int
	// Seed drives the shuffle order. Fixed seeds reproduce exact passes.
	Seed int64
}

// TSVStore reads whitespace/tab-delimited integer-sequence pairs, one record
// per line: x-field, optional tab, y-field.
type TSVStore struct {
	path   string
	opts   TSVOptions
	inMem  bool
	mem    []common.Record
	length int
	passes int
	rng    *rand.Rand
}

// OpenTSV opens a flat-file store at path.
func OpenTSV(path string, opts TSVOptions) (*TSVStore, error) {
	if opts.MaxSrcLen <= 0 {
		opts.MaxSrcLen = 512
	}
	if opts.MaxTgtLen <= 0 {
		opts.MaxTgtLen = 512
	}
	s := &TSVStore{
		path:  path,
		opts:  opts,
		inMem: opts.InMem || opts.Shuffle || opts.LongestFirst,
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}
	if s.inMem {
		err := s.readAll(func(rec common.Record) bool {
			s.mem = append(s.mem, rec)
			return true
		})
		if err != nil {
			return nil, err
		}
		s.length = len(s.mem)
		slog.Info("loaded flat-file store", "path", path, "records", s.length)
	} else {
		n, err := lineCount(path)
		if err != nil {
			return nil, err
		}
		s.length = n
	}
	return s, nil
}

func (s *TSVStore) Len() int { return s.length }

// Scan runs one pass. The first pass applies the longest-first sort if
// configured; shuffling applies to every other pass. Streaming stores simply
// re-read the file.
func (s *TSVStore) Scan(fn func(common.Record) bool) error {
	if !s.inMem {
		s.passes++
		return s.readAll(fn)
	}
	if s.opts.LongestFirst && s.passes == 0 {
		slog.Info("sorting dataset by sequence length, longest first")
		sort.SliceStable(s.mem, func(i, j int) bool {
			return sortLen(s.mem[i]) > sortLen(s.mem[j])
		})
	} else if s.opts.Shuffle {
		s.rng.Shuffle(len(s.mem), func(i, j int) {
			s.mem[i], s.mem[j] = s.mem[j], s.mem[i]
		})
	}
	s.passes++
	for _, rec := range s.mem {
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

// ProjectLengths is unsupported: flat files carry no scalar column index.
func (s *TSVStore) ProjectLengths(col common.SortColumn, dir common.SortDir) ([]common.LengthStat, error) {
	return nil, fmt.Errorf("flat-file store %s: %w", s.path, common.ErrUnsupportedStrategy)
}

func (s *TSVStore) SupportsProjection() bool { return false }

// GetByIDs is unsupported; wrap the store in a MemStore for random access.
func (s *TSVStore) GetByIDs(ids []int64) ([]common.Record, error) {
	return nil, fmt.Errorf("flat-file store %s: %w", s.path, common.ErrUnsupportedStrategy)
}

func (s *TSVStore) Close() error { return nil }

// sortLen is the longest-first sort key: target length when present.
func sortLen(rec common.Record) int {
	if rec.HasY() {
		return rec.YLen()
	}
	return rec.XLen()
}

// readAll streams the backing file once, applying the truncate-or-skip
// length policy. Record ids are 0-based line numbers.
func (s *TSVStore) readAll(fn func(common.Record) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := -1
	for sc.Scan() {
		lineNo++
		xField, yField, hasY := strings.Cut(sc.Text(), "\t")
		x, err := parseSeq(xField)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", s.path, lineNo+1, err)
		}
		var y []int64
		if hasY {
			if y, err = parseSeq(yField); err != nil {
				return fmt.Errorf("%s:%d: %w", s.path, lineNo+1, err)
			}
			if y == nil {
				y = []int64{}
			}
		}
		if s.opts.Truncate {
			x = clip(x, s.opts.MaxSrcLen)
			y = clip(y, s.opts.MaxTgtLen)
		} else if len(x) > s.opts.MaxSrcLen || len(y) > s.opts.MaxTgtLen {
			continue // skip long records
		}
		if len(x) == 0 || (hasY && len(y) == 0) {
			slog.Warn("ignoring an empty record", "line", lineNo, "x_len", len(x), "y_len", len(y))
			continue
		}
		if !fn(common.Record{ID: int64(lineNo), X: x, Y: y}) {
			return nil
		}
	}
	return sc.Err()
}

func parseSeq(field string) ([]int64, error) {
	fields := strings.Fields(field)
	if len(fields) == 0 {
		return nil, nil
	}
	seq := make([]int64, len(fields))
	for i, tok := range fields {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad token %q: %w", tok, err)
		}
		seq[i] = v
	}
	return seq, nil
}

func clip(seq []int64, max int) []int64 {
	if len(seq) > max {
		return seq[:max]
	}
	return seq
}

func lineCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	n := 0
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
