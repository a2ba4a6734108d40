package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/katyfelkner/fairseq-server/pkg/common"
)

const (
	createTableStmt = `CREATE TABLE IF NOT EXISTS data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		x BLOB NOT NULL,
		y BLOB,
		x_len INTEGER,
		y_len INTEGER)`
	insertStmt = "INSERT INTO data (x, y, x_len, y_len) VALUES (?, ?, ?, ?)"
	countStmt  = "SELECT COUNT(*) FROM data"
)

// SQLiteOptions configures the read path of the indexed store.
type SQLiteOptions struct {
	// SortBy selects the scan order: one of the Sort* constants.
	SortBy string
	// LenRand is the jitter window J for length-sorted scans: the sort key
	// becomes length + (RANDOM() % J), so same-length records regroup
	// across passes while batches stay mostly length-homogeneous.
	LenRand   int
	Truncate  bool
	MaxSrcLen int
	MaxTgtLen int
}

// SQLiteStore reads records from a store built by WriteSQLite. The read path
// never mutates the database; the write path must have completed and closed
// before a reader opens the same file.
type SQLiteStore struct {
	path      string
	opts      SQLiteOptions
	db        *sql.DB
	selectQry string
}

// makeQuery maps a sort strategy to its SELECT. lenRand must be >= 1.
func makeQuery(sortBy string, lenRand int) (string, error) {
	if lenRand < 1 {
		lenRand = 1
	}
	template := "SELECT id, x, y, x_len, y_len FROM data ORDER BY %s + (RANDOM() %% %d) %s"
	switch sortBy {
	case SortRandom:
		return "SELECT id, x, y, x_len, y_len FROM data ORDER BY RANDOM()", nil
	case SortXLenAsc:
		return fmt.Sprintf(template, "x_len", lenRand, "ASC"), nil
	case SortXLenDesc:
		return fmt.Sprintf(template, "x_len", lenRand, "DESC"), nil
	case SortYLenAsc:
		return fmt.Sprintf(template, "y_len", lenRand, "ASC"), nil
	case SortYLenDesc, SortEqLenRandomly:
		return fmt.Sprintf(template, "y_len", lenRand, "DESC"), nil
	default:
		return "", fmt.Errorf("sort_by=%q: %w", sortBy, common.ErrUnsupportedStrategy)
	}
}

// OpenSQLite opens an existing indexed store for reading.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("indexed store: %w", err)
	}
	if opts.SortBy == "" {
		opts.SortBy = SortRandom
	}
	if opts.LenRand < 1 {
		opts.LenRand = 2
	}
	if opts.MaxSrcLen <= 0 {
		opts.MaxSrcLen = 512
	}
	if opts.MaxTgtLen <= 0 {
		opts.MaxTgtLen = 512
	}
	qry, err := makeQuery(opts.SortBy, opts.LenRand)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{path: path, opts: opts, db: db, selectQry: qry}
	if err := s.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkSchema verifies the fixed column set up front so row decoding never
// meets an unknown or missing column mid-scan.
func (s *SQLiteStore) checkSchema() error {
	rows, err := s.db.Query("PRAGMA table_info(data)")
	if err != nil {
		return err
	}
	defer rows.Close()
	want := []string{"id", "x", "y", "x_len", "y_len"}
	var got []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		got = append(got, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("indexed store %s: schema mismatch, columns [%s]", s.path, strings.Join(got, ","))
	}
	return nil
}

func (s *SQLiteStore) Len() int {
	var n int
	if err := s.db.QueryRow(countStmt).Scan(&n); err != nil {
		slog.Error("row count failed", "path", s.path, "error", err)
		return 0
	}
	return n
}

// Scan runs one pass in the configured order, applying the truncate-or-skip
// length policy per record.
func (s *SQLiteStore) Scan(fn func(common.Record) bool) error {
	rows, err := s.db.Query(s.selectQry)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if rec.XLen() == 0 || (rec.HasY() && rec.YLen() == 0) {
			slog.Warn("ignoring an empty record", "id", rec.ID, "x_len", rec.XLen(), "y_len", rec.YLen())
			continue
		}
		if rec.XLen() > s.opts.MaxSrcLen || rec.YLen() > s.opts.MaxTgtLen {
			if !s.opts.Truncate {
				continue // skip long records
			}
			rec.X = clip(rec.X, s.opts.MaxSrcLen)
			rec.Y = clip(rec.Y, s.opts.MaxTgtLen)
		}
		if !fn(rec) {
			return nil
		}
	}
	return rows.Err()
}

// ProjectLengths returns the lightweight column pass. Length sorts carry the
// same jitter window as full scans.
func (s *SQLiteStore) ProjectLengths(col common.SortColumn, dir common.SortDir) ([]common.LengthStat, error) {
	if !col.Valid() || !dir.Valid() {
		return nil, fmt.Errorf("projection sort %s %s: %w", col, dir, common.ErrUnsupportedStrategy)
	}
	qry := fmt.Sprintf("SELECT id, x_len, y_len FROM data ORDER BY %s + (RANDOM() %% %d) %s",
		col, s.opts.LenRand, strings.ToUpper(string(dir)))
	rows, err := s.db.Query(qry)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []common.LengthStat
	for rows.Next() {
		var st common.LengthStat
		if err := rows.Scan(&st.ID, &st.XLen, &st.YLen); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) SupportsProjection() bool { return true }

// GetByIDs reconstitutes full records chosen by a projection pass. Every
// requested id must exist.
func (s *SQLiteStore) GetByIDs(ids []int64) ([]common.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	qry := fmt.Sprintf("SELECT id, x, y, x_len, y_len FROM data WHERE id IN (%s)",
		placeholders[:len(placeholders)-1])
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(qry, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs := make([]common.Record, 0, len(ids))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) != len(ids) {
		return nil, fmt.Errorf("requested %d ids, found %d rows: %w", len(ids), len(recs), common.ErrMissingRecord)
	}
	return recs, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// scanRecord decodes one fixed-field row.
func scanRecord(rows *sql.Rows) (common.Record, error) {
	var (
		id         int64
		xBlob      []byte
		yBlob      []byte
		xLen, yLen int64
	)
	if err := rows.Scan(&id, &xBlob, &yBlob, &xLen, &yLen); err != nil {
		return common.Record{}, err
	}
	x, err := DecodeSeq(xBlob)
	if err != nil {
		return common.Record{}, fmt.Errorf("record %d x: %w", id, err)
	}
	var y []int64
	if yBlob != nil {
		if y, err = DecodeSeq(yBlob); err != nil {
			return common.Record{}, fmt.Errorf("record %d y: %w", id, err)
		}
	}
	return common.Record{ID: id, X: x, Y: y}, nil
}

// WriteSQLite builds an indexed store at path from tokenized record pairs.
// The database is written to a temporary sibling and renamed into place, so
// an interrupted build never leaves a partial store behind. Returns the
// number of rows stored.
func WriteSQLite(path string, recs []common.SeqPair) (int, error) {
	if _, err := os.Stat(path); err == nil {
		slog.Warn("overwriting existing store", "path", path)
	}
	tmp := path + ".tmp"
	os.Remove(tmp)
	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}
	count, err := writeAll(db, recs)
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	slog.Info("stored records", "path", path, "rows", count)
	return count, nil
}

func writeAll(db *sql.DB, recs []common.SeqPair) (int, error) {
	if _, err := db.Exec(createTableStmt); err != nil {
		return 0, err
	}
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare(insertStmt)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for _, rec := range recs {
		var yBlob any
		yLen := int64(-1) // -1 marks a missing target side
		if rec.Y != nil {
			yBlob = EncodeSeq(rec.Y)
			yLen = int64(len(rec.Y))
		}
		if _, err := stmt.Exec(EncodeSeq(rec.X), yBlob, int64(len(rec.X)), yLen); err != nil {
			tx.Rollback()
			return 0, err
		}
		count++
	}
	return count, tx.Commit()
}
