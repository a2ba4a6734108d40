package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/google/btree"
	"github.com/klauspost/compress/zstd"

	"github.com/katyfelkner/fairseq-server/pkg/common"
)

// Snapshot file layout:
//
//	[magic 8B] [payload xxhash64 8B] [zstd(gob payload)]
//
// The snapshot is a same-path reload optimization for MemStore: it is keyed
// purely by the source store's path, so a changed source with an unchanged
// path yields a stale cache. Corruption, unlike staleness, is detected: the
// checksum covers the compressed payload.
const snapshotMagic = 0x4653454D44420001 // "FSEMDB" v1

type snapshotPayload struct {
	Source  string
	Records []common.Record
}

// SnapshotPath is the conventional snapshot location for a store path.
func SnapshotPath(storePath string) string { return storePath + ".memdb" }

// SaveSnapshot serializes the cache next to its source store.
func SaveSnapshot(ms *MemStore, path string) error {
	var raw bytes.Buffer
	enc, err := zstd.NewWriter(&raw)
	if err != nil {
		return err
	}
	payload := snapshotPayload{Source: ms.source, Records: ms.recs}
	if err := gob.NewEncoder(enc).Encode(payload); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	header := make([]byte, 16)
	binary.LittleEndian.PutUint64(header[0:8], snapshotMagic)
	binary.LittleEndian.PutUint64(header[8:16], xxhash.Sum64(raw.Bytes()))

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err = f.Write(header); err == nil {
		_, err = f.Write(raw.Bytes())
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	slog.Info("saved in-memory snapshot", "path", path, "records", len(ms.recs))
	return nil
}

// LoadSnapshot restores a MemStore saved by SaveSnapshot, rebuilding the id
// index. Magic or checksum mismatch is ErrBadSnapshot.
func LoadSnapshot(path string) (*MemStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 16 {
		return nil, fmt.Errorf("%s: truncated header: %w", path, common.ErrBadSnapshot)
	}
	if binary.LittleEndian.Uint64(data[0:8]) != snapshotMagic {
		return nil, fmt.Errorf("%s: bad magic: %w", path, common.ErrBadSnapshot)
	}
	body := data[16:]
	if binary.LittleEndian.Uint64(data[8:16]) != xxhash.Sum64(body) {
		return nil, fmt.Errorf("%s: checksum mismatch: %w", path, common.ErrBadSnapshot)
	}
	dec, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, common.ErrBadSnapshot)
	}
	defer dec.Close()
	var payload snapshotPayload
	if err := gob.NewDecoder(dec).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, common.ErrBadSnapshot)
	}

	ms := &MemStore{source: payload.Source, recs: payload.Records, tree: btreeFrom(payload.Records)}
	if ms.tree.Len() != len(ms.recs) {
		return nil, fmt.Errorf("%s: %w", path, common.ErrDuplicateID)
	}
	slog.Info("loaded in-memory snapshot", "path", path, "records", len(ms.recs))
	return ms, nil
}

func btreeFrom(recs []common.Record) *btree.BTree {
	tree := btree.New(32)
	for i, rec := range recs {
		tree.ReplaceOrInsert(idItem{id: rec.ID, pos: i})
	}
	return tree
}
