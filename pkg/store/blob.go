package store

import (
	"encoding/binary"
	"fmt"
)

// Sequence blobs are self-describing: a varint element count followed by one
// varint per token. This round-trips any int64 sequence exactly and stays
// compact for small vocabulary ids.

// EncodeSeq serializes a token sequence to its blob form.
func EncodeSeq(seq []int64) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64*(len(seq)+1))
	buf = binary.AppendVarint(buf, int64(len(seq)))
	for _, v := range seq {
		buf = binary.AppendVarint(buf, v)
	}
	return buf
}

// DecodeSeq parses a blob produced by EncodeSeq.
func DecodeSeq(b []byte) ([]int64, error) {
	n, read := binary.Varint(b)
	if read <= 0 {
		return nil, fmt.Errorf("store: blob header is malformed")
	}
	if n < 0 {
		return nil, fmt.Errorf("store: blob claims negative length %d", n)
	}
	b = b[read:]
	seq := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		v, read := binary.Varint(b)
		if read <= 0 {
			return nil, fmt.Errorf("store: blob truncated at element %d of %d", i, n)
		}
		seq = append(seq, v)
		b = b[read:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("store: blob has %d trailing bytes", len(b))
	}
	return seq, nil
}
