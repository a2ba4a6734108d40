package store

import (
	"reflect"
	"testing"
)

func TestBlobRoundTrip(t *testing.T) {
	cases := [][]int64{
		{},
		{0},
		{5, 6, 7},
		{-1, 1 << 40, -(1 << 40), 0},
	}
	for _, seq := range cases {
		got, err := DecodeSeq(EncodeSeq(seq))
		if err != nil {
			t.Fatalf("decode %v: %v", seq, err)
		}
		if len(seq) == 0 {
			if len(got) != 0 {
				t.Fatalf("decode empty: got %v", got)
			}
			continue
		}
		if !reflect.DeepEqual(got, seq) {
			t.Fatalf("round trip %v: got %v", seq, got)
		}
	}
}

func TestBlobRejectsGarbage(t *testing.T) {
	if _, err := DecodeSeq(nil); err == nil {
		t.Error("nil blob should fail")
	}
	blob := EncodeSeq([]int64{1, 2, 3})
	if _, err := DecodeSeq(blob[:len(blob)-1]); err == nil {
		t.Error("truncated blob should fail")
	}
	if _, err := DecodeSeq(append(blob, 0)); err == nil {
		t.Error("trailing bytes should fail")
	}
}
