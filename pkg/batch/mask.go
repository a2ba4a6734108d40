package batch

// Mask helpers are pure functions over an already-built batch-major matrix
// and a pad value.

// PadMask marks live positions: m[i][j] is true where seqs[i][j] is not the
// pad value.
func PadMask(seqs [][]int64, pad int64) [][]bool {
	out := make([][]bool, len(seqs))
	for i, row := range seqs {
		m := make([]bool, len(row))
		for j, v := range row {
			m[j] = v != pad
		}
		out[i] = m
	}
	return out
}

// SubsequentMask keeps, for each position, only positions at or before it:
// m[i][j] is true iff j <= i. The strictly-upper triangle is excluded.
func SubsequentMask(size int) [][]bool {
	out := make([][]bool, size)
	for i := range out {
		row := make([]bool, size)
		for j := 0; j <= i; j++ {
			row[j] = true
		}
		out[i] = row
	}
	return out
}

// AutoregMask combines padding and look-ahead blocking for autoregressive
// decoding: m[b][i][j] is true iff seqs[b][j] is live and j <= i.
func AutoregMask(seqs [][]int64, pad int64) [][][]bool {
	out := make([][][]bool, len(seqs))
	for b, row := range seqs {
		size := len(row)
		m := make([][]bool, size)
		for i := range m {
			r := make([]bool, size)
			for j := 0; j <= i; j++ {
				r[j] = row[j] != pad
			}
			m[i] = r
		}
		out[b] = m
	}
	return out
}
