package delta

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// sortByZOrder orders rows by interleaving the bits of the named column
// values, clustering rows that are close in every dimension.
func sortByZOrder(rows []map[string]any, columns []string) {
	type keyedRow struct {
		key []byte
		row map[string]any
	}
	keyed := make([]keyedRow, len(rows))
	for i, row := range rows {
		keyed[i] = keyedRow{key: zorderKey(row, columns), row: row}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		return bytes.Compare(keyed[i].key, keyed[j].key) < 0
	})
	for i := range keyed {
		rows[i] = keyed[i].row
	}
}

func zorderKey(row map[string]any, columns []string) []byte {
	words := make([]uint64, len(columns))
	for i, col := range columns {
		words[i] = zorderWord(row[col])
	}
	return interleaveBits(words)
}

// zorderWord maps a value onto a uint64 whose unsigned order matches the
// value's natural order within its type.
func zorderWord(v any) uint64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case int:
		return floatWord(float64(x))
	case int32:
		return floatWord(float64(x))
	case int64:
		return floatWord(float64(x))
	case float32:
		return floatWord(float64(x))
	case float64:
		return floatWord(x)
	case string:
		var b [8]byte
		copy(b[:], x)
		return binary.BigEndian.Uint64(b[:])
	}
	return 0
}

// floatWord flips float bits so that unsigned comparison of the result
// matches numeric comparison of the input.
func floatWord(f float64) uint64 {
	u := math.Float64bits(f)
	if u&(1<<63) != 0 {
		return ^u
	}
	return u | 1<<63
}

// interleaveBits builds the z-order key: bit i of the output cycles through
// bit i of every input word.
func interleaveBits(words []uint64) []byte {
	out := make([]byte, 8*len(words))
	pos := 0
	for bit := 0; bit < 64; bit++ {
		for _, w := range words {
			if w>>(63-bit)&1 == 1 {
				out[pos/8] |= 1 << (7 - pos%8)
			}
			pos++
		}
	}
	return out
}
