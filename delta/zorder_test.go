package delta

import (
	"bytes"
	"testing"
)

func TestFloatWordOrder(t *testing.T) {
	values := []float64{-1000, -1.5, -0.25, 0, 0.25, 1.5, 1000}
	for i := 1; i < len(values); i++ {
		if floatWord(values[i-1]) >= floatWord(values[i]) {
			t.Fatalf("order not preserved between %f and %f", values[i-1], values[i])
		}
	}
}

func TestInterleaveBits(t *testing.T) {
	// all ones in one dimension alternates bits in the output
	key := interleaveBits([]uint64{^uint64(0), 0})
	if key[0] != 0b10101010 {
		t.Fatalf("unexpected first byte %08b", key[0])
	}
	if len(key) != 16 {
		t.Fatalf("expected 16 byte key, got %d", len(key))
	}

	lo := interleaveBits([]uint64{1, 0})
	hi := interleaveBits([]uint64{2, 0})
	if bytes.Compare(lo, hi) >= 0 {
		t.Fatal("interleaving broke single dimension order")
	}
}

func TestSortByZOrder(t *testing.T) {
	rows := []map[string]any{
		{"x": int64(9), "y": "zz"},
		{"x": int64(1), "y": "aa"},
		{"x": int64(5), "y": "mm"},
	}
	sortByZOrder(rows, []string{"x", "y"})
	if rows[0]["x"].(int64) != 1 || rows[2]["x"].(int64) != 9 {
		t.Fatalf("unexpected order: %v", rows)
	}

	// unknown column sorts stably
	same := []map[string]any{
		{"x": int64(1), "n": int64(0)},
		{"x": int64(2), "n": int64(1)},
	}
	sortByZOrder(same, []string{"missing"})
	if same[0]["n"].(int64) != 0 {
		t.Fatal("stable sort violated for equal keys")
	}
}
