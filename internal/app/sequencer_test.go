package app

import (
	"sort"
	"testing"
)

func TestSequenceIsPermutation(t *testing.T) {
	seq := NewSeededSequencer(42)
	ids := []int64{10, 20, 30, 40, 50}

	order := seq.Sequence(ids)
	if len(order) != len(ids) {
		t.Fatalf("expected %d ids, got %d", len(ids), len(order))
	}
	sorted := append([]int64(nil), order...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := range ids {
		if sorted[i] != ids[i] {
			t.Fatalf("order %v is not a permutation of %v", order, ids)
		}
	}
	if ids[0] != 10 || ids[4] != 50 {
		t.Fatalf("input slice must not be modified, got %v", ids)
	}
}

func TestSequenceCoversAllOrders(t *testing.T) {
	seq := NewSeededSequencer(7)
	seen := map[[3]int64]int{}
	for i := 0; i < 600; i++ {
		o := seq.Sequence([]int64{1, 2, 3})
		seen[[3]int64{o[0], o[1], o[2]}]++
	}
	if len(seen) != 6 {
		t.Fatalf("expected all 6 permutations, saw %d", len(seen))
	}
	for perm, n := range seen {
		if n < 50 {
			t.Fatalf("permutation %v drawn only %d times", perm, n)
		}
	}
}

func TestSequenceEmpty(t *testing.T) {
	if got := NewRandomSequencer().Sequence(nil); len(got) != 0 {
		t.Fatalf("expected empty order, got %v", got)
	}
}
