package workpool

import (
	"sync/atomic"
	"testing"
)

func TestRunReductionIndependentOfWorkerCount(t *testing.T) {
	square := func(i int) int { return i * i }
	sum := func(acc, v int) int { return acc + v }

	want := 0
	for i := 0; i < 1000; i++ {
		want += i * i
	}
	for _, workers := range []int{0, 1, 3, 16, 5000} {
		if got := Run(workers, 1000, square, 0, sum); got != want {
			t.Fatalf("workers=%d: got %d want %d", workers, got, want)
		}
	}
}

func TestRunCallsEveryIndexOnce(t *testing.T) {
	var calls atomic.Int64
	seen := make([]atomic.Int32, 257)
	Run(4, len(seen), func(i int) struct{} {
		calls.Add(1)
		seen[i].Add(1)
		return struct{}{}
	}, struct{}{}, func(acc, _ struct{}) struct{} { return acc })

	if calls.Load() != int64(len(seen)) {
		t.Fatalf("calls = %d, want %d", calls.Load(), len(seen))
	}
	for i := range seen {
		if seen[i].Load() != 1 {
			t.Fatalf("index %d evaluated %d times", i, seen[i].Load())
		}
	}
}

func TestRunFoldsInIndexOrder(t *testing.T) {
	got := Run(8, 5, func(i int) []int { return []int{i} }, nil, func(acc, v []int) []int {
		return append(acc, v...)
	})
	for i, v := range got {
		if v != i {
			t.Fatalf("fold order broken: %v", got)
		}
	}
}

func TestRunEmpty(t *testing.T) {
	if got := Run(4, 0, func(int) int { return 1 }, 42, func(a, b int) int { return a + b }); got != 42 {
		t.Fatalf("empty run = %d, want zero value 42", got)
	}
}
