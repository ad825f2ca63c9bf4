package pqueue

import (
	"math/rand/v2"
	"slices"
	"testing"
)

func TestMinHeap_PopOrder(t *testing.T) {
	h := New[string](0)
	for _, p := range []int{5, 3, 8, 1, 9, 2} {
		h.Push(p, "")
	}
	var got []int
	for h.Len() > 0 {
		e, ok := h.Pop()
		if !ok {
			t.Fatal("Pop reported empty heap early")
		}
		got = append(got, e.Priority)
	}
	want := []int{1, 2, 3, 5, 8, 9}
	if !slices.Equal(got, want) {
		t.Fatalf("pop order = %v, want %v", got, want)
	}
}

func TestMinHeap_EmptyPop(t *testing.T) {
	var h MinHeap[int]
	if _, ok := h.Pop(); ok {
		t.Fatal("Pop on empty heap returned ok")
	}
	if _, ok := h.Peek(); ok {
		t.Fatal("Peek on empty heap returned ok")
	}
}

func TestMinHeap_RandomisedAgainstSort(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		h := New[int](0)
		n := rng.IntN(64)
		want := make([]int, n)
		for i := range want {
			p := rng.IntN(20)
			want[i] = p
			h.Push(p, i)
		}
		slices.Sort(want)
		for i, w := range want {
			e, ok := h.Pop()
			if !ok || e.Priority != w {
				t.Fatalf("round %d pop %d = %d,%v, want %d", round, i, e.Priority, ok, w)
			}
		}
		if h.Len() != 0 {
			t.Fatalf("round %d: %d entries left", round, h.Len())
		}
	}
}

func TestMinHeap_DuplicatesSurvive(t *testing.T) {
	h := New[string](0)
	h.Push(4, "a")
	h.Push(2, "a")
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
	e, _ := h.Pop()
	if e.Priority != 2 || e.Value != "a" {
		t.Fatalf("first pop = %+v", e)
	}
	e, _ = h.Pop()
	if e.Priority != 4 {
		t.Fatalf("stale entry priority = %d, want 4", e.Priority)
	}
}

func TestMinHeap_InterleavedPushPop(t *testing.T) {
	h := New[int](0)
	h.Push(10, 0)
	h.Push(4, 0)
	if e, _ := h.Pop(); e.Priority != 4 {
		t.Fatalf("pop = %d, want 4", e.Priority)
	}
	h.Push(1, 0)
	h.Push(7, 0)
	if e, _ := h.Peek(); e.Priority != 1 {
		t.Fatalf("peek = %d, want 1", e.Priority)
	}
	var got []int
	for h.Len() > 0 {
		e, _ := h.Pop()
		got = append(got, e.Priority)
	}
	if !slices.Equal(got, []int{1, 7, 10}) {
		t.Fatalf("drain = %v", got)
	}
}
