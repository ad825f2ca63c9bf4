// Package pqueue provides a binary min-heap keyed by integer priority.
//
// The heap has no decrease-key. Callers that need to lower a priority push a
// second entry and discard stale ones on pop (lazy deletion), or keep their
// own membership set to avoid duplicates.
package pqueue

// Entry is a prioritised payload.
type Entry[T any] struct {
	Priority int
	Value    T
}

// MinHeap is a binary min-heap stored densely in a slice: the children of
// index i live at 2i+1 and 2i+2. The zero value is an empty heap.
type MinHeap[T any] struct {
	data []Entry[T]
}

// New returns an empty heap with room for capacity entries.
func New[T any](capacity int) *MinHeap[T] {
	return &MinHeap[T]{data: make([]Entry[T], 0, capacity)}
}

// Len returns the number of entries.
func (h *MinHeap[T]) Len() int {
	return len(h.data)
}

// Push inserts value with the given priority.
func (h *MinHeap[T]) Push(priority int, value T) {
	h.data = append(h.data, Entry[T]{Priority: priority, Value: value})
	h.siftUp(len(h.data) - 1)
}

// Peek returns the minimum entry without removing it.
func (h *MinHeap[T]) Peek() (Entry[T], bool) {
	if len(h.data) == 0 {
		return Entry[T]{}, false
	}
	return h.data[0], true
}

// Pop removes and returns the minimum entry. Among equal priorities no
// order is guaranteed.
func (h *MinHeap[T]) Pop() (Entry[T], bool) {
	if len(h.data) == 0 {
		return Entry[T]{}, false
	}
	top := h.data[0]
	last := len(h.data) - 1
	h.data[0] = h.data[last]
	h.data[last] = Entry[T]{}
	h.data = h.data[:last]
	if len(h.data) > 0 {
		h.siftDown(0)
	}
	return top, true
}

func (h *MinHeap[T]) siftUp(i int) {
	el := h.data[i]
	for i > 0 {
		p := (i - 1) / 2
		if h.data[p].Priority <= el.Priority {
			break
		}
		h.data[i] = h.data[p]
		i = p
	}
	h.data[i] = el
}

func (h *MinHeap[T]) siftDown(i int) {
	n := len(h.data)
	el := h.data[i]
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && h.data[right].Priority < h.data[left].Priority {
			child = right
		}
		if h.data[child].Priority >= el.Priority {
			break
		}
		h.data[i] = h.data[child]
		i = child
	}
	h.data[i] = el
}
