// Package algorithms holds the instrumented step functions. Each one mutates
// its input in place and reports every comparison, exchange, probe and visit
// through a runtime.Stepper, suspending on the stepper's ticker in between.
//
// Pseudocode line ids match core.Algorithm.Pseudocode for the algorithm.
package algorithms

import (
	"context"

	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

// BubbleSort sorts values ascending with adjacent exchanges. It performs
// exactly n(n-1)/2 comparisons.
func BubbleSort(ctx context.Context, values []int, s *runtime.Stepper) ([]int, error) {
	n := len(values)
	for i := 0; i < n-1; i++ {
		if err := s.Line(ctx, 0); err != nil {
			return values, err
		}
		for j := 0; j < n-i-1; j++ {
			if err := s.Line(ctx, 1); err != nil {
				return values, err
			}
			if err := s.Compare(ctx, j, j+1); err != nil {
				return values, err
			}
			if err := s.Line(ctx, 2); err != nil {
				return values, err
			}
			if values[j] > values[j+1] {
				if err := s.Line(ctx, 3); err != nil {
					return values, err
				}
				values[j], values[j+1] = values[j+1], values[j]
				if err := s.Swapped(ctx, values); err != nil {
					return values, err
				}
			}
		}
	}
	s.ClearHighlight()
	return values, s.Line(ctx, 4)
}

// InsertionSort sorts values ascending by shifting larger elements right.
func InsertionSort(ctx context.Context, values []int, s *runtime.Stepper) ([]int, error) {
	for i := 1; i < len(values); i++ {
		if err := s.Line(ctx, 0); err != nil {
			return values, err
		}
		key := values[i]
		if err := s.Line(ctx, 1); err != nil {
			return values, err
		}
		j := i - 1
		if err := s.Line(ctx, 2); err != nil {
			return values, err
		}
		for j >= 0 && values[j] > key {
			if err := s.Line(ctx, 3); err != nil {
				return values, err
			}
			if err := s.Compare(ctx, j, j+1); err != nil {
				return values, err
			}
			values[j+1] = values[j]
			j--
			if err := s.Swapped(ctx, values); err != nil {
				return values, err
			}
		}
		values[j+1] = key
		s.RenderSequence(values)
		if err := s.Line(ctx, 4); err != nil {
			return values, err
		}
	}
	s.ClearHighlight()
	return values, s.Line(ctx, 5)
}

// SelectionSort sorts values ascending, performing at most one exchange per
// pass.
func SelectionSort(ctx context.Context, values []int, s *runtime.Stepper) ([]int, error) {
	n := len(values)
	for i := 0; i < n-1; i++ {
		if err := s.Line(ctx, 0); err != nil {
			return values, err
		}
		minIdx := i
		if err := s.Line(ctx, 1); err != nil {
			return values, err
		}
		for j := i + 1; j < n; j++ {
			if err := s.Line(ctx, 2); err != nil {
				return values, err
			}
			if err := s.Compare(ctx, minIdx, j); err != nil {
				return values, err
			}
			if err := s.Line(ctx, 3); err != nil {
				return values, err
			}
			if values[j] < values[minIdx] {
				minIdx = j
			}
		}
		if minIdx != i {
			if err := s.Line(ctx, 4); err != nil {
				return values, err
			}
			values[i], values[minIdx] = values[minIdx], values[i]
			if err := s.Swapped(ctx, values); err != nil {
				return values, err
			}
		}
	}
	s.ClearHighlight()
	return values, s.Line(ctx, 5)
}

// MergeSort sorts values ascending and stably. Every element written back
// during a merge, including the leftover flushes, is reported as a swap.
func MergeSort(ctx context.Context, values []int, s *runtime.Stepper) ([]int, error) {
	if len(values) < 2 {
		return values, nil
	}
	return values, mergeSort(ctx, values, 0, len(values)-1, s)
}

func mergeSort(ctx context.Context, values []int, l, r int, s *runtime.Stepper) error {
	if l >= r {
		return nil
	}
	if err := s.Line(ctx, 0); err != nil {
		return err
	}
	m := l + (r-l)/2
	if err := s.Line(ctx, 1); err != nil {
		return err
	}
	if err := mergeSort(ctx, values, l, m, s); err != nil {
		return err
	}
	if err := mergeSort(ctx, values, m+1, r, s); err != nil {
		return err
	}

	if err := s.Line(ctx, 2); err != nil {
		return err
	}
	left := append([]int(nil), values[l:m+1]...)
	right := append([]int(nil), values[m+1:r+1]...)
	i, j, k := 0, 0, l
	for i < len(left) && j < len(right) {
		if err := s.Compare(ctx, l+i, m+1+j); err != nil {
			return err
		}
		if left[i] <= right[j] {
			values[k] = left[i]
			i++
		} else {
			values[k] = right[j]
			j++
		}
		k++
		if err := s.Swapped(ctx, values); err != nil {
			return err
		}
	}
	for ; i < len(left); i++ {
		values[k] = left[i]
		k++
		if err := s.Swapped(ctx, values); err != nil {
			return err
		}
	}
	for ; j < len(right); j++ {
		values[k] = right[j]
		k++
		if err := s.Swapped(ctx, values); err != nil {
			return err
		}
	}
	s.ClearHighlight()
	return s.Line(ctx, 3)
}

// QuickSort sorts values ascending using Lomuto partitioning with the last
// element of each range as pivot.
func QuickSort(ctx context.Context, values []int, s *runtime.Stepper) ([]int, error) {
	if len(values) == 0 {
		return values, nil
	}
	return values, quickSort(ctx, values, 0, len(values)-1, s)
}

func quickSort(ctx context.Context, values []int, lo, hi int, s *runtime.Stepper) error {
	if err := s.Line(ctx, 0); err != nil {
		return err
	}
	if lo >= hi {
		return s.Line(ctx, 1)
	}
	if err := s.Line(ctx, 2); err != nil {
		return err
	}
	p, err := partition(ctx, values, lo, hi, s)
	if err != nil {
		return err
	}
	if err := s.Line(ctx, 3); err != nil {
		return err
	}
	if err := quickSort(ctx, values, lo, p-1, s); err != nil {
		return err
	}
	if err := s.Line(ctx, 4); err != nil {
		return err
	}
	if err := quickSort(ctx, values, p+1, hi, s); err != nil {
		return err
	}
	return s.Line(ctx, 5)
}

// partition moves everything strictly smaller than values[hi] to the front
// of the range and returns the pivot's final index. The pivot marker stays on
// hi for the whole partition.
func partition(ctx context.Context, values []int, lo, hi int, s *runtime.Stepper) (int, error) {
	if err := s.Line(ctx, 6); err != nil {
		return 0, err
	}
	pivot := values[hi]
	if err := s.Line(ctx, 7); err != nil {
		return 0, err
	}
	s.Pivot(hi)
	i := lo
	if err := s.Line(ctx, 8); err != nil {
		return 0, err
	}
	for j := lo; j < hi; j++ {
		if err := s.Line(ctx, 9); err != nil {
			return 0, err
		}
		s.Highlight(j, hi)
		if err := s.Line(ctx, 10); err != nil {
			return 0, err
		}
		s.Cue(core.CueCompare)
		if err := s.Tick(ctx); err != nil {
			return 0, err
		}
		if values[j] < pivot {
			if err := s.Line(ctx, 11); err != nil {
				return 0, err
			}
			values[i], values[j] = values[j], values[i]
			i++
			if err := s.Swapped(ctx, values); err != nil {
				return 0, err
			}
		}
	}
	if err := s.Line(ctx, 12); err != nil {
		return 0, err
	}
	values[i], values[hi] = values[hi], values[i]
	if err := s.Swapped(ctx, values); err != nil {
		return 0, err
	}
	s.Pivot(-1)
	s.ClearHighlight()
	return i, nil
}
