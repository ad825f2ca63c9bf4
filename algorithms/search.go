package algorithms

import (
	"context"

	"github.com/petal-labs/algoviz/runtime"
)

// NotFound is the index returned when the target is absent.
const NotFound = -1

// LinearSearch probes values left to right and returns the first index
// holding target, or NotFound.
func LinearSearch(ctx context.Context, values []int, target int, s *runtime.Stepper) (int, error) {
	for i := range values {
		if err := s.Line(ctx, 0); err != nil {
			return NotFound, err
		}
		if err := s.Probe(ctx, i); err != nil {
			return NotFound, err
		}
		if err := s.Line(ctx, 1); err != nil {
			return NotFound, err
		}
		if err := s.Tick(ctx); err != nil {
			return NotFound, err
		}
		if values[i] == target {
			return i, s.Line(ctx, 2)
		}
	}
	return NotFound, s.Line(ctx, 4)
}

// BinarySearch narrows [lo, hi] around target in ascending values and
// returns an index holding target, or NotFound. The result is unspecified
// when values is not sorted.
func BinarySearch(ctx context.Context, values []int, target int, s *runtime.Stepper) (int, error) {
	lo, hi := 0, len(values)-1
	if err := s.Line(ctx, 0); err != nil {
		return NotFound, err
	}
	for lo <= hi {
		if err := s.Line(ctx, 1); err != nil {
			return NotFound, err
		}
		mid := lo + (hi-lo)/2
		if err := s.Line(ctx, 2); err != nil {
			return NotFound, err
		}
		if err := s.Probe(ctx, mid); err != nil {
			return NotFound, err
		}
		if err := s.Line(ctx, 3); err != nil {
			return NotFound, err
		}
		switch {
		case values[mid] == target:
			return mid, s.Line(ctx, 4)
		case values[mid] < target:
			if err := s.Line(ctx, 5); err != nil {
				return NotFound, err
			}
			lo = mid + 1
		default:
			if err := s.Line(ctx, 6); err != nil {
				return NotFound, err
			}
			hi = mid - 1
		}
		if err := s.Tick(ctx); err != nil {
			return NotFound, err
		}
	}
	return NotFound, s.Line(ctx, 8)
}
