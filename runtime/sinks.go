package runtime

import (
	"slices"

	"github.com/petal-labs/algoviz/core"
)

// Highlight is the transient marker state of a run. Every update replaces
// the previous value. Pivot is -1 when no pivot is marked.
type Highlight struct {
	Indices []int      `json:"indices,omitempty"`
	Cells   []core.Pos `json:"cells,omitempty"`
	Pivot   int        `json:"pivot"`
}

// Clone returns a deep copy.
func (h Highlight) Clone() Highlight {
	return Highlight{
		Indices: slices.Clone(h.Indices),
		Cells:   slices.Clone(h.Cells),
		Pivot:   h.Pivot,
	}
}

// Empty reports whether nothing is highlighted.
func (h Highlight) Empty() bool {
	return len(h.Indices) == 0 && len(h.Cells) == 0 && h.Pivot < 0
}

// NoHighlight is the cleared marker state.
func NoHighlight() Highlight {
	return Highlight{Pivot: -1}
}

// Sinks are the host-provided callbacks a run reports into. Every field is
// optional. Snapshots handed to Sequence and Grid are copies the host may
// keep.
type Sinks struct {
	// Sequence receives the sequence after every mutation.
	Sequence func(values []int)

	// Grid receives the board after every visited or path mark.
	Grid func(g *core.Grid)

	// Highlight receives the current highlight state.
	Highlight func(h Highlight)

	// Sound receives abstract cues.
	Sound func(c core.Cue)

	// Line receives the pseudocode line id, or -1 when cleared.
	Line func(line int)
}

// Merge returns sinks that call s and then other for every field.
func (s Sinks) Merge(other Sinks) Sinks {
	return Sinks{
		Sequence:  chain(s.Sequence, other.Sequence),
		Grid:      chain(s.Grid, other.Grid),
		Highlight: chain(s.Highlight, other.Highlight),
		Sound:     chain(s.Sound, other.Sound),
		Line:      chain(s.Line, other.Line),
	}
}

func chain[T any](a, b func(T)) func(T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(v T) {
		a(v)
		b(v)
	}
}
