// Package core defines the data model shared by the algorithm runner, the
// run controller and every host that renders a run.
package core

import "errors"

// Validation errors.
var (
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	ErrInvalidGrid      = errors.New("invalid grid")
	ErrOutOfBounds      = errors.New("position out of bounds")
)

// Category groups algorithms by the kind of state they operate on.
type Category string

const (
	CategorySorting     Category = "sorting"
	CategorySearching   Category = "searching"
	CategoryPathfinding Category = "pathfinding"
)

// String returns the string representation of the Category.
func (c Category) String() string {
	return string(c)
}

// Label returns the capitalised name used in activity logs.
func (c Category) Label() string {
	switch c {
	case CategorySorting:
		return "Sorting"
	case CategorySearching:
		return "Searching"
	case CategoryPathfinding:
		return "Pathfinding"
	default:
		return string(c)
	}
}

// ParseCategory accepts both the lower-case form and the label.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "sorting", "Sorting":
		return CategorySorting, true
	case "searching", "Searching":
		return CategorySearching, true
	case "pathfinding", "Pathfinding":
		return CategoryPathfinding, true
	}
	return "", false
}

// Cue is an abstract sound event. Hosts decide how, or whether, to play it.
type Cue string

const (
	CueNone    Cue = ""
	CueCompare Cue = "compare"
	CueSwap    Cue = "swap"
	CueProbe   Cue = "probe"
	CueVisit   Cue = "visit"
	CuePath    Cue = "path"
	CueDone    Cue = "done"
	CueFail    Cue = "fail"
)

// String returns the string representation of the Cue.
func (c Cue) String() string {
	return string(c)
}

// Cues lists every playable cue.
func Cues() []Cue {
	return []Cue{CueCompare, CueSwap, CueProbe, CueVisit, CuePath, CueDone, CueFail}
}

// Pos addresses a grid cell.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Add returns the position offset by d.
func (p Pos) Add(d Pos) Pos {
	return Pos{Row: p.Row + d.Row, Col: p.Col + d.Col}
}

// Manhattan returns |a.Row-b.Row| + |a.Col-b.Col|.
func Manhattan(a, b Pos) int {
	return abs(a.Row-b.Row) + abs(a.Col-b.Col)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Neighbour offsets. Traversal order is significant: it decides which of
// several equal-cost paths is found and how DFS explores.
var (
	// OffsetsDownUpRightLeft is used by BFS, Dijkstra and A*.
	OffsetsDownUpRightLeft = []Pos{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	// OffsetsRightDownLeftUp is used by DFS.
	OffsetsRightDownLeftUp = []Pos{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
)
