package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewGrid_DefaultEndpoints(t *testing.T) {
	g, err := NewGrid(DefaultRows, DefaultCols)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if got, want := g.Start(), (Pos{Row: 11, Col: 7}); got != want {
		t.Fatalf("start = %v, want %v", got, want)
	}
	if got, want := g.End(), (Pos{Row: 11, Col: 35}); got != want {
		t.Fatalf("end = %v, want %v", got, want)
	}
	if n := g.VisitedCount(); n != 0 {
		t.Fatalf("visited = %d, want 0", n)
	}
}

func TestNewGridWithEndpoints_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
		start, end Pos
	}{
		{"zero rows", 0, 5, Pos{0, 0}, Pos{0, 1}},
		{"start out of bounds", 3, 3, Pos{-1, 0}, Pos{0, 1}},
		{"end out of bounds", 3, 3, Pos{0, 0}, Pos{3, 0}},
		{"start equals end", 3, 3, Pos{1, 1}, Pos{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGridWithEndpoints(tt.rows, tt.cols, tt.start, tt.end)
			if !errors.Is(err, ErrInvalidGrid) {
				t.Fatalf("err = %v, want ErrInvalidGrid", err)
			}
		})
	}
}

func TestGrid_ToggleWallRefusesEndpoints(t *testing.T) {
	g := MustGrid(3, 3, Pos{0, 0}, Pos{2, 2})

	if g.ToggleWall(Pos{0, 0}) {
		t.Fatal("toggled wall on start")
	}
	if g.ToggleWall(Pos{2, 2}) {
		t.Fatal("toggled wall on end")
	}
	if g.ToggleWall(Pos{5, 5}) {
		t.Fatal("toggled wall out of bounds")
	}
	if !g.ToggleWall(Pos{1, 1}) || !g.IsWall(Pos{1, 1}) {
		t.Fatal("expected (1,1) to become a wall")
	}
	if !g.ToggleWall(Pos{1, 1}) || g.IsWall(Pos{1, 1}) {
		t.Fatal("expected (1,1) to stop being a wall")
	}
}

func TestGrid_MoveEndpoints(t *testing.T) {
	g := MustGrid(3, 3, Pos{0, 0}, Pos{2, 2})
	g.SetWall(Pos{1, 1}, true)

	if g.MoveStart(Pos{1, 1}) {
		t.Fatal("moved start onto a wall")
	}
	if g.MoveStart(Pos{2, 2}) {
		t.Fatal("moved start onto end")
	}
	if !g.MoveStart(Pos{0, 2}) {
		t.Fatal("expected start to move")
	}
	if g.MoveEnd(Pos{0, 2}) {
		t.Fatal("moved end onto start")
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGrid_ClearPathKeepsWalls(t *testing.T) {
	g := MustGrid(3, 3, Pos{0, 0}, Pos{2, 2})
	g.SetWall(Pos{1, 0}, true)
	g.MarkVisited(Pos{0, 1})
	g.MarkPath(Pos{0, 1})

	g.ClearPath()

	if !g.IsWall(Pos{1, 0}) {
		t.Fatal("ClearPath removed a wall")
	}
	if g.VisitedCount() != 0 || len(g.PathCells()) != 0 {
		t.Fatal("ClearPath left visited or path cells behind")
	}

	g.ClearWalls()
	if len(g.Walls()) != 0 {
		t.Fatalf("walls = %v, want none", g.Walls())
	}
}

func TestGrid_ResetRestoresDefaults(t *testing.T) {
	g, _ := NewGrid(6, 12)
	g.MoveStart(Pos{0, 0})
	g.SetWall(Pos{1, 1}, true)
	g.MarkVisited(Pos{2, 2})

	g.Reset()

	start, end := DefaultEndpoints(6, 12)
	if g.Start() != start || g.End() != end {
		t.Fatalf("endpoints = %v,%v, want %v,%v", g.Start(), g.End(), start, end)
	}
	if len(g.Walls()) != 0 || g.VisitedCount() != 0 {
		t.Fatal("Reset left state behind")
	}
}

func TestGrid_MarkVisitedIsMonotonic(t *testing.T) {
	g := MustGrid(2, 2, Pos{0, 0}, Pos{1, 1})
	if !g.MarkVisited(Pos{0, 1}) {
		t.Fatal("first MarkVisited reported no change")
	}
	if g.MarkVisited(Pos{0, 1}) {
		t.Fatal("second MarkVisited reported a change")
	}
}

func TestGrid_NeighborsOrderAndFiltering(t *testing.T) {
	g := MustGrid(3, 3, Pos{0, 0}, Pos{2, 2})
	g.SetWall(Pos{0, 1}, true)

	got := g.Neighbors(Pos{1, 1}, OffsetsDownUpRightLeft)
	want := []Pos{{2, 1}, {1, 2}, {1, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("neighbors mismatch (-want +got):\n%s", diff)
	}

	got = g.Neighbors(Pos{0, 0}, OffsetsRightDownLeftUp)
	want = []Pos{{1, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("corner neighbors mismatch (-want +got):\n%s", diff)
	}
}

func TestGrid_CloneIsDeep(t *testing.T) {
	g := MustGrid(2, 2, Pos{0, 0}, Pos{1, 1})
	c := g.Clone()
	c.MarkVisited(Pos{0, 1})
	if g.At(Pos{0, 1}).Visited {
		t.Fatal("mutating the clone changed the original")
	}
}

func TestManhattan(t *testing.T) {
	if got := Manhattan(Pos{2, 0}, Pos{0, 4}); got != 6 {
		t.Fatalf("Manhattan = %d, want 6", got)
	}
}
