package core

import "fmt"

// Default grid dimensions, matching the pathfinding board.
const (
	DefaultRows = 22
	DefaultCols = 42
)

// Cell is one square of the pathfinding board.
type Cell struct {
	Pos
	Wall    bool `json:"wall"`
	Visited bool `json:"visited"`
	OnPath  bool `json:"on_path"`
}

// Grid is a rows×cols board with a start and an end cell.
//
// Visited and OnPath are monotonic within a run: they only go from false to
// true until ClearPath or Reset. Start and End are never walls.
type Grid struct {
	rows, cols int
	cells      []Cell
	start, end Pos
}

// DefaultEndpoints returns the start and end used for a fresh board:
// the middle row, one sixth and five sixths of the way across.
func DefaultEndpoints(rows, cols int) (start, end Pos) {
	return Pos{Row: rows / 2, Col: cols / 6}, Pos{Row: rows / 2, Col: cols * 5 / 6}
}

// NewGrid builds a pristine board with default endpoints.
func NewGrid(rows, cols int) (*Grid, error) {
	start, end := DefaultEndpoints(rows, cols)
	return NewGridWithEndpoints(rows, cols, start, end)
}

// NewGridWithEndpoints builds a pristine board with explicit endpoints.
func NewGridWithEndpoints(rows, cols int, start, end Pos) (*Grid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidGrid, rows, cols)
	}
	g := &Grid{rows: rows, cols: cols, start: start, end: end}
	g.cells = make([]Cell, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.cells[r*cols+c].Pos = Pos{Row: r, Col: c}
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// MustGrid is NewGridWithEndpoints for known-good literals.
func MustGrid(rows, cols int, start, end Pos) *Grid {
	g, err := NewGridWithEndpoints(rows, cols, start, end)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Grid) Rows() int  { return g.rows }
func (g *Grid) Cols() int  { return g.cols }
func (g *Grid) Start() Pos { return g.start }
func (g *Grid) End() Pos   { return g.end }

// InBounds reports whether p addresses a cell of the board.
func (g *Grid) InBounds(p Pos) bool {
	return p.Row >= 0 && p.Row < g.rows && p.Col >= 0 && p.Col < g.cols
}

// At returns the cell at p. It panics when p is out of bounds.
func (g *Grid) At(p Pos) Cell {
	return g.cells[g.index(p)]
}

func (g *Grid) index(p Pos) int {
	if !g.InBounds(p) {
		panic(fmt.Sprintf("core: %v outside %dx%d grid", p, g.rows, g.cols))
	}
	return p.Row*g.cols + p.Col
}

// IsWall reports whether p is a wall. Out-of-bounds positions count as walls.
func (g *Grid) IsWall(p Pos) bool {
	if !g.InBounds(p) {
		return true
	}
	return g.cells[g.index(p)].Wall
}

// Neighbors returns the in-bounds, non-wall cells adjacent to p, in the
// order given by offsets.
func (g *Grid) Neighbors(p Pos, offsets []Pos) []Pos {
	out := make([]Pos, 0, len(offsets))
	for _, d := range offsets {
		n := p.Add(d)
		if !g.InBounds(n) || g.cells[g.index(n)].Wall {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Validate checks the start/end invariants.
func (g *Grid) Validate() error {
	switch {
	case !g.InBounds(g.start):
		return fmt.Errorf("%w: start %v: %w", ErrInvalidGrid, g.start, ErrOutOfBounds)
	case !g.InBounds(g.end):
		return fmt.Errorf("%w: end %v: %w", ErrInvalidGrid, g.end, ErrOutOfBounds)
	case g.start == g.end:
		return fmt.Errorf("%w: start and end are both %v", ErrInvalidGrid, g.start)
	case g.At(g.start).Wall:
		return fmt.Errorf("%w: start %v is a wall", ErrInvalidGrid, g.start)
	case g.At(g.end).Wall:
		return fmt.Errorf("%w: end %v is a wall", ErrInvalidGrid, g.end)
	}
	return nil
}

// ToggleWall flips the wall flag of p. Start and end cannot become walls.
// It reports whether the board changed.
func (g *Grid) ToggleWall(p Pos) bool {
	if !g.InBounds(p) || p == g.start || p == g.end {
		return false
	}
	i := g.index(p)
	g.cells[i].Wall = !g.cells[i].Wall
	return true
}

// SetWall sets the wall flag of p, as a paint stroke does.
func (g *Grid) SetWall(p Pos, wall bool) bool {
	if !g.InBounds(p) || p == g.start || p == g.end {
		return false
	}
	i := g.index(p)
	if g.cells[i].Wall == wall {
		return false
	}
	g.cells[i].Wall = wall
	return true
}

// MoveStart relocates the start cell. Walls, the end cell and out-of-bounds
// targets are refused.
func (g *Grid) MoveStart(p Pos) bool {
	if !g.InBounds(p) || p == g.end || g.cells[g.index(p)].Wall {
		return false
	}
	g.start = p
	return true
}

// MoveEnd relocates the end cell under the same rules as MoveStart.
func (g *Grid) MoveEnd(p Pos) bool {
	if !g.InBounds(p) || p == g.start || g.cells[g.index(p)].Wall {
		return false
	}
	g.end = p
	return true
}

// ClearWalls removes every wall.
func (g *Grid) ClearWalls() {
	for i := range g.cells {
		g.cells[i].Wall = false
	}
}

// ClearPath resets the visited and on-path flags, keeping walls.
func (g *Grid) ClearPath() {
	for i := range g.cells {
		g.cells[i].Visited = false
		g.cells[i].OnPath = false
	}
}

// Reset restores a pristine board with default endpoints.
func (g *Grid) Reset() {
	for i := range g.cells {
		g.cells[i] = Cell{Pos: g.cells[i].Pos}
	}
	g.start, g.end = DefaultEndpoints(g.rows, g.cols)
}

// MarkVisited sets the visited flag and reports whether it was unset before.
func (g *Grid) MarkVisited(p Pos) bool {
	i := g.index(p)
	if g.cells[i].Visited {
		return false
	}
	g.cells[i].Visited = true
	return true
}

// MarkPath sets the on-path flag and reports whether it was unset before.
func (g *Grid) MarkPath(p Pos) bool {
	i := g.index(p)
	if g.cells[i].OnPath {
		return false
	}
	g.cells[i].OnPath = true
	return true
}

// VisitedCount returns the number of visited cells.
func (g *Grid) VisitedCount() int {
	n := 0
	for _, c := range g.cells {
		if c.Visited {
			n++
		}
	}
	return n
}

// PathCells returns the on-path cells in row-major order.
func (g *Grid) PathCells() []Pos {
	var out []Pos
	for _, c := range g.cells {
		if c.OnPath {
			out = append(out, c.Pos)
		}
	}
	return out
}

// Walls returns the wall cells in row-major order.
func (g *Grid) Walls() []Pos {
	var out []Pos
	for _, c := range g.cells {
		if c.Wall {
			out = append(out, c.Pos)
		}
	}
	return out
}

// Cells returns a copy of every cell in row-major order.
func (g *Grid) Cells() []Cell {
	out := make([]Cell, len(g.cells))
	copy(out, g.cells)
	return out
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	if g == nil {
		return nil
	}
	c := *g
	c.cells = g.Cells()
	return &c
}
