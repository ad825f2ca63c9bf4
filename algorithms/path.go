package algorithms

import (
	"context"
	"math"
	"slices"

	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/pqueue"
	"github.com/petal-labs/algoviz/runtime"
)

// PathResult is the outcome of a pathfinding run. Path lists the cells from
// the one after start up to and including end.
type PathResult struct {
	Found bool       `json:"found"`
	Path  []core.Pos `json:"path,omitempty"`
}

// Pathfinder is the signature shared by the grid algorithms.
type Pathfinder func(ctx context.Context, g *core.Grid, s *runtime.Stepper) (PathResult, error)

// BFS explores the grid in layers from start and finds a shortest path.
func BFS(ctx context.Context, g *core.Grid, s *runtime.Stepper) (PathResult, error) {
	if err := g.Validate(); err != nil {
		return PathResult{}, err
	}
	start, end := g.Start(), g.End()
	if err := s.Line(ctx, core.PathLineInit); err != nil {
		return PathResult{}, err
	}

	seen := map[core.Pos]bool{start: true}
	prev := make(map[core.Pos]core.Pos)
	queue := []core.Pos{start}
	for len(queue) > 0 {
		if err := s.Line(ctx, core.PathLinePop); err != nil {
			return PathResult{}, err
		}
		cur := queue[0]
		queue = queue[1:]
		if err := visit(ctx, g, cur, s); err != nil {
			return PathResult{}, err
		}
		if cur == end {
			break
		}
		if err := s.Line(ctx, core.PathLineExpand); err != nil {
			return PathResult{}, err
		}
		for _, n := range g.Neighbors(cur, core.OffsetsDownUpRightLeft) {
			if seen[n] {
				continue
			}
			seen[n] = true
			prev[n] = cur
			queue = append(queue, n)
		}
	}
	return reconstruct(ctx, g, prev, s)
}

// DFS explores depth-first with an explicit stack. The path it finds is
// not necessarily shortest.
func DFS(ctx context.Context, g *core.Grid, s *runtime.Stepper) (PathResult, error) {
	if err := g.Validate(); err != nil {
		return PathResult{}, err
	}
	start, end := g.Start(), g.End()
	if err := s.Line(ctx, core.PathLineInit); err != nil {
		return PathResult{}, err
	}

	seen := map[core.Pos]bool{start: true}
	prev := make(map[core.Pos]core.Pos)
	stack := []core.Pos{start}
	for len(stack) > 0 {
		if err := s.Line(ctx, core.PathLinePop); err != nil {
			return PathResult{}, err
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := visit(ctx, g, cur, s); err != nil {
			return PathResult{}, err
		}
		if cur == end {
			break
		}
		if err := s.Line(ctx, core.PathLineExpand); err != nil {
			return PathResult{}, err
		}
		for _, n := range g.Neighbors(cur, core.OffsetsRightDownLeftUp) {
			if seen[n] {
				continue
			}
			seen[n] = true
			prev[n] = cur
			stack = append(stack, n)
		}
	}
	return reconstruct(ctx, g, prev, s)
}

// Dijkstra finds a shortest path with a priority queue. Moves cost 1.
// Distances are lowered by pushing a fresh entry; entries whose priority
// exceeds the recorded distance are stale and skipped on pop.
func Dijkstra(ctx context.Context, g *core.Grid, s *runtime.Stepper) (PathResult, error) {
	if err := g.Validate(); err != nil {
		return PathResult{}, err
	}
	start, end := g.Start(), g.End()
	if err := s.Line(ctx, core.PathLineInit); err != nil {
		return PathResult{}, err
	}

	dist := map[core.Pos]int{start: 0}
	prev := make(map[core.Pos]core.Pos)
	pq := pqueue.New[core.Pos](g.Rows() * g.Cols())
	pq.Push(0, start)
	for {
		if err := s.Line(ctx, core.PathLinePop); err != nil {
			return PathResult{}, err
		}
		top, ok := pq.Pop()
		if !ok {
			break
		}
		d, cur := top.Priority, top.Value
		if d > distance(dist, cur) {
			continue
		}
		if err := visit(ctx, g, cur, s); err != nil {
			return PathResult{}, err
		}
		if cur == end {
			break
		}
		if err := s.Line(ctx, core.PathLineExpand); err != nil {
			return PathResult{}, err
		}
		for _, n := range g.Neighbors(cur, core.OffsetsDownUpRightLeft) {
			alt := d + 1
			if alt < distance(dist, n) {
				dist[n] = alt
				prev[n] = cur
				pq.Push(alt, n)
			}
		}
	}
	return reconstruct(ctx, g, prev, s)
}

// AStar finds a shortest path ordered by f = g + h with the Manhattan
// heuristic. A cell is queued only while it is not already in the open set,
// so an improved score for a queued cell leaves its older heap entry in
// place.
func AStar(ctx context.Context, g *core.Grid, s *runtime.Stepper) (PathResult, error) {
	if err := g.Validate(); err != nil {
		return PathResult{}, err
	}
	start, end := g.Start(), g.End()
	if err := s.Line(ctx, core.PathLineInit); err != nil {
		return PathResult{}, err
	}

	gScore := map[core.Pos]int{start: 0}
	prev := make(map[core.Pos]core.Pos)
	open := pqueue.New[core.Pos](g.Rows() * g.Cols())
	open.Push(core.Manhattan(start, end), start)
	inOpen := map[core.Pos]bool{start: true}
	for {
		if err := s.Line(ctx, core.PathLinePop); err != nil {
			return PathResult{}, err
		}
		top, ok := open.Pop()
		if !ok {
			break
		}
		cur := top.Value
		delete(inOpen, cur)
		if err := visit(ctx, g, cur, s); err != nil {
			return PathResult{}, err
		}
		if cur == end {
			break
		}
		if err := s.Line(ctx, core.PathLineExpand); err != nil {
			return PathResult{}, err
		}
		for _, n := range g.Neighbors(cur, core.OffsetsDownUpRightLeft) {
			tentative := distance(gScore, cur) + 1
			if tentative < distance(gScore, n) {
				prev[n] = cur
				gScore[n] = tentative
				if !inOpen[n] {
					open.Push(tentative+core.Manhattan(n, end), n)
					inOpen[n] = true
				}
			}
		}
	}
	return reconstruct(ctx, g, prev, s)
}

func distance(m map[core.Pos]int, p core.Pos) int {
	if d, ok := m[p]; ok {
		return d
	}
	return math.MaxInt
}

// visit marks every popped cell except start.
func visit(ctx context.Context, g *core.Grid, p core.Pos, s *runtime.Stepper) error {
	if p == g.Start() {
		return nil
	}
	if err := s.Line(ctx, core.PathLineVisit); err != nil {
		return err
	}
	return s.Visit(ctx, g, p)
}

// reconstruct walks predecessors back from end and traces the path from the
// start side. Nothing is marked when end was never reached.
func reconstruct(ctx context.Context, g *core.Grid, prev map[core.Pos]core.Pos, s *runtime.Stepper) (PathResult, error) {
	if err := s.Line(ctx, core.PathLineReconstruct); err != nil {
		return PathResult{}, err
	}
	start, end := g.Start(), g.End()
	if _, ok := prev[end]; !ok && end != start {
		return PathResult{}, s.Line(ctx, core.PathLineNoPath)
	}

	var path []core.Pos
	for cur := end; cur != start; {
		path = append(path, cur)
		p, ok := prev[cur]
		if !ok {
			break
		}
		cur = p
	}
	slices.Reverse(path)

	for _, p := range path {
		if err := s.Line(ctx, core.PathLineMark); err != nil {
			return PathResult{Found: true, Path: path}, err
		}
		if err := s.TracePath(ctx, g, p); err != nil {
			return PathResult{Found: true, Path: path}, err
		}
	}
	return PathResult{Found: true, Path: path}, s.Line(ctx, core.PathLineDone)
}
