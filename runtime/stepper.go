package runtime

import (
	"context"
	"slices"
	"time"

	"github.com/petal-labs/algoviz/core"
)

// Stats counts the observable steps of a run.
type Stats struct {
	Compares  int `json:"compares"`
	Swaps     int `json:"swaps"`
	Probes    int `json:"probes"`
	Visits    int `json:"visits"`
	PathCells int `json:"path_cells"`
	Lines     int `json:"lines"`
	Ticks     int `json:"ticks"`
}

// StepperConfig configures a Stepper.
type StepperConfig struct {
	RunID     string
	Algorithm core.Algorithm

	// Emit receives every step notification. Defaults to the emitter
	// stored in the context passed to NewStepper, if any.
	Emit EventEmitter

	Sinks Sinks

	// Ticker suspends between steps. Defaults to a CountingTicker.
	Ticker Ticker

	// PathTicker suspends between path marks. Defaults to Ticker.
	PathTicker Ticker

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Stepper is what a step function reports into. It forwards each
// observation to the host sinks and to the event emitter, then suspends on
// the ticker. A Stepper belongs to a single run and is not safe for
// concurrent use.
type Stepper struct {
	runID      string
	alg        core.Algorithm
	emit       EventEmitter
	sinks      Sinks
	ticker     Ticker
	pathTicker Ticker
	clock      func() time.Time
	started    time.Time

	highlight Highlight
	line      int
	stats     Stats
}

// NewStepper creates a Stepper. ctx is only consulted for an emitter and a
// run id when cfg leaves them unset.
func NewStepper(ctx context.Context, cfg StepperConfig) *Stepper {
	emit := cfg.Emit
	if emit == nil {
		emit = EmitterFromContext(ctx)
	}
	runID := cfg.RunID
	if runID == "" {
		runID = RunIDFromContext(ctx)
	}
	ticker := cfg.Ticker
	if ticker == nil {
		ticker = &CountingTicker{}
	}
	pathTicker := cfg.PathTicker
	if pathTicker == nil {
		pathTicker = ticker
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Stepper{
		runID:      runID,
		alg:        cfg.Algorithm,
		emit:       emit,
		sinks:      cfg.Sinks,
		ticker:     ticker,
		pathTicker: pathTicker,
		clock:      clock,
		started:    clock(),
		highlight:  NoHighlight(),
		line:       -1,
	}
}

// RunID returns the run this stepper reports for.
func (s *Stepper) RunID() string { return s.runID }

// Stats returns the counters accumulated so far.
func (s *Stepper) Stats() Stats { return s.stats }

// CurrentHighlight returns a copy of the highlight state.
func (s *Stepper) CurrentHighlight() Highlight { return s.highlight.Clone() }

// CurrentLine returns the last pseudocode line marked, or -1.
func (s *Stepper) CurrentLine() int { return s.line }

func (s *Stepper) event(kind EventKind) Event {
	now := s.clock()
	e := NewEvent(kind, s.runID).WithAlgorithm(s.alg).WithElapsed(now.Sub(s.started))
	e.Time = now
	return e
}

// Emit sends a run-level event stamped with the stepper's run id, algorithm
// and elapsed time.
func (s *Stepper) Emit(kind EventKind, payload map[string]any) {
	e := s.event(kind)
	for k, v := range payload {
		e = e.WithPayload(k, v)
	}
	s.emit(e)
}

// Tick suspends until the ticker lets the run continue.
func (s *Stepper) Tick(ctx context.Context) error {
	s.stats.Ticks++
	return s.ticker.Tick(ctx)
}

// Line marks a pseudocode line and then ticks.
func (s *Stepper) Line(ctx context.Context, id int) error {
	s.line = id
	s.stats.Lines++
	if s.sinks.Line != nil {
		s.sinks.Line(id)
	}
	s.emit(s.event(EventLine).WithLine(id))
	return s.Tick(ctx)
}

// ClearLine removes the pseudocode marker without ticking.
func (s *Stepper) ClearLine() {
	s.line = -1
	if s.sinks.Line != nil {
		s.sinks.Line(-1)
	}
	s.emit(s.event(EventLine).WithLine(-1))
}

func (s *Stepper) publishHighlight() {
	if s.sinks.Highlight != nil {
		s.sinks.Highlight(s.highlight.Clone())
	}
	s.emit(s.event(EventHighlight).
		WithIndices(s.highlight.Indices...).
		WithCells(s.highlight.Cells...).
		WithPivot(s.highlight.Pivot))
}

// Highlight replaces the highlighted sequence indices.
func (s *Stepper) Highlight(indices ...int) {
	s.highlight.Indices = slices.Clone(indices)
	s.highlight.Cells = nil
	s.publishHighlight()
}

// HighlightCells replaces the highlighted grid cells.
func (s *Stepper) HighlightCells(cells ...core.Pos) {
	s.highlight.Indices = nil
	s.highlight.Cells = slices.Clone(cells)
	s.publishHighlight()
}

// Pivot sets the pivot marker; -1 clears it.
func (s *Stepper) Pivot(i int) {
	s.highlight.Pivot = i
	if s.sinks.Highlight != nil {
		s.sinks.Highlight(s.highlight.Clone())
	}
	s.emit(s.event(EventPivot).WithPivot(i))
}

// ClearHighlight removes every transient marker.
func (s *Stepper) ClearHighlight() {
	s.highlight = NoHighlight()
	s.publishHighlight()
}

// Cue reports a sound cue.
func (s *Stepper) Cue(c core.Cue) {
	switch c {
	case core.CueCompare:
		s.stats.Compares++
	case core.CueSwap:
		s.stats.Swaps++
	case core.CueProbe:
		s.stats.Probes++
	case core.CueVisit:
		s.stats.Visits++
	case core.CuePath:
		s.stats.PathCells++
	}
	if s.sinks.Sound != nil {
		s.sinks.Sound(c)
	}
	s.emit(s.event(EventCue).WithCue(c))
}

// Compare highlights two indices, cues a comparison and ticks.
func (s *Stepper) Compare(ctx context.Context, i, j int) error {
	s.Highlight(i, j)
	s.Cue(core.CueCompare)
	return s.Tick(ctx)
}

// Probe highlights one index, cues a probe and ticks.
func (s *Stepper) Probe(ctx context.Context, i int) error {
	s.Highlight(i)
	s.Cue(core.CueProbe)
	return s.Tick(ctx)
}

// RenderSequence hands a snapshot of values to the host.
func (s *Stepper) RenderSequence(values []int) {
	if s.sinks.Sequence != nil {
		s.sinks.Sequence(slices.Clone(values))
	}
	s.emit(s.event(EventRender).WithValues(values))
}

// Swapped renders values after an exchange or write, cues a swap and ticks.
func (s *Stepper) Swapped(ctx context.Context, values []int) error {
	s.RenderSequence(values)
	s.Cue(core.CueSwap)
	return s.Tick(ctx)
}

func (s *Stepper) renderGrid(g *core.Grid) {
	if s.sinks.Grid != nil {
		s.sinks.Grid(g.Clone())
	}
}

// Visit marks p visited, renders, cues and ticks. A cell that is already
// visited is not reported again.
func (s *Stepper) Visit(ctx context.Context, g *core.Grid, p core.Pos) error {
	if g.MarkVisited(p) {
		s.renderGrid(g)
		s.emit(s.event(EventVisit).WithCells(p))
		s.Cue(core.CueVisit)
	}
	return s.Tick(ctx)
}

// TracePath marks p as part of the final path, renders, cues and waits on
// the path ticker.
func (s *Stepper) TracePath(ctx context.Context, g *core.Grid, p core.Pos) error {
	if g.MarkPath(p) {
		s.renderGrid(g)
		s.emit(s.event(EventPath).WithCells(p))
		s.Cue(core.CuePath)
	}
	s.stats.Ticks++
	return s.pathTicker.Tick(ctx)
}
