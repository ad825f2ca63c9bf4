package algoviz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/algoviz/activity"
	"github.com/petal-labs/algoviz/algorithms"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/sound"
)

// Default delays per category, in the order the boards use them.
const (
	DefaultSortDelay   = 50 * time.Millisecond
	DefaultSearchDelay = 40 * time.Millisecond
	DefaultPathDelay   = 18 * time.Millisecond
	DefaultTraceDelay  = 30 * time.Millisecond
)

// DefaultDelay returns the default step delay for a category.
func DefaultDelay(c core.Category) time.Duration {
	switch c {
	case core.CategorySearching:
		return DefaultSearchDelay
	case core.CategoryPathfinding:
		return DefaultPathDelay
	}
	return DefaultSortDelay
}

var errStopped = errors.New("stopped by host")

// ErrRunPanicked wraps a panic raised by a step function or a host sink
// during a run. The run ends as failed.
var ErrRunPanicked = errors.New("run panicked")

// State is the lifecycle state of a Controller.
type State int32

const (
	Idle State = iota
	Running
	Canceling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Canceling:
		return "canceling"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config configures a Controller. Every field is optional.
type Config struct {
	// Values is the initial sequence. When nil, Size values are generated.
	Values []int
	Size   int

	// Grid is the initial board. When nil, a Rows x Cols board with default
	// endpoints is created.
	Grid       *core.Grid
	Rows, Cols int

	// Target is the value searched for.
	Target int

	// Speed is the initial step delay. Zero means DefaultSortDelay.
	Speed time.Duration

	// Ticker replaces the live delay ticker built from Speed. A ticker with
	// a Speed() *runtime.Speed method (such as runtime.DelayTicker) keeps
	// SetSpeed live; for any other ticker SetSpeed only changes the value
	// Speed reports.
	Ticker runtime.Ticker

	// PathTicker paces the final path trace. Defaults to a fixed
	// DefaultTraceDelay ticker.
	PathTicker runtime.Ticker

	// Sinks receive render, highlight, sound and line updates in addition to
	// the controller's own snapshot state.
	Sinks runtime.Sinks

	// EventHandler receives every step notification.
	EventHandler runtime.EventHandler

	// EventBus, if set, receives every step notification.
	EventBus runtime.EventPublisher

	// EmitterDecorator wraps the run emitter (for example to add trace ids).
	EmitterDecorator runtime.EventEmitterDecorator

	Sound    *sound.Sink
	Activity activity.Logger
	UserID   string

	Rand   *rand.Rand
	Logger *slog.Logger
	Clock  func() time.Time
}

// Request selects the algorithm for one run.
type Request struct {
	Algorithm core.Algorithm

	// RunID defaults to a random UUID.
	RunID string
}

// Result describes a finished run.
type Result struct {
	RunID     string            `json:"run_id"`
	Algorithm core.Algorithm    `json:"algorithm"`
	Status    runtime.RunStatus `json:"status"`
	Values    []int             `json:"values,omitempty"`
	Index     int               `json:"index"`
	Found     bool              `json:"found"`
	Path      []core.Pos        `json:"path,omitempty"`
	Stats     runtime.Stats     `json:"stats"`
	Elapsed   time.Duration     `json:"elapsed"`
	Error     string            `json:"error,omitempty"`
}

// Controller owns the board state and runs one algorithm at a time over it.
// While a run is active, every mutation control is refused and a second
// start is ignored.
type Controller struct {
	mu sync.Mutex

	state     State
	values    []int
	grid      *core.Grid
	target    int
	highlight runtime.Highlight
	line      int
	sorted    bool
	last      *Result
	userID    string

	cancel context.CancelCauseFunc
	done   chan struct{}

	speed      *runtime.Speed
	ticker     runtime.Ticker
	pathTicker runtime.Ticker
	sinks      runtime.Sinks
	handler    runtime.EventHandler
	bus        runtime.EventPublisher
	decorate   runtime.EventEmitterDecorator
	sound      *sound.Sink
	activity   activity.Logger
	rng        *rand.Rand
	logger     *slog.Logger
	clock      func() time.Time
}

// NewController creates an idle controller.
func NewController(cfg Config) (*Controller, error) {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	values := slices.Clone(cfg.Values)
	if values == nil {
		size := cfg.Size
		if size <= 0 {
			size = core.DefaultSortSize
		}
		values = core.GenerateSequence(rng, size)
	}

	grid := cfg.Grid
	if grid == nil {
		rows, cols := cfg.Rows, cfg.Cols
		if rows <= 0 {
			rows = core.DefaultRows
		}
		if cols <= 0 {
			cols = core.DefaultCols
		}
		g, err := core.NewGrid(rows, cols)
		if err != nil {
			return nil, err
		}
		grid = g
	} else {
		if err := grid.Validate(); err != nil {
			return nil, err
		}
		grid = grid.Clone()
	}

	delay := cfg.Speed
	if delay == 0 {
		delay = DefaultSortDelay
	}
	ticker := cfg.Ticker
	var speed *runtime.Speed
	if st, ok := ticker.(speedTicker); ok && st.Speed() != nil {
		speed = st.Speed()
		if cfg.Speed != 0 {
			speed.Set(cfg.Speed)
		}
	} else {
		speed = runtime.NewSpeed(delay)
	}
	if ticker == nil {
		ticker = runtime.NewDelayTicker(speed)
	}
	pathTicker := cfg.PathTicker
	if pathTicker == nil {
		pathTicker = runtime.NewFixedTicker(DefaultTraceDelay)
	}

	act := cfg.Activity
	if act == nil {
		act = activity.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Controller{
		state:      Idle,
		values:     values,
		grid:       grid,
		target:     cfg.Target,
		highlight:  runtime.NoHighlight(),
		line:       -1,
		userID:     cfg.UserID,
		speed:      speed,
		ticker:     ticker,
		pathTicker: pathTicker,
		sinks:      cfg.Sinks,
		handler:    cfg.EventHandler,
		bus:        cfg.EventBus,
		decorate:   cfg.EmitterDecorator,
		sound:      cfg.Sound,
		activity:   act,
		rng:        rng,
		logger:     logger,
		clock:      clock,
	}, nil
}

// run is the state of one active run, owned by the goroutine executing it.
type run struct {
	ctx    context.Context
	id     string
	alg    core.Algorithm
	values []int
	grid   *core.Grid
	target int
	userID string
}

// begin moves the controller to Running. It reports false when a run is
// already active.
func (c *Controller) begin(ctx context.Context, req Request) (*run, bool, error) {
	if !req.Algorithm.Valid() {
		return nil, false, fmt.Errorf("%w: %d", core.ErrUnknownAlgorithm, int(req.Algorithm))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return nil, false, nil
	}

	id := req.RunID
	if id == "" {
		id = uuid.NewString()
	}

	runCtx, cancel := context.WithCancelCause(runtime.ContextWithRunID(ctx, id))
	c.state = Running
	c.cancel = cancel
	c.done = make(chan struct{})

	c.highlight = runtime.NoHighlight()
	c.line = -1
	c.sorted = false
	c.grid.ClearPath()

	return &run{
		ctx:    runCtx,
		id:     id,
		alg:    req.Algorithm,
		values: slices.Clone(c.values),
		grid:   c.grid.Clone(),
		target: c.target,
		userID: c.userID,
	}, true, nil
}

// Run executes one algorithm and blocks until it finishes. The bool is false
// when another run was already active; in that case nothing happens.
//
// A canceled run returns an error wrapping runtime.ErrRunCanceled together
// with its Result.
func (c *Controller) Run(ctx context.Context, req Request) (Result, bool, error) {
	r, ok, err := c.begin(ctx, req)
	if err != nil || !ok {
		return Result{}, false, err
	}
	res, err := c.execute(r)
	return res, true, err
}

// Start launches a run in the background and reports whether it started.
// Use Wait to block until it finishes and LastResult to read the outcome.
func (c *Controller) Start(ctx context.Context, req Request) bool {
	r, ok, err := c.begin(ctx, req)
	if err != nil {
		c.logger.Warn("run not started", "algorithm", req.Algorithm.String(), "error", err)
		return false
	}
	if !ok {
		return false
	}
	go func() {
		_, _ = c.execute(r)
	}()
	return true
}

// Wait blocks until the active run, if any, has finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Cancel stops the active run at its next tick. It reports whether a run
// was active.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return false
	}
	c.state = Canceling
	c.cancel(errStopped)
	return true
}

func (c *Controller) emitter() runtime.EventEmitter {
	handler, bus := c.handler, c.bus
	var emit runtime.EventEmitter = func(e runtime.Event) {
		if handler != nil {
			handler(e)
		}
		if bus != nil {
			bus.Publish(e)
		}
	}
	emit = runtime.Sequencer()(emit)
	if c.decorate != nil {
		emit = c.decorate(emit)
	}
	return emit
}

// stateSinks keep the controller's snapshots current while a run mutates
// its working copies.
func (c *Controller) stateSinks() runtime.Sinks {
	return runtime.Sinks{
		Sequence: func(values []int) {
			c.mu.Lock()
			c.values = slices.Clone(values)
			c.mu.Unlock()
		},
		Grid: func(g *core.Grid) {
			c.mu.Lock()
			c.grid = g.Clone()
			c.mu.Unlock()
		},
		Highlight: func(h runtime.Highlight) {
			c.mu.Lock()
			c.highlight = h
			c.mu.Unlock()
		},
		Line: func(line int) {
			c.mu.Lock()
			c.line = line
			c.mu.Unlock()
		},
		Sound: func(cue core.Cue) {
			if c.sound != nil {
				c.sound.Play(cue)
			}
		},
	}
}

func (c *Controller) execute(r *run) (res Result, err error) {
	alg := r.alg
	res = Result{RunID: r.id, Algorithm: alg, Index: algorithms.NotFound}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrRunPanicked, p)
			res.Status = runtime.StatusFailed
			res.Found = false
			res.Error = err.Error()
			c.logger.Error("run panicked", "run_id", r.id, "algorithm", alg.String(), "panic", p)
		}
		c.finish(r, res)
	}()

	if r.userID != "" {
		c.activity.Log(r.ctx, activity.NewEntry(r.userID, alg))
	}

	sinks := c.stateSinks().Merge(c.sinks)
	if sinks.Highlight != nil {
		sinks.Highlight(runtime.NoHighlight())
	}
	if sinks.Line != nil {
		sinks.Line(-1)
	}
	if alg.Category() == core.CategoryPathfinding && sinks.Grid != nil {
		sinks.Grid(r.grid.Clone())
	}

	s := runtime.NewStepper(r.ctx, runtime.StepperConfig{
		RunID:      r.id,
		Algorithm:  alg,
		Emit:       c.emitter(),
		Sinks:      sinks,
		Ticker:     c.ticker,
		PathTicker: c.pathTicker,
		Clock:      c.clock,
	})

	started := c.clock()
	startPayload := map[string]any{"category": alg.Category().String()}
	if alg.Category() == core.CategorySearching {
		startPayload["target"] = r.target
	}
	s.Emit(runtime.EventRunStarted, startPayload)

	switch alg {
	case core.BubbleSort:
		res.Values, err = algorithms.BubbleSort(r.ctx, r.values, s)
	case core.InsertionSort:
		res.Values, err = algorithms.InsertionSort(r.ctx, r.values, s)
	case core.SelectionSort:
		res.Values, err = algorithms.SelectionSort(r.ctx, r.values, s)
	case core.MergeSort:
		res.Values, err = algorithms.MergeSort(r.ctx, r.values, s)
	case core.QuickSort:
		res.Values, err = algorithms.QuickSort(r.ctx, r.values, s)
	case core.LinearSearch:
		res.Index, err = algorithms.LinearSearch(r.ctx, r.values, r.target, s)
	case core.BinarySearch:
		slices.Sort(r.values)
		s.RenderSequence(r.values)
		res.Index, err = algorithms.BinarySearch(r.ctx, r.values, r.target, s)
	case core.BFS:
		res.Found, res.Path, err = pathOutcome(algorithms.BFS(r.ctx, r.grid, s))
	case core.DFS:
		res.Found, res.Path, err = pathOutcome(algorithms.DFS(r.ctx, r.grid, s))
	case core.Dijkstra:
		res.Found, res.Path, err = pathOutcome(algorithms.Dijkstra(r.ctx, r.grid, s))
	case core.AStar:
		res.Found, res.Path, err = pathOutcome(algorithms.AStar(r.ctx, r.grid, s))
	}

	switch alg.Category() {
	case core.CategorySorting:
		res.Found = err == nil
		res.Values = slices.Clone(r.values)
	case core.CategorySearching:
		res.Found = res.Index >= 0
		res.Values = slices.Clone(r.values)
	}

	switch {
	case err == nil && res.Found:
		res.Status = runtime.StatusCompleted
		s.Cue(core.CueDone)
	case err == nil:
		res.Status = runtime.StatusNotFound
		s.Cue(core.CueFail)
	case errors.Is(err, runtime.ErrRunCanceled):
		res.Status = runtime.StatusCanceled
		if alg.Category() == core.CategoryPathfinding {
			r.grid.ClearPath()
			if sinks.Grid != nil {
				sinks.Grid(r.grid.Clone())
			}
		}
	default:
		res.Status = runtime.StatusFailed
		s.Cue(core.CueFail)
	}
	if err != nil {
		res.Error = err.Error()
	}

	s.ClearHighlight()
	s.ClearLine()

	res.Stats = s.Stats()
	res.Elapsed = c.clock().Sub(started)

	payload := map[string]any{
		"status": res.Status,
		"found":  res.Found,
		"stats":  res.Stats,
	}
	if alg.Category() == core.CategorySearching {
		payload["index"] = res.Index
	}
	if len(res.Path) > 0 {
		payload["path_length"] = len(res.Path)
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}
	s.Emit(runtime.EventRunFinished, payload)

	if res.Status == runtime.StatusFailed {
		c.logger.Error("run failed", "run_id", r.id, "algorithm", alg.String(), "error", err)
	} else {
		c.logger.Debug("run finished", "run_id", r.id, "algorithm", alg.String(), "status", string(res.Status), "elapsed", res.Elapsed)
	}

	return res, err
}

// finish stores the outcome and returns the controller to Idle. It runs
// even when the run panicked.
func (c *Controller) finish(r *run, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = r.values
	c.grid = r.grid
	c.sorted = r.alg.Category() == core.CategorySorting && res.Status == runtime.StatusCompleted
	last := res
	c.last = &last
	c.highlight = runtime.NoHighlight()
	c.line = -1
	c.state = Idle
	c.cancel(nil)
	close(c.done)
}

func pathOutcome(pr algorithms.PathResult, err error) (bool, []core.Pos, error) {
	return pr.Found, pr.Path, err
}

// whenIdle applies fn if no run is active and reports whether it did and
// whether fn changed anything.
func (c *Controller) whenIdle(fn func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return false
	}
	return fn()
}

// SetSequence replaces the sequence.
func (c *Controller) SetSequence(values []int) bool {
	return c.whenIdle(func() bool {
		c.values = slices.Clone(values)
		c.sorted = false
		c.highlight = runtime.NoHighlight()
		return true
	})
}

// Regenerate replaces the sequence with n random values. n <= 0 keeps the
// current length.
func (c *Controller) Regenerate(n int) bool {
	return c.whenIdle(func() bool {
		if n <= 0 {
			n = len(c.values)
		}
		c.values = core.GenerateSequence(c.rng, n)
		c.sorted = false
		c.highlight = runtime.NoHighlight()
		return true
	})
}

// RegenerateSorted replaces the sequence with n ascending random values.
func (c *Controller) RegenerateSorted(n int) bool {
	return c.whenIdle(func() bool {
		if n <= 0 {
			n = len(c.values)
		}
		c.values = core.GenerateSortedSequence(c.rng, n)
		c.sorted = false
		c.highlight = runtime.NoHighlight()
		return true
	})
}

// SetTarget sets the value searched for.
func (c *Controller) SetTarget(target int) bool {
	return c.whenIdle(func() bool {
		c.target = target
		return true
	})
}

// ToggleWall flips the wall flag of p. Endpoints cannot become walls.
func (c *Controller) ToggleWall(p core.Pos) bool {
	return c.whenIdle(func() bool { return c.grid.ToggleWall(p) })
}

// SetWall sets the wall flag of p, as a drag-paint does.
func (c *Controller) SetWall(p core.Pos, wall bool) bool {
	return c.whenIdle(func() bool { return c.grid.SetWall(p, wall) })
}

// MoveStart moves the start cell to p.
func (c *Controller) MoveStart(p core.Pos) bool {
	return c.whenIdle(func() bool { return c.grid.MoveStart(p) })
}

// MoveEnd moves the end cell to p.
func (c *Controller) MoveEnd(p core.Pos) bool {
	return c.whenIdle(func() bool { return c.grid.MoveEnd(p) })
}

// ClearWalls removes every wall.
func (c *Controller) ClearWalls() bool {
	return c.whenIdle(func() bool {
		c.grid.ClearWalls()
		return true
	})
}

// ClearPath removes visited and path marks.
func (c *Controller) ClearPath() bool {
	return c.whenIdle(func() bool {
		c.grid.ClearPath()
		return true
	})
}

// ResetGrid clears walls and marks and restores the default endpoints.
func (c *Controller) ResetGrid() bool {
	return c.whenIdle(func() bool {
		c.grid.Reset()
		return true
	})
}

// SetSpeed changes the step delay. It takes effect at the next tick, also
// during a run.
func (c *Controller) SetSpeed(d time.Duration) {
	c.speed.Set(d)
}

// Speed returns the current step delay.
func (c *Controller) Speed() time.Duration {
	return c.speed.Delay()
}

type speedTicker interface {
	Speed() *runtime.Speed
}

type pauser interface {
	Pause()
	Resume()
	IsPaused() bool
}

// Pause holds the run at its next tick. It reports false when the ticker
// cannot pause.
func (c *Controller) Pause() bool {
	p, ok := c.ticker.(pauser)
	if ok {
		p.Pause()
	}
	return ok
}

// Resume releases a paused run.
func (c *Controller) Resume() bool {
	p, ok := c.ticker.(pauser)
	if ok {
		p.Resume()
	}
	return ok
}

// Paused reports whether the ticker is paused.
func (c *Controller) Paused() bool {
	p, ok := c.ticker.(pauser)
	return ok && p.IsPaused()
}

// SetMuted turns sound cues off or on.
func (c *Controller) SetMuted(muted bool) {
	if c.sound != nil {
		c.sound.SetMuted(muted)
	}
}

// Muted reports whether sound cues are off.
func (c *Controller) Muted() bool {
	return c.sound == nil || c.sound.Muted()
}

// SetUserID sets the account activity is logged for. Empty disables
// logging.
func (c *Controller) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running reports whether a run is active.
func (c *Controller) Running() bool {
	return c.State() != Idle
}

// Sequence returns a copy of the sequence.
func (c *Controller) Sequence() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.values)
}

// Grid returns a copy of the board.
func (c *Controller) Grid() *core.Grid {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.Clone()
}

// Target returns the value searched for.
func (c *Controller) Target() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Highlight returns the current highlight state.
func (c *Controller) Highlight() runtime.Highlight {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highlight.Clone()
}

// Line returns the current pseudocode line, or -1.
func (c *Controller) Line() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.line
}

// Sorted reports whether the last sort completed and the sequence has not
// changed since.
func (c *Controller) Sorted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sorted
}

// LastResult returns the outcome of the most recent run.
func (c *Controller) LastResult() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Result{}, false
	}
	return *c.last, true
}
