package algoviz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/petal-labs/algoviz/activity"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/sound"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type eventLog struct {
	mu     sync.Mutex
	events []runtime.Event
}

func (l *eventLog) record(e runtime.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []runtime.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

func newTestController(t *testing.T, cfg Config) (*Controller, *eventLog, *sound.Recorder) {
	t.Helper()
	log := &eventLog{}
	rec := &sound.Recorder{}
	if cfg.Ticker == nil {
		cfg.Ticker = &runtime.CountingTicker{}
	}
	if cfg.PathTicker == nil {
		cfg.PathTicker = &runtime.CountingTicker{}
	}
	if cfg.Rand == nil {
		cfg.Rand = core.NewRand(1)
	}
	cfg.Sound = sound.NewSink(rec)
	cfg.EventHandler = log.record
	c, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, log, rec
}

func lastCue(rec *sound.Recorder) core.Cue {
	cues := rec.Cues()
	if len(cues) == 0 {
		return core.CueNone
	}
	return cues[len(cues)-1]
}

func TestController_SortCompletes(t *testing.T) {
	c, log, rec := newTestController(t, Config{Values: []int{5, 2, 9, 1, 7}})

	res, started, err := c.Run(context.Background(), Request{Algorithm: core.QuickSort, RunID: "run-1"})
	if err != nil || !started {
		t.Fatalf("Run: started=%v err=%v", started, err)
	}
	if res.Status != runtime.StatusCompleted || !res.Found {
		t.Fatalf("result = %+v", res)
	}
	if diff := cmp.Diff([]int{1, 2, 5, 7, 9}, res.Values); diff != "" {
		t.Fatalf("values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 5, 7, 9}, c.Sequence()); diff != "" {
		t.Fatalf("sequence (-want +got):\n%s", diff)
	}
	if !c.Sorted() {
		t.Fatal("Sorted() = false after completed sort")
	}
	if got := lastCue(rec); got != core.CueDone {
		t.Fatalf("last cue = %q, want done", got)
	}
	if !c.Highlight().Empty() || c.Line() != -1 {
		t.Fatalf("markers not cleared: highlight=%+v line=%d", c.Highlight(), c.Line())
	}
	if c.State() != Idle {
		t.Fatalf("state = %v, want idle", c.State())
	}

	events := log.all()
	if events[0].Kind != runtime.EventRunStarted || events[len(events)-1].Kind != runtime.EventRunFinished {
		t.Fatalf("first=%s last=%s", events[0].Kind, events[len(events)-1].Kind)
	}
	if got := events[len(events)-1].Status(); got != runtime.StatusCompleted {
		t.Fatalf("finished status = %q", got)
	}
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Fatalf("event %d seq = %d", i, e.Seq)
		}
		if e.RunID != "run-1" {
			t.Fatalf("event %d run id = %q", i, e.RunID)
		}
	}

	last, ok := c.LastResult()
	if !ok || last.RunID != "run-1" {
		t.Fatalf("LastResult = %+v, %v", last, ok)
	}
}

func TestController_SearchOutcomes(t *testing.T) {
	t.Run("linear not found", func(t *testing.T) {
		c, _, rec := newTestController(t, Config{Values: []int{5, 3, 9, 1}, Target: 7})
		res, _, err := c.Run(context.Background(), Request{Algorithm: core.LinearSearch})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Status != runtime.StatusNotFound || res.Found || res.Index != -1 {
			t.Fatalf("result = %+v", res)
		}
		if got := lastCue(rec); got != core.CueFail {
			t.Fatalf("last cue = %q, want fail", got)
		}
		if c.Sorted() {
			t.Fatal("search marked the sequence sorted")
		}
	})

	t.Run("binary sorts first", func(t *testing.T) {
		c, _, rec := newTestController(t, Config{Values: []int{9, 1, 5, 3}, Target: 5})
		res, _, err := c.Run(context.Background(), Request{Algorithm: core.BinarySearch})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Status != runtime.StatusCompleted || res.Index != 2 {
			t.Fatalf("result = %+v", res)
		}
		if diff := cmp.Diff([]int{1, 3, 5, 9}, c.Sequence()); diff != "" {
			t.Fatalf("sequence (-want +got):\n%s", diff)
		}
		if got := lastCue(rec); got != core.CueDone {
			t.Fatalf("last cue = %q, want done", got)
		}
	})
}

func TestController_PathfindingClearsPreviousRun(t *testing.T) {
	g := core.MustGrid(3, 3, core.Pos{Row: 0, Col: 0}, core.Pos{Row: 0, Col: 2})
	c, _, _ := newTestController(t, Config{Grid: g})

	first, _, err := c.Run(context.Background(), Request{Algorithm: core.BFS})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !first.Found || len(first.Path) != 2 {
		t.Fatalf("first = %+v", first)
	}
	visited := c.Grid().VisitedCount()

	second, _, err := c.Run(context.Background(), Request{Algorithm: core.BFS})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := c.Grid().VisitedCount(); got != visited {
		t.Fatalf("visited after second run = %d, want %d", got, visited)
	}
	if diff := cmp.Diff(first.Path, second.Path); diff != "" {
		t.Fatalf("path changed (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(second.Path, c.Grid().PathCells()); diff != "" {
		t.Fatalf("grid path (-result +grid):\n%s", diff)
	}
}

func TestController_NoPathFails(t *testing.T) {
	g := core.MustGrid(5, 5, core.Pos{Row: 2, Col: 0}, core.Pos{Row: 2, Col: 4})
	for _, p := range []core.Pos{{Row: 1, Col: 4}, {Row: 3, Col: 4}, {Row: 2, Col: 3}} {
		g.SetWall(p, true)
	}
	for _, alg := range core.ByCategory(core.CategoryPathfinding) {
		t.Run(alg.Slug(), func(t *testing.T) {
			c, _, rec := newTestController(t, Config{Grid: g})
			res, _, err := c.Run(context.Background(), Request{Algorithm: alg})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Status != runtime.StatusNotFound || len(res.Path) != 0 {
				t.Fatalf("result = %+v", res)
			}
			if len(c.Grid().PathCells()) != 0 {
				t.Fatal("path cells marked for an unreachable end")
			}
			if got := lastCue(rec); got != core.CueFail {
				t.Fatalf("last cue = %q, want fail", got)
			}
		})
	}
}

func TestController_StartIsNotReentrant(t *testing.T) {
	tk := runtime.NewManualTicker(1)
	c, _, _ := newTestController(t, Config{Values: []int{3, 2, 1}, Ticker: tk})
	ctx := context.Background()

	if !c.Start(ctx, Request{Algorithm: core.BubbleSort}) {
		t.Fatal("first Start refused")
	}
	<-tk.Waiting()

	if c.Start(ctx, Request{Algorithm: core.MergeSort}) {
		t.Fatal("second Start accepted while running")
	}
	if _, started, err := c.Run(ctx, Request{Algorithm: core.MergeSort}); started || err != nil {
		t.Fatalf("Run while running: started=%v err=%v", started, err)
	}
	if !c.Running() {
		t.Fatal("Running() = false during a run")
	}

	refused := map[string]bool{
		"SetSequence": c.SetSequence([]int{1}),
		"Regenerate":  c.Regenerate(5),
		"SetTarget":   c.SetTarget(3),
		"ToggleWall":  c.ToggleWall(core.Pos{Row: 0, Col: 0}),
		"SetWall":     c.SetWall(core.Pos{Row: 0, Col: 0}, true),
		"MoveEnd":     c.MoveEnd(core.Pos{Row: 0, Col: 1}),
		"ClearWalls":  c.ClearWalls(),
		"ClearPath":   c.ClearPath(),
		"ResetGrid":   c.ResetGrid(),
	}
	for name, ok := range refused {
		if ok {
			t.Errorf("%s applied while running", name)
		}
	}

	c.SetSpeed(5 * time.Millisecond)
	if got := c.Speed(); got != 5*time.Millisecond {
		t.Fatalf("Speed() = %v during run", got)
	}

	tk.Release()
	c.Wait()

	if c.State() != Idle {
		t.Fatalf("state = %v after Wait", c.State())
	}
	if diff := cmp.Diff([]int{1, 2, 3}, c.Sequence()); diff != "" {
		t.Fatalf("sequence (-want +got):\n%s", diff)
	}
	if !c.ToggleWall(core.Pos{Row: 0, Col: 0}) {
		t.Fatal("ToggleWall refused while idle")
	}
}

func TestController_Cancel(t *testing.T) {
	tk := runtime.NewManualTicker(1)
	c, log, rec := newTestController(t, Config{Values: []int{3, 2, 1}, Ticker: tk})

	if !c.Start(context.Background(), Request{Algorithm: core.InsertionSort}) {
		t.Fatal("Start refused")
	}
	<-tk.Waiting()
	if !c.Cancel() {
		t.Fatal("Cancel reported no active run")
	}
	c.Wait()

	res, ok := c.LastResult()
	if !ok || res.Status != runtime.StatusCanceled {
		t.Fatalf("LastResult = %+v, %v", res, ok)
	}
	for _, cue := range rec.Cues() {
		if cue == core.CueDone || cue == core.CueFail {
			t.Fatalf("canceled run played %q", cue)
		}
	}
	events := log.all()
	if got := events[len(events)-1].Status(); got != runtime.StatusCanceled {
		t.Fatalf("finished status = %q", got)
	}
	if c.Sorted() {
		t.Fatal("canceled sort marked sorted")
	}
	if c.Cancel() {
		t.Fatal("Cancel succeeded while idle")
	}
}

func TestController_RunWithCanceledContext(t *testing.T) {
	c, _, _ := newTestController(t, Config{Values: []int{2, 1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, started, err := c.Run(ctx, Request{Algorithm: core.BubbleSort})
	if !started {
		t.Fatal("Run not started")
	}
	if !errors.Is(err, runtime.ErrRunCanceled) {
		t.Fatalf("err = %v, want ErrRunCanceled", err)
	}
	if res.Status != runtime.StatusCanceled {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestController_CancelWhilePaused(t *testing.T) {
	tk := runtime.NewDelayTicker(runtime.NewSpeed(time.Millisecond))
	c, _, _ := newTestController(t, Config{Values: []int{3, 2, 1}, Ticker: tk})

	if !c.Pause() || !c.Paused() {
		t.Fatal("Pause not supported by the delay ticker")
	}
	if !c.Start(context.Background(), Request{Algorithm: core.SelectionSort}) {
		t.Fatal("Start refused")
	}
	c.Cancel()
	c.Wait()

	if res, _ := c.LastResult(); res.Status != runtime.StatusCanceled {
		t.Fatalf("status = %q", res.Status)
	}
	if !c.Resume() || c.Paused() {
		t.Fatal("Resume failed")
	}
}

func TestController_LogsActivity(t *testing.T) {
	var mu sync.Mutex
	var entries []activity.Entry
	logger := activity.LoggerFunc(func(_ context.Context, e activity.Entry) {
		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
	})

	c, _, _ := newTestController(t, Config{Values: []int{1, 2}, Target: 2, Activity: logger})
	if _, _, err := c.Run(context.Background(), Request{Algorithm: core.LinearSearch}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.SetUserID("u1")
	if _, _, err := c.Run(context.Background(), Request{Algorithm: core.LinearSearch}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].UserID != "u1" || entries[0].Category != core.CategorySearching || entries[0].Algorithm != core.LinearSearch {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func TestController_UnknownAlgorithm(t *testing.T) {
	c, _, _ := newTestController(t, Config{})
	if _, started, err := c.Run(context.Background(), Request{}); started || !errors.Is(err, core.ErrUnknownAlgorithm) {
		t.Fatalf("started=%v err=%v", started, err)
	}
	if c.Start(context.Background(), Request{Algorithm: core.Algorithm(99)}) {
		t.Fatal("Start accepted an unknown algorithm")
	}
}

func TestController_MutationsWhileIdle(t *testing.T) {
	c, _, _ := newTestController(t, Config{Rows: 5, Cols: 6})
	g := c.Grid()

	if c.ToggleWall(g.Start()) {
		t.Fatal("start cell became a wall")
	}
	if !c.SetWall(core.Pos{Row: 0, Col: 0}, true) || !c.Grid().IsWall(core.Pos{Row: 0, Col: 0}) {
		t.Fatal("SetWall failed")
	}
	if c.MoveStart(core.Pos{Row: 0, Col: 0}) {
		t.Fatal("start moved onto a wall")
	}
	if !c.ClearWalls() || len(c.Grid().Walls()) != 0 {
		t.Fatal("ClearWalls failed")
	}
	if !c.Regenerate(12) || len(c.Sequence()) != 12 {
		t.Fatalf("Regenerate: len = %d", len(c.Sequence()))
	}
	if !c.RegenerateSorted(0) || !core.IsSorted(c.Sequence()) || len(c.Sequence()) != 12 {
		t.Fatal("RegenerateSorted failed")
	}
	if !c.SetTarget(42) || c.Target() != 42 {
		t.Fatal("SetTarget failed")
	}
}

func TestController_MuteIsLive(t *testing.T) {
	c, _, rec := newTestController(t, Config{Values: []int{2, 1}})
	c.SetMuted(true)
	if !c.Muted() {
		t.Fatal("Muted() = false")
	}
	if _, _, err := c.Run(context.Background(), Request{Algorithm: core.BubbleSort}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Cues()) != 0 {
		t.Fatalf("muted run played %v", rec.Cues())
	}
}

func TestDefaultDelay(t *testing.T) {
	tests := map[core.Category]time.Duration{
		core.CategorySorting:     50 * time.Millisecond,
		core.CategorySearching:   40 * time.Millisecond,
		core.CategoryPathfinding: 18 * time.Millisecond,
	}
	for cat, want := range tests {
		if got := DefaultDelay(cat); got != want {
			t.Errorf("DefaultDelay(%s) = %v, want %v", cat, got, want)
		}
	}
}

func TestController_SpeedDrivesSuppliedDelayTicker(t *testing.T) {
	tk := runtime.NewDelayTicker(runtime.NewSpeed(5 * time.Second))
	c, _, _ := newTestController(t, Config{Values: []int{3, 2, 1}, Ticker: tk})

	if got := c.Speed(); got != 5*time.Second {
		t.Fatalf("Speed = %v, want the ticker's 5s", got)
	}
	c.SetSpeed(time.Millisecond)
	if got := tk.Speed().Delay(); got != time.Millisecond {
		t.Fatalf("ticker delay = %v, want 1ms", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, _, err := c.Run(ctx, Request{Algorithm: core.BubbleSort})
	if err != nil || res.Status != runtime.StatusCompleted {
		t.Fatalf("Run: status=%q err=%v", res.Status, err)
	}
}

func TestController_ConfigSpeedOverridesTickerSpeed(t *testing.T) {
	tk := runtime.NewDelayTicker(runtime.NewSpeed(5 * time.Second))
	c, _, _ := newTestController(t, Config{Ticker: tk, Speed: 2 * time.Millisecond})
	if got := tk.Speed().Delay(); got != 2*time.Millisecond || c.Speed() != got {
		t.Fatalf("ticker delay = %v, controller speed = %v, want 2ms", got, c.Speed())
	}
}

func TestController_PanickingSinkEndsRunAsFailed(t *testing.T) {
	c, _, _ := newTestController(t, Config{
		Values: []int{2, 1},
		Sinks: runtime.Sinks{
			Sequence: func([]int) { panic("render exploded") },
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	res, started, err := c.Run(context.Background(), Request{Algorithm: core.BubbleSort})
	if !started {
		t.Fatal("Run not started")
	}
	if !errors.Is(err, ErrRunPanicked) {
		t.Fatalf("err = %v, want ErrRunPanicked", err)
	}
	if res.Status != runtime.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if c.State() != Idle {
		t.Fatalf("state = %s, want idle", c.State())
	}
	c.Wait()
	if last, ok := c.LastResult(); !ok || last.Status != runtime.StatusFailed {
		t.Fatalf("LastResult = %+v, %v", last, ok)
	}
	if !c.SetSequence([]int{1}) {
		t.Fatal("mutations still refused after the failed run")
	}
}

func TestController_CancelClearsPartialSearch(t *testing.T) {
	tk := runtime.NewManualTicker(1)
	c, log, _ := newTestController(t, Config{Rows: 5, Cols: 12, Ticker: tk})

	if !c.Start(context.Background(), Request{Algorithm: core.BFS}) {
		t.Fatal("Start refused")
	}
	for i := 0; ; i++ {
		<-tk.Waiting()
		if c.Grid().VisitedCount() > 0 {
			break
		}
		if i > 1000 {
			t.Fatal("search never visited a cell")
		}
		tk.Advance()
	}
	c.Cancel()
	c.Wait()

	if n := c.Grid().VisitedCount(); n != 0 {
		t.Fatalf("visited after cancel = %d, want 0", n)
	}
	if res, _ := c.LastResult(); res.Status != runtime.StatusCanceled || len(res.Path) != 0 {
		t.Fatalf("LastResult = %+v", res)
	}
	events := log.all()
	if got := events[len(events)-1].Kind; got != runtime.EventRunFinished {
		t.Fatalf("last event = %q", got)
	}
}
