package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	algoviz "github.com/petal-labs/algoviz"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/sound"
)

func newTestModel(t *testing.T, alg core.Algorithm, cfg algoviz.Config) (Model, chan runtime.Event) {
	t.Helper()
	events := make(chan runtime.Event, 4096)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	if cfg.Rand == nil {
		cfg.Rand = core.NewRand(7)
	}
	if cfg.PathTicker == nil {
		cfg.PathTicker = &runtime.CountingTicker{}
	}
	cfg.EventHandler = runtime.BlockingChannelEventHandler(events, done)
	ctrl, err := algoviz.NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(func() {
		ctrl.Cancel()
		ctrl.Wait()
	})
	return New(Config{Controller: ctrl, Algorithm: alg, Events: events}), events
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain feeds every queued notification through Update.
func drain(m Model, events chan runtime.Event) Model {
	for {
		select {
		case e := <-events:
			next, _ := m.Update(eventMsg(e))
			m = next.(Model)
		default:
			return m
		}
	}
}

func TestModel_StartRunsToCompletion(t *testing.T) {
	m, events := newTestModel(t, core.BubbleSort, algoviz.Config{
		Values: []int{5, 3, 8, 1, 9, 2},
		Ticker: &runtime.CountingTicker{},
	})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m.ctrl.Wait()
	m = drain(m, events)

	if m.finished != runtime.StatusCompleted {
		t.Fatalf("finished = %q, want completed", m.finished)
	}
	if m.stats.Compares == 0 {
		t.Fatal("stats not recorded from run.finished")
	}
	if !m.ctrl.Sorted() {
		t.Fatal("sequence not marked sorted")
	}

	view := ansi.Strip(m.View())
	for _, want := range []string{"Bubble Sort", "completed", "compares"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_SearchReportsIndex(t *testing.T) {
	m, events := newTestModel(t, core.LinearSearch, algoviz.Config{
		Values: []int{4, 8, 15, 16, 23, 42},
		Target: 16,
		Ticker: &runtime.CountingTicker{},
	})

	m, _ = press(t, m, runes(" "))
	m.ctrl.Wait()
	m = drain(m, events)

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "found at 3") {
		t.Fatalf("view missing found index:\n%s", view)
	}
	if !strings.Contains(view, "target 16") {
		t.Fatalf("view missing target:\n%s", view)
	}
}

func TestModel_SpeedKeys(t *testing.T) {
	m, _ := newTestModel(t, core.BubbleSort, algoviz.Config{Speed: 30 * time.Millisecond})

	m, _ = press(t, m, runes("+"))
	if got := m.ctrl.Speed(); got != 20*time.Millisecond {
		t.Fatalf("after + speed = %v, want 20ms", got)
	}
	m, _ = press(t, m, runes("-"))
	if got := m.ctrl.Speed(); got != 31*time.Millisecond {
		t.Fatalf("after - speed = %v, want 31ms", got)
	}

	m.ctrl.SetSpeed(MinSpeed)
	m, _ = press(t, m, runes("+"))
	if got := m.ctrl.Speed(); got != MinSpeed {
		t.Fatalf("speed = %v, want floor %v", got, MinSpeed)
	}

	m.ctrl.SetSpeed(MaxSpeed)
	_, _ = press(t, m, runes("-"))
	if got := m.ctrl.Speed(); got != MaxSpeed {
		t.Fatalf("speed = %v, want ceiling %v", got, MaxSpeed)
	}
}

func TestModel_PauseAndMute(t *testing.T) {
	m, _ := newTestModel(t, core.BubbleSort, algoviz.Config{
		Sound: sound.NewSink(&sound.Recorder{}),
	})

	m, _ = press(t, m, runes("p"))
	if !m.ctrl.Paused() {
		t.Fatal("p did not pause")
	}
	m, _ = press(t, m, runes("p"))
	if m.ctrl.Paused() {
		t.Fatal("second p did not resume")
	}

	if m.ctrl.Muted() {
		t.Fatal("controller starts muted")
	}
	m, _ = press(t, m, runes("m"))
	if !m.ctrl.Muted() {
		t.Fatal("m did not mute")
	}
	if !strings.Contains(ansi.Strip(m.View()), "muted") {
		t.Fatal("header does not show muted")
	}
}

func TestModel_LockedWhileRunning(t *testing.T) {
	tk := runtime.NewManualTicker(1)
	m, events := newTestModel(t, core.InsertionSort, algoviz.Config{
		Values: []int{3, 2, 1},
		Ticker: tk,
	})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	<-tk.Waiting()

	before := m.ctrl.Sequence()
	m, _ = press(t, m, runes("r"))
	if m.notice == "" {
		t.Fatal("regenerate during a run gave no notice")
	}
	if got := m.ctrl.Sequence(); len(got) != len(before) {
		t.Fatalf("sequence changed during run: %v", got)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.notice != "a run is already active" {
		t.Fatalf("notice = %q", m.notice)
	}

	m, _ = press(t, m, runes("x"))
	m.ctrl.Wait()
	m = drain(m, events)
	if m.finished != runtime.StatusCanceled {
		t.Fatalf("finished = %q, want canceled", m.finished)
	}

	m, _ = press(t, m, runes("x"))
	if m.notice != "no run is active" {
		t.Fatalf("notice = %q", m.notice)
	}
	m, _ = press(t, m, runes("r"))
	if m.notice != "" {
		t.Fatalf("regenerate while idle gave notice %q", m.notice)
	}
}

func TestModel_GridRendering(t *testing.T) {
	m, _ := newTestModel(t, core.BFS, algoviz.Config{Rows: 5, Cols: 12})
	if !m.ctrl.ToggleWall(core.Pos{Row: 0, Col: 0}) {
		t.Fatal("ToggleWall refused")
	}

	rows := strings.Split(ansi.Strip(m.renderGrid()), "\n")
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	if got, want := rows[2], "  S       E "; got != want {
		t.Fatalf("row 2 = %q, want %q", got, want)
	}
	if !strings.HasPrefix(rows[0], "█") {
		t.Fatalf("row 0 = %q, want leading wall", rows[0])
	}
}

func TestModel_GridRunMarksPath(t *testing.T) {
	m, events := newTestModel(t, core.AStar, algoviz.Config{
		Rows:   5,
		Cols:   12,
		Ticker: &runtime.CountingTicker{},
	})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m.ctrl.Wait()
	m = drain(m, events)

	if m.finished != runtime.StatusCompleted {
		t.Fatalf("finished = %q", m.finished)
	}
	if !strings.Contains(ansi.Strip(m.renderGrid()), "•") {
		t.Fatal("grid shows no path cells")
	}

	m, _ = press(t, m, runes("c"))
	if strings.Contains(ansi.Strip(m.renderGrid()), "•") {
		t.Fatal("clear path left path cells")
	}
}

func TestModel_ListingMarksCurrentLine(t *testing.T) {
	m, _ := newTestModel(t, core.BinarySearch, algoviz.Config{})
	listing := ansi.Strip(m.renderListing())
	for _, line := range strings.Split(listing, "\n") {
		if strings.HasPrefix(line, "> ") {
			t.Fatalf("idle listing marks a line:\n%s", listing)
		}
	}
	if got := strings.Count(listing, "\n") + 1; got != len(core.BinarySearch.Pseudocode()) {
		t.Fatalf("listing has %d lines", got)
	}
}

func TestModel_HelpToggle(t *testing.T) {
	m, _ := newTestModel(t, core.BubbleSort, algoviz.Config{})
	m, _ = press(t, m, runes("?"))
	if !m.showHelp || !m.help.ShowAll {
		t.Fatal("? did not show full help")
	}
	m, _ = press(t, m, runes("?"))
	if m.showHelp {
		t.Fatal("second ? did not hide help")
	}
}

func TestModel_Quit(t *testing.T) {
	m, _ := newTestModel(t, core.BubbleSort, algoviz.Config{})
	m, cmd := press(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
	if m.View() != "" {
		t.Fatal("view not empty after quit")
	}
}

func TestModel_WindowSize(t *testing.T) {
	m, _ := newTestModel(t, core.BubbleSort, algoviz.Config{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	if m.width != 120 || m.help.Width != 120 {
		t.Fatalf("width = %d help = %d", m.width, m.help.Width)
	}
}

func TestNew_DefaultsContext(t *testing.T) {
	m := New(Config{Controller: nil, Algorithm: core.BubbleSort})
	if m.ctx == nil {
		t.Fatal("nil context")
	}
	if m.Init() != nil {
		t.Fatal("Init without events should return nil")
	}
}
