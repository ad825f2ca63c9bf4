// Package tui is the terminal host for the visualizer. The Model renders
// the controller's board with lipgloss: bars for sorting and searching, the
// grid for pathfinding, and the pseudocode listing with the current line
// marked. Step notifications arrive on a channel filled by the controller's
// background run and each one triggers a redraw from the controller's
// snapshots. The Model is only used from the bubbletea event loop.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	algoviz "github.com/petal-labs/algoviz"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

// Speed bounds for the +/- keys.
const (
	MinSpeed = time.Millisecond
	MaxSpeed = 5 * time.Second
)

const (
	barHeight    = 14
	defaultWidth = 80
)

// eventMsg carries one step notification into the update loop.
type eventMsg runtime.Event

// eventsClosedMsg reports that the event channel was closed.
type eventsClosedMsg struct{}

// Config configures a Model.
type Config struct {
	// Controller owns the board. Required.
	Controller *algoviz.Controller

	// Algorithm is started by the start key.
	Algorithm core.Algorithm

	// Events receives the controller's step notifications. The controller
	// should post to it with runtime.BlockingChannelEventHandler.
	Events <-chan runtime.Event

	// Context bounds every run started from the keyboard.
	Context context.Context

	// Size is the sequence length used when regenerating. Zero keeps the
	// current length.
	Size int

	// AutoStart starts the run as soon as the program starts.
	AutoStart bool
}

// Model is the bubbletea model of one board.
type Model struct {
	ctrl      *algoviz.Controller
	alg       core.Algorithm
	events    <-chan runtime.Event
	ctx       context.Context
	size      int
	autoStart bool

	keys   keyMap
	help   help.Model
	styles styles

	width  int
	height int

	runID    string
	finished runtime.RunStatus
	stats    runtime.Stats
	notice   string
	showHelp bool
	quitting bool
}

// New creates a Model.
func New(cfg Config) Model {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h := help.New()
	return Model{
		ctrl:      cfg.Controller,
		alg:       cfg.Algorithm,
		events:    cfg.Events,
		ctx:       ctx,
		size:      cfg.Size,
		autoStart: cfg.AutoStart,
		keys:      defaultKeyMap(),
		help:      h,
		styles:    defaultStyles(),
		width:     defaultWidth,
	}
}

// waitForEvent reads the next notification.
func waitForEvent(ch <-chan runtime.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.autoStart {
		return tea.Batch(waitForEvent(m.events), func() tea.Msg {
			return tea.KeyMsg{Type: tea.KeyEnter}
		})
	}
	return waitForEvent(m.events)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case eventMsg:
		m.observe(runtime.Event(msg))
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) observe(e runtime.Event) {
	switch e.Kind {
	case runtime.EventRunStarted:
		m.runID = e.RunID
		m.finished = ""
		m.stats = runtime.Stats{}
		m.notice = ""
	case runtime.EventRunFinished:
		m.finished = e.Status()
		if st, ok := e.Payload["stats"].(runtime.Stats); ok {
			m.stats = st
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.ctrl
	m.notice = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		c.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Start):
		if !c.Start(m.ctx, algoviz.Request{Algorithm: m.alg}) {
			m.notice = "a run is already active"
		}

	case key.Matches(msg, m.keys.Faster):
		c.SetSpeed(max(c.Speed()*2/3, MinSpeed))

	case key.Matches(msg, m.keys.Slower):
		c.SetSpeed(min(c.Speed()*3/2+time.Millisecond, MaxSpeed))

	case key.Matches(msg, m.keys.Pause):
		if c.Paused() {
			c.Resume()
		} else {
			c.Pause()
		}

	case key.Matches(msg, m.keys.Mute):
		c.SetMuted(!c.Muted())

	case key.Matches(msg, m.keys.Cancel):
		if !c.Cancel() {
			m.notice = "no run is active"
		}

	case key.Matches(msg, m.keys.Reset):
		m.lockedUnless(m.regenerate())

	case key.Matches(msg, m.keys.ClearPath):
		m.lockedUnless(c.ClearPath())

	case key.Matches(msg, m.keys.ClearWalls):
		m.lockedUnless(c.ClearWalls())
	}
	return m, nil
}

func (m *Model) lockedUnless(ok bool) {
	if !ok {
		m.notice = "the board cannot change while a run is active"
	}
}

func (m *Model) regenerate() bool {
	switch {
	case m.alg.Category() == core.CategoryPathfinding:
		return m.ctrl.ResetGrid()
	case m.alg == core.BinarySearch:
		return m.ctrl.RegenerateSorted(m.size)
	default:
		return m.ctrl.Regenerate(m.size)
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	var board string
	if m.alg.Category() == core.CategoryPathfinding {
		board = m.renderGrid()
	} else {
		board = m.renderBars()
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Board.Render(board),
		m.styles.Listing.Render(m.renderListing()),
	))
	b.WriteString("\n")
	b.WriteString(m.renderResult())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.styles.Error.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderHeader() string {
	c := m.ctrl
	parts := []string{
		c.State().String(),
		fmt.Sprintf("%s/step", c.Speed()),
	}
	if m.alg.Category() == core.CategorySearching {
		parts = append(parts, fmt.Sprintf("target %d", c.Target()))
	}
	if c.Paused() {
		parts = append(parts, "paused")
	}
	if c.Muted() {
		parts = append(parts, "muted")
	}
	return m.styles.Title.Render(m.alg.String()) + "  " +
		m.styles.Status.Render(strings.Join(parts, " · "))
}

func (m Model) renderBars() string {
	c := m.ctrl
	values := c.Sequence()
	if len(values) == 0 {
		return m.styles.Status.Render("(empty sequence)")
	}
	h := c.Highlight()
	sorted := c.Sorted()

	found := -1
	if res, ok := c.LastResult(); ok && res.Found && res.Algorithm.Category() == core.CategorySearching && m.finished != "" {
		found = res.Index
	}

	glyph := "█"
	sep := " "
	if len(values)*2 > max(m.width-30, 20) {
		sep = ""
	}

	top := slices.Max(values)
	if top <= 0 {
		top = 1
	}
	styleAt := func(i int) lipgloss.Style {
		switch {
		case i == h.Pivot:
			return m.styles.BarPivot
		case slices.Contains(h.Indices, i):
			return m.styles.BarHot
		case i == found || sorted:
			return m.styles.BarDone
		}
		return m.styles.Bar
	}

	rows := make([]string, 0, barHeight)
	for level := barHeight; level >= 1; level-- {
		var row strings.Builder
		for i, v := range values {
			if i > 0 {
				row.WriteString(sep)
			}
			if v*barHeight >= level*top || (level == 1 && v > 0) {
				row.WriteString(styleAt(i).Render(glyph))
			} else {
				row.WriteString(" ")
			}
		}
		rows = append(rows, row.String())
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderGrid() string {
	g := m.ctrl.Grid()
	hot := m.ctrl.Highlight().Cells

	rows := make([]string, 0, g.Rows())
	for r := 0; r < g.Rows(); r++ {
		var row strings.Builder
		for col := 0; col < g.Cols(); col++ {
			p := core.Pos{Row: r, Col: col}
			cell := g.At(p)
			switch {
			case p == g.Start():
				row.WriteString(m.styles.Endpoint.Render("S"))
			case p == g.End():
				row.WriteString(m.styles.Endpoint.Render("E"))
			case cell.Wall:
				row.WriteString(m.styles.Wall.Render("█"))
			case slices.Contains(hot, p):
				row.WriteString(m.styles.BarHot.Render("◆"))
			case cell.OnPath:
				row.WriteString(m.styles.Path.Render("•"))
			case cell.Visited:
				row.WriteString(m.styles.Visited.Render("·"))
			default:
				row.WriteString(" ")
			}
		}
		rows = append(rows, row.String())
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderListing() string {
	current := m.ctrl.Line()
	lines := m.alg.Pseudocode()
	out := make([]string, len(lines))
	for i, l := range lines {
		if i == current {
			out[i] = m.styles.LineHot.Render("> " + l)
		} else {
			out[i] = m.styles.Line.Render("  " + l)
		}
	}
	return strings.Join(out, "\n")
}

func (m Model) renderResult() string {
	if m.finished == "" {
		if m.runID != "" && m.ctrl.Running() {
			return m.styles.Status.Render("run " + shortID(m.runID))
		}
		return m.styles.Status.Render("press space to start")
	}

	st := m.stats
	parts := []string{string(m.finished)}
	switch m.alg.Category() {
	case core.CategorySorting:
		parts = append(parts, fmt.Sprintf("%d compares", st.Compares), fmt.Sprintf("%d swaps", st.Swaps))
	case core.CategorySearching:
		parts = append(parts, fmt.Sprintf("%d probes", st.Probes))
	case core.CategoryPathfinding:
		parts = append(parts, fmt.Sprintf("%d visited", st.Visits), fmt.Sprintf("path %d", st.PathCells))
	}
	if res, ok := m.ctrl.LastResult(); ok && res.RunID == m.runID {
		if m.alg.Category() == core.CategorySearching && res.Found {
			parts = append(parts, fmt.Sprintf("found at %d", res.Index))
		}
		parts = append(parts, res.Elapsed.Round(time.Millisecond).String())
	}

	style := m.styles.Status
	if m.finished == runtime.StatusFailed {
		style = m.styles.Error
	}
	return style.Render(strings.Join(parts, " · "))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
