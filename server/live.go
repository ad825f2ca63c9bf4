package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	algoviz "github.com/petal-labs/algoviz"
	"github.com/petal-labs/algoviz/bus"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/sound"
	"github.com/petal-labs/algoviz/sse"
)

const (
	liveWriteWait  = 5 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

var errBoardLocked = errors.New("the board cannot change while a run is active")

// LiveAction is a command sent by a live session client.
type LiveAction struct {
	Action    string    `json:"action"`
	Algorithm string    `json:"algorithm,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	SpeedMs   int       `json:"speed_ms,omitempty"`
	Cell      *core.Pos `json:"cell,omitempty"`
	Size      int       `json:"size,omitempty"`
	Sorted    bool      `json:"sorted,omitempty"`
	Target    *int      `json:"target,omitempty"`
	Muted     *bool     `json:"muted,omitempty"`
}

// LiveMessage is sent to a live session client. Type is one of "event",
// "state", "sound" or "error".
type LiveMessage struct {
	Type  string       `json:"type"`
	Event *sse.Message `json:"event,omitempty"`
	State *LiveState   `json:"state,omitempty"`
	Sound *LiveSound   `json:"sound,omitempty"`
	Error string       `json:"error,omitempty"`
}

// LiveState is a snapshot of a session's board.
type LiveState struct {
	Status    string            `json:"status"`
	Paused    bool              `json:"paused"`
	Muted     bool              `json:"muted"`
	SpeedMs   int64             `json:"speed_ms"`
	Values    []int             `json:"values"`
	Target    int               `json:"target"`
	Sorted    bool              `json:"sorted"`
	Highlight runtime.Highlight `json:"highlight"`
	Line      int               `json:"line"`
	Grid      LiveGrid          `json:"grid"`
	Last      *algoviz.Result   `json:"last,omitempty"`
}

// LiveGrid is the board part of a LiveState.
type LiveGrid struct {
	Rows    int        `json:"rows"`
	Cols    int        `json:"cols"`
	Start   core.Pos   `json:"start"`
	End     core.Pos   `json:"end"`
	Walls   []core.Pos `json:"walls"`
	Visited int        `json:"visited"`
	Path    []core.Pos `json:"path"`
}

// LiveSound asks the client to play a cue.
type LiveSound struct {
	Cue   core.Cue   `json:"cue"`
	Tones []LiveTone `json:"tones"`
}

// LiveTone is a sound.Tone with durations in milliseconds.
type LiveTone struct {
	Frequency  float64        `json:"frequency"`
	DurationMs int64          `json:"duration_ms"`
	Waveform   sound.Waveform `json:"waveform"`
	Volume     float64        `json:"volume"`
	OffsetMs   int64          `json:"offset_ms"`
}

// handleLive upgrades to a websocket and runs an interactive session: one
// controller per connection, driven by LiveAction messages.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("live session upgrade failed", "error", err)
		return
	}

	sess, err := s.newLiveSession(conn)
	if err != nil {
		_ = conn.WriteJSON(LiveMessage{Type: "error", Error: err.Error()})
		_ = conn.Close()
		return
	}
	sess.serve()
}

type liveSession struct {
	s    *Server
	conn *websocket.Conn
	ctrl *algoviz.Controller
	pub  *bus.ThrottledEmitter

	// writeMu serialises writers; gorilla allows one at a time.
	writeMu sync.Mutex
	closed  chan struct{}
	runs    sync.WaitGroup
}

func (s *Server) newLiveSession(conn *websocket.Conn) (*liveSession, error) {
	sess := &liveSession{s: s, conn: conn, closed: make(chan struct{})}
	sess.pub = s.runPublisher()

	cfg := algoviz.Config{
		Size:         s.defaults.Sequence.SortSize,
		Rows:         s.defaults.Grid.Rows,
		Cols:         s.defaults.Grid.Cols,
		Speed:        s.defaults.Speed.Sorting,
		PathTicker:   runtime.NewFixedTicker(s.defaults.Speed.PathTrace),
		EventHandler: sess.handleEvent,
		Sound:        sound.NewSink(sound.PlayerFunc(sess.playSound)),
		Activity:     s.activityLog,
		Logger:       s.logger,
	}
	ctrl, err := algoviz.NewController(s.runConfig(cfg, sess.pub, originLive))
	if err != nil {
		sess.pub.Close()
		return nil, err
	}
	sess.ctrl = ctrl
	return sess, nil
}

func (ls *liveSession) serve() {
	defer ls.close()

	ls.conn.SetReadLimit(ls.s.maxBody)
	_ = ls.conn.SetReadDeadline(time.Now().Add(livePongWait))
	ls.conn.SetPongHandler(func(string) error {
		return ls.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	go ls.ping()

	ls.sendState()
	for {
		var act LiveAction
		if err := ls.conn.ReadJSON(&act); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ls.s.logger.Debug("live session closed", "error", err)
			}
			return
		}
		if err := ls.apply(act); err != nil {
			ls.send(LiveMessage{Type: "error", Error: err.Error()})
			continue
		}
		ls.sendState()
	}
}

func (ls *liveSession) close() {
	close(ls.closed)
	ls.ctrl.Cancel()
	ls.runs.Wait()
	ls.pub.Close()
	_ = ls.conn.Close()
}

func (ls *liveSession) ping() {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ls.closed:
			return
		case <-ticker.C:
			if err := ls.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

func (ls *liveSession) apply(act LiveAction) error {
	c := ls.ctrl
	action := strings.ToLower(strings.TrimSpace(act.Action))
	switch action {
	case "start":
		return ls.start(act)

	case "speed":
		if act.SpeedMs < 1 || act.SpeedMs > maxSpeedMs {
			return fmt.Errorf("speed_ms must be between 1 and %d", maxSpeedMs)
		}
		c.SetSpeed(time.Duration(act.SpeedMs) * time.Millisecond)

	case "pause":
		c.Pause()

	case "resume":
		c.Resume()

	case "cancel":
		if !c.Cancel() {
			return errors.New("no run is active")
		}

	case "mute":
		muted := !c.Muted()
		if act.Muted != nil {
			muted = *act.Muted
		}
		c.SetMuted(muted)

	case "target":
		if act.Target == nil {
			return errors.New("target is required")
		}
		return locked(c.SetTarget(*act.Target))

	case "regenerate":
		if act.Size < 0 || act.Size > maxSequenceSize {
			return fmt.Errorf("size must be between 1 and %d", maxSequenceSize)
		}
		if act.Sorted {
			return locked(c.RegenerateSorted(act.Size))
		}
		return locked(c.Regenerate(act.Size))

	case "toggle_wall", "move_start", "move_end":
		if act.Cell == nil {
			return errors.New("cell is required")
		}
		if c.Running() {
			return errBoardLocked
		}
		var ok bool
		switch action {
		case "toggle_wall":
			ok = c.ToggleWall(*act.Cell)
		case "move_start":
			ok = c.MoveStart(*act.Cell)
		default:
			ok = c.MoveEnd(*act.Cell)
		}
		if !ok {
			return fmt.Errorf("cell (%d,%d) cannot be changed", act.Cell.Row, act.Cell.Col)
		}

	case "clear_path":
		return locked(c.ClearPath())

	case "clear_walls":
		return locked(c.ClearWalls())

	case "reset":
		return locked(c.ResetGrid())

	case "state":

	default:
		return fmt.Errorf("unknown action %q", act.Action)
	}
	return nil
}

func locked(ok bool) error {
	if !ok {
		return errBoardLocked
	}
	return nil
}

func (ls *liveSession) start(act LiveAction) error {
	alg, err := core.ParseAlgorithm(act.Algorithm)
	if err != nil {
		return err
	}
	c := ls.ctrl
	if c.Running() {
		// Starting over an active run is ignored; the caller gets the state.
		return nil
	}
	if act.UserID != "" {
		c.SetUserID(act.UserID)
	}
	if act.SpeedMs > 0 {
		c.SetSpeed(time.Duration(min(act.SpeedMs, maxSpeedMs)) * time.Millisecond)
	}
	if act.Target != nil {
		c.SetTarget(*act.Target)
	}

	runID := newRunID()
	ls.s.markRunActive(runID, c)
	ls.s.runWG.Add(1)
	ls.runs.Add(1)
	if !c.Start(ls.s.runCtx, algoviz.Request{Algorithm: alg, RunID: runID}) {
		ls.s.markRunInactive(runID)
		ls.s.runWG.Done()
		ls.runs.Done()
		return nil
	}

	go func() {
		defer ls.s.runWG.Done()
		defer ls.runs.Done()
		c.Wait()
		ls.s.markRunInactive(runID)
		ls.sendState()
	}()
	return nil
}

func (ls *liveSession) handleEvent(e runtime.Event) {
	msg := sse.FromEvent(e)
	ls.send(LiveMessage{Type: "event", Event: &msg})
}

func (ls *liveSession) playSound(cue core.Cue, tones []sound.Tone) {
	out := make([]LiveTone, 0, len(tones))
	for _, t := range tones {
		out = append(out, LiveTone{
			Frequency:  t.Frequency,
			DurationMs: t.Duration.Milliseconds(),
			Waveform:   t.Waveform,
			Volume:     t.Volume,
			OffsetMs:   t.Offset.Milliseconds(),
		})
	}
	ls.send(LiveMessage{Type: "sound", Sound: &LiveSound{Cue: cue, Tones: out}})
}

func (ls *liveSession) snapshot() *LiveState {
	c := ls.ctrl
	g := c.Grid()
	st := &LiveState{
		Status:    c.State().String(),
		Paused:    c.Paused(),
		Muted:     c.Muted(),
		SpeedMs:   c.Speed().Milliseconds(),
		Values:    c.Sequence(),
		Target:    c.Target(),
		Sorted:    c.Sorted(),
		Highlight: c.Highlight(),
		Line:      c.Line(),
		Grid: LiveGrid{
			Rows:    g.Rows(),
			Cols:    g.Cols(),
			Start:   g.Start(),
			End:     g.End(),
			Walls:   g.Walls(),
			Visited: g.VisitedCount(),
			Path:    g.PathCells(),
		},
	}
	if res, ok := c.LastResult(); ok {
		st.Last = &res
	}
	return st
}

func (ls *liveSession) sendState() {
	ls.send(LiveMessage{Type: "state", State: ls.snapshot()})
}

// send writes v, dropping it once the session is closed. A failed write
// cancels the active run.
func (ls *liveSession) send(v LiveMessage) {
	select {
	case <-ls.closed:
		return
	default:
	}

	ls.writeMu.Lock()
	defer ls.writeMu.Unlock()
	_ = ls.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := ls.conn.WriteJSON(v); err != nil {
		ls.s.logger.Warn("failed to write live message", "type", v.Type, "error", err)
		ls.ctrl.Cancel()
	}
}
