// Package sound maps abstract cues to tones and plays them through a
// pluggable Player. Muting turns every cue into a no-op.
package sound

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petal-labs/algoviz/core"
)

// Waveform is an oscillator shape.
type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Triangle Waveform = "triangle"
	Sawtooth Waveform = "sawtooth"
)

// Tone is a single beep.
type Tone struct {
	Frequency float64       // Hz
	Duration  time.Duration // length of the envelope
	Waveform  Waveform
	Volume    float64 // linear gain, 0..1
	Offset    time.Duration
}

// Tones returns the notes played for a cue. The success chord is three
// notes staggered by 80 ms.
func Tones(c core.Cue) []Tone {
	switch c {
	case core.CueCompare:
		return []Tone{{Frequency: 880, Duration: 20 * time.Millisecond, Waveform: Sine, Volume: 0.02}}
	case core.CueSwap:
		return []Tone{{Frequency: 440, Duration: 40 * time.Millisecond, Waveform: Triangle, Volume: 0.03}}
	case core.CueProbe:
		return []Tone{{Frequency: 980, Duration: 20 * time.Millisecond, Waveform: Sine, Volume: 0.02}}
	case core.CueVisit:
		return []Tone{{Frequency: 560, Duration: 20 * time.Millisecond, Waveform: Square, Volume: 0.02}}
	case core.CuePath:
		return []Tone{{Frequency: 720, Duration: 20 * time.Millisecond, Waveform: Sine, Volume: 0.02}}
	case core.CueDone:
		return []Tone{
			{Frequency: 523.25, Duration: 80 * time.Millisecond, Waveform: Sine, Volume: 0.03},
			{Frequency: 659.25, Duration: 80 * time.Millisecond, Waveform: Sine, Volume: 0.03, Offset: 80 * time.Millisecond},
			{Frequency: 783.99, Duration: 100 * time.Millisecond, Waveform: Sine, Volume: 0.03, Offset: 160 * time.Millisecond},
		}
	case core.CueFail:
		return []Tone{{Frequency: 220, Duration: 150 * time.Millisecond, Waveform: Sawtooth, Volume: 0.02}}
	}
	return nil
}

// Player renders cues. Implementations must not block the caller for long:
// they are called from inside a run between ticks.
type Player interface {
	Play(c core.Cue, tones []Tone)
}

// PlayerFunc adapts a function to the Player interface.
type PlayerFunc func(c core.Cue, tones []Tone)

// Play implements Player.
func (f PlayerFunc) Play(c core.Cue, tones []Tone) { f(c, tones) }

// Sink is the sound collaborator handed to a run. It is safe for concurrent
// use; the mute flag may be toggled mid-run.
type Sink struct {
	player Player
	muted  atomic.Bool
}

// NewSink creates a sink that plays through p. A nil player discards.
func NewSink(p Player) *Sink {
	if p == nil {
		p = PlayerFunc(func(core.Cue, []Tone) {})
	}
	return &Sink{player: p}
}

// SetMuted turns playback off or on.
func (s *Sink) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Muted reports whether playback is off.
func (s *Sink) Muted() bool {
	return s.muted.Load()
}

// Play emits c unless muted.
func (s *Sink) Play(c core.Cue) {
	if s.muted.Load() {
		return
	}
	tones := Tones(c)
	if len(tones) == 0 {
		return
	}
	s.player.Play(c, tones)
}

// LogPlayer writes every cue to a logger at debug level.
type LogPlayer struct {
	Logger *slog.Logger
}

// Play implements Player.
func (p LogPlayer) Play(c core.Cue, tones []Tone) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("sound cue", "cue", string(c), "tones", len(tones), "frequency", tones[0].Frequency)
}

// BellPlayer rings the terminal bell once on done and twice on fail.
// Step cues are ignored.
type BellPlayer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellPlayer writes BEL characters to w.
func NewBellPlayer(w io.Writer) *BellPlayer {
	return &BellPlayer{w: w}
}

// Play implements Player.
func (p *BellPlayer) Play(c core.Cue, _ []Tone) {
	var n int
	switch c {
	case core.CueDone:
		n = 1
	case core.CueFail:
		n = 2
	default:
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		_, _ = p.w.Write([]byte{'\a'})
	}
}

// Recorder keeps every cue it is asked to play.
type Recorder struct {
	mu   sync.Mutex
	cues []core.Cue
}

// Play implements Player.
func (r *Recorder) Play(c core.Cue, _ []Tone) {
	r.mu.Lock()
	r.cues = append(r.cues, c)
	r.mu.Unlock()
}

// Cues returns a copy of the recorded cues.
func (r *Recorder) Cues() []core.Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Cue(nil), r.cues...)
}

// Multi fans a cue out to several players.
func Multi(players ...Player) Player {
	return PlayerFunc(func(c core.Cue, tones []Tone) {
		for _, p := range players {
			if p != nil {
				p.Play(c, tones)
			}
		}
	})
}
