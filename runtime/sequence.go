package runtime

import "sync/atomic"

// seqGen numbers the events of a single run.
type seqGen struct {
	counter atomic.Uint64
}

func newSeqGen() *seqGen {
	return &seqGen{}
}

// Next returns the next sequence number (1-indexed).
func (s *seqGen) Next() uint64 {
	return s.counter.Add(1)
}

// Sequencer returns a decorator that stamps Seq on every event passing
// through it, numbering from 1.
func Sequencer() EventEmitterDecorator {
	seq := newSeqGen()
	return func(next EventEmitter) EventEmitter {
		return func(e Event) {
			e.Seq = seq.Next()
			next(e)
		}
	}
}
