package hardware

import (
	"fmt"
	"sync"
)

// Simulated is an in-memory TimerSink/EdgeSource pair: Emit appends to
// a log instead of driving a pin, and edges are injected with
// InjectEdge for tests to exercise the sniffer without real hardware.
type Simulated struct {
	mu  sync.Mutex
	log []EmittedInterval

	edges  chan Edge
	closed bool
}

// EmittedInterval is one interval recorded by Simulated.Emit.
type EmittedInterval struct {
	Level      bool
	DurationUS uint16
}

// NewSimulated returns a ready Simulated sink/source with the given
// edge-channel buffer depth.
func NewSimulated(edgeBuffer int) *Simulated {
	return &Simulated{edges: make(chan Edge, edgeBuffer)}
}

// Emit implements TimerSink.
func (s *Simulated) Emit(level bool, durationUS uint16) error {
	if durationUS < 1 {
		return fmt.Errorf("hardware: duration %dus out of range", durationUS)
	}
	s.mu.Lock()
	s.log = append(s.log, EmittedInterval{Level: level, DurationUS: durationUS})
	s.mu.Unlock()
	return nil
}

// Log returns a copy of every interval emitted so far.
func (s *Simulated) Log() []EmittedInterval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EmittedInterval, len(s.log))
	copy(out, s.log)
	return out
}

// InjectEdge feeds a synthetic edge to the EdgeSource side.
func (s *Simulated) InjectEdge(e Edge) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.edges <- e
}

// Next implements EdgeSource.
func (s *Simulated) Next() (Edge, bool) {
	e, ok := <-s.edges
	return e, ok
}

// Close stops the edge source.
func (s *Simulated) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.edges)
	}
}
