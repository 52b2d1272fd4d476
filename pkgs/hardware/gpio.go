package hardware

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOSink drives the track output through a single Linux GPIO line,
// busy-waiting between level changes for the requested duration. It is
// meant for low pulse-rate bench setups; production timing-critical
// output belongs on a dedicated hardware timer, out of this core's
// scope.
type GPIOSink struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewGPIOSink opens chipName (e.g. "gpiochip0") and requests offset as
// an output line for track signal output.
func NewGPIOSink(chipName string, offset int) (*GPIOSink, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("hardware: open chip %s: %w", chipName, err)
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("hardware: request line %d: %w", offset, err)
	}
	return &GPIOSink{chip: chip, line: line}, nil
}

// Emit implements TimerSink.
func (s *GPIOSink) Emit(level bool, durationUS uint16) error {
	if durationUS < 1 {
		return fmt.Errorf("hardware: duration %dus out of range", durationUS)
	}
	v := 0
	if level {
		v = 1
	}
	if err := s.line.SetValue(v); err != nil {
		return fmt.Errorf("hardware: set line value: %w", err)
	}
	time.Sleep(time.Duration(durationUS) * time.Microsecond)
	return nil
}

// Close releases the underlying line and chip.
func (s *GPIOSink) Close() error {
	s.line.Close()
	return s.chip.Close()
}

// GPIOEdgeSource delivers rising/falling captures from a Linux GPIO
// line configured for both-edge event detection, translating the
// kernel's nanosecond timestamps into the 100ns resolution the sniffer
// expects.
type GPIOEdgeSource struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	ch   chan Edge
}

// NewGPIOEdgeSource opens chipName and requests offset for edge capture.
func NewGPIOEdgeSource(chipName string, offset int) (*GPIOEdgeSource, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("hardware: open chip %s: %w", chipName, err)
	}

	s := &GPIOEdgeSource{chip: chip, ch: make(chan Edge, 256)}
	line, err := chip.RequestLine(offset,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.handleEvent),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("hardware: request line %d: %w", offset, err)
	}
	s.line = line
	return s, nil
}

func (s *GPIOEdgeSource) handleEvent(evt gpiocdev.LineEvent) {
	rising := evt.Type == gpiocdev.LineEventRisingEdge
	s.ch <- Edge{Rising: rising, At100ns: uint32(evt.Timestamp.Nanoseconds() / 100)}
}

// Next implements EdgeSource.
func (s *GPIOEdgeSource) Next() (Edge, bool) {
	e, ok := <-s.ch
	return e, ok
}

// Close releases the underlying line and chip.
func (s *GPIOEdgeSource) Close() error {
	s.line.Close()
	return s.chip.Close()
}
