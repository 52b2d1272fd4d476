package output

import (
	"fmt"
	"strings"
	"sync"
)

// Printer is the operator-facing output sink the CLI layer writes
// command results to, kept as an interface so tests can swap in
// RecordingPrinter instead of asserting against os.Stdout.
type Printer interface {
	Printf(format string, a ...any) (n int, err error)
}

// ConsolePrinter writes straight to standard output.
type ConsolePrinter struct{}

func (c ConsolePrinter) Printf(format string, a ...any) (n int, err error) {
	return fmt.Printf(format, a...)
}

// RecordingPrinter accumulates every formatted line instead of printing
// it, for action tests that need to assert on what an operator would
// have seen.
type RecordingPrinter struct {
	mu    sync.Mutex
	lines []string
}

func (r *RecordingPrinter) Printf(format string, a ...any) (int, error) {
	line := fmt.Sprintf(format, a...)
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	return len(line), nil
}

// Lines returns every line recorded so far.
func (r *RecordingPrinter) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// String concatenates every recorded line, matching what an operator
// would see scrolled together in a terminal.
func (r *RecordingPrinter) String() string {
	return strings.Join(r.Lines(), "")
}
