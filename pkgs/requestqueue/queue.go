// Package requestqueue serialises mutating requests from the operator
// actions in pkgs/app (speed, functions, turnouts, POM CV requests;
// packets seen by the sniffer are only logged, not enqueued) into the
// refresh buffer in
// submission order, draining only at packet boundaries so the
// sequencer never observes a partial mutation mid-packet.
package requestqueue

import (
	"fmt"
	"sync"

	"github.com/railcore/railcore/pkgs/refresh"
)

// Kind identifies the mutation a Request carries.
type Kind int

const (
	KindSetSpeed Kind = iota
	KindSetFuncMasked
	KindEmergencyStop
	KindSetFunc
	KindPurge
	KindSwitchTurnout
	KindPOM
)

// Request is one queued mutation. Only the fields relevant to Kind are
// populated; the zero value of the rest is ignored.
type Request struct {
	Kind Kind
	Addr uint16

	Speed byte

	FuncValue [4]uint32
	FuncMask  [4]uint32
	FuncIdx   uint8
	FuncOn    bool

	TurnoutDirection int
	TurnoutOn        bool

	POM refresh.POMRequest
}

// TurnoutSwitcher is the subset of turnoutdb.DB the queue needs; kept
// as an interface here so this package does not import turnoutdb and
// create an import cycle with the orchestration layer that wires both.
type TurnoutSwitcher interface {
	SwitchTurnout(addr uint16, direction int, on bool) error
}

// Queue is a mutex-guarded FIFO: a single writer per address ordering
// guarantee with no cross-address ordering requirement, which a plain
// slice-backed FIFO satisfies trivially under one lock.
type Queue struct {
	mu      sync.Mutex
	pending []Request

	buf      *refresh.Buffer
	turnouts TurnoutSwitcher
}

// New constructs a Queue that drains into buf, and optionally into a
// turnout switcher for KindSwitchTurnout requests.
func New(buf *refresh.Buffer, turnouts TurnoutSwitcher) *Queue {
	return &Queue{buf: buf, turnouts: turnouts}
}

// Enqueue validates and appends req. Validation failures are rejected
// immediately with InvalidParam-shaped errors at the queue boundary, as
// required of malformed outgoing requests.
func (q *Queue) Enqueue(req Request) error {
	if err := validate(req); err != nil {
		return err
	}
	q.mu.Lock()
	q.pending = append(q.pending, req)
	q.mu.Unlock()
	return nil
}

func validate(req Request) error {
	switch req.Kind {
	case KindSetSpeed, KindSetFuncMasked, KindEmergencyStop, KindSetFunc, KindPurge, KindPOM:
		if req.Addr > 10239 {
			return fmt.Errorf("requestqueue: invalid address %d", req.Addr)
		}
	case KindSwitchTurnout:
		if req.Addr < 1 || req.Addr > 2048 {
			return fmt.Errorf("requestqueue: invalid turnout address %d", req.Addr)
		}
	default:
		return fmt.Errorf("requestqueue: unknown request kind %d", req.Kind)
	}
	return nil
}

// Drain applies every pending request to the refresh buffer (and
// turnout switcher) in submission order, then clears the queue. The
// sequencer calls this once per packet boundary, never mid-packet.
func (q *Queue) Drain() {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, req := range batch {
		q.apply(req)
	}
}

func (q *Queue) apply(req Request) {
	switch req.Kind {
	case KindSetSpeed:
		_ = q.buf.SetSpeed(req.Addr, req.Speed)
	case KindSetFuncMasked:
		_ = q.buf.SetFuncMasked(req.Addr, req.FuncValue, req.FuncMask)
	case KindEmergencyStop:
		_ = q.buf.EmergencyStop(req.Addr)
	case KindSetFunc:
		_ = q.buf.SetFunc(req.Addr, req.FuncIdx, req.FuncOn)
	case KindPurge:
		q.buf.Purge(req.Addr)
	case KindSwitchTurnout:
		if q.turnouts != nil {
			_ = q.turnouts.SwitchTurnout(req.Addr, req.TurnoutDirection, req.TurnoutOn)
		}
	case KindPOM:
		if entry, err := q.buf.Call(req.Addr, false); err == nil {
			entry.POMQueue = append(entry.POMQueue, req.POM)
		}
	}
}

// Len reports the number of requests awaiting the next Drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
