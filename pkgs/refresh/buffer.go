// Package refresh is the in-memory working set of currently live
// locomotives: speed/function snapshots plus per-protocol repetition
// bookkeeping, pulled from the loco database on first reference and
// rotated by the track sequencer.
package refresh

import (
	"errors"
	"sync"
	"time"

	"github.com/railcore/railcore/pkgs/eventbus"
	"github.com/railcore/railcore/pkgs/locodb"
)

// Capacity is the minimum number of concurrently live locos the buffer
// guarantees room for.
const Capacity = 128

// ErrOutOfCapacity is returned by Call when the buffer is full and addr
// is not already present.
var ErrOutOfCapacity = errors.New("refresh: out of capacity")

// Entry is the live state of one address currently under rotation.
type Entry struct {
	Record *locodb.LocoRecord

	// Speed is bit 7 = direction, bits 0..6 = step.
	Speed byte

	// Funcs holds F0..F127 as four 32-bit words.
	Funcs [4]uint32

	LastTouched time.Time

	// RepeatCounter tracks remaining forced repetitions after a speed
	// or function change. MarkTransmitted counts it down; neither the
	// protocol encoders nor the sequencer's slot selection read it.
	RepeatCounter uint8

	// POMQueue holds pending programming-on-main CV operations for
	// this address, drained opportunistically by the sequencer.
	POMQueue []POMRequest
}

// POMRequest is a queued programming-on-main CV read or write.
type POMRequest struct {
	CV    uint16
	Value uint16
	Write bool
}

// Buffer is the single-writer, multiple-reader live rotation.
type Buffer struct {
	db  *locodb.DB
	bus *eventbus.Bus

	mu      sync.RWMutex
	entries map[uint16]*Entry
	order   []uint16 // rotation order, oldest-touched first
}

// New constructs a Buffer backed by db, firing NEWLOCO events on bus.
func New(db *locodb.DB, bus *eventbus.Bus) *Buffer {
	return &Buffer{db: db, bus: bus, entries: make(map[uint16]*Entry, Capacity)}
}

// Call looks up or creates the entry for addr. When touch is true the
// entry's timestamp is refreshed and it is (re)appended to the rotation
// order; when false only a lookup occurs and the rotation order is
// untouched.
func (b *Buffer) Call(addr uint16, touch bool) (*Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[addr]
	if !ok {
		if len(b.entries) >= Capacity {
			return nil, ErrOutOfCapacity
		}
		rec, err := b.db.Get(addr)
		if err != nil {
			return nil, err
		}
		e = &Entry{Record: rec}
		b.entries[addr] = e
		if b.bus != nil {
			b.bus.FireEx(eventbus.KindNewLoco, addr, nil, 0)
		}
	}

	if touch {
		e.LastTouched = time.Now()
		b.touchOrderLocked(addr)
	}
	return e, nil
}

func (b *Buffer) touchOrderLocked(addr uint16) {
	for i, a := range b.order {
		if a == addr {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.order = append(b.order, addr)
}

// SetSpeed applies a speed/direction byte to addr, creating the entry
// if necessary, and arms the default repetition counter.
func (b *Buffer) SetSpeed(addr uint16, speed byte) error {
	e, err := b.Call(addr, true)
	if err != nil {
		return err
	}
	b.mu.Lock()
	e.Speed = speed
	e.RepeatCounter = 3
	b.mu.Unlock()
	if b.bus != nil {
		b.bus.FireEx(eventbus.KindLocoSpeed, addr, speed, 0)
	}
	return nil
}

// SetFuncMasked sets exactly the function bits selected by mask to the
// corresponding bits of value, leaving the rest untouched.
func (b *Buffer) SetFuncMasked(addr uint16, value, mask [4]uint32) error {
	e, err := b.Call(addr, true)
	if err != nil {
		return err
	}
	b.mu.Lock()
	for i := range e.Funcs {
		e.Funcs[i] = (e.Funcs[i] &^ mask[i]) | (value[i] & mask[i])
	}
	e.RepeatCounter = 3
	b.mu.Unlock()
	if b.bus != nil {
		b.bus.FireEx(eventbus.KindLocoFunc, addr, value, 0)
	}
	return nil
}

// SetFunc toggles a single function index (0..127) on or off.
func (b *Buffer) SetFunc(addr uint16, idx uint8, on bool) error {
	word := idx / 32
	bit := idx % 32
	if word >= 4 {
		return errors.New("refresh: function index out of range")
	}
	var value, mask [4]uint32
	mask[word] = 1 << bit
	if on {
		value[word] = 1 << bit
	}
	return b.SetFuncMasked(addr, value, mask)
}

// EmergencyStop zeroes addr's speed step while preserving direction.
func (b *Buffer) EmergencyStop(addr uint16) error {
	e, err := b.Call(addr, false)
	if err != nil {
		return err
	}
	b.mu.Lock()
	e.Speed &^= 0x7F
	b.mu.Unlock()
	return nil
}

// Purge removes addr's live entry and fires KindNewLoco with Source addr,
// the same kind and source Call fires when it creates an entry; the
// event carries nothing that tells a purge apart from a creation.
func (b *Buffer) Purge(addr uint16) {
	b.mu.Lock()
	_, existed := b.entries[addr]
	delete(b.entries, addr)
	for i, a := range b.order {
		if a == addr {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	if existed && b.bus != nil {
		b.bus.FireEx(eventbus.KindNewLoco, addr, nil, 0)
	}
}

// PurgeIdle removes every entry whose record has been idle (per its
// configured purge timeout) as of now.
func (b *Buffer) PurgeIdle(now time.Time) {
	b.mu.RLock()
	var stale []uint16
	for addr, e := range b.entries {
		if e.Record.Idle(now) {
			stale = append(stale, addr)
		}
	}
	b.mu.RUnlock()
	for _, addr := range stale {
		b.Purge(addr)
	}
}

// Rotation returns the live addresses in oldest-touched-first order,
// the order the sequencer's priority rule consults for "loco with
// oldest last-transmit timestamp".
func (b *Buffer) Rotation() []uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint16, len(b.order))
	copy(out, b.order)
	return out
}

// Snapshot returns a copy of addr's entry state, or false if not live.
func (b *Buffer) Snapshot(addr uint16) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// PopPOM removes and returns the oldest pending programming-on-main
// request for addr, if any, for the sequencer to drain opportunistically
// alongside the address's normal speed/function packets.
func (b *Buffer) PopPOM(addr uint16) (POMRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[addr]
	if !ok || len(e.POMQueue) == 0 {
		return POMRequest{}, false
	}
	req := e.POMQueue[0]
	e.POMQueue = e.POMQueue[1:]
	return req, true
}

// MarkTransmitted decrements the repetition counter for addr after one
// packet has gone out, and returns the counter's new value.
func (b *Buffer) MarkTransmitted(addr uint16) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[addr]
	if !ok {
		return 0
	}
	if e.RepeatCounter > 0 {
		e.RepeatCounter--
	}
	return e.RepeatCounter
}
