// Package eventbus implements the in-process publish/subscribe bus that
// carries state-change notifications between the engine's components:
// mode transitions, new/purged locomotives, booster faults, programming
// results and RailCom reports. Handlers run on a single dispatch
// goroutine, so they observe events in firing order and must not block.
package eventbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind identifies what an Event carries.
type Kind int

const (
	// KindMode fires whenever the signal engine's operating mode changes.
	KindMode Kind = iota
	// KindNewLoco fires when a locomotive record is created or purged
	// from the refresh buffer.
	KindNewLoco
	// KindLocoSpeed fires on every accepted speed/direction change.
	KindLocoSpeed
	// KindLocoFunc fires on every accepted function-bit change.
	KindLocoFunc
	// KindBooster fires on supply voltage/current/short transitions.
	KindBooster
	// KindProgramming fires on CV read/write completion or failure.
	KindProgramming
	// KindRailCom fires when a decoder telemetry datagram is decoded.
	KindRailCom
	// KindTimeout is delivered to a single subscription whose deadline
	// elapsed before it was satisfied; never broadcast.
	KindTimeout
)

// Flag modifies how an event is dispatched.
type Flag int

const (
	// FreeSrc marks the event's Payload as owned by the bus after Fire
	// returns; handlers may retain a reference without copying. Absent
	// this flag, a handler must treat Payload as borrowed and copy
	// anything it needs to keep.
	FreeSrc Flag = 1 << iota
)

// Event is a single message travelling across the bus. LOG-level
// messages never become Events; they go through logrus directly.
type Event struct {
	Kind    Kind
	Flags   Flag
	Source  uint16 // loco/turnout address, or 0 when not applicable
	Payload any
	At      time.Time
}

// Handler observes events. Returning false deregisters the handler so
// it receives no further calls.
type Handler func(Event) bool

type subscription struct {
	id       uuid.UUID
	kind     Kind
	handler  Handler
	private  any
	deadline time.Time
	hasTimer bool
}

// Capacity is the minimum number of live subscriptions the bus
// guarantees without reallocating its internal table.
const Capacity = 64

// Bus is a single dispatch worker plus a registration table. The zero
// value is not usable; construct with New.
type Bus struct {
	log *logrus.Logger

	in   chan Event
	reg  chan regRequest
	dereg chan uuid.UUID

	subs map[uuid.UUID]*subscription
	done chan struct{}
}

type regRequest struct {
	sub  *subscription
	done chan uuid.UUID
}

// New starts the bus's dispatch goroutine. Callers must call Stop when
// done to release it.
func New(log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Bus{
		log:   log,
		in:    make(chan Event, Capacity),
		reg:   make(chan regRequest),
		dereg: make(chan uuid.UUID),
		subs:  make(map[uuid.UUID]*subscription, Capacity),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Stop halts the dispatch goroutine. The bus must not be used afterward.
func (b *Bus) Stop() {
	close(b.done)
}

// Subscribe registers handler for events of kind. The returned ID can
// be passed to Unsubscribe. Subscribing the same handler twice creates
// two independent subscriptions; duplicates are not merged.
func (b *Bus) Subscribe(kind Kind, handler Handler) uuid.UUID {
	return b.subscribeWithDeadline(kind, handler, nil, time.Time{})
}

// SubscribeWithTimeout registers handler for kind, and additionally
// arranges for a single KindTimeout event to be delivered to handler
// (with Source left at 0) if no matching event satisfies the
// subscription before deadline elapses. The timeout fires at most once;
// after it fires (or after handler returns false for a real event) the
// subscription is removed.
func (b *Bus) SubscribeWithTimeout(kind Kind, handler Handler, deadline time.Time) uuid.UUID {
	return b.subscribeWithDeadline(kind, handler, nil, deadline)
}

func (b *Bus) subscribeWithDeadline(kind Kind, handler Handler, private any, deadline time.Time) uuid.UUID {
	sub := &subscription{
		id:       uuid.New(),
		kind:     kind,
		handler:  handler,
		private:  private,
		deadline: deadline,
		hasTimer: !deadline.IsZero(),
	}
	req := regRequest{sub: sub, done: make(chan uuid.UUID, 1)}
	b.reg <- req
	return <-req.done
}

// Unsubscribe removes a subscription by ID. Unsubscribing an ID that
// no longer exists is a no-op.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.dereg <- id
}

// Fire publishes ev synchronously from the caller's point of view: it
// blocks only until the event is enqueued, not until handlers run.
func (b *Bus) Fire(ev Event) {
	b.in <- ev
}

// FireEx publishes an event of kind for source with payload, applying flags.
// This is the convenience entry point most producers use.
func (b *Bus) FireEx(kind Kind, source uint16, payload any, flags Flag) {
	b.Fire(Event{Kind: kind, Source: source, Payload: payload, Flags: flags, At: eventTime()})
}

// eventTime exists so tests can be written without depending on wall
// clock skew between event creation and assertion; production always
// uses time.Now.
var eventTime = time.Now

func (b *Bus) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	rearm := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		var next time.Time
		for _, s := range b.subs {
			if !s.hasTimer {
				continue
			}
			if next.IsZero() || s.deadline.Before(next) {
				next = s.deadline
			}
		}
		if next.IsZero() {
			return
		}
		d := time.Until(next)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		timerC = timer.C
	}

	for {
		select {
		case <-b.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case req := <-b.reg:
			b.subs[req.sub.id] = req.sub
			req.done <- req.sub.id
			rearm()

		case id := <-b.dereg:
			delete(b.subs, id)
			rearm()

		case ev := <-b.in:
			b.dispatch(ev)
			rearm()

		case <-timerC:
			b.dispatchTimeouts()
			rearm()
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	for id, s := range b.subs {
		if s.kind != ev.Kind {
			continue
		}
		if !s.handler(ev) {
			delete(b.subs, id)
		}
	}
}

func (b *Bus) dispatchTimeouts() {
	now := time.Now()
	for id, s := range b.subs {
		if !s.hasTimer || s.deadline.After(now) {
			continue
		}
		s.handler(Event{Kind: KindTimeout, At: now})
		delete(b.subs, id)
	}
}
