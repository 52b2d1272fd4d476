package sequencer

import (
	"sort"
	"sync"

	"github.com/railcore/railcore/pkgs/eventbus"
	"github.com/railcore/railcore/pkgs/hardware"
	"github.com/railcore/railcore/pkgs/locodb"
	"github.com/railcore/railcore/pkgs/protocol"
	"github.com/railcore/railcore/pkgs/protocol/dcc"
	"github.com/railcore/railcore/pkgs/protocol/mm"
	"github.com/railcore/railcore/pkgs/refresh"
	"github.com/railcore/railcore/pkgs/requestqueue"
)

// RailComCutoutWindowUS is the fixed high-impedance window after a
// RailCom-eligible packet's tail bits during which the sniffer captures
// a decoder reply.
const RailComCutoutWindowUS = 454

// AccessoryCommand is a pending turnout switch the sequencer must emit
// with its own repetition count, at a priority above loco rotation.
type AccessoryCommand struct {
	Address   uint16
	Pair      uint8
	On        bool
	Repeat    uint8
}

// Sequencer drives one track output: draining the request queue,
// selecting the next due slot and rendering it through the matching
// protocol encoder.
type Sequencer struct {
	buf   *refresh.Buffer
	queue *requestqueue.Queue
	bus   *eventbus.Bus
	sink  hardware.TimerSink

	dccCfg dcc.Config
	mmCfg  mm.Config

	railComEnabled bool
	dccaEnabled    bool

	mu        sync.Mutex
	mode      Mode
	requested Mode

	accessory []AccessoryCommand

	cutoutHook func(addr uint16)
}

// New constructs a Sequencer in STOP mode.
func New(buf *refresh.Buffer, queue *requestqueue.Queue, bus *eventbus.Bus, sink hardware.TimerSink) *Sequencer {
	return &Sequencer{
		buf:    buf,
		queue:  queue,
		bus:    bus,
		sink:   sink,
		dccCfg: dcc.DefaultConfig(),
		mmCfg:  mm.DefaultConfig(),
	}
}

// SetRailComEnabled toggles whether RailCom cutouts are inserted.
func (s *Sequencer) SetRailComEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.railComEnabled = on
}

// SetDCCAEnabled records the DCC-A flag. No packet or cutout decision
// reads it: emitLoco inserts cutouts based on the RailCom flag alone.
func (s *Sequencer) SetDCCAEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dccaEnabled = on
}

// SetDCCConfig replaces the DCC timing/repeat configuration used to
// render every loco and POM packet, letting a persisted [protocol-dcc]
// section override the factory defaults.
func (s *Sequencer) SetDCCConfig(cfg dcc.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dccCfg = cfg
}

// SetMMConfig replaces the MM timing/repeat configuration, letting a
// persisted [protocol-mm] section override the factory defaults.
func (s *Sequencer) SetMMConfig(cfg mm.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mmCfg = cfg
}

// SetCutoutHook registers fn to be called every time emitCutoutWindow
// opens a RailCom high-impedance window, with the loco address the
// cutout answers for, letting an external sniffer pump line up its
// capture window with the track output. A nil fn disables the hook.
func (s *Sequencer) SetCutoutHook(fn func(addr uint16)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoutHook = fn
}

// Mode returns the sequencer's current (applied) mode.
func (s *Sequencer) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode requests a transition to to. The transition is validated
// immediately but only takes effect at the next Step call, honouring
// the "between packets, never mid-packet" rule. An illegal transition
// is rejected without affecting the current mode.
func (s *Sequencer) SetMode(to Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.mode, to) {
		return ErrIllegalTransition{From: s.mode, To: to}
	}
	s.requested = to
	return nil
}

// QueueAccessory arms a turnout switch command for emission at
// accessory-command priority, above loco rotation.
func (s *Sequencer) QueueAccessory(cmd AccessoryCommand) {
	if cmd.Repeat == 0 {
		cmd.Repeat = 3
	}
	s.mu.Lock()
	s.accessory = append(s.accessory, cmd)
	s.mu.Unlock()
}

// Step performs one rotation cycle: it applies any pending mode
// transition, then emits one slot through the timer sink: an accessory
// packet, an idle packet, or one loco's packet with its RailCom cutout
// and at most one pending POM packet (or nothing, in a silent mode).
func (s *Sequencer) Step() {
	s.mu.Lock()
	s.mode = s.requested
	mode := s.mode
	s.mu.Unlock()

	switch mode {
	case ModeStop, ModeShort, ModeSigOn, ModeOverTemp, ModePowerFail:
		return // silent: no packet emission
	case ModeHalt:
		s.queue.Drain()
		s.emitHalted()
	case ModeGo, ModeTestDrive:
		s.queue.Drain()
		s.rotate()
	case ModeDCCProg, ModeTAMSProg:
		// programming-track packets are emitted by pkgs/progtrack straight
		// to its own timer sink, not by the GO rotation.
		return
	}
}

func (s *Sequencer) rotate() {
	s.mu.Lock()
	acc := s.accessory
	s.accessory = nil
	s.mu.Unlock()

	if len(acc) > 0 {
		sort.Slice(acc, func(i, j int) bool { return acc[i].Address < acc[j].Address })
		cmd := acc[0]
		s.emitAccessory(cmd)
		rest := acc[1:]
		if cmd.Repeat > 1 {
			cmd.Repeat--
			rest = append([]AccessoryCommand{cmd}, rest...)
		}
		if len(rest) > 0 {
			s.mu.Lock()
			s.accessory = append(rest, s.accessory...)
			s.mu.Unlock()
		}
		return
	}

	addrs := s.buf.Rotation()
	if len(addrs) == 0 {
		s.emitIdle()
		return
	}

	// Rotation() already returns oldest-touched-first; entries with an
	// identical timestamp retain ascending numeric-address order since
	// that is how they were appended.
	addr := addrs[0]
	entry, ok := s.buf.Snapshot(addr)
	if !ok {
		return
	}
	s.emitLoco(addr, entry)
}

func (s *Sequencer) emitIdle() {
	pkt := dcc.RenderBits(s.dccCfg, dcc.IdlePacket(), false)
	s.emit(pkt)
}

func (s *Sequencer) emitHalted() {
	addrs := s.buf.Rotation()
	if len(addrs) == 0 {
		s.emitIdle()
		return
	}
	sorted := append([]uint16{}, addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	addr := sorted[0]
	entry, ok := s.buf.Snapshot(addr)
	if !ok {
		return
	}
	entry.Speed &^= 0x7F // force speed 0, preserving direction
	s.emitLoco(addr, entry)
}

func (s *Sequencer) emitAccessory(cmd AccessoryCommand) {
	pkt := dcc.EncodeAccessoryBasic(cmd.Address, cmd.Pair, cmd.On)
	rendered := dcc.RenderBits(s.dccCfg, pkt, false)
	s.emit(rendered)
}

func (s *Sequencer) emitLoco(addr uint16, entry refresh.Entry) {
	steps := stepsForFormat(entry.Record.Format)

	s.mu.Lock()
	railcom := s.railComEnabled
	s.mu.Unlock()

	switch {
	case entry.Record.Format.IsMM():
		f0 := entry.Funcs[0]&1 != 0
		f1 := entry.Funcs[0]&2 != 0
		data := uint8(entry.Speed & 0x0F)
		p, err := mm.EncodeLocoPacket(uint8(addr), f0, f1, data)
		if err != nil {
			return
		}
		s.emit(mm.RenderDoubled(s.mmCfg, p))
	default:
		pkt, err := dcc.EncodeSpeed(addr, entry.Speed, steps)
		if err != nil {
			return
		}
		cutout := railcom && addr > 0 && addr <= locodb.MaxAddress
		rendered := dcc.RenderBits(s.dccCfg, pkt, cutout)
		s.emit(rendered)
		if cutout {
			s.emitCutoutWindow(addr)
		}
		s.emitPendingPOM(addr, railcom)
	}
	s.buf.MarkTransmitted(addr)
}

// emitPendingPOM drains at most one queued programming-on-main CV
// request for addr, riding the same RailCom cutout the decoder needs to
// answer the CV-access instruction.
func (s *Sequencer) emitPendingPOM(addr uint16, railcom bool) {
	req, ok := s.buf.PopPOM(addr)
	if !ok {
		return
	}
	pkt, err := dcc.EncodeCVAccessLong(addr, req.CV, byte(req.Value), req.Write)
	if err != nil {
		return
	}
	rendered := dcc.RenderBits(s.dccCfg, pkt, railcom)
	s.emit(rendered)
	if railcom {
		s.emitCutoutWindow(addr)
	}
}

func stepsForFormat(f locodb.Format) int {
	switch f {
	case locodb.FormatDCC14:
		return 14
	case locodb.FormatDCC126:
		return 126
	default:
		return 28
	}
}

func (s *Sequencer) emitCutoutWindow(addr uint16) {
	s.mu.Lock()
	hook := s.cutoutHook
	s.mu.Unlock()
	if hook != nil {
		hook(addr)
	}
	if s.sink == nil {
		return
	}
	_ = s.sink.Emit(false, RailComCutoutWindowUS)
}

func (s *Sequencer) emit(pkt protocol.Packet) {
	if s.sink == nil {
		return
	}
	for _, iv := range pkt.Intervals {
		_ = s.sink.Emit(bool(iv.Level), iv.DurationUS)
	}
}
