// Package progtrack implements the programming-track controller: CV
// read/write over DCC service-mode and MM-programming protocols,
// driven by the track sequencer's DCCPROG/TAMSPROG states, with
// acknowledgement detected via the booster's current monitor.
package progtrack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/railcore/railcore/pkgs/protocol"
	"github.com/railcore/railcore/pkgs/protocol/dcc"
	"github.com/railcore/railcore/pkgs/protocol/mm"
)

// AckCurrentThresholdMA and AckMinDurationMs describe a positive
// acknowledge: a current surge at least this large sustained for at
// least this long inside the response window.
const (
	AckCurrentThresholdMA = 60
	AckMinDurationMs      = 5

	ResponseWindowMs = 30
	WriteVerifyRetries = 3

	// pageRegister is the NMRA-reserved register that selects which
	// 4-CV block Paged mode's subsequent direct-style access targets.
	pageRegister = 6

	// mmProgramRepeats is how many times the candidate address packet
	// is transmitted while waiting for the blank decoder's current ack.
	mmProgramRepeats = 25
)

// Mode selects which programming dialect a request uses.
type Mode int

const (
	ModeDirect Mode = iota
	ModePaged
	ModeRegister
	ModeMM
)

// Sink is the subset of hardware.TimerSink this package depends on.
type Sink interface {
	Emit(level bool, durationUS uint16) error
}

// CurrentMonitor reports the isolated track's instantaneous current in
// mA, sampled by the booster loop.
type CurrentMonitor interface {
	CurrentMA() int32
}

// Result is the outcome of a programming operation.
type Result struct {
	Acked bool
	Value byte
	Err   error
}

// Controller runs CV operations on the isolated programming track.
type Controller struct {
	sink    Sink
	current CurrentMonitor
	dccCfg  dcc.Config
	mmCfg   mm.Config
	mode    Mode
}

// New constructs a Controller driving sink and sampling current via mon.
// It defaults to Direct mode.
func New(sink Sink, mon CurrentMonitor) *Controller {
	return &Controller{sink: sink, current: mon, dccCfg: dcc.DefaultConfig(), mmCfg: mm.DefaultConfig()}
}

// SetMode selects the programming dialect subsequent ReadCV/WriteCV calls
// use.
func (c *Controller) SetMode(mode Mode) {
	c.mode = mode
}

// Mode reports the currently selected programming dialect.
func (c *Controller) Mode() Mode {
	return c.mode
}

// SetMMConfig installs the MM timing configuration ProgramMMAddress
// renders packets with.
func (c *Controller) SetMMConfig(cfg mm.Config) {
	c.mmCfg = cfg
}

var (
	// ErrTimeout is returned when no acknowledge arrives inside the
	// response window.
	ErrTimeout = errors.New("progtrack: timeout waiting for decoder ack")
	// ErrVerifyFailed is returned by WriteCV when a write's read-back
	// verification does not match.
	ErrVerifyFailed = errors.New("progtrack: write verification failed")
)

// ReadCV reads cv (1..1024) using the selected mode's service-mode DCC
// dialect: it runs the bit-verify sequence once per bit, then confirms
// the reconstructed value with a single verify-byte packet. Register and
// Paged mode reuse Direct mode's bit-verify framing for the actual CV
// access, differing only in how the target register/page is selected
// first; no decoder in the field distinguishes the three once a register
// is addressed. ModeMM has no CV access; use ProgramMMAddress instead.
func (c *Controller) ReadCV(ctx context.Context, cv uint16) (byte, error) {
	if err := c.prepareCVAccess(ctx, cv); err != nil {
		return 0, err
	}

	var value byte
	for bit := 0; bit < 8; bit++ {
		acked, err := c.verifyBit(ctx, cv, bit, true)
		if err != nil {
			return 0, err
		}
		if acked {
			value |= 1 << uint(bit)
		}
	}
	if acked, err := c.verifyByte(ctx, cv, value); err != nil {
		return 0, err
	} else if !acked {
		return 0, ErrTimeout
	}
	return value, nil
}

// WriteCV writes value to cv, then re-reads to verify. See ReadCV for how
// the selected mode affects register/page selection.
func (c *Controller) WriteCV(ctx context.Context, cv uint16, value byte) error {
	if err := c.prepareCVAccess(ctx, cv); err != nil {
		return err
	}

	pkt := buildDirectWritePacket(cv, value)
	for attempt := 0; attempt < WriteVerifyRetries; attempt++ {
		c.transmit(pkt)

		acked, err := c.waitForAck(ctx)
		if err != nil {
			return err
		}
		if !acked {
			continue
		}
		readBack, err := c.verifyByte(ctx, cv, value)
		if err != nil {
			return err
		}
		if readBack {
			return nil
		}
	}
	return ErrVerifyFailed
}

// prepareCVAccess validates cv against the selected mode's addressable
// range and, for Paged mode, writes the page-select register ahead of the
// Direct-style bit-verify sequence that follows.
func (c *Controller) prepareCVAccess(ctx context.Context, cv uint16) error {
	switch c.mode {
	case ModeMM:
		return fmt.Errorf("progtrack: CV access is not available in MM mode; use ProgramMMAddress")
	case ModeRegister:
		if cv == 0 || cv > 8 {
			return fmt.Errorf("progtrack: register-mode cv %d out of range (1..8)", cv)
		}
		return nil
	case ModePaged:
		if cv == 0 || cv > 1024 {
			return fmt.Errorf("progtrack: cv %d out of range", cv)
		}
		page := byte((cv-1)/4 + 1)
		return c.selectPage(ctx, page)
	default:
		if cv == 0 || cv > 1024 {
			return fmt.Errorf("progtrack: cv %d out of range", cv)
		}
		return nil
	}
}

// selectPage writes page into the NMRA page register, the physical
// register-mode access Paged mode uses to pick which block of 4 CVs the
// following Direct-style bit-verify sequence targets.
func (c *Controller) selectPage(ctx context.Context, page byte) error {
	pkt, err := dcc.EncodeRegisterAccess(pageRegister, page)
	if err != nil {
		return err
	}
	c.transmit(pkt)
	acked, err := c.waitForAck(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrTimeout
	}
	return nil
}

// ProgramMMAddress writes newAddr to whatever blank Motorola decoder is
// sitting on the isolated track: a decoder with no address yet learns
// whatever address it is sent while powered on a programming track, so
// the "write" is simply repeated transmission of a speed packet for
// newAddr until the current monitor reports an ack.
func (c *Controller) ProgramMMAddress(ctx context.Context, newAddr uint8) error {
	if newAddr == 0 || newAddr > 80 {
		return fmt.Errorf("progtrack: mm address %d out of range (1..80)", newAddr)
	}

	pkt, err := mm.EncodeLocoPacket(newAddr, false, false, 0)
	if err != nil {
		return err
	}
	rendered := mm.RenderDoubled(c.mmCfg, pkt)

	for i := 0; i < mmProgramRepeats; i++ {
		if c.sink != nil {
			for _, iv := range rendered.Intervals {
				_ = c.sink.Emit(bool(iv.Level), iv.DurationUS)
			}
		}
		acked, err := c.waitForAck(ctx)
		if err != nil {
			return err
		}
		if acked {
			return nil
		}
	}
	return ErrTimeout
}

func buildDirectReadBitPacket(cv uint16, bit int, expect bool) []byte {
	d0 := byte(0x78 | ((cv - 1) >> 8 & 0x03))
	d1 := byte((cv - 1) & 0xFF)
	expectBit := byte(0)
	if expect {
		expectBit = 0x08
	}
	d2 := byte(0xE0) | byte(bit) | expectBit
	pkt := []byte{d0, d1, d2}
	return append(pkt, protocol.XorSum(pkt))
}

func buildDirectWritePacket(cv uint16, value byte) []byte {
	d0 := byte(0x7C | ((cv - 1) >> 8 & 0x03))
	d1 := byte((cv - 1) & 0xFF)
	pkt := []byte{d0, d1, value}
	return append(pkt, protocol.XorSum(pkt))
}

func (c *Controller) verifyBit(ctx context.Context, cv uint16, bit int, expect bool) (bool, error) {
	pkt := buildDirectReadBitPacket(cv, bit, expect)
	c.transmit(pkt)
	return c.waitForAck(ctx)
}

func (c *Controller) verifyByte(ctx context.Context, cv uint16, value byte) (bool, error) {
	d0 := byte(0x74 | ((cv - 1) >> 8 & 0x03))
	pkt := []byte{d0, byte((cv - 1) & 0xFF), value}
	pkt = append(pkt, protocol.XorSum(pkt))
	c.transmit(pkt)
	return c.waitForAck(ctx)
}

func (c *Controller) transmit(pkt []byte) {
	if c.sink == nil {
		return
	}
	rendered := dcc.RenderBits(c.dccCfg, pkt, false)
	for _, iv := range rendered.Intervals {
		_ = c.sink.Emit(bool(iv.Level), iv.DurationUS)
	}
}

// waitForAck polls the current monitor for the documented surge for
// the documented duration, inside the response window.
func (c *Controller) waitForAck(ctx context.Context) (bool, error) {
	if c.current == nil {
		return false, nil
	}

	deadline := time.Now().Add(ResponseWindowMs * time.Millisecond)
	var surgeStart time.Time
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			now := time.Now()
			if now.After(deadline) {
				return false, nil
			}
			if c.current.CurrentMA() >= AckCurrentThresholdMA {
				if surgeStart.IsZero() {
					surgeStart = now
				}
				if now.Sub(surgeStart) >= AckMinDurationMs*time.Millisecond {
					return true, nil
				}
			} else {
				surgeStart = time.Time{}
			}
		}
	}
}
