// Package mm builds Motorola/MM packets: nine trits carrying address,
// function and data bits, rendered as the doubled-half bit-interval
// stream decoders expect.
package mm

import (
	"fmt"

	"github.com/railcore/railcore/pkgs/protocol"
)

// Config bounds the encoder's timing parameters.
type Config struct {
	PauseUS uint16 // 1000..5000, default 1500
	Fast    bool   // accessory/function-decoder payloads use the fast pulse widths
	Repeat  uint8
}

// DefaultConfig returns the documented factory defaults for loco
// (slow-form) traffic.
func DefaultConfig() Config {
	return Config{PauseUS: 1500, Fast: false, Repeat: 3}
}

// PauseUS bounds, clamped by ClampPauseUS.
const (
	MinPauseUS = 1000
	MaxPauseUS = 5000
)

// ClampPauseUS bounds cfg.PauseUS to [MinPauseUS, MaxPauseUS], the
// inter-half pause range decoders are documented to tolerate.
func ClampPauseUS(cfg Config) Config {
	switch {
	case cfg.PauseUS < MinPauseUS:
		cfg.PauseUS = MinPauseUS
	case cfg.PauseUS > MaxPauseUS:
		cfg.PauseUS = MaxPauseUS
	}
	return cfg
}

// Pulse widths in microseconds for the two trit forms.
const (
	fastShortUS = 13
	fastLongUS  = 91
	slowShortUS = 26
	slowLongUS  = 182
)

// trit is one of the three Motorola signal states.
type trit uint8

const (
	trit0    trit = 0
	trit1    trit = 1
	tritOpen trit = 2
)

// addressReversalTable maps each 2-bit address group to the trit that
// carries it; Motorola reverses bit order within each pair relative to
// a plain binary encoding.
var addressReversalTable = [4]trit{tritOpen, trit1, trit0, tritOpen}

// reverseAddressGroup returns the trit for a 2-bit address group.
func reverseAddressGroup(bits uint8) trit {
	return addressReversalTable[bits&0x03]
}

// Packet is the nine logical trits (A..H plus the spare) that make up
// one MM half.
type Packet struct {
	Trits [9]trit
}

// EncodeLocoPacket builds the nine-trit packet for a loco address
// (1..80, the classic Motorola addressing range), its two function
// bits (f0 = headlight, f1 = auxiliary) and four data bits (speed step
// plus direction-change marker, packed by the caller).
func EncodeLocoPacket(addr uint8, f0, f1 bool, data uint8) (Packet, error) {
	if addr == 0 || addr > 80 {
		return Packet{}, fmt.Errorf("mm: address %d out of range (1..80)", addr)
	}
	var p Packet
	// Trits A..D carry the 8 address bits as four 2-bit groups.
	addrBits := addr - 1
	for i := 0; i < 4; i++ {
		group := (addrBits >> uint(6-2*i)) & 0x03
		p.Trits[i] = reverseAddressGroup(group)
	}
	p.Trits[4] = boolTrit(f0)
	p.Trits[5] = boolTrit(f1)
	for i := 0; i < 3; i++ {
		bit := (data >> uint(3-i)) & 1
		p.Trits[6+i] = bitTrit(bit)
	}
	return p, nil
}

func boolTrit(b bool) trit {
	if b {
		return trit1
	}
	return trit0
}

func bitTrit(bit uint8) trit {
	if bit != 0 {
		return trit1
	}
	return trit0
}

// RenderHalf expands one half of the packet into its bit-interval
// stream: two pulses per trit, short-short for trit0, long-long for
// trit1, short-long for an open trit.
func RenderHalf(cfg Config, p Packet) []protocol.Interval {
	short, long := uint16(slowShortUS), uint16(slowLongUS)
	if cfg.Fast {
		short, long = fastShortUS, fastLongUS
	}

	intervals := make([]protocol.Interval, 0, len(p.Trits)*2)
	for _, tr := range p.Trits {
		var a, b uint16
		switch tr {
		case trit0:
			a, b = short, short
		case trit1:
			a, b = long, long
		default: // tritOpen
			a, b = short, long
		}
		intervals = append(intervals,
			protocol.Interval{Level: protocol.High, DurationUS: a},
			protocol.Interval{Level: protocol.Low, DurationUS: b},
		)
	}
	return intervals
}

// RenderDoubled produces the full on-track packet: one half, the
// inter-half pause, then a bitwise-identical second half.
func RenderDoubled(cfg Config, p Packet) protocol.Packet {
	half := RenderHalf(cfg, p)
	doubled := make([]protocol.Interval, 0, len(half)*2+1)
	doubled = append(doubled, half...)
	doubled = append(doubled, protocol.Interval{Level: protocol.Low, DurationUS: cfg.PauseUS})
	doubled = append(doubled, half...)
	return protocol.Packet{Intervals: doubled, Repeat: cfg.Repeat}
}

// HalvesIdentical reports whether the two halves of a rendered packet
// (split around the pause at len/2) are bitwise identical, the
// invariant decoders and the sniffer both enforce.
func HalvesIdentical(pkt protocol.Packet, halfLen int) bool {
	if len(pkt.Intervals) < 2*halfLen+1 {
		return false
	}
	first := pkt.Intervals[:halfLen]
	second := pkt.Intervals[halfLen+1:]
	if len(second) != halfLen {
		return false
	}
	for i := range first {
		if first[i] != second[i] {
			return false
		}
	}
	return true
}
