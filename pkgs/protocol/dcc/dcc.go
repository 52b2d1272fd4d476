// Package dcc builds DCC packets and renders them to bit intervals:
// preamble, byte framing with start/stop bits, and the trailing XOR
// checksum every packet carries.
package dcc

import (
	"fmt"

	"github.com/railcore/railcore/pkgs/protocol"
)

// Config bounds the encoder's configurable timing and repetition
// parameters, per the packet-timing table in the protocol description.
type Config struct {
	PreambleBits        uint8  // 9..30, default 16
	OneBitHalfPeriodUS   uint16 // 80..150, default 116
	ZeroBitHalfPeriodUS  uint16 // 160..800, default 200
	TailBits             uint8  // 2, or 4 when a RailCom cutout follows
	Repeat               uint8  // 1..10, default 3
	PomRepeat            uint8  // 1..30, default 3
	RailComEnabled       bool
}

// DefaultConfig returns the documented factory defaults.
func DefaultConfig() Config {
	return Config{
		PreambleBits:        16,
		OneBitHalfPeriodUS:  116,
		ZeroBitHalfPeriodUS: 200,
		TailBits:            2,
		Repeat:              3,
		PomRepeat:           3,
	}
}

// Field range bounds, enforced by ClampConfig.
const (
	MinPreambleBits = 9
	MaxPreambleBits = 30

	MinOneBitHalfPeriodUS = 80
	MaxOneBitHalfPeriodUS = 150

	MinZeroBitHalfPeriodUS = 160
	MaxZeroBitHalfPeriodUS = 800

	MinRepeat = 1
	MaxRepeat = 10

	MinPomRepeat = 1
	MaxPomRepeat = 30
)

func clampU8(v, lo, hi uint8) uint8 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func clampU16(v, lo, hi uint16) uint16 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// ClampConfig bounds every timing/repetition field in cfg to the ranges
// documented on Config, so a malformed or stale persisted value can never
// push the encoder outside what decoders are specified to accept.
func ClampConfig(cfg Config) Config {
	cfg.PreambleBits = clampU8(cfg.PreambleBits, MinPreambleBits, MaxPreambleBits)
	cfg.OneBitHalfPeriodUS = clampU16(cfg.OneBitHalfPeriodUS, MinOneBitHalfPeriodUS, MaxOneBitHalfPeriodUS)
	cfg.ZeroBitHalfPeriodUS = clampU16(cfg.ZeroBitHalfPeriodUS, MinZeroBitHalfPeriodUS, MaxZeroBitHalfPeriodUS)
	cfg.Repeat = clampU8(cfg.Repeat, MinRepeat, MaxRepeat)
	cfg.PomRepeat = clampU8(cfg.PomRepeat, MinPomRepeat, MaxPomRepeat)
	return cfg
}

// AddressBytes returns the on-wire address field for addr: the short
// form for 1..127, or the long form (192+addr_high, addr_low) for
// 128..10239.
func AddressBytes(addr uint16) ([]byte, error) {
	switch {
	case addr == 0:
		return []byte{0x00}, nil
	case addr <= 127:
		return []byte{byte(addr)}, nil
	case addr <= 10239:
		hi := byte(192 + (addr>>8)&0x3F)
		lo := byte(addr & 0xFF)
		return []byte{hi, lo}, nil
	default:
		return nil, fmt.Errorf("dcc: address %d out of range", addr)
	}
}

// IdlePacket is the well-known filler packet transmitted when nothing
// else is due: address 0xFF, data 0x00, checksum 0xFF.
func IdlePacket() []byte {
	return []byte{0xFF, 0x00, 0xFF}
}

// speedInstruction28 returns the baseline speed-and-direction
// instruction byte for 28-step mode from an internal speed byte whose
// bit 7 is direction and bits 0..6 are the step (only the low 5 of
// which are meaningful at 28 steps).
func speedInstruction28(speed byte) byte {
	dir := (speed & 0x80) >> 2
	return 0x40 | dir | (speed & 0x1F)
}

// speedInstruction14 is the 14-step analogue, using the low 4 bits.
func speedInstruction14(speed byte) byte {
	dir := (speed & 0x80) >> 2
	return 0x40 | dir | (speed & 0x0F)
}

// EncodeSpeed builds a speed/direction packet for addr at the given
// step count (14, 28, or 126), appending the XOR checksum.
func EncodeSpeed(addr uint16, speed byte, steps int) ([]byte, error) {
	addrBytes, err := AddressBytes(addr)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch steps {
	case 14:
		payload = []byte{speedInstruction14(speed)}
	case 28:
		payload = []byte{speedInstruction28(speed)}
	case 126:
		dir := speed & 0x80
		step := speed & 0x7F
		payload = []byte{0x3F, dir | step}
	default:
		return nil, fmt.Errorf("dcc: unsupported speed step count %d", steps)
	}

	pkt := append(append([]byte{}, addrBytes...), payload...)
	pkt = append(pkt, protocol.XorSum(pkt))
	return pkt, nil
}

// EncodeFunctionGroup1 builds the F0..F4 instruction (100DDDDD: D4=FL,
// D3..D0 = F4..F1).
func EncodeFunctionGroup1(addr uint16, funcs uint32) ([]byte, error) {
	addrBytes, err := AddressBytes(addr)
	if err != nil {
		return nil, err
	}
	fl := byte(0)
	if funcs&1 != 0 {
		fl = 0x10
	}
	bits := byte((funcs >> 1) & 0x0F)
	pkt := append(append([]byte{}, addrBytes...), 0x80|fl|bits)
	pkt = append(pkt, protocol.XorSum(pkt))
	return pkt, nil
}

// EncodeFunctionGroup2 builds the F5..F8 (0xB0) or F9..F12 (0xA0)
// instruction depending on upper.
func EncodeFunctionGroup2(addr uint16, funcs uint32, upper bool) ([]byte, error) {
	addrBytes, err := AddressBytes(addr)
	if err != nil {
		return nil, err
	}
	var instr byte
	if upper {
		instr = 0xA0 | byte((funcs>>9)&0x0F)
	} else {
		instr = 0xB0 | byte((funcs>>5)&0x0F)
	}
	pkt := append(append([]byte{}, addrBytes...), instr)
	pkt = append(pkt, protocol.XorSum(pkt))
	return pkt, nil
}

// EncodeFunctionGroupExtended builds the F13..F20 (0xDE) or F21..F28
// (0xDF) extended binary-state-style instruction, one whole byte of
// function bits per packet.
func EncodeFunctionGroupExtended(addr uint16, funcs uint32, high bool) ([]byte, error) {
	addrBytes, err := AddressBytes(addr)
	if err != nil {
		return nil, err
	}
	opcode := byte(0xDE)
	shift := uint(13)
	if high {
		opcode = 0xDF
		shift = 21
	}
	data := byte((funcs >> shift) & 0xFF)
	pkt := append(append([]byte{}, addrBytes...), opcode, data)
	pkt = append(pkt, protocol.XorSum(pkt))
	return pkt, nil
}

// EncodeAccessoryBasic builds the 10AAAAAA 1AAACDDR basic accessory
// packet for the given layout accessory address, coil output pair and
// on/off state. The C bit is always set; on sets the R bit (byte1 bit 0)
// and off clears it. The wire only carries a 9-bit decoder address;
// layoutAddr is the flattened 1..2048 turnout address, four per
// decoder, so it is divided by 4 before packing into byte0/addrHigh —
// the remaining two output bits travel separately as pair.
func EncodeAccessoryBasic(layoutAddr uint16, pair uint8, on bool) []byte {
	addr9 := layoutAddr / 4 // 9-bit decoder address space used on the wire
	byte0 := 0x80 | byte(addr9&0x3F)
	addrHigh := byte((addr9 >> 6) & 0x07)
	activate := byte(0)
	if on {
		activate = 0x01
	}
	byte1 := 0x80 | ((addrHigh ^ 0x07) << 4) | 0x08 | (pair&0x03)<<1 | activate
	pkt := []byte{byte0, byte1}
	return append(pkt, protocol.XorSum(pkt))
}

// EncodeCVAccessLong builds the extended (long-form) CV access
// instruction used both for programming-on-main and for the POM
// portion of service-mode XPOM: 1110CCVV VVVVVVVV DDDDDDDD, with
// CC=11 for a write and CC=10 for a verify-byte read.
func EncodeCVAccessLong(addr uint16, cv uint16, value byte, write bool) ([]byte, error) {
	if cv == 0 || cv > 1024 {
		return nil, fmt.Errorf("dcc: cv %d out of range", cv)
	}
	addrBytes, err := AddressBytes(addr)
	if err != nil {
		return nil, err
	}
	cvIdx := cv - 1
	cc := byte(0x08) // verify byte
	if write {
		cc = 0x0C
	}
	instr := 0xE0 | cc | byte((cvIdx>>8)&0x03)
	pkt := append(append([]byte{}, addrBytes...), instr, byte(cvIdx&0xFF), value)
	pkt = append(pkt, protocol.XorSum(pkt))
	return pkt, nil
}

// EncodeRegisterAccess builds the 0111CRRR DDDDDDDD physical
// register-mode write packet (register 1..8; register 8 is encoded as
// RRR=000). Paged mode reuses it to preset register 6 (the page
// register) before falling through to the Direct-mode bit-verify
// sequence for the registers within that page.
func EncodeRegisterAccess(reg uint8, value byte) ([]byte, error) {
	if reg == 0 || reg > 8 {
		return nil, fmt.Errorf("dcc: register %d out of range (1..8)", reg)
	}
	instr := 0x78 | (reg & 0x07)
	pkt := []byte{instr, value}
	return append(pkt, protocol.XorSum(pkt)), nil
}

// DecodeAccessoryAddress recovers the flattened layout accessory
// address and output pair from a basic accessory packet's two payload
// bytes, inverting EncodeAccessoryBasic's decoder/output split.
func DecodeAccessoryAddress(byte0, byte1 byte) (layoutAddr uint16, pair uint8) {
	addr9 := uint16(byte0&0x3F) | uint16((byte1&0x70)^0x70)<<2
	pair = (byte1 & 0x06) >> 1
	return addr9*4 + uint16(pair), pair
}

// RenderBits expands pkt (a complete byte sequence including its
// checksum) into the bit-interval stream for cfg, optionally followed
// by the four cutout tail bits. The high-impedance window itself is not
// part of the stream; it is only flagged via Packet.Cutout.
func RenderBits(cfg Config, pkt []byte, cutout bool) protocol.Packet {
	var intervals []protocol.Interval

	one := func() {
		intervals = append(intervals,
			protocol.Interval{Level: protocol.High, DurationUS: cfg.OneBitHalfPeriodUS},
			protocol.Interval{Level: protocol.Low, DurationUS: cfg.OneBitHalfPeriodUS},
		)
	}
	zero := func() {
		intervals = append(intervals,
			protocol.Interval{Level: protocol.High, DurationUS: cfg.ZeroBitHalfPeriodUS},
			protocol.Interval{Level: protocol.Low, DurationUS: cfg.ZeroBitHalfPeriodUS},
		)
	}

	for i := uint8(0); i < cfg.PreambleBits; i++ {
		one()
	}
	for bi, b := range pkt {
		zero() // byte start bit
		for bit := 7; bit >= 0; bit-- {
			if (b>>uint(bit))&1 == 1 {
				one()
			} else {
				zero()
			}
		}
		if bi == len(pkt)-1 {
			one() // packet end/stop bit
		}
	}

	tail := cfg.TailBits
	if cutout {
		tail = 4
	}
	for i := uint8(0); i < tail; i++ {
		one()
	}

	return protocol.Packet{Intervals: intervals, Repeat: cfg.Repeat, Cutout: cutout}
}
