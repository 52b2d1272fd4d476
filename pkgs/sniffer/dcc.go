// Package sniffer classifies edge timestamps from the programming/
// analysis input into MM, DCC and M3 packets, and recovers RailCom RDS
// bit streams during cutout windows.
package sniffer

import "github.com/railcore/railcore/pkgs/protocol"

// dccShortLongThreshold100ns is the half-period boundary (80us = 800
// ticks of 100ns) between a "short" and "long" edge.
const dccShortLongThreshold100ns = 800

type dccState int

const (
	dccSync dccState = iota
	dccRxByte
	dccStopBit1
)

// AddressClass is the classification of a DCC packet's address field.
type AddressClass int

const (
	AddressBroadcast AddressClass = iota
	AddressShortLoco
	AddressBasicAccessory
	AddressExtendedAccessory
	AddressLongLoco
	AddressReserved
	AddressIdle
)

// ClassifyAddress inspects the first address byte of a decoded DCC
// packet and returns its class.
func ClassifyAddress(b0 byte) AddressClass {
	switch {
	case b0 == 0x00:
		return AddressBroadcast
	case b0 == 0xFF:
		return AddressIdle
	case b0 <= 127:
		return AddressShortLoco
	case b0 >= 0xC0 && b0 <= 0xE7:
		return AddressLongLoco
	case b0 >= 0x80 && b0 <= 0xBF:
		return AddressBasicAccessory
	case b0 >= 0xE8 && b0 <= 0xFE:
		return AddressExtendedAccessory
	default:
		return AddressReserved
	}
}

// DCCDecoder is a shift-register state machine that recovers DCC
// packets from a stream of half-bit edge durations (100ns units): two
// consecutive half-periods of matching length form one bit.
type DCCDecoder struct {
	state       dccState
	shortStreak int
	haveFirst   bool
	firstShort  bool

	bitBuf   byte
	bitCount int
	bytes    []byte

	// OnPacket is invoked with a verified (checksum-zero) packet and its
	// address classification.
	OnPacket func(bytes []byte, addrClass AddressClass)
}

// PushHalfPeriod feeds one measured half-period duration into the
// decoder.
func (d *DCCDecoder) PushHalfPeriod(duration100ns uint32) {
	isShort := duration100ns < dccShortLongThreshold100ns

	switch d.state {
	case dccSync:
		if isShort {
			d.shortStreak++
			return
		}
		// first long half-period: need exactly 2 (the start bit) after
		// >=17 short half-periods (the preamble).
		if d.shortStreak < 17 {
			d.shortStreak = 0
			return
		}
		if !d.haveFirst {
			d.haveFirst = true
			return
		}
		// second long half-period seen: start bit consumed, move on to
		// byte reception.
		d.haveFirst = false
		d.shortStreak = 0
		d.startByte()
		d.state = dccRxByte

	case dccRxByte:
		if !d.haveFirst {
			d.haveFirst = true
			d.firstShort = isShort
			return
		}
		d.haveFirst = false
		if isShort != d.firstShort {
			d.abort() // phase error
			return
		}
		bit := byte(0)
		if isShort {
			bit = 1
		}
		d.bitBuf = (d.bitBuf << 1) | bit
		d.bitCount++
		if d.bitCount == 8 {
			d.bytes = append(d.bytes, d.bitBuf)
			d.bitBuf = 0
			d.bitCount = 0
			d.state = dccStopBit1
		}

	case dccStopBit1:
		if !d.haveFirst {
			d.haveFirst = true
			d.firstShort = isShort
			return
		}
		d.haveFirst = false
		if isShort != d.firstShort {
			d.abort()
			return
		}
		if isShort {
			// 1 stop bit: packet complete
			d.finishPacket()
		} else {
			// 0 stop bit: another data byte follows
			d.state = dccRxByte
		}
	}
}

func (d *DCCDecoder) startByte() {
	d.bytes = d.bytes[:0]
	d.bitBuf = 0
	d.bitCount = 0
}

func (d *DCCDecoder) finishPacket() {
	defer d.reset()
	if len(d.bytes) == 0 {
		return
	}
	if protocol.XorSum(d.bytes) != 0 {
		return // ChecksumInvalid: silently dropped per error-handling policy
	}
	if d.OnPacket != nil {
		d.OnPacket(append([]byte{}, d.bytes...), ClassifyAddress(d.bytes[0]))
	}
}

func (d *DCCDecoder) abort() {
	d.reset()
}

func (d *DCCDecoder) reset() {
	d.state = dccSync
	d.shortStreak = 0
	d.haveFirst = false
	d.bitBuf = 0
	d.bitCount = 0
	d.bytes = nil
}
