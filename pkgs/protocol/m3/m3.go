// Package m3 builds the Manchester-like M3 signal: a six-edge sync
// pattern followed by payload bits, plus the periodic station-ID
// beacon.
package m3

import "github.com/railcore/railcore/pkgs/protocol"

// Config bounds the encoder's repetition count and beacon identity.
type Config struct {
	Repeat          uint8 // 1..10, default 3
	StationID       uint16
	AnnounceCounter uint8
}

// DefaultConfig returns the documented factory defaults.
func DefaultConfig() Config {
	return Config{Repeat: 3, StationID: 0x1234, AnnounceCounter: 0xA5}
}

// bitPeriodUS is the Manchester half-period used for every M3 edge.
const bitPeriodUS = 28

// syncPattern is the six-symbol LSLLSL sync sequence preceding every
// packet: Long/Short edge markers rendered as two half-periods or one.
var syncPattern = [6]bool{true, false, true, true, false, true} // true=Long, false=Short

func manchesterBit(bit bool) []protocol.Interval {
	if bit {
		return []protocol.Interval{
			{Level: protocol.High, DurationUS: bitPeriodUS},
			{Level: protocol.Low, DurationUS: bitPeriodUS},
		}
	}
	return []protocol.Interval{
		{Level: protocol.Low, DurationUS: bitPeriodUS},
		{Level: protocol.High, DurationUS: bitPeriodUS},
	}
}

func syncIntervals() []protocol.Interval {
	var out []protocol.Interval
	for _, long := range syncPattern {
		if long {
			out = append(out,
				protocol.Interval{Level: protocol.High, DurationUS: bitPeriodUS * 2},
				protocol.Interval{Level: protocol.Low, DurationUS: bitPeriodUS * 2},
			)
		} else {
			out = append(out,
				protocol.Interval{Level: protocol.High, DurationUS: bitPeriodUS},
				protocol.Interval{Level: protocol.Low, DurationUS: bitPeriodUS},
			)
		}
	}
	return out
}

// EncodeDataPacket renders payload (MSB-first) preceded by the sync
// pattern.
func EncodeDataPacket(cfg Config, payload []byte) protocol.Packet {
	intervals := syncIntervals()
	for _, b := range payload {
		for bit := 7; bit >= 0; bit-- {
			intervals = append(intervals, manchesterBit((b>>uint(bit))&1 == 1)...)
		}
	}
	return protocol.Packet{Intervals: intervals, Repeat: cfg.Repeat}
}

// EncodeBeacon renders the periodic station announcement: sync pattern
// followed by the 16-bit station ID and the announce counter.
func EncodeBeacon(cfg Config) protocol.Packet {
	payload := []byte{byte(cfg.StationID >> 8), byte(cfg.StationID & 0xFF), cfg.AnnounceCounter}
	return EncodeDataPacket(cfg, payload)
}
