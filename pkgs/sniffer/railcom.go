package sniffer

// RailCom recovers decoder telemetry from the cutout window: a
// free-running 19us reference clock whose phase swaps encode bits, read
// out through a small state machine and verified with a non-standard
// CRC-8.

const railcomReferenceClock100ns = 190 // 19us in 100ns ticks

type railcomState int

const (
	railcomSearching railcomState = iota
	railcomBitlock
	railcomReading
)

// DecoderReply is produced on a successful RailCom decode, or carries
// an error message type on CRC failure / short stream.
type DecoderReply struct {
	DecoderAddress uint16
	MessageType    ReplyType
	Bytes          []byte
}

// ReplyType enumerates the RailCom message kinds.
type ReplyType int

const (
	ReplyCVValue ReplyType = iota
	ReplyXPOMWindow
	ReplyM3Block
	ReplyTimeout
	ReplyInvalid
	ReplyNoAnswer
	ReplyError
)

// RailComDecoder implements the RDS PLL bit recovery and CRC check for
// one cutout window.
type RailComDecoder struct {
	state railcomState

	offsets    [8]int32
	offsetHead int
	filled     int

	fullSwapStreak int
	rollingBits    byte
	rollingBitCnt  int

	bytes []byte
	crc   byte

	lastEdge100ns int64
	haveLast      bool

	OnReply func(DecoderReply)
}

// Reset clears state for a fresh cutout window.
func (r *RailComDecoder) Reset() {
	*r = RailComDecoder{OnReply: r.OnReply}
}

// PushEdge feeds one edge timestamp (100ns units, free-running from the
// first edge of the window).
func (r *RailComDecoder) PushEdge(at100ns int64) {
	if !r.haveLast {
		r.haveLast = true
		r.lastEdge100ns = at100ns
		return
	}
	offset := int32(at100ns - r.lastEdge100ns)
	r.lastEdge100ns = at100ns

	prevAvg := r.average()
	r.offsets[r.offsetHead%8] = offset
	r.offsetHead++
	if r.filled < 8 {
		r.filled++
	}
	newAvg := r.average()

	diff := newAvg - prevAvg
	if diff < 0 {
		diff = -diff
	}
	if diff <= 50 {
		return
	}

	// A swap was registered; classify by where the offset landed.
	switch {
	case offset >= 20 && offset <= 28:
		r.consumeBit(0)
	case offset >= 44 && offset <= 52:
		r.consumeBit(1)
		r.fullSwapStreak++
	default:
		r.fullSwapStreak = 0
		return
	}

	if r.state == railcomSearching && r.fullSwapStreak >= 8 {
		r.state = railcomBitlock
	}
}

func (r *RailComDecoder) average() int32 {
	if r.filled == 0 {
		return 0
	}
	var sum int32
	for i := 0; i < r.filled; i++ {
		sum += r.offsets[i]
	}
	return sum / int32(r.filled)
}

func (r *RailComDecoder) consumeBit(bit byte) {
	r.rollingBits = (r.rollingBits << 1) | bit
	r.rollingBitCnt++

	if r.state == railcomBitlock {
		if r.rollingBits&0x07 == 0x02 { // pattern "010" in the low 3 bits
			r.state = railcomReading
			r.rollingBitCnt = 0
			r.bytes = nil
			r.crc = 0
			return
		}
	}

	if r.state != railcomReading {
		return
	}
	if r.rollingBitCnt%8 == 0 {
		b := r.rollingBits
		r.bytes = append(r.bytes, b)
		r.crc = updateCRC(r.crc, b)
	}
}

// updateCRC applies RailCom's non-standard CRC-8 update, per the
// polynomial x^8 + x^2 + x + 1 variant used on the wire.
func updateCRC(crc, b byte) byte {
	v := uint16(crc) ^ (uint16(crc) << 1) ^ (uint16(crc) << 2) ^ uint16(b)
	if v&0x100 != 0 {
		v ^= 0x107
	}
	if v&0x200 != 0 {
		v ^= 0x20E
	}
	return byte(v)
}

// Finish is called at the end of the cutout window; it reports the
// decoded reply (or an error reply) via OnReply.
func (r *RailComDecoder) Finish() {
	if r.OnReply == nil {
		return
	}
	if r.state != railcomReading || len(r.bytes) < 2 {
		r.OnReply(DecoderReply{MessageType: ReplyNoAnswer})
		return
	}
	payload := r.bytes[:len(r.bytes)-1]
	want := r.bytes[len(r.bytes)-1]
	if updateCRCStream(payload) != want {
		r.OnReply(DecoderReply{MessageType: ReplyError})
		return
	}
	r.OnReply(DecoderReply{MessageType: ReplyCVValue, Bytes: payload})
}

func updateCRCStream(bytes []byte) byte {
	var crc byte
	for _, b := range bytes {
		crc = updateCRC(crc, b)
	}
	return crc
}
