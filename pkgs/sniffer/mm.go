package sniffer

// MM pulse-width buckets in 100ns ticks (10 ticks = 1us).
const (
	mmFastShort100ns = 13 * 10
	mmSlowShort100ns = 26 * 10
	mmFastLong100ns  = 91 * 10
	mmSlowLong100ns  = 182 * 10

	// mmSyncPause100ns is the minimum gap (6ms) that marks a new packet.
	mmSyncPause100ns = 6000 * 10

	mmBucketTolerance100ns = 50 // +/- 5us classification window
)

// MMBucket is one of the four recognised pulse widths.
type MMBucket int

const (
	MMBucketFastShort MMBucket = iota
	MMBucketSlowShort
	MMBucketFastLong
	MMBucketSlowLong
	MMBucketInvalid
)

func classifyMMPulse(duration100ns uint32) MMBucket {
	near := func(v, target uint32) bool {
		if v > target {
			return v-target <= mmBucketTolerance100ns
		}
		return target-v <= mmBucketTolerance100ns
	}
	switch {
	case near(duration100ns, mmFastShort100ns):
		return MMBucketFastShort
	case near(duration100ns, mmSlowShort100ns):
		return MMBucketSlowShort
	case near(duration100ns, mmFastLong100ns):
		return MMBucketFastLong
	case near(duration100ns, mmSlowLong100ns):
		return MMBucketSlowLong
	default:
		return MMBucketInvalid
	}
}

type mmState int

const (
	mmSync mmState = iota
	mmFirstHalf
	mmInterGap
	mmSecondHalf
)

// MMDecoder recovers MM packets by requiring two bitwise-identical
// 18-pulse halves separated by a pause.
type MMDecoder struct {
	state mmState

	first  []MMBucket
	second []MMBucket

	OnPacket func(halfPulses []MMBucket)
}

const mmHalfPulseCount = 18

// PushPulse feeds one pulse duration into the decoder.
func (d *MMDecoder) PushPulse(duration100ns uint32) {
	if duration100ns >= mmSyncPause100ns {
		d.handleGap()
		return
	}

	bucket := classifyMMPulse(duration100ns)

	switch d.state {
	case mmSync:
		d.first = append(d.first[:0], bucket)
		d.state = mmFirstHalf

	case mmFirstHalf:
		d.first = append(d.first, bucket)
		if len(d.first) == mmHalfPulseCount {
			d.state = mmInterGap
		}

	case mmInterGap:
		// a short gap inside the expected pause region does not occur
		// in well-formed traffic; treat as resync.
		d.first = append(d.first[:0], bucket)
		d.state = mmFirstHalf

	case mmSecondHalf:
		d.second = append(d.second, bucket)
		if len(d.second) == mmHalfPulseCount {
			d.completePacket()
		}
	}
}

func (d *MMDecoder) handleGap() {
	if d.state == mmInterGap {
		d.state = mmSecondHalf
		d.second = d.second[:0]
	}
}

func (d *MMDecoder) completePacket() {
	identical := len(d.first) == len(d.second)
	if identical {
		for i := range d.first {
			if d.first[i] != d.second[i] {
				identical = false
				break
			}
		}
	}
	if identical {
		if d.OnPacket != nil {
			d.OnPacket(append([]MMBucket{}, d.first...))
		}
		d.state = mmSync
		d.first = nil
		d.second = nil
		return
	}
	// mismatch: the rejected second half becomes the candidate first
	// half of the next packet (resync per the MM decoding rule).
	d.first = append([]MMBucket{}, d.second...)
	d.second = nil
	if len(d.first) == mmHalfPulseCount {
		d.state = mmInterGap
	} else {
		d.state = mmFirstHalf
	}
}
