package sniffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pulseDuration(b MMBucket) uint32 {
	switch b {
	case MMBucketFastShort:
		return mmFastShort100ns
	case MMBucketSlowShort:
		return mmSlowShort100ns
	case MMBucketFastLong:
		return mmFastLong100ns
	default:
		return mmSlowLong100ns
	}
}

func TestMMDecoderAcceptsIdenticalHalves(t *testing.T) {
	half := make([]MMBucket, mmHalfPulseCount)
	for i := range half {
		if i%2 == 0 {
			half[i] = MMBucketSlowShort
		} else {
			half[i] = MMBucketSlowLong
		}
	}

	var got []MMBucket
	d := &MMDecoder{OnPacket: func(p []MMBucket) { got = p }}

	for _, b := range half {
		d.PushPulse(pulseDuration(b))
	}
	d.PushPulse(mmSyncPause100ns + 1)
	for _, b := range half {
		d.PushPulse(pulseDuration(b))
	}

	require.Equal(t, half, got)
}

func TestMMDecoderRejectsMismatchedHalves(t *testing.T) {
	half := make([]MMBucket, mmHalfPulseCount)
	for i := range half {
		half[i] = MMBucketSlowShort
	}
	other := make([]MMBucket, mmHalfPulseCount)
	copy(other, half)
	other[0] = MMBucketSlowLong

	called := false
	d := &MMDecoder{OnPacket: func(p []MMBucket) { called = true }}
	for _, b := range half {
		d.PushPulse(pulseDuration(b))
	}
	d.PushPulse(mmSyncPause100ns + 1)
	for _, b := range other {
		d.PushPulse(pulseDuration(b))
	}
	require.False(t, called)
}

func TestClassifyMMPulseBuckets(t *testing.T) {
	require.Equal(t, MMBucketFastShort, classifyMMPulse(mmFastShort100ns))
	require.Equal(t, MMBucketSlowShort, classifyMMPulse(mmSlowShort100ns))
	require.Equal(t, MMBucketFastLong, classifyMMPulse(mmFastLong100ns))
	require.Equal(t, MMBucketSlowLong, classifyMMPulse(mmSlowLong100ns))
	require.Equal(t, MMBucketInvalid, classifyMMPulse(5000))
}
