package sniffer

import (
	"testing"

	"github.com/railcore/railcore/pkgs/protocol/dcc"
	"github.com/stretchr/testify/require"
)

// halfPeriodsForPacket expands a complete DCC byte sequence (with its
// trailing checksum) into the half-period durations PushHalfPeriod
// expects, mirroring the encoder's own bit framing.
func halfPeriodsForPacket(cfg dcc.Config, pkt []byte) []uint32 {
	var out []uint32
	one := func() { out = append(out, uint32(cfg.OneBitHalfPeriodUS)*10, uint32(cfg.OneBitHalfPeriodUS)*10) }
	zero := func() { out = append(out, uint32(cfg.ZeroBitHalfPeriodUS)*10, uint32(cfg.ZeroBitHalfPeriodUS)*10) }

	for i := uint8(0); i < cfg.PreambleBits; i++ {
		one()
	}
	for bi, b := range pkt {
		zero()
		for bit := 7; bit >= 0; bit-- {
			if (b>>uint(bit))&1 == 1 {
				one()
			} else {
				zero()
			}
		}
		if bi == len(pkt)-1 {
			one()
		}
	}
	return out
}

func TestSnifferRoundTripsEncoderOutput(t *testing.T) {
	cfg := dcc.DefaultConfig()
	pkt, err := dcc.EncodeSpeed(3, 0x8A, 28)
	require.NoError(t, err)

	var got []byte
	var class AddressClass
	d := &DCCDecoder{OnPacket: func(b []byte, c AddressClass) {
		got = b
		class = c
	}}

	for _, half := range halfPeriodsForPacket(cfg, pkt) {
		d.PushHalfPeriod(half)
	}

	require.Equal(t, pkt, got)
	require.Equal(t, AddressShortLoco, class)
}

func TestMalformedChecksumIsSilentlyDropped(t *testing.T) {
	cfg := dcc.DefaultConfig()
	pkt, err := dcc.EncodeSpeed(3, 0x8A, 28)
	require.NoError(t, err)
	pkt[len(pkt)-1] ^= 0xFF // corrupt checksum

	called := false
	d := &DCCDecoder{OnPacket: func(b []byte, c AddressClass) { called = true }}
	for _, half := range halfPeriodsForPacket(cfg, pkt) {
		d.PushHalfPeriod(half)
	}
	require.False(t, called)
}

func TestClassifyAddressKinds(t *testing.T) {
	require.Equal(t, AddressBroadcast, ClassifyAddress(0x00))
	require.Equal(t, AddressIdle, ClassifyAddress(0xFF))
	require.Equal(t, AddressShortLoco, ClassifyAddress(0x03))
	require.Equal(t, AddressLongLoco, ClassifyAddress(0xC1))
	require.Equal(t, AddressBasicAccessory, ClassifyAddress(0x81))
}
