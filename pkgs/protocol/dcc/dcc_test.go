package dcc

import (
	"testing"

	"github.com/railcore/railcore/pkgs/protocol"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeSpeed28MatchesKnownVector(t *testing.T) {
	pkt, err := EncodeSpeed(3, 0x8A, 28)
	require.NoError(t, err)
	require.Equal(t, []byte{0x03, 0x6A, 0x69}, pkt)
}

func TestIdlePacketIsWellKnownBytes(t *testing.T) {
	require.Equal(t, []byte{0xFF, 0x00, 0xFF}, IdlePacket())
}

func TestAddressBytesShortAndLongForm(t *testing.T) {
	short, err := AddressBytes(42)
	require.NoError(t, err)
	require.Equal(t, []byte{42}, short)

	long, err := AddressBytes(300)
	require.NoError(t, err)
	require.Equal(t, byte(192+(300>>8)&0x3F), long[0])
	require.Equal(t, byte(300&0xFF), long[1])
}

func TestEveryEmittedPacketXorsToZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		addr := rapid.Uint16Range(1, 10239).Draw(t, "addr")
		speed := rapid.Uint16Range(0, 255).Draw(t, "speed")
		steps := rapid.SampledFrom([]int{14, 28, 126}).Draw(t, "steps")

		pkt, err := EncodeSpeed(addr, byte(speed), steps)
		require.NoError(t, err)
		require.EqualValues(t, 0, protocol.XorSum(pkt))
	})
}

func TestEncodeCVAccessLongWriteSetsCCBits(t *testing.T) {
	pkt, err := EncodeCVAccessLong(3, 29, 0x06, true)
	require.NoError(t, err)
	require.EqualValues(t, 0, protocol.XorSum(pkt))
	require.Equal(t, byte(0xE0|0x0C), pkt[1])
	require.Equal(t, byte(28), pkt[2]) // cv-1
	require.Equal(t, byte(0x06), pkt[3])
}

func TestEncodeCVAccessLongVerifyClearsWriteBit(t *testing.T) {
	pkt, err := EncodeCVAccessLong(3, 29, 0, false)
	require.NoError(t, err)
	require.Equal(t, byte(0xE0|0x08), pkt[1])
}

func TestEncodeCVAccessLongRejectsOutOfRangeCV(t *testing.T) {
	_, err := EncodeCVAccessLong(3, 0, 0, true)
	require.Error(t, err)
	_, err = EncodeCVAccessLong(3, 1025, 0, true)
	require.Error(t, err)
}

func TestEveryCVAccessLongPacketXorsToZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		addr := rapid.Uint16Range(1, 10239).Draw(t, "addr")
		cv := rapid.Uint16Range(1, 1024).Draw(t, "cv")
		value := rapid.Uint16Range(0, 255).Draw(t, "value")
		write := rapid.Bool().Draw(t, "write")

		pkt, err := EncodeCVAccessLong(addr, cv, byte(value), write)
		require.NoError(t, err)
		require.EqualValues(t, 0, protocol.XorSum(pkt))
	})
}

func TestEncodeAccessoryBasicMatchesDocumentedScenario(t *testing.T) {
	on := EncodeAccessoryBasic(5, 0, true)
	require.Equal(t, []byte{0x81, 0xF9}, on[:2])
	require.EqualValues(t, 0, protocol.XorSum(on))

	off := EncodeAccessoryBasic(5, 0, false)
	require.Equal(t, []byte{0x81, 0xF8}, off[:2])
	require.EqualValues(t, 0, protocol.XorSum(off))
}

func TestDecodeAccessoryAddressRoundTripsOnFourAlignedAddresses(t *testing.T) {
	for _, addr := range []uint16{4, 8, 64, 2044} {
		pkt := EncodeAccessoryBasic(addr, 0, true)
		got, pair := DecodeAccessoryAddress(pkt[0], pkt[1])
		require.Equal(t, addr, got)
		require.EqualValues(t, 0, pair)
	}
}

func TestDecodeAccessoryAddressRecoversPairBits(t *testing.T) {
	pkt := EncodeAccessoryBasic(8, 3, true)
	addr, pair := DecodeAccessoryAddress(pkt[0], pkt[1])
	require.Equal(t, uint16(8+3), addr)
	require.EqualValues(t, 3, pair)
}

func TestClampConfigBoundsEveryField(t *testing.T) {
	low := ClampConfig(Config{
		PreambleBits:        1,
		OneBitHalfPeriodUS:  10,
		ZeroBitHalfPeriodUS: 10,
		Repeat:              0,
		PomRepeat:           0,
	})
	require.EqualValues(t, MinPreambleBits, low.PreambleBits)
	require.EqualValues(t, MinOneBitHalfPeriodUS, low.OneBitHalfPeriodUS)
	require.EqualValues(t, MinZeroBitHalfPeriodUS, low.ZeroBitHalfPeriodUS)
	require.EqualValues(t, MinRepeat, low.Repeat)
	require.EqualValues(t, MinPomRepeat, low.PomRepeat)

	high := ClampConfig(Config{
		PreambleBits:        255,
		OneBitHalfPeriodUS:  9000,
		ZeroBitHalfPeriodUS: 9000,
		Repeat:              255,
		PomRepeat:           255,
	})
	require.EqualValues(t, MaxPreambleBits, high.PreambleBits)
	require.EqualValues(t, MaxOneBitHalfPeriodUS, high.OneBitHalfPeriodUS)
	require.EqualValues(t, MaxZeroBitHalfPeriodUS, high.ZeroBitHalfPeriodUS)
	require.EqualValues(t, MaxRepeat, high.Repeat)
	require.EqualValues(t, MaxPomRepeat, high.PomRepeat)

	def := DefaultConfig()
	require.Equal(t, def, ClampConfig(def))
}

func TestEncodeRegisterAccessRejectsOutOfRangeRegister(t *testing.T) {
	_, err := EncodeRegisterAccess(0, 0)
	require.Error(t, err)
	_, err = EncodeRegisterAccess(9, 0)
	require.Error(t, err)
}

func TestEncodeRegisterAccessXorsToZero(t *testing.T) {
	for reg := uint8(1); reg <= 8; reg++ {
		pkt, err := EncodeRegisterAccess(reg, 0x42)
		require.NoError(t, err)
		require.EqualValues(t, 0, protocol.XorSum(pkt))
	}
}

func TestRenderBitsPreambleIsAllOneBits(t *testing.T) {
	cfg := DefaultConfig()
	pkt, err := EncodeSpeed(3, 0x8A, 28)
	require.NoError(t, err)
	rendered := RenderBits(cfg, pkt, false)

	for i := 0; i < int(cfg.PreambleBits)*2; i += 2 {
		require.Equal(t, protocol.High, rendered.Intervals[i].Level)
		require.EqualValues(t, cfg.OneBitHalfPeriodUS, rendered.Intervals[i].DurationUS)
	}
}

func TestRenderBitsCutoutExtendsTailTo4Bits(t *testing.T) {
	cfg := DefaultConfig()
	pkt, err := EncodeSpeed(3, 0x8A, 28)
	require.NoError(t, err)

	normal := RenderBits(cfg, pkt, false)
	withCutout := RenderBits(cfg, pkt, true)
	require.Greater(t, len(withCutout.Intervals), len(normal.Intervals))
	require.True(t, withCutout.Cutout)
}
