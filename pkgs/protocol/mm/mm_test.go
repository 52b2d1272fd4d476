package mm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeLocoPacketRejectsOutOfRangeAddress(t *testing.T) {
	_, err := EncodeLocoPacket(0, false, false, 0)
	require.Error(t, err)
	_, err = EncodeLocoPacket(81, false, false, 0)
	require.Error(t, err)
}

func TestRenderDoubledHalvesAreIdentical(t *testing.T) {
	cfg := DefaultConfig()
	p, err := EncodeLocoPacket(3, true, false, 0x5)
	require.NoError(t, err)

	rendered := RenderDoubled(cfg, p)
	require.True(t, HalvesIdentical(rendered, len(RenderHalf(cfg, p))))
}

func TestClampPauseUSClampsBothBoundaries(t *testing.T) {
	low := ClampPauseUS(Config{PauseUS: 999})
	require.EqualValues(t, 1000, low.PauseUS)

	high := ClampPauseUS(Config{PauseUS: 6000})
	require.EqualValues(t, 5000, high.PauseUS)

	inRange := ClampPauseUS(Config{PauseUS: 1500})
	require.EqualValues(t, 1500, inRange.PauseUS)
}

func TestDoubledHalvesPauseWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pause := rapid.Uint16Range(1000, 5000).Draw(t, "pause")
		addr := rapid.Uint8Range(1, 80).Draw(t, "addr")
		data := rapid.Uint8Range(0, 15).Draw(t, "data")

		cfg := Config{PauseUS: pause, Repeat: 3}
		p, err := EncodeLocoPacket(addr, false, true, data)
		require.NoError(t, err)

		rendered := RenderDoubled(cfg, p)
		half := RenderHalf(cfg, p)
		require.True(t, HalvesIdentical(rendered, len(half)))

		pauseInterval := rendered.Intervals[len(half)]
		require.GreaterOrEqual(t, pauseInterval.DurationUS, uint16(1000))
		require.LessOrEqual(t, pauseInterval.DurationUS, uint16(5000))
	})
}
