package m3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeBeaconCarriesStationIDAndCounter(t *testing.T) {
	cfg := DefaultConfig()
	pkt := EncodeBeacon(cfg)
	require.NotEmpty(t, pkt.Intervals)
	require.EqualValues(t, cfg.Repeat, pkt.Repeat)
	require.Equal(t, EncodeDataPacket(cfg, []byte{0x12, 0x34, 0xA5}).Intervals, pkt.Intervals)
}

func TestSyncPatternPrecedesEveryPacket(t *testing.T) {
	cfg := DefaultConfig()
	a := EncodeDataPacket(cfg, []byte{0x01})
	b := EncodeDataPacket(cfg, []byte{0x01, 0x02})
	require.Equal(t, a.Intervals[:12], b.Intervals[:12])
}
