package refresh

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/railcore/railcore/pkgs/configstore"
	"github.com/railcore/railcore/pkgs/locodb"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(t *testing.T) *Buffer {
	t.Helper()
	store, err := configstore.Open(filepath.Join(t.TempDir(), "locos.ini"), nil)
	require.NoError(t, err)
	db, err := locodb.Open(store)
	require.NoError(t, err)
	return New(db, nil)
}

func TestCallCreatesAtMostOneEntryPerAddress(t *testing.T) {
	buf := newTestBuffer(t)
	e1, err := buf.Call(12, true)
	require.NoError(t, err)
	e2, err := buf.Call(12, true)
	require.NoError(t, err)
	require.Same(t, e1, e2)
}

func TestCallWithoutTouchDoesNotReorder(t *testing.T) {
	buf := newTestBuffer(t)
	_, err := buf.Call(1, true)
	require.NoError(t, err)
	_, err = buf.Call(2, true)
	require.NoError(t, err)
	_, err = buf.Call(1, false)
	require.NoError(t, err)
	require.Equal(t, []uint16{1, 2}, buf.Rotation())
}

func TestSetSpeedTouchesAndReorders(t *testing.T) {
	buf := newTestBuffer(t)
	_, _ = buf.Call(1, true)
	_, _ = buf.Call(2, true)
	require.NoError(t, buf.SetSpeed(1, 0x8A))
	require.Equal(t, []uint16{2, 1}, buf.Rotation())

	snap, ok := buf.Snapshot(1)
	require.True(t, ok)
	require.EqualValues(t, 0x8A, snap.Speed)
}

func TestSetFuncMaskedOnlyTouchesSelectedBits(t *testing.T) {
	buf := newTestBuffer(t)
	_, _ = buf.Call(5, true)

	require.NoError(t, buf.SetFuncMasked(5, [4]uint32{0xF, 0, 0, 0}, [4]uint32{0xFF, 0, 0, 0}))
	snap, _ := buf.Snapshot(5)
	require.EqualValues(t, 0xF, snap.Funcs[0])

	require.NoError(t, buf.SetFuncMasked(5, [4]uint32{0, 0, 0, 0}, [4]uint32{0x0F, 0, 0, 0}))
	snap, _ = buf.Snapshot(5)
	require.EqualValues(t, 0, snap.Funcs[0])
}

func TestEmergencyStopPreservesDirection(t *testing.T) {
	buf := newTestBuffer(t)
	require.NoError(t, buf.SetSpeed(9, 0x8A))
	require.NoError(t, buf.EmergencyStop(9))
	snap, _ := buf.Snapshot(9)
	require.EqualValues(t, 0x80, snap.Speed)
}

func TestOutOfCapacity(t *testing.T) {
	buf := newTestBuffer(t)
	for i := uint16(1); i <= Capacity; i++ {
		_, err := buf.Call(i, true)
		require.NoError(t, err)
	}
	_, err := buf.Call(Capacity+1, true)
	require.ErrorIs(t, err, ErrOutOfCapacity)
}

func TestPopPOMDrainsInFIFOOrder(t *testing.T) {
	buf := newTestBuffer(t)
	e, err := buf.Call(7, true)
	require.NoError(t, err)
	e.POMQueue = append(e.POMQueue, POMRequest{CV: 1, Value: 3, Write: true})
	e.POMQueue = append(e.POMQueue, POMRequest{CV: 29, Write: false})

	first, ok := buf.PopPOM(7)
	require.True(t, ok)
	require.EqualValues(t, 1, first.CV)

	second, ok := buf.PopPOM(7)
	require.True(t, ok)
	require.EqualValues(t, 29, second.CV)

	_, ok = buf.PopPOM(7)
	require.False(t, ok)
}

func TestPopPOMUnknownAddressReturnsFalse(t *testing.T) {
	buf := newTestBuffer(t)
	_, ok := buf.PopPOM(42)
	require.False(t, ok)
}

func TestPurgeIdleRemovesStaleEntries(t *testing.T) {
	buf := newTestBuffer(t)
	e, err := buf.Call(3, true)
	require.NoError(t, err)
	e.Record.PurgeTimeoutMinutes = 1
	e.Record.Touch(time.Now().Add(-2 * time.Minute))

	buf.PurgeIdle(time.Now())
	_, ok := buf.Snapshot(3)
	require.False(t, ok)
}
