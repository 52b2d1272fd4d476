package requestqueue

import (
	"path/filepath"
	"testing"

	"github.com/railcore/railcore/pkgs/configstore"
	"github.com/railcore/railcore/pkgs/locodb"
	"github.com/railcore/railcore/pkgs/refresh"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *refresh.Buffer) {
	t.Helper()
	store, err := configstore.Open(filepath.Join(t.TempDir(), "locos.ini"), nil)
	require.NoError(t, err)
	db, err := locodb.Open(store)
	require.NoError(t, err)
	buf := refresh.New(db, nil)
	return New(buf, nil), buf
}

func TestEnqueueRejectsInvalidAddress(t *testing.T) {
	q, _ := newTestQueue(t)
	err := q.Enqueue(Request{Kind: KindSetSpeed, Addr: 20000})
	require.Error(t, err)
}

func TestDrainAppliesInSubmissionOrderForSameAddress(t *testing.T) {
	q, buf := newTestQueue(t)
	require.NoError(t, q.Enqueue(Request{Kind: KindSetSpeed, Addr: 3, Speed: 0x01}))
	require.NoError(t, q.Enqueue(Request{Kind: KindSetSpeed, Addr: 3, Speed: 0x8A}))

	q.Drain()
	snap, ok := buf.Snapshot(3)
	require.True(t, ok)
	require.EqualValues(t, 0x8A, snap.Speed)
}

func TestDrainClearsQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	require.NoError(t, q.Enqueue(Request{Kind: KindSetSpeed, Addr: 1}))
	require.Equal(t, 1, q.Len())
	q.Drain()
	require.Equal(t, 0, q.Len())
}

func TestSpeedBeforeFunctionVisibleNoLaterThanFunction(t *testing.T) {
	q, buf := newTestQueue(t)
	require.NoError(t, q.Enqueue(Request{Kind: KindSetSpeed, Addr: 7, Speed: 0x85}))
	require.NoError(t, q.Enqueue(Request{Kind: KindSetFunc, Addr: 7, FuncIdx: 0, FuncOn: true}))
	q.Drain()

	snap, ok := buf.Snapshot(7)
	require.True(t, ok)
	require.EqualValues(t, 0x85, snap.Speed)
	require.EqualValues(t, 1, snap.Funcs[0]&1)
}
