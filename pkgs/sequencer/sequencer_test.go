package sequencer

import (
	"path/filepath"
	"testing"

	"github.com/railcore/railcore/pkgs/configstore"
	"github.com/railcore/railcore/pkgs/eventbus"
	"github.com/railcore/railcore/pkgs/hardware"
	"github.com/railcore/railcore/pkgs/locodb"
	"github.com/railcore/railcore/pkgs/refresh"
	"github.com/railcore/railcore/pkgs/requestqueue"
	"github.com/stretchr/testify/require"
)

func newTestSequencer(t *testing.T) (*Sequencer, *hardware.Simulated, *requestqueue.Queue, *refresh.Buffer) {
	t.Helper()
	store, err := configstore.Open(filepath.Join(t.TempDir(), "locos.ini"), nil)
	require.NoError(t, err)
	db, err := locodb.Open(store)
	require.NoError(t, err)
	buf := refresh.New(db, nil)
	q := requestqueue.New(buf, nil)
	sink := hardware.NewSimulated(64)
	seq := New(buf, q, eventbus.New(nil), sink)
	return seq, sink, q, buf
}

func TestModeStartsInStopAndEmitsNothing(t *testing.T) {
	seq, sink, _, _ := newTestSequencer(t)
	require.Equal(t, ModeStop, seq.Mode())
	seq.Step()
	require.Empty(t, sink.Log())
}

func TestStopBlocksFurtherEmissionUntilGo(t *testing.T) {
	seq, sink, q, _ := newTestSequencer(t)
	require.NoError(t, seq.SetMode(ModeGo))
	seq.Step()

	require.NoError(t, q.Enqueue(requestqueue.Request{Kind: requestqueue.KindSetSpeed, Addr: 3, Speed: 0x8A}))
	seq.Step()
	require.NotEmpty(t, sink.Log())

	require.NoError(t, seq.SetMode(ModeStop))
	seq.Step()
	before := len(sink.Log())
	for i := 0; i < 5; i++ {
		seq.Step()
	}
	require.Equal(t, before, len(sink.Log()), "no packet may be emitted once STOP is applied")
}

func TestIllegalTransitionIsRejected(t *testing.T) {
	seq, _, _, _ := newTestSequencer(t)
	err := seq.SetMode(ModeHalt)
	require.Error(t, err)
	require.Equal(t, ModeStop, seq.Mode())
}

func TestAccessoryCommandsTakePriorityOverLocoRotation(t *testing.T) {
	seq, sink, q, _ := newTestSequencer(t)
	require.NoError(t, seq.SetMode(ModeGo))
	seq.Step()

	require.NoError(t, q.Enqueue(requestqueue.Request{Kind: requestqueue.KindSetSpeed, Addr: 5, Speed: 0x80}))
	seq.Step()
	locoOnly := len(sink.Log())

	seq.QueueAccessory(AccessoryCommand{Address: 10, On: true})
	seq.Step()
	require.Greater(t, len(sink.Log()), locoOnly)
}

func TestPendingPOMIsDrainedAlongsideLocoRotation(t *testing.T) {
	seq, sink, q, buf := newTestSequencer(t)
	require.NoError(t, seq.SetMode(ModeGo))
	seq.Step()

	require.NoError(t, q.Enqueue(requestqueue.Request{Kind: requestqueue.KindSetSpeed, Addr: 3, Speed: 0x8A}))
	require.NoError(t, q.Enqueue(requestqueue.Request{
		Kind: requestqueue.KindPOM,
		Addr: 3,
		POM:  refresh.POMRequest{CV: 29, Value: 6, Write: true},
	}))
	seq.Step() // drains the queue and rotates loco 3: speed packet plus the pending POM packet
	require.NotEmpty(t, sink.Log())

	_, pending := buf.PopPOM(3)
	require.False(t, pending, "the POM request should have been drained exactly once")
}

func TestParseModeIsCaseInsensitive(t *testing.T) {
	m, ok := ParseMode("go")
	require.True(t, ok)
	require.Equal(t, ModeGo, m)

	m, ok = ParseMode("DccProg")
	require.True(t, ok)
	require.Equal(t, ModeDCCProg, m)
}

func TestParseModeRejectsUnknownName(t *testing.T) {
	_, ok := ParseMode("WARP")
	require.False(t, ok)
}
