package progtrack

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/railcore/railcore/pkgs/hardware"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	ma int32
}

func (f *fakeMonitor) CurrentMA() int32 { return atomic.LoadInt32(&f.ma) }
func (f *fakeMonitor) set(v int32)      { atomic.StoreInt32(&f.ma, v) }

func TestReadCVTimesOutWithNoAck(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	mon := &fakeMonitor{}
	c := New(sink, mon)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.ReadCV(ctx, 1)
	require.Error(t, err)
}

func TestWriteCVOutOfRangeRejected(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	c := New(sink, &fakeMonitor{})
	err := c.WriteCV(context.Background(), 0, 5)
	require.Error(t, err)
	err = c.WriteCV(context.Background(), 2000, 5)
	require.Error(t, err)
}

func TestReadCVRegisterModeRejectsCVOutsideEightRegisters(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	c := New(sink, &fakeMonitor{})
	c.SetMode(ModeRegister)

	_, err := c.ReadCV(context.Background(), 9)
	require.Error(t, err)
}

func TestReadCVMMModeRejectsCVAccess(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	c := New(sink, &fakeMonitor{})
	c.SetMode(ModeMM)

	_, err := c.ReadCV(context.Background(), 1)
	require.Error(t, err)
	err = c.WriteCV(context.Background(), 1, 5)
	require.Error(t, err)
}

func TestReadCVPagedModeSelectsPageBeforeTimingOut(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	c := New(sink, &fakeMonitor{})
	c.SetMode(ModePaged)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ReadCV(ctx, 5)
	require.Error(t, err) // no ack ever arrives; page-select itself must not panic or hang
}

func TestProgramMMAddressRejectsOutOfRangeAddress(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	c := New(sink, &fakeMonitor{})
	err := c.ProgramMMAddress(context.Background(), 0)
	require.Error(t, err)
	err = c.ProgramMMAddress(context.Background(), 81)
	require.Error(t, err)
}

func TestProgramMMAddressAcksOnSustainedCurrent(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	mon := &fakeMonitor{}
	c := New(sink, mon)

	go func() {
		time.Sleep(2 * time.Millisecond)
		mon.set(200)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.ProgramMMAddress(ctx, 3))
}

func TestWaitForAckDetectsSustainedSurge(t *testing.T) {
	sink := hardware.NewSimulated(1024)
	mon := &fakeMonitor{}
	c := New(sink, mon)

	go func() {
		time.Sleep(2 * time.Millisecond)
		mon.set(200)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	acked, err := c.waitForAck(ctx)
	require.NoError(t, err)
	require.True(t, acked)
}
