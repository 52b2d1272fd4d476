package booster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortDeclaredAfterSustainedOvercurrent(t *testing.T) {
	l := New()
	l.SetMaxCurrent(2000)
	l.state.ShortTimeMs = 10
	l.RequestOn(false)

	for i := 0; i < BoosterTimeoutTicks; i++ {
		l.Tick()
	}
	for i := 0; i < int(l.state.InrushTimeMs); i++ {
		l.Tick()
	}

	l.ReportCurrent(5000)
	var short bool
	for i := 0; i < 50 && !short; i++ {
		short = l.Tick()
	}
	require.True(t, short, "short was never declared under sustained overcurrent")
	require.False(t, l.Snapshot().On)
}

func TestDACStepsTowardTargetMonotonically(t *testing.T) {
	l := New()
	l.SetTargetVoltage(160)
	l.RequestOn(false)

	prev := l.DACCode()
	target := targetCode(160)
	for i := 0; i < BoosterTimeoutTicks+200; i++ {
		l.Tick()
		cur := l.DACCode()
		require.GreaterOrEqual(t, cur, prev)
		require.LessOrEqual(t, cur-prev, int32(DACStepsPerMs))
		prev = cur
	}
	require.Equal(t, target, l.DACCode())
}

func TestSetTargetVoltageDoesNotTouchDACDirectly(t *testing.T) {
	l := New()
	before := l.DACCode()
	l.SetTargetVoltage(200)
	require.Equal(t, before, l.DACCode())
}

func TestInrushSuppressesShortDetection(t *testing.T) {
	l := New()
	l.state.InrushTimeMs = 50
	l.RequestOn(false)
	for i := 0; i < BoosterTimeoutTicks; i++ {
		l.Tick()
	}
	l.ReportCurrent(999999)
	for i := 0; i < 50; i++ {
		short := l.Tick()
		require.False(t, short, "short must not be declared during inrush blanking")
	}
}
