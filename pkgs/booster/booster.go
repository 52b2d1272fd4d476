// Package booster implements the supply voltage-ramp, current-limit
// and short-detection loop: a 1 kHz tick state machine driving a DAC
// toward a commanded target voltage.
package booster

import "sync"

// Voltage bounds, in 0.1V units.
const (
	MinVoltage01V = 0
	MaxVoltage01V = 250 // 25.0V

	// DASteps is the DAC's resolution; DAPassive is its 0V-equivalent
	// code and PassiveVoltage01V the voltage that code corresponds to
	// in the linear model used to compute the target code.
	DASteps         = 4096
	DAPassive       = 2048
	PassiveVoltage01V = 0

	// DACStepsPerMs bounds how far the DAC output may move in a single
	// 1ms tick.
	DACStepsPerMs = 40

	// BoosterTimeoutTicks is the post-off debounce before re-energising.
	BoosterTimeoutTicks = 50
	// RelaisTimeoutTicks is the extra settle time after switching the
	// programming-track relay.
	RelaisTimeoutTicks = 20
)

// State is the booster's live operating state.
type State struct {
	TargetVoltage01V  uint16
	ProgramVoltage01V uint16
	MaxCurrentMA      uint16
	ShortTimeMs       uint16
	InrushTimeMs      uint16

	On           bool
	OnProgTrack  bool
	electricalOn bool

	dacTarget  int32
	dacCurrent int32

	inrushRemainingMs int32
	shortAccumulator  int32
	actualCurrentMA   int32

	offDebounceTicks  int32
	relayDebounceTicks int32
}

// Loop owns a State plus the mutex guarding it; public setters post
// requested changes, and only the 1kHz Tick method mutates the DAC and
// current-limiter fields.
type Loop struct {
	mu    sync.Mutex
	state State
}

// New returns a Loop with sensible defaults; callers then apply the
// configured target/program voltage and limits.
func New() *Loop {
	return &Loop{state: State{
		ShortTimeMs:  100,
		InrushTimeMs: 100,
		MaxCurrentMA: 3000,
	}}
}

// SetTargetVoltage records the new running-track target. Idempotent:
// it never touches the DAC directly, only the value Tick ramps toward.
func (l *Loop) SetTargetVoltage(v01V uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.TargetVoltage01V = clampVoltage(v01V)
}

// SetProgramVoltage records the new programming-track target.
func (l *Loop) SetProgramVoltage(v01V uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.ProgramVoltage01V = clampVoltage(v01V)
}

// SetMaxCurrent records the new current limit in mA.
func (l *Loop) SetMaxCurrent(ma uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.MaxCurrentMA = ma
}

func clampVoltage(v uint16) uint16 {
	if v < MinVoltage01V {
		return MinVoltage01V
	}
	if v > MaxVoltage01V {
		return MaxVoltage01V
	}
	return v
}

// RequestOn commands the booster electrically on.
func (l *Loop) RequestOn(onProgTrack bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.On = true
	l.state.OnProgTrack = onProgTrack
}

// RequestOff commands the booster off.
func (l *Loop) RequestOff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.On = false
}

// ReportCurrent feeds in the latest current-sense reading in mA; Tick
// consults it each tick.
func (l *Loop) ReportCurrent(ma int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.actualCurrentMA = ma
}

// CurrentMA reports the last current reading fed in via ReportCurrent,
// satisfying pkgs/progtrack.CurrentMonitor.
func (l *Loop) CurrentMA() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.actualCurrentMA
}

// Snapshot returns a copy of the current state for diagnostics/UI.
func (l *Loop) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// targetCode computes the DAC code for a 0.1V target via the linear
// model dac = DA_PASSIVE + ((PASSIVE_VOLTAGE - v) * 149 + 5) / 10,
// clamped to [0, DASteps).
func targetCode(v01V uint16) int32 {
	code := DAPassive + ((PassiveVoltage01V-int32(v01V))*149+5)/10
	if code < 0 {
		code = 0
	}
	if code >= DASteps {
		code = DASteps - 1
	}
	return code
}

// Tick advances the booster state machine by one millisecond. It
// returns true exactly on the tick a short is newly declared, so the
// caller (CoreApp's 1kHz loop) can switch the sequencer to SHORT within
// the same tick.
func (l *Loop) Tick() (shortDetected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &l.state

	if s.OnProgTrack {
		s.dacTarget = targetCode(s.ProgramVoltage01V)
	} else {
		s.dacTarget = targetCode(s.TargetVoltage01V)
	}

	if s.On && !s.electricalOn {
		if s.offDebounceTicks < BoosterTimeoutTicks {
			s.offDebounceTicks++
			return false
		}
		s.electricalOn = true
		s.dacCurrent = 0
		s.inrushRemainingMs = int32(s.InrushTimeMs)
		s.shortAccumulator = 0
		s.offDebounceTicks = 0
	}
	if !s.On && s.electricalOn {
		s.electricalOn = false
		s.offDebounceTicks = 0
	}

	if s.inrushRemainingMs > 0 {
		s.inrushRemainingMs--
	} else if s.electricalOn {
		if s.actualCurrentMA > int32(s.MaxCurrentMA) {
			s.shortAccumulator += 2
		} else if s.shortAccumulator > 0 {
			s.shortAccumulator--
		}
		if s.shortAccumulator > 2*int32(s.ShortTimeMs) {
			s.electricalOn = false
			s.On = false
			return true
		}
	}

	step := int32(DACStepsPerMs)
	if s.dacCurrent < s.dacTarget {
		s.dacCurrent += step
		if s.dacCurrent > s.dacTarget {
			s.dacCurrent = s.dacTarget
		}
	} else if s.dacCurrent > s.dacTarget {
		s.dacCurrent -= step
		if s.dacCurrent < s.dacTarget {
			s.dacCurrent = s.dacTarget
		}
	}

	return false
}

// DACCode returns the current DAC output code.
func (l *Loop) DACCode() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.dacCurrent
}
