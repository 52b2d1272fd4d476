// Package sequencer is the mode-aware state machine that interleaves
// protocol slots, inserts RailCom cutouts and enforces the system's
// operating mode. It is clocked by packet completion: Step emits one
// slot per call (a loco slot is its speed packet plus at most one
// pending POM packet), and mode transitions only ever take effect
// between Step calls, never mid-packet.
package sequencer

import (
	"fmt"
	"strings"
)

// Mode is one operating state of the track sequencer.
type Mode int

const (
	ModeStop Mode = iota
	ModeShort
	ModeHalt
	ModeGo
	ModeSigOn
	ModeDCCProg
	ModeTAMSProg
	ModeTestDrive
	ModeOverTemp
	ModePowerFail
)

func (m Mode) String() string {
	switch m {
	case ModeStop:
		return "STOP"
	case ModeShort:
		return "SHORT"
	case ModeHalt:
		return "HALT"
	case ModeGo:
		return "GO"
	case ModeSigOn:
		return "SIGON"
	case ModeDCCProg:
		return "DCCPROG"
	case ModeTAMSProg:
		return "TAMSPROG"
	case ModeTestDrive:
		return "TESTDRIVE"
	case ModeOverTemp:
		return "OVERTEMP"
	case ModePowerFail:
		return "POWERFAIL"
	default:
		return "UNKNOWN"
	}
}

// validTransitions enumerates the exit transitions allowed from each
// mode. ModePowerFail is terminal: no entry leaves it.
var validTransitions = map[Mode]map[Mode]bool{
	ModeStop:      {ModeGo: true},
	ModeShort:     {ModeStop: true},
	ModeHalt:      {ModeGo: true, ModeStop: true},
	ModeGo:        {ModeStop: true, ModeHalt: true, ModeShort: true, ModeDCCProg: true, ModeTAMSProg: true, ModeTestDrive: true, ModeOverTemp: true},
	ModeSigOn:     {ModeGo: true, ModeStop: true},
	ModeDCCProg:   {ModeStop: true},
	ModeTAMSProg:  {ModeStop: true},
	ModeTestDrive: {ModeStop: true, ModeGo: true},
	ModeOverTemp:  {ModeStop: true},
	ModePowerFail: {},
}

// CanTransition reports whether to is a legal exit transition from from.
func CanTransition(from, to Mode) bool {
	if from == to {
		return true
	}
	allowed, ok := validTransitions[from]
	return ok && allowed[to]
}

var modeNames = map[string]Mode{
	"STOP":      ModeStop,
	"SHORT":     ModeShort,
	"HALT":      ModeHalt,
	"GO":        ModeGo,
	"SIGON":     ModeSigOn,
	"DCCPROG":   ModeDCCProg,
	"TAMSPROG":  ModeTAMSProg,
	"TESTDRIVE": ModeTestDrive,
	"OVERTEMP":  ModeOverTemp,
	"POWERFAIL": ModePowerFail,
}

// ParseMode recognises the mode names in String, case-insensitively.
func ParseMode(s string) (Mode, bool) {
	m, ok := modeNames[strings.ToUpper(s)]
	return m, ok
}

// ErrIllegalTransition is returned by SetMode when the requested
// transition is not in the table for the current mode.
type ErrIllegalTransition struct {
	From, To Mode
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("sequencer: %s -> %s is not a legal transition", e.From, e.To)
}
