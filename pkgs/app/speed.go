package app

import (
	"fmt"

	"github.com/railcore/railcore/pkgs/locodb"
	"github.com/railcore/railcore/pkgs/requestqueue"
)

// formatForSteps maps an operator-chosen speed-step count to the
// locomotive database format that drives that step count on the wire.
func formatForSteps(steps uint8) (locodb.Format, error) {
	switch steps {
	case 14:
		return locodb.FormatDCC14, nil
	case 28:
		return locodb.FormatDCC28, nil
	case 128:
		return locodb.FormatDCC126, nil
	default:
		return 0, fmt.Errorf("invalid speed steps %d (must be 14, 28, or 128)", steps)
	}
}

// packSpeed folds a direction bit and a step magnitude into the single
// byte the refresh buffer and protocol encoders share: bit 7 direction,
// bits 0..6 step.
func packSpeed(step uint8, forward bool) byte {
	b := step & 0x7F
	if forward {
		b |= 0x80
	}
	return b
}

// SetSpeedAction sets the speed and direction of locoId, updating its
// stored format if the requested step count differs from what is on
// file so the sequencer renders it correctly on the next rotation.
func (app *CoreApp) SetSpeedAction(locoId uint16, speed uint8, forward bool, speedSteps uint8) error {
	if err := app.Initialize(); err != nil {
		return err
	}

	format, err := formatForSteps(speedSteps)
	if err != nil {
		return err
	}

	rec, err := app.locos.Get(locoId)
	if err != nil {
		return err
	}
	if rec.Format != format {
		rec.SetFormat(format)
		if err := app.locos.Put(rec); err != nil {
			return err
		}
	}

	return app.queue.Enqueue(requestqueue.Request{
		Kind:  requestqueue.KindSetSpeed,
		Addr:  locoId,
		Speed: packSpeed(speed, forward),
	})
}

// GetSpeedAction reports the live speed and direction of locoId as
// currently held in the refresh buffer.
func (app *CoreApp) GetSpeedAction(locoId uint16) (speed uint8, forward bool, err error) {
	if err := app.Initialize(); err != nil {
		return 0, false, err
	}
	entry, ok := app.buf.Snapshot(locoId)
	if !ok {
		return 0, false, nil
	}
	return entry.Speed & 0x7F, entry.Speed&0x80 != 0, nil
}

// SetEmergencyStopAction halts locoId immediately, preserving direction.
func (app *CoreApp) SetEmergencyStopAction(locoId uint16) error {
	if err := app.Initialize(); err != nil {
		return err
	}
	return app.queue.Enqueue(requestqueue.Request{Kind: requestqueue.KindEmergencyStop, Addr: locoId})
}
