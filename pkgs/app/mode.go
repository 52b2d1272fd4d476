package app

import (
	"fmt"

	"github.com/railcore/railcore/pkgs/sequencer"
)

// SetModeAction requests a transition of the track sequencer to
// modeName (STOP, GO, HALT, SHORT, SIGON, DCCPROG, TAMSPROG, TESTDRIVE,
// OVERTEMP, POWERFAIL). The request is validated immediately but only
// applied at the next packet boundary.
func (app *CoreApp) SetModeAction(modeName string) error {
	if err := app.Initialize(); err != nil {
		return err
	}
	mode, ok := sequencer.ParseMode(modeName)
	if !ok {
		return fmt.Errorf("unknown mode %q", modeName)
	}
	return app.seq.SetMode(mode)
}

// GetModeAction reports the sequencer's currently applied mode.
func (app *CoreApp) GetModeAction() (string, error) {
	if err := app.Initialize(); err != nil {
		return "", err
	}
	return app.seq.Mode().String(), nil
}
