package app

import (
	"context"
	"time"

	"github.com/railcore/railcore/pkgs/progtrack"
	"github.com/railcore/railcore/pkgs/sequencer"
)

// enterTAMSProgTrack isolates the track, switches the sequencer into
// TAMSPROG and energises the programming-track supply, returning a
// closer that reverses both in order. It mirrors enterProgTrack, but for
// the MM-programming state machine rather than DCC service mode.
func (app *CoreApp) enterTAMSProgTrack() (func(), error) {
	if err := app.seq.SetMode(sequencer.ModeTAMSProg); err != nil {
		return nil, err
	}
	app.boosterLoop.RequestOn(true)
	time.Sleep(time.Duration(app.boosterLoop.Snapshot().InrushTimeMs) * time.Millisecond)
	return func() {
		app.boosterLoop.RequestOff()
		_ = app.seq.SetMode(sequencer.ModeStop)
	}, nil
}

// ProgramMMAddressAction writes newAddr to a blank Motorola decoder
// sitting on the isolated programming track: the sequencer enters
// TAMSPROG, the booster powers the isolated rail, and the controller
// repeats the candidate address packet until the decoder's current ack
// confirms it learned the address.
func (app *CoreApp) ProgramMMAddressAction(newAddr uint8, timeout time.Duration) error {
	if err := app.Initialize(); err != nil {
		return err
	}

	leave, err := app.enterTAMSProgTrack()
	if err != nil {
		return err
	}
	defer leave()

	app.prog.SetMode(progtrack.ModeMM)
	defer app.prog.SetMode(progtrack.ModeDirect)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.prog.ProgramMMAddress(ctx, newAddr); err != nil {
		return err
	}
	app.P.Printf("decoder acked MM address %d\n", newAddr)
	return nil
}
