package app

import (
	"context"
	"fmt"
	"time"

	"github.com/railcore/railcore/pkgs/refresh"
	"github.com/railcore/railcore/pkgs/requestqueue"
	"github.com/railcore/railcore/pkgs/sequencer"
	"github.com/railcore/railcore/pkgs/syntax"
	"github.com/sirupsen/logrus"
)

// enterProgTrack isolates the track, switches the sequencer into
// DCCPROG and energises the programming-track supply, returning a
// closer that reverses both in order.
func (app *CoreApp) enterProgTrack() (func(), error) {
	if err := app.seq.SetMode(sequencer.ModeDCCProg); err != nil {
		return nil, err
	}
	app.boosterLoop.RequestOn(true)
	time.Sleep(time.Duration(app.boosterLoop.Snapshot().InrushTimeMs) * time.Millisecond)
	return func() {
		app.boosterLoop.RequestOff()
		_ = app.seq.SetMode(sequencer.ModeStop)
	}, nil
}

// SendCVAction writes every CV parsed from cvNumRaw to locoId. "prog"
// drives the isolated programming track synchronously through
// pkgs/progtrack; "pom" queues a programming-on-main write the
// sequencer drains opportunistically into the loco's own rotation slot.
func (app *CoreApp) SendCVAction(track string, locoId uint16, cvNumRaw string, verify bool, timeout time.Duration, settle time.Duration) error {
	if err := app.Initialize(); err != nil {
		return err
	}

	entries, parseErr := syntax.ParseCVString(cvNumRaw, ",")
	if parseErr != nil {
		return parseErr
	}

	if track == "prog" {
		leave, err := app.enterProgTrack()
		if err != nil {
			return err
		}
		defer leave()

		for _, entry := range entries {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := app.prog.WriteCV(ctx, entry.Number, byte(entry.Value))
			cancel()
			time.Sleep(settle)
			if err != nil {
				return err
			}
		}
		return nil
	}

	for _, entry := range entries {
		if err := app.queue.Enqueue(requestqueue.Request{
			Kind: requestqueue.KindPOM,
			Addr: locoId,
			POM:  refresh.POMRequest{CV: entry.Number, Value: entry.Value, Write: true},
		}); err != nil {
			return err
		}
		time.Sleep(settle)
	}
	return nil
}

// ReadCVAction reads every CV parsed from cvNumRaw. "prog" reads
// synchronously over the isolated programming track; "pom" queues the
// read and returns immediately — the decoder's answer arrives later as
// a KindRailCom event on the bus, not as a return value here.
func (app *CoreApp) ReadCVAction(track string, locoId uint16, cvNumRaw string, verify bool, timeout time.Duration, retries uint8) error {
	if err := app.Initialize(); err != nil {
		return err
	}

	entries, parseErr := syntax.ParseCVString(cvNumRaw, ",")
	if parseErr != nil {
		return fmt.Errorf("invalid format: %s", cvNumRaw)
	}

	if track == "prog" {
		leave, err := app.enterProgTrack()
		if err != nil {
			return err
		}
		defer leave()

		var lastError error
		for _, entry := range entries {
			var result byte
			var readErr error
			for attempt := uint8(0); attempt <= retries; attempt++ {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				result, readErr = app.prog.ReadCV(ctx, entry.Number)
				cancel()
				if readErr == nil {
					break
				}
			}

			if len(entries) > 1 {
				if readErr != nil {
					app.P.Printf("cv%d=ERROR\n", entry.Number)
					logrus.Error(readErr)
					lastError = readErr
				} else {
					app.P.Printf("cv%d=%d\n", entry.Number, result)
				}
			} else {
				if readErr != nil {
					return readErr
				}
				app.P.Printf("%d\n", result)
			}
		}
		return lastError
	}

	for _, entry := range entries {
		if err := app.queue.Enqueue(requestqueue.Request{
			Kind: requestqueue.KindPOM,
			Addr: locoId,
			POM:  refresh.POMRequest{CV: entry.Number, Write: false},
		}); err != nil {
			return err
		}
	}
	app.P.Printf("queued %d programming-on-main read(s); answers arrive via RailCom telemetry\n", len(entries))
	return nil
}
