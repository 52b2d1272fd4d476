package app

import "github.com/railcore/railcore/pkgs/requestqueue"

// SwitchTurnoutAction queues a turnout switch request; the request
// queue applies it to the turnout database and arms the sequencer's
// accessory-command priority slot at the next drain.
func (app *CoreApp) SwitchTurnoutAction(addr uint16, thrown bool) error {
	if err := app.Initialize(); err != nil {
		return err
	}
	direction := 0
	if thrown {
		direction = 1
	}
	return app.queue.Enqueue(requestqueue.Request{
		Kind:             requestqueue.KindSwitchTurnout,
		Addr:             addr,
		TurnoutDirection: direction,
		TurnoutOn:        true,
	})
}

// SetBoosterVoltageAction updates the running-track target voltage (in
// 0.1V units) the booster loop ramps toward.
func (app *CoreApp) SetBoosterVoltageAction(v01V uint16) error {
	if err := app.Initialize(); err != nil {
		return err
	}
	app.boosterLoop.SetTargetVoltage(v01V)
	return nil
}
