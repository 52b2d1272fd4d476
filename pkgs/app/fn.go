package app

import "github.com/railcore/railcore/pkgs/requestqueue"

// SendFnAction toggles function fnNum of locoId on or off.
func (app *CoreApp) SendFnAction(locoId uint16, fnNum uint8, on bool) error {
	if err := app.Initialize(); err != nil {
		return err
	}
	return app.queue.Enqueue(requestqueue.Request{
		Kind:    requestqueue.KindSetFunc,
		Addr:    locoId,
		FuncIdx: fnNum,
		FuncOn:  on,
	})
}

// ListFnAction prints every function currently on for locoId.
func (app *CoreApp) ListFnAction(locoId uint16) error {
	if err := app.Initialize(); err != nil {
		return err
	}

	entry, ok := app.buf.Snapshot(locoId)
	if !ok {
		app.P.Printf("No active functions\n")
		return nil
	}

	none := true
	for word, bits := range entry.Funcs {
		for bit := 0; bit < 32; bit++ {
			if bits&(1<<uint(bit)) != 0 {
				app.P.Printf("F%d = On\n", word*32+bit)
				none = false
			}
		}
	}
	if none {
		app.P.Printf("No active functions\n")
	}
	return nil
}
