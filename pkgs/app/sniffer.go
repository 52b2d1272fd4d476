package app

import (
	"time"

	"github.com/railcore/railcore/pkgs/eventbus"
	"github.com/railcore/railcore/pkgs/hardware"
	"github.com/railcore/railcore/pkgs/protocol/dcc"
	"github.com/railcore/railcore/pkgs/sequencer"
	"github.com/railcore/railcore/pkgs/sniffer"
	"github.com/sirupsen/logrus"
)

// startSnifferLoop pumps the configured track sink's edge-capture side
// (hardware.Simulated and the GPIO edge source both double as
// hardware.EdgeSource) through a DCC packet classifier and the RailCom
// decoder. A sink that is output-only (no EdgeSource) simply runs
// without sniffing, matching a deployment with no programming/analysis
// input wired up.
func (app *CoreApp) startSnifferLoop() {
	es, ok := app.sink.(hardware.EdgeSource)
	if !ok {
		return
	}
	app.edges = es
	app.railcom = &sniffer.RailComDecoder{}
	app.railcom.OnReply = func(reply sniffer.DecoderReply) {
		reply.DecoderAddress = uint16(app.railcomAddr.Load())
		app.onRailComReply(reply)
	}
	dccDec := &sniffer.DCCDecoder{OnPacket: app.onSniffedDCCPacket}

	app.seq.SetCutoutHook(app.openRailComWindow)

	// Not tracked by app.wg: EdgeSource.Next blocks until an edge
	// arrives or the source is closed, so it cannot be joined against
	// stopTick the way the ticker-driven loops are. Close closes the
	// underlying source instead, which unblocks Next with ok=false.
	go func() {
		var lastEdge hardware.Edge
		haveLast := false
		for {
			edge, ok := es.Next()
			if !ok {
				return
			}
			if app.railcomActive.Load() {
				app.railcom.PushEdge(int64(edge.At100ns))
				continue
			}
			if haveLast {
				dccDec.PushHalfPeriod(edge.At100ns - lastEdge.At100ns)
			}
			lastEdge = edge
			haveLast = true
		}
	}()
}

// closeEdgeSource unblocks the sniffer pump's Next call, if one was
// started. hardware.Simulated and hardware.GPIOEdgeSource both expose
// Close, with different signatures, so neither satisfies a single
// shared interface; try each.
func (app *CoreApp) closeEdgeSource() {
	switch es := app.edges.(type) {
	case interface{ Close() }:
		es.Close()
	case interface{ Close() error }:
		_ = es.Close()
	}
}

// openRailComWindow is invoked by the sequencer every time it opens a
// RailCom cutout for addr, arming the decoder for the fixed window
// duration and routing subsequent edges to it instead of the DCC
// packet sniffer.
func (app *CoreApp) openRailComWindow(addr uint16) {
	app.railcomAddr.Store(uint32(addr))
	app.railcom.Reset()
	app.railcomActive.Store(true)
	time.AfterFunc(sequencer.RailComCutoutWindowUS*time.Microsecond, func() {
		app.railcomActive.Store(false)
		app.railcom.Finish()
	})
}

// onRailComReply fires the decoded (or failed) RailCom reply onto the
// event bus. A successful CV-value reply additionally fires
// KindProgramming, matching what ReadCVAction promises its POM callers:
// the answer to a programming-on-main read arrives as a bus event, not
// a return value.
func (app *CoreApp) onRailComReply(reply sniffer.DecoderReply) {
	app.bus.FireEx(eventbus.KindRailCom, reply.DecoderAddress, reply, 0)
	if reply.MessageType == sniffer.ReplyCVValue {
		app.bus.FireEx(eventbus.KindProgramming, reply.DecoderAddress, reply, 0)
	}
}

// onSniffedDCCPacket logs a verified packet sniffed off the analysis
// input. Basic accessory packets are decoded back to their layout
// address so the mapping formula stays exercised outside the encoder's
// own tests.
func (app *CoreApp) onSniffedDCCPacket(bytes []byte, class sniffer.AddressClass) {
	if class == sniffer.AddressBasicAccessory && len(bytes) >= 2 {
		addr, pair := dcc.DecodeAccessoryAddress(bytes[0], bytes[1])
		app.log.WithFields(logrus.Fields{"address": addr, "pair": pair}).Debug("sniffer: basic accessory packet observed")
		return
	}
	app.log.WithField("class", class).Debug("sniffer: packet observed")
}
