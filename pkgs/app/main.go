package app

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/railcore/railcore/pkgs/booster"
	"github.com/railcore/railcore/pkgs/config"
	"github.com/railcore/railcore/pkgs/configstore"
	"github.com/railcore/railcore/pkgs/eventbus"
	"github.com/railcore/railcore/pkgs/hardware"
	"github.com/railcore/railcore/pkgs/locodb"
	"github.com/railcore/railcore/pkgs/output"
	"github.com/railcore/railcore/pkgs/progtrack"
	"github.com/railcore/railcore/pkgs/protocol/dcc"
	"github.com/railcore/railcore/pkgs/protocol/mm"
	"github.com/railcore/railcore/pkgs/refresh"
	"github.com/railcore/railcore/pkgs/requestqueue"
	"github.com/railcore/railcore/pkgs/sequencer"
	"github.com/railcore/railcore/pkgs/sniffer"
	"github.com/railcore/railcore/pkgs/turnoutdb"
	"github.com/sirupsen/logrus"
)

//
// CoreApp wires the in-process engine together: configuration, the
// persisted loco/turnout/system stores, the event bus, the refresh
// buffer, the request queue, the track sequencer, the booster loop and
// the programming-track controller. The CLI layer (pkgs/cli) talks to
// this the way the original client talked to a remote command station;
// here the "station" lives in the same process.
//

// CoreApp is the top-level engine handle constructed once per process.
type CoreApp struct {
	Config *config.Configuration

	// runtime parameters
	Debug bool
	P     output.Printer

	log *logrus.Logger

	systemStore  *configstore.Store
	locoStore    *configstore.Store
	turnoutStore *configstore.Store

	locos    *locodb.DB
	turnouts *turnoutdb.DB

	bus   *eventbus.Bus
	buf   *refresh.Buffer
	queue *requestqueue.Queue

	boosterLoop *booster.Loop
	sink        hardware.TimerSink
	edges       hardware.EdgeSource
	seq         *sequencer.Sequencer
	prog        *progtrack.Controller

	railcom       *sniffer.RailComDecoder
	railcomActive atomic.Bool
	railcomAddr   atomic.Uint32

	switcher *turnoutSwitcher

	stopTick chan struct{}
	wg       sync.WaitGroup

	initialized bool
}

// Initialize loads the bootstrap configuration, opens the persisted
// stores and wires every engine package together. It is idempotent: a
// second call is a no-op, matching the CLI's "call before every action"
// usage pattern.
func (app *CoreApp) Initialize() error {
	if app.initialized {
		return nil
	}

	if app.log == nil {
		app.log = logrus.StandardLogger()
	}
	if app.Debug {
		app.log.SetLevel(logrus.DebugLevel)
	}

	app.log.Debug("Reading configuration files")
	cfg, cfgErr := config.NewConfig()
	app.Config = cfg
	if cfgErr != nil {
		return fmt.Errorf("cannot initialize app: %s", cfgErr)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		app.log.SetLevel(level)
	}

	if err := app.openStores(); err != nil {
		return err
	}

	locos, err := locodb.Open(app.locoStore)
	if err != nil {
		return fmt.Errorf("cannot open locomotive database: %w", err)
	}
	app.locos = locos

	turnouts, err := turnoutdb.Open(app.turnoutStore)
	if err != nil {
		return fmt.Errorf("cannot open turnout database: %w", err)
	}
	app.turnouts = turnouts

	app.bus = eventbus.New(app.log)
	app.buf = refresh.New(app.locos, app.bus)

	app.boosterLoop = booster.New()
	app.applyEngineDefaults()

	app.sink = hardware.NewSimulated(256)

	app.switcher = &turnoutSwitcher{turnouts: app.turnouts}
	app.queue = requestqueue.New(app.buf, app.switcher)

	app.seq = sequencer.New(app.buf, app.queue, app.bus, app.sink)
	app.seq.SetRailComEnabled(cfg.Engine.RailComEnabled)
	app.seq.SetDCCAEnabled(cfg.Engine.DCCAEnabled)
	app.switcher.seq = app.seq
	app.prog = progtrack.New(app.sink, app.boosterLoop)
	app.applyProtocolDefaults()

	app.startBackgroundLoops()

	app.initialized = true
	return nil
}

// openStores opens the three INI-backed configstore.Store instances
// this process owns, under Config.Engine.DataDir.
func (app *CoreApp) openStores() error {
	dir := app.Config.Engine.DataDir
	if dir == "" {
		dir = "."
	}

	var err error
	app.systemStore, err = configstore.Open(filepath.Join(dir, "system.ini"), app.log)
	if err != nil {
		return fmt.Errorf("cannot open system config: %w", err)
	}
	app.locoStore, err = configstore.Open(filepath.Join(dir, "locos.ini"), app.log)
	if err != nil {
		return fmt.Errorf("cannot open loco database: %w", err)
	}
	app.turnoutStore, err = configstore.Open(filepath.Join(dir, "turnouts.ini"), app.log)
	if err != nil {
		return fmt.Errorf("cannot open turnout database: %w", err)
	}
	return nil
}

// applyEngineDefaults seeds the booster loop's target voltage, program
// voltage and current limit from the persisted [booster] system
// section, falling back to (and persisting) the bootstrap YAML defaults
// the first time the data directory is initialised. short_time_ms and
// inrush_time_ms are read and persisted the same way but are not applied
// to the loop, which keeps its own defaults for both.
func (app *CoreApp) applyEngineDefaults() {
	eng := app.Config.Engine

	var target, program, maxCurrent, shortTime, inrush uint64
	app.systemStore.View(func(doc *configstore.Document) {
		s := doc.Section("booster")
		target = s.GetUint("target_voltage_01v", uint64(eng.TargetVoltage01V))
		program = s.GetUint("program_voltage_01v", uint64(eng.ProgramVoltage01V))
		maxCurrent = s.GetUint("max_current_ma", uint64(eng.MaxCurrentMA))
		shortTime = s.GetUint("short_time_ms", uint64(eng.ShortTimeMs))
		inrush = s.GetUint("inrush_time_ms", uint64(eng.InrushTimeMs))
	})

	app.boosterLoop.SetTargetVoltage(uint16(target))
	app.boosterLoop.SetProgramVoltage(uint16(program))
	app.boosterLoop.SetMaxCurrent(uint16(maxCurrent))

	app.systemStore.Mutate(func(doc *configstore.Document) {
		s := doc.Section("booster")
		s.Set("target_voltage_01v", fmt.Sprintf("%d", target))
		s.Set("program_voltage_01v", fmt.Sprintf("%d", program))
		s.Set("max_current_ma", fmt.Sprintf("%d", maxCurrent))
		s.Set("short_time_ms", fmt.Sprintf("%d", shortTime))
		s.Set("inrush_time_ms", fmt.Sprintf("%d", inrush))
	})
}

// applyProtocolDefaults seeds the sequencer's DCC/MM encoder
// configuration from the persisted [protocol-dcc]/[protocol-mm]
// sections, falling back to (and persisting) each protocol's factory
// defaults the first time the data directory is initialised.
func (app *CoreApp) applyProtocolDefaults() {
	dccCfg := dcc.DefaultConfig()
	mmCfg := mm.DefaultConfig()

	app.systemStore.View(func(doc *configstore.Document) {
		d := doc.Section("protocol-dcc")
		dccCfg.PreambleBits = uint8(d.GetUint("preamble_bits", uint64(dccCfg.PreambleBits)))
		dccCfg.OneBitHalfPeriodUS = uint16(d.GetUint("one_bit_half_period_us", uint64(dccCfg.OneBitHalfPeriodUS)))
		dccCfg.ZeroBitHalfPeriodUS = uint16(d.GetUint("zero_bit_half_period_us", uint64(dccCfg.ZeroBitHalfPeriodUS)))
		dccCfg.Repeat = uint8(d.GetUint("repeat", uint64(dccCfg.Repeat)))
		dccCfg.PomRepeat = uint8(d.GetUint("pom_repeat", uint64(dccCfg.PomRepeat)))
		dccCfg.RailComEnabled = d.GetBool("railcom_enabled", dccCfg.RailComEnabled)

		m := doc.Section("protocol-mm")
		mmCfg.PauseUS = uint16(m.GetUint("pause_us", uint64(mmCfg.PauseUS)))
		mmCfg.Fast = m.GetBool("fast", mmCfg.Fast)
		mmCfg.Repeat = uint8(m.GetUint("repeat", uint64(mmCfg.Repeat)))
	})

	dccCfg = dcc.ClampConfig(dccCfg)
	mmCfg = mm.ClampPauseUS(mmCfg)

	app.systemStore.Mutate(func(doc *configstore.Document) {
		d := doc.Section("protocol-dcc")
		d.Set("preamble_bits", fmt.Sprintf("%d", dccCfg.PreambleBits))
		d.Set("one_bit_half_period_us", fmt.Sprintf("%d", dccCfg.OneBitHalfPeriodUS))
		d.Set("zero_bit_half_period_us", fmt.Sprintf("%d", dccCfg.ZeroBitHalfPeriodUS))
		d.Set("repeat", fmt.Sprintf("%d", dccCfg.Repeat))
		d.Set("pom_repeat", fmt.Sprintf("%d", dccCfg.PomRepeat))

		m := doc.Section("protocol-mm")
		m.Set("pause_us", fmt.Sprintf("%d", mmCfg.PauseUS))
		m.Set("repeat", fmt.Sprintf("%d", mmCfg.Repeat))
	})

	app.seq.SetDCCConfig(dccCfg)
	app.seq.SetMMConfig(mmCfg)
	app.prog.SetMMConfig(mmCfg)
}

// startBackgroundLoops starts the 1kHz booster tick and the
// packet-boundary loop driving the sequencer, mirroring the real-time
// scheduling the firmware core performs on dedicated hardware timers.
func (app *CoreApp) startBackgroundLoops() {
	app.stopTick = make(chan struct{})

	app.startSnifferLoop()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-app.stopTick:
				return
			case <-ticker.C:
				if app.boosterLoop.Tick() {
					app.log.Warn("booster: short-circuit declared")
					_ = app.seq.SetMode(sequencer.ModeShort)
					app.bus.FireEx(eventbus.KindBooster, 0, "short", 0)
				}
			}
		}
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-app.stopTick:
				return
			case <-ticker.C:
				app.seq.Step()
			}
		}
	}()
}

// Close stops the background loops and flushes every persisted store.
func (app *CoreApp) Close() error {
	if !app.initialized {
		return nil
	}
	close(app.stopTick)
	app.wg.Wait()
	app.closeEdgeSource()
	app.bus.Stop()

	var firstErr error
	for _, s := range []*configstore.Store{app.systemStore, app.locoStore, app.turnoutStore} {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	app.initialized = false
	return firstErr
}

// turnoutSwitcher adapts turnoutdb.DB plus the sequencer's accessory
// queue to the requestqueue.TurnoutSwitcher interface, kept out of
// pkgs/requestqueue itself to avoid an import cycle: turnoutdb and
// requestqueue are only wired together here, at the top.
type turnoutSwitcher struct {
	turnouts *turnoutdb.DB
	seq      *sequencer.Sequencer
}

func (t *turnoutSwitcher) SwitchTurnout(addr uint16, direction int, on bool) error {
	rec, err := t.turnouts.Get(addr)
	if err != nil {
		return err
	}
	if on {
		t.turnouts.Switch(rec, turnoutdb.Direction(direction), time.Now())
	} else {
		t.turnouts.SwitchOff(rec)
	}
	t.seq.QueueAccessory(sequencer.AccessoryCommand{
		Address: addr,
		On:      on,
	})
	return nil
}
