// Package turnoutdb is the authoritative, persisted map from accessory
// address to TurnoutRecord: decoder format, optional BiDiB identity and
// the last commanded position.
package turnoutdb

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/railcore/railcore/pkgs/configstore"
)

// Format enumerates the protocols a turnout decoder can speak.
type Format int

const (
	FormatDCC Format = iota
	FormatMM
	FormatBiDiB
)

func (f Format) String() string {
	switch f {
	case FormatDCC:
		return "dcc"
	case FormatMM:
		return "mm"
	case FormatBiDiB:
		return "bidib"
	default:
		return "unknown"
	}
}

func parseFormat(s string) (Format, bool) {
	switch s {
	case "dcc":
		return FormatDCC, true
	case "mm":
		return FormatMM, true
	case "bidib":
		return FormatBiDiB, true
	default:
		return 0, false
	}
}

// Direction is the commanded position of a turnout.
type Direction int

const (
	Straight Direction = iota
	Thrown
)

func (d Direction) String() string {
	if d == Thrown {
		return "thrown"
	}
	return "straight"
}

// MinAddress and MaxAddress bound legal accessory addresses.
const (
	MinAddress = 1
	MaxAddress = 2048

	// MinSwitchMs and MaxSwitchMs bound the honoured coil-on duration
	// per format; callers clamp requested switching time into this range.
	MinSwitchMs = 50
	MaxSwitchMs = 6000
)

// TurnoutRecord is the persisted description of one accessory decoder.
type TurnoutRecord struct {
	Address uint16
	Format  Format

	HasBiDiB bool
	UID      uint32
	Aspect   uint8

	LastDirection Direction
	On            bool
	SwitchOffAt   time.Time
	SwitchTimeMs  uint16
}

// NewTurnoutRecord returns a record for addr with a sensible default
// switching time.
func NewTurnoutRecord(addr uint16, format Format) *TurnoutRecord {
	return &TurnoutRecord{Address: addr, Format: format, SwitchTimeMs: 250}
}

// ClampSwitchTime bounds ms into [MinSwitchMs, MaxSwitchMs].
func ClampSwitchTime(ms uint16) uint16 {
	if ms < MinSwitchMs {
		return MinSwitchMs
	}
	if ms > MaxSwitchMs {
		return MaxSwitchMs
	}
	return ms
}

// DB is the address-unique, persisted collection of TurnoutRecords.
type DB struct {
	store *configstore.Store

	mu      sync.RWMutex
	records map[uint16]*TurnoutRecord
}

func sectionName(addr uint16) string {
	return fmt.Sprintf("turnout:%d", addr)
}

func parseSection(name string) (uint16, bool) {
	const prefix = "turnout:"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(name[len(prefix):], 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

// Open loads every turnout section from store into memory.
func Open(store *configstore.Store) (*DB, error) {
	db := &DB{store: store, records: make(map[uint16]*TurnoutRecord)}

	var loadErr error
	store.View(func(doc *configstore.Document) {
		for _, name := range doc.Sections() {
			addr, ok := parseSection(name)
			if !ok {
				continue
			}
			rec, err := decode(addr, doc.Section(name))
			if err != nil {
				loadErr = fmt.Errorf("turnout %d: %w", addr, err)
				return
			}
			db.records[addr] = rec
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return db, nil
}

// Get returns the record for addr, lazily creating a DCC-default record
// on first use (persisted only once it is actually switched, per the
// "created on first use; persisted lazily" lifecycle).
func (db *DB) Get(addr uint16) (*TurnoutRecord, error) {
	if addr < MinAddress || addr > MaxAddress {
		return nil, fmt.Errorf("turnout address %d out of range (%d..%d)", addr, MinAddress, MaxAddress)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if rec, ok := db.records[addr]; ok {
		return rec, nil
	}
	rec := NewTurnoutRecord(addr, FormatDCC)
	db.records[addr] = rec
	return rec, nil
}

// Switch commands rec to direction, persisting the change and arming
// the coil's switch-off deadline at now+SwitchTimeMs.
func (db *DB) Switch(rec *TurnoutRecord, direction Direction, now time.Time) {
	db.mu.Lock()
	rec.LastDirection = direction
	rec.On = true
	rec.SwitchOffAt = now.Add(time.Duration(ClampSwitchTime(rec.SwitchTimeMs)) * time.Millisecond)
	db.mu.Unlock()
	db.persist(rec)
}

// SwitchOff marks rec as no longer energised and persists it. It acts
// immediately and does not consult SwitchOffAt.
func (db *DB) SwitchOff(rec *TurnoutRecord) {
	db.mu.Lock()
	rec.On = false
	db.mu.Unlock()
	db.persist(rec)
}

func (db *DB) persist(rec *TurnoutRecord) {
	db.store.Mutate(func(doc *configstore.Document) {
		encode(doc.Section(sectionName(rec.Address)), rec)
	})
}

// All returns every currently loaded record.
func (db *DB) All() []*TurnoutRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*TurnoutRecord, 0, len(db.records))
	for _, r := range db.records {
		out = append(out, r)
	}
	return out
}

func encode(s *configstore.Section, r *TurnoutRecord) {
	s.Set("fmt", r.Format.String())
	s.Set("dir", r.LastDirection.String())
	if r.HasBiDiB {
		s.Set("uid", strconv.FormatUint(uint64(r.UID), 10))
		s.Set("aspect", strconv.FormatUint(uint64(r.Aspect), 10))
	}
}

func decode(addr uint16, s *configstore.Section) (*TurnoutRecord, error) {
	formatStr := s.GetString("fmt", "dcc")
	format, ok := parseFormat(formatStr)
	if !ok {
		return nil, fmt.Errorf("unknown format %q", formatStr)
	}
	rec := NewTurnoutRecord(addr, format)
	if s.GetString("dir", "straight") == "thrown" {
		rec.LastDirection = Thrown
	}
	if uid, ok := s.Get("uid"); ok {
		rec.HasBiDiB = true
		rec.UID = uint32(s.GetUint("uid", 0))
		rec.Aspect = uint8(s.GetUint("aspect", 0))
		_ = uid
	}
	return rec, nil
}
