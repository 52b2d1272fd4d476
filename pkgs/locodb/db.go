package locodb

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/railcore/railcore/pkgs/configstore"
)

// DB is the address-unique, persisted collection of LocoRecords. It
// wraps a configstore.Store: one INI section per address, keys "fmt",
// "maxfunc", "name", "uid", "vid", "func(n)=icon|timing".
type DB struct {
	store *configstore.Store

	mu      sync.RWMutex
	records map[uint16]*LocoRecord
}

// Open loads every loco section from store into memory.
func Open(store *configstore.Store) (*DB, error) {
	db := &DB{store: store, records: make(map[uint16]*LocoRecord)}

	var loadErr error
	store.View(func(doc *configstore.Document) {
		for _, name := range doc.Sections() {
			addr, ok := parseLocoSection(name)
			if !ok {
				continue
			}
			rec, err := decodeRecord(addr, doc.Section(name))
			if err != nil {
				loadErr = fmt.Errorf("loco %d: %w", addr, err)
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

func locoSectionName(addr uint16) string {
	return fmt.Sprintf("loco:%d", addr)
}

func parseLocoSection(name string) (uint16, bool) {
	const prefix = "loco:"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(name[len(prefix):], 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

// Get returns the record for addr, creating it from the default
// template (address 0) if it has never been referenced before. addr 0
// always returns the template itself and is never persisted as live.
func (db *DB) Get(addr uint16) (*LocoRecord, error) {
	if addr > MaxAddress {
		return nil, fmt.Errorf("loco address %d out of range (max %d)", addr, MaxAddress)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if rec, ok := db.records[addr]; ok {
		return rec, nil
	}

	var template *LocoRecord
	if addr != DefaultAddress {
		if t, ok := db.records[DefaultAddress]; ok {
			template = t
		}
	}

	rec := NewLocoRecord(addr, FormatDCC28)
	if template != nil {
		rec.SetFormat(template.Format)
		rec.MaxFunc = template.MaxFunc
		rec.PurgeTimeoutMinutes = template.PurgeTimeoutMinutes
	}

	if addr != DefaultAddress {
		db.records[addr] = rec
		db.persistLocked(rec)
	}
	return rec, nil
}

// Put inserts or replaces rec outright (used by DB-import tooling and
// by request-queue mutation handlers that already hold a decoded record).
func (db *DB) Put(rec *LocoRecord) error {
	if rec.Address > MaxAddress {
		return fmt.Errorf("loco address %d out of range (max %d)", rec.Address, MaxAddress)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.records[rec.Address] = rec
	db.persistLocked(rec)
	return nil
}

// Purge removes addr from the database entirely.
func (db *DB) Purge(addr uint16) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.records, addr)
	db.store.Mutate(func(doc *configstore.Document) {
		// configstore has no section-delete; overwrite with sentinel so
		// a future Get recreates a fresh record rather than resurrecting
		// the purged one.
		s := doc.Section(locoSectionName(addr))
		s.Set("purged", "1")
	})
}

// All returns every currently loaded record, including address 0.
func (db *DB) All() []*LocoRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*LocoRecord, 0, len(db.records))
	for _, r := range db.records {
		out = append(out, r)
	}
	return out
}

func (db *DB) persistLocked(rec *LocoRecord) {
	db.store.Mutate(func(doc *configstore.Document) {
		encodeRecord(doc.Section(locoSectionName(rec.Address)), rec)
	})
}

func encodeRecord(s *configstore.Section, r *LocoRecord) {
	s.Set("fmt", r.Format.String())
	s.Set("maxfunc", strconv.FormatUint(uint64(r.MaxFunc), 10))
	s.Set("name", r.Name)
	if r.HasIdent {
		s.Set("vid", strconv.FormatUint(uint64(r.VID), 10))
		s.Set("uid", strconv.FormatUint(uint64(r.UID), 10))
	}
	if r.HasDCCA {
		s.Set("dcca_vendor", r.DCCA.Vendor)
		s.Set("dcca_product", r.DCCA.Product)
		s.Set("dcca_hw", r.DCCA.HardwareVersion)
		s.Set("dcca_fw", r.DCCA.FirmwareVersion)
		s.Set("dcca_addr", strconv.FormatUint(uint64(r.DCCA.RequestedAddr), 10))
	}
	for idx, t := range r.FuncTimings {
		momentary := "0"
		if t.Momentary {
			momentary = "1"
		}
		s.SetIndexed("func", int(idx), t.Icon+"|"+momentary)
	}
}

func decodeRecord(addr uint16, s *configstore.Section) (*LocoRecord, error) {
	if s.GetBool("purged", false) {
		return NewLocoRecord(addr, FormatDCC28), nil
	}

	formatStr := s.GetString("fmt", FormatDCC28.String())
	format, ok := ParseFormat(formatStr)
	if !ok {
		return nil, fmt.Errorf("unknown format %q", formatStr)
	}

	rec := NewLocoRecord(addr, format)
	rec.MaxFunc = uint8(s.GetUint("maxfunc", uint64(MaxFuncForFormat(format))))
	rec.Name = s.GetString("name", "")

	if vid, ok := s.Get("vid"); ok {
		rec.HasIdent = true
		rec.VID = uint16(s.GetUint("vid", 0))
		rec.UID = uint32(s.GetUint("uid", 0))
		_ = vid
	}

	if vendor, ok := s.Get("dcca_vendor"); ok {
		rec.HasDCCA = true
		rec.DCCA = DCCADescriptor{
			Vendor:          vendor,
			Product:         s.GetString("dcca_product", ""),
			HardwareVersion: s.GetString("dcca_hw", ""),
			FirmwareVersion: s.GetString("dcca_fw", ""),
			RequestedAddr:   uint16(s.GetUint("dcca_addr", 0)),
		}
	}

	for idx, raw := range s.IndexedValues("func") {
		parts := strings.SplitN(raw, "|", 2)
		icon := parts[0]
		momentary := len(parts) == 2 && parts[1] == "1"
		rec.FuncTimings[uint8(idx)] = FuncTiming{Icon: icon, Momentary: momentary}
	}

	return rec, nil
}
