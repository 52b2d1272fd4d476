package locodb

import "time"

// MinAddress and MaxAddress bound legal loco addresses. Address 0 is
// reserved as the default-loco template: it returns the default format
// record and is never refreshable.
const (
	MinAddress     = 1
	MaxAddress     = 10239
	DefaultAddress = 0

	MaxNameBytes = 28
)

// FuncTiming describes one function's presentation: an icon identifier
// the CLI/UI can render, and whether the function is momentary (on
// while held) or latched (toggled).
type FuncTiming struct {
	Icon     string
	Momentary bool
}

// DCCADescriptor carries the DCC-A self-description fields a decoder
// reports on first contact: vendor/product/hardware/firmware strings
// plus the address the decoder is requesting.
type DCCADescriptor struct {
	Vendor          string
	Product         string
	HardwareVersion string
	FirmwareVersion string
	RequestedAddr   uint16
}

// LocoRecord is the persisted description of one locomotive.
type LocoRecord struct {
	Address uint16
	Format  Format
	MaxFunc uint8
	Name    string

	FuncTimings map[uint8]FuncTiming

	HasIdent bool
	VID      uint16
	UID      uint32

	HasDCCA bool
	DCCA    DCCADescriptor

	// PurgeTimeoutMinutes is 0..480; 0 disables purge for this record.
	PurgeTimeoutMinutes uint16

	lastTouched time.Time
}

// NewLocoRecord returns a record for addr using the given format, with
// max_func clamped into the coherent range for that format.
func NewLocoRecord(addr uint16, format Format) *LocoRecord {
	return &LocoRecord{
		Address:     addr,
		Format:      format,
		MaxFunc:     MaxFuncForFormat(format),
		FuncTimings: make(map[uint8]FuncTiming),
	}
}

// SetFormat changes format, clamping MaxFunc back into the coherent
// range if the previous value no longer fits (e.g. switching a DCC-126
// record with max_func=68 down to MM2-14).
func (r *LocoRecord) SetFormat(format Format) {
	r.Format = format
	if limit := MaxFuncForFormat(format); r.MaxFunc > limit {
		r.MaxFunc = limit
	}
}

// Touch stamps the record as referenced at t, resetting the idle-purge
// clock.
func (r *LocoRecord) Touch(t time.Time) {
	r.lastTouched = t
}

// Idle reports whether the record has gone unreferenced for longer than
// its purge timeout as of now. A zero PurgeTimeoutMinutes never expires.
func (r *LocoRecord) Idle(now time.Time) bool {
	if r.PurgeTimeoutMinutes == 0 || r.lastTouched.IsZero() {
		return false
	}
	return now.Sub(r.lastTouched) >= time.Duration(r.PurgeTimeoutMinutes)*time.Minute
}
