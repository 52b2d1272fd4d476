// Package locodb is the authoritative, persisted map from locomotive
// address to LocoRecord: decoder format, function count, name, per-
// function timing/icon data and optional auto-identification fields.
package locodb

// Format enumerates the decoder protocols a LocoRecord can speak.
type Format int

const (
	FormatMM1_14 Format = iota
	FormatMM1_27
	FormatMM2_14
	FormatMM2_27
	FormatDCC14
	FormatDCC28
	FormatDCC126
	FormatDCCSDF
	FormatM3
	FormatDCCA
	FormatRailComPlus
)

var formatNames = map[Format]string{
	FormatMM1_14:      "mm1-14",
	FormatMM1_27:      "mm1-27",
	FormatMM2_14:      "mm2-14",
	FormatMM2_27:      "mm2-27",
	FormatDCC14:       "dcc-14",
	FormatDCC28:       "dcc-28",
	FormatDCC126:      "dcc-126",
	FormatDCCSDF:      "dcc-sdf",
	FormatM3:          "m3",
	FormatDCCA:        "dcc-a",
	FormatRailComPlus: "railcomplus",
}

var namesToFormat = func() map[string]Format {
	m := make(map[string]Format, len(formatNames))
	for f, n := range formatNames {
		m[n] = f
	}
	return m
}()

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "unknown"
}

// ParseFormat maps a persisted format name back to a Format.
func ParseFormat(s string) (Format, bool) {
	f, ok := namesToFormat[s]
	return f, ok
}

// IsMM reports whether f is one of the Maerklin-Motorola formats.
func (f Format) IsMM() bool {
	switch f {
	case FormatMM1_14, FormatMM1_27, FormatMM2_14, FormatMM2_27:
		return true
	default:
		return false
	}
}

// MaxFuncForFormat returns the upper bound max_func a LocoRecord of
// format f may declare, per the format/max_func coherence invariant
// (MM formats imply max_func <= 4; DCC and M3 allow up to 68).
func MaxFuncForFormat(f Format) uint8 {
	if f.IsMM() {
		return 4
	}
	return 68
}
