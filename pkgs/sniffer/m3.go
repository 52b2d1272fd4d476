package sniffer

// M3Decoder watches for the LSLLSL sync pattern on the input stream.
// Payload decoding beyond sync detection is a stub: reception without
// action, per the M3 programming/telemetry boundary this core does not
// yet own.
type M3Decoder struct {
	matched int

	OnSync func()
}

// m3SyncPattern mirrors protocol/m3's encoder-side pattern: true=Long.
var m3SyncPattern = [6]bool{true, false, true, true, false, true}

// PushEdge feeds one classified edge (true = long pulse) into the sync
// matcher.
func (d *M3Decoder) PushEdge(long bool) {
	if long == m3SyncPattern[d.matched] {
		d.matched++
		if d.matched == len(m3SyncPattern) {
			d.matched = 0
			if d.OnSync != nil {
				d.OnSync()
			}
		}
		return
	}
	// resync: this edge might be the first symbol of the next attempt
	if long == m3SyncPattern[0] {
		d.matched = 1
	} else {
		d.matched = 0
	}
}
