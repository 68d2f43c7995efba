package extractor

// Record is one parsed log entry that payload sizes can be read from.
type Record interface {
	// Destination returns the responding host address, or an empty string
	// if the record did not carry one
	Destination() string
	// PayloadSize returns the originator IP byte count and whether the
	// record carried one
	PayloadSize() (uint64, bool)
}

// ConnEntry is a single Zeek conn log record. Only the fields used for
// payload size analysis are mapped; everything else in a line is ignored.
type ConnEntry struct {
	TimeStamp   float64 `json:"ts" zeek:"ts" zeektype:"time"`
	UID         string  `json:"uid" zeek:"uid" zeektype:"string"`
	Src         string  `json:"id.orig_h" zeek:"id.orig_h" zeektype:"addr"`
	SrcPort     int     `json:"id.orig_p" zeek:"id.orig_p" zeektype:"port"`
	Dst         string  `json:"id.resp_h" zeek:"id.resp_h" zeektype:"addr"`
	DstPort     int     `json:"id.resp_p" zeek:"id.resp_p" zeektype:"port"`
	Proto       string  `json:"proto" zeek:"proto" zeektype:"enum"`
	Duration    float64 `json:"duration" zeek:"duration" zeektype:"interval"`
	OrigIPBytes int64   `json:"orig_ip_bytes" zeek:"orig_ip_bytes" zeektype:"count"`
}

// Reset returns the entry to its unset state. OrigIPBytes uses -1 as the
// unset marker so that a real zero byte count stays distinguishable from a
// field Zeek left unset ("-").
func (c *ConnEntry) Reset() {
	*c = ConnEntry{OrigIPBytes: -1}
}

func (c ConnEntry) Destination() string {
	return c.Dst
}

func (c ConnEntry) PayloadSize() (uint64, bool) {
	if c.OrigIPBytes < 0 {
		return 0, false
	}
	return uint64(c.OrigIPBytes), true
}
