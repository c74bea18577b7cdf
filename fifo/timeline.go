package fifo

// URIObservation is one entry of the URI timeline: the runner's own
// clock reading for when a given PID reported it was about to execute a
// benchmark identified by URI.
type URIObservation struct {
	TsNs uint64
	URI  string
	PID  int32
}

// Timeline is the Execution Timestamps structure from the data model:
// an ordered, append-only mapping from timestamp to URI, plus a flat,
// append-only list of markers. Both lists reflect the arrival order of
// the commands that produced them.
type Timeline struct {
	URIs    []URIObservation
	Markers []Marker

	pid int32
}

// RecordCurrentBenchmark appends a URI observation and remembers the
// most recently reported PID.
func (t *Timeline) RecordCurrentBenchmark(pid int32, uri string, tsNs uint64) {
	t.pid = pid
	t.URIs = append(t.URIs, URIObservation{TsNs: tsNs, URI: uri, PID: pid})
}

// PID returns the most recently reported benchmark process ID.
func (t *Timeline) PID() int32 { return t.pid }

// RecordMarker appends a marker directly.
func (t *Timeline) RecordMarker(m Marker) {
	t.Markers = append(t.Markers, m)
}
