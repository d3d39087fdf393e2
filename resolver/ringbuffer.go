package resolver

// ringBuffer is a tiny fixed-capacity association of track id to resolved
// URL, overwritten oldest-first. It exists to keep two nearly simultaneous
// range requests for the same unresolved track from racing independent
// network resolutions.
type ringBuffer struct {
	entries []ringEntry
	next    int
}

type ringEntry struct {
	id  string
	url string
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{entries: make([]ringEntry, capacity)}
}

// get returns the cached URL for id, if present.
func (r *ringBuffer) get(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	for _, e := range r.entries {
		if e.id == id {
			return e.url, true
		}
	}
	return "", false
}

// put records an association, overwriting the oldest slot.
func (r *ringBuffer) put(id, url string) {
	r.entries[r.next] = ringEntry{id: id, url: url}
	r.next = (r.next + 1) % len(r.entries)
}
