package metadata

// History is a fixed-capacity ring of UpdateRecords. Pushing onto a full
// ring evicts the oldest record. It is not safe for concurrent use.
type History struct {
	buf   []UpdateRecord
	head  int // index of the next write
	count int
}

// NewHistory creates a History holding at most capacity records
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]UpdateRecord, capacity)}
}

// Push appends rec as the most recent record
func (h *History) Push(rec UpdateRecord) {
	h.buf[h.head] = rec
	h.head = (h.head + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Len returns the number of records held
func (h *History) Len() int {
	return h.count
}

// Cap returns the capacity
func (h *History) Cap() int {
	return len(h.buf)
}

// At returns the i-th most recent record, 0 being the newest
func (h *History) At(i int) UpdateRecord {
	if i < 0 || i >= h.count {
		panic("metadata: history index out of range")
	}
	idx := (h.head - 1 - i + 2*len(h.buf)) % len(h.buf)
	return h.buf[idx]
}

// Records returns a copy of all records, most recent first
func (h *History) Records() []UpdateRecord {
	out := make([]UpdateRecord, h.count)
	for i := range h.count {
		out[i] = h.At(i)
	}
	return out
}

// Reset empties the ring and refills it from records ordered most recent
// first. Records beyond the capacity are dropped from the old end.
func (h *History) Reset(records []UpdateRecord) {
	clear(h.buf)
	h.head, h.count = 0, 0
	if len(records) > len(h.buf) {
		records = records[:len(h.buf)]
	}
	for i := len(records) - 1; i >= 0; i-- {
		h.Push(records[i])
	}
}
