package track

// history is a fixed-capacity FIFO of accepted samples. Pushing onto a full
// history overwrites the oldest entry.
type history struct {
	buf   []PositionSample
	start int
	n     int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]PositionSample, capacity)}
}

func (h *history) Len() int {
	return h.n
}

// At returns the i-th sample, oldest first
func (h *history) At(i int) PositionSample {
	return h.buf[(h.start+i)%len(h.buf)]
}

// FromEnd returns the i-th sample counting back from the newest (0 = newest)
func (h *history) FromEnd(i int) PositionSample {
	return h.At(h.n - 1 - i)
}

func (h *history) Push(s PositionSample) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Slice copies the history out, oldest first
func (h *history) Slice() []PositionSample {
	out := make([]PositionSample, h.n)
	for i := range out {
		out[i] = h.At(i)
	}
	return out
}
