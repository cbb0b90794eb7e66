package chat

// History is a fixed-capacity ring of recent messages. Appending at capacity
// evicts the oldest entry first, so Len never exceeds Cap.
type History struct {
	buf   []Message
	start int
	n     int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]Message, capacity)}
}

// Append stores m and reports whether an older message was evicted.
func (h *History) Append(m Message) (evicted bool) {
	if h.n == len(h.buf) {
		h.buf[h.start] = m
		h.start = (h.start + 1) % len(h.buf)
		return true
	}
	h.buf[(h.start+h.n)%len(h.buf)] = m
	h.n++
	return false
}

// Recent returns up to k of the newest messages, oldest first.
func (h *History) Recent(k int) []Message {
	if k > h.n {
		k = h.n
	}
	if k <= 0 {
		return nil
	}
	out := make([]Message, 0, k)
	for i := h.n - k; i < h.n; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

func (h *History) Len() int { return h.n }
func (h *History) Cap() int { return len(h.buf) }
