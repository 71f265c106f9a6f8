package txn

// History keeps the most recent transitions in arrival order.
// It is not safe for concurrent use; Tracker guards it.
type History struct {
	size        int
	transitions []Transition
}

// NewHistory creates a history keeping at most size transitions.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 50
	}
	return &History{size: size, transitions: make([]Transition, 0, size)}
}

// Record appends t, dropping the oldest entry when full.
func (h *History) Record(t Transition) {
	if len(h.transitions) >= h.size {
		copy(h.transitions, h.transitions[1:])
		h.transitions[len(h.transitions)-1] = t
		return
	}
	h.transitions = append(h.transitions, t)
}

// Recent returns a copy of the kept transitions, oldest first.
func (h *History) Recent() []Transition {
	out := make([]Transition, len(h.transitions))
	copy(out, h.transitions)
	return out
}
