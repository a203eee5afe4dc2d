package resilience

// window is a fixed-size ring of recent call outcomes. It ages failures out
// by call volume rather than wall clock, which keeps the breaker
// allocation-free after construction at the cost of skew during bursts.
// Not safe for concurrent use; the owning breaker's mutex guards it.
type window struct {
	outcomes []bool // true = failure
	size     int
	head     int
	count    int
	failures int
}

func newWindow(size int) *window {
	return &window{
		outcomes: make([]bool, size),
		size:     size,
	}
}

// record adds one outcome, evicting the oldest once the ring is full.
func (w *window) record(failure bool) {
	if w.count == w.size {
		if w.outcomes[w.head] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.outcomes[w.head] = failure
	if failure {
		w.failures++
	}
	w.head = (w.head + 1) % w.size
}

// failureRate returns failures/total within the window. An empty window
// reports 0 so a breaker with no traffic never trips.
func (w *window) failureRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.count)
}

func (w *window) total() int { return w.count }

func (w *window) failureCount() int { return w.failures }

func (w *window) reset() {
	w.head = 0
	w.count = 0
	w.failures = 0
}
