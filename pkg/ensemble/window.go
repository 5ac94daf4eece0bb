package ensemble

// window is a fixed-capacity FIFO of float64 values. Pushing into a full
// window evicts the oldest value.
type window struct {
	buf  []float64
	head int
	n    int
}

func newWindow(capacity int) *window {
	if capacity < 1 {
		capacity = 1
	}
	return &window{buf: make([]float64, capacity)}
}

func (w *window) push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

func (w *window) len() int {
	return w.n
}

// last returns the k most recent values, oldest first.
func (w *window) last(k int) []float64 {
	if k > w.n {
		k = w.n
	}
	out := make([]float64, k)
	start := w.n - k
	for i := 0; i < k; i++ {
		out[i] = w.buf[(w.head+start+i)%len(w.buf)]
	}
	return out
}

// values returns every value, oldest first.
func (w *window) values() []float64 {
	return w.last(w.n)
}

func (w *window) reset() {
	w.head = 0
	w.n = 0
}
