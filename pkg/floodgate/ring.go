package floodgate

// Fixed-capacity ring buffers backing the per-source behavior profile.
// The capacities (50 intervals, 20 user agents) are part of the detection
// contract: the diversity and variance thresholds assume these windows.
// Rings are not safe for concurrent use; the owning source lock guards them.

type floatRing struct {
	buf  []float64
	head int
	size int
}

func newFloatRing(capacity int) *floatRing {
	return &floatRing{buf: make([]float64, capacity)}
}

// Push appends a value, evicting the oldest once the ring is full.
func (r *floatRing) Push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *floatRing) Len() int { return r.size }

// Values returns the buffered values, oldest first.
func (r *floatRing) Values() []float64 {
	out := make([]float64, 0, r.size)
	start := r.head - r.size
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// MeanVariance returns the mean and population variance of the buffered values.
// Both are 0 when the ring is empty.
func (r *floatRing) MeanVariance() (mean, variance float64) {
	if r.size == 0 {
		return 0, 0
	}
	for _, v := range r.Values() {
		mean += v
	}
	mean /= float64(r.size)
	for _, v := range r.Values() {
		d := v - mean
		variance += d * d
	}
	variance /= float64(r.size)
	return mean, variance
}

type stringRing struct {
	buf  []string
	head int
	size int
}

func newStringRing(capacity int) *stringRing {
	return &stringRing{buf: make([]string, capacity)}
}

func (r *stringRing) Push(v string) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *stringRing) Len() int { return r.size }

// Values returns the buffered values, oldest first.
func (r *stringRing) Values() []string {
	out := make([]string, 0, r.size)
	start := r.head - r.size
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Distinct returns the number of unique values currently buffered.
func (r *stringRing) Distinct() int {
	seen := make(map[string]struct{}, r.size)
	for _, v := range r.Values() {
		seen[v] = struct{}{}
	}
	return len(seen)
}
