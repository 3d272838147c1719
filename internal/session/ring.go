package session

// sampleRing is a fixed-capacity sliding window of samples. Adding past
// capacity overwrites the oldest entry.
type sampleRing struct {
	buf  []Sample
	head int // next write position
	size int
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = DefaultMaxSamples
	}
	return &sampleRing{buf: make([]Sample, capacity)}
}

func (r *sampleRing) add(s Sample) {
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// ordered returns the retained samples oldest first.
func (r *sampleRing) ordered() []Sample {
	out := make([]Sample, 0, r.size)
	start := (r.head - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *sampleRing) clear() {
	for i := range r.buf {
		r.buf[i] = Sample{}
	}
	r.head, r.size = 0, 0
}
