package marker

// Tracker keeps the one previous-frame snapshot needed for speed
// differencing. Frames without a marker never replace the snapshot, and
// the first detection after a gap reports no speed.
type Tracker struct {
	cam Camera

	previous     *Result
	lastDetected bool
}

// NewTracker validates cam and returns an empty tracker.
func NewTracker(cam Camera) (*Tracker, error) {
	if err := cam.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{cam: cam}, nil
}

// Camera returns the tracker's camera model.
func (t *Tracker) Camera() Camera { return t.cam }

// Track extracts the geometry of obs relative to the previous detection.
func (t *Tracker) Track(obs Observation) Result {
	if !obs.Detected {
		t.lastDetected = false
		return Extract(obs, t.cam, nil, 0)
	}

	var prev *Result
	var dt float64
	if t.lastDetected && t.previous != nil {
		prev = t.previous
		dt = obs.Timestamp.Sub(prev.Timestamp).Seconds()
	}

	res := Extract(obs, t.cam, prev, dt)
	snapshot := res
	t.previous = &snapshot
	t.lastDetected = true
	return res
}

// Previous returns a copy of the last detected result, or nil.
func (t *Tracker) Previous() *Result {
	if t.previous == nil {
		return nil
	}
	p := *t.previous
	return &p
}

// Reset forgets the previous snapshot.
func (t *Tracker) Reset() {
	t.previous = nil
	t.lastDetected = false
}
