package trainer

import (
	"sync"

	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/motion"
)

// Source supplies the inputs for one tick. Either value may be nil when
// nothing new has arrived since the previous tick.
type Source interface {
	Latest() (*marker.Observation, *motion.Sample)
}

// FiniteSource is a Source that can run out of input, such as a recording
// played at the live tick rate.
type FiniteSource interface {
	Source
	Done() bool
}

// Slots keeps the newest marker observation and motion sample written by
// producer goroutines. Producers never block; older values are
// overwritten. Latest hands each motion sample out once. A marker frame is
// handed out again on up to Hold further calls while no newer frame
// arrives, so a detector slower than the tick rate does not read as a
// lost marker.
type Slots struct {
	Hold int

	mu     sync.Mutex
	marker *marker.Observation
	held   int
	motion *motion.Sample
}

// SetMarker stores the detector's latest frame output.
func (s *Slots) SetMarker(o marker.Observation) {
	s.mu.Lock()
	s.marker = &o
	s.held = 0
	s.mu.Unlock()
}

// SetMotion stores the latest motion sample.
func (s *Slots) SetMotion(m motion.Sample) {
	s.mu.Lock()
	s.motion = &m
	s.mu.Unlock()
}

// Latest returns the stored values and clears the motion sample. The
// marker is cleared once it has been returned Hold+1 times.
func (s *Slots) Latest() (*marker.Observation, *motion.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var o *marker.Observation
	if s.marker != nil {
		v := *s.marker
		o = &v
		s.held++
		if s.held > s.Hold {
			s.marker = nil
		}
	}
	m := s.motion
	s.motion = nil
	return o, m
}
