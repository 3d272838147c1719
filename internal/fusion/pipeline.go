package fusion

import (
	"math"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/weldcoach/internal/kalman"
	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/monitoring"
	"github.com/banshee-data/weldcoach/internal/motion"
)

// Pipeline owns the filters of one session and turns the latest marker
// geometry and motion sample into a PoseEstimate per tick. It is not safe
// for concurrent use; a single tick loop drives it.
type Pipeline struct {
	cfg Config

	pitch, yaw, roll *kalman.Scalar
	distance         *kalman.Scalar
	velocity         *kalman.Vector

	smoothed   r3.Vector
	steadiness float64
	window     []r3.Vector // vibration ring
	head, size int

	approach, lateral float64
	speedKnown        bool

	acquired bool
	missed   int
	status   TrackingStatus
}

// NewPipeline validates cfg and builds its filters.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg}
	var err error
	for _, f := range []**kalman.Scalar{&p.pitch, &p.yaw, &p.roll} {
		if *f, err = kalman.NewScalar(cfg.Angle); err != nil {
			return nil, err
		}
	}
	if p.distance, err = kalman.NewScalar(cfg.Distance); err != nil {
		return nil, err
	}
	if p.velocity, err = kalman.NewVector(cfg.Velocity); err != nil {
		return nil, err
	}
	p.window = make([]r3.Vector, cfg.VibrationWindow)
	return p, nil
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Status returns the tracking status of the last tick.
func (p *Pipeline) Status() TrackingStatus { return p.status }

// Tick fuses the latest inputs. Either input may be nil (or an undetected
// marker result); the corresponding estimates then hold their last values.
func (p *Pipeline) Tick(m *marker.Result, s *motion.Sample, ts time.Time) PoseEstimate {
	if m != nil && m.Detected {
		p.observeMarker(m)
	} else {
		p.missMarker()
	}

	if s != nil {
		p.observeMotion(s)
	}

	return p.estimate(ts)
}

func (p *Pipeline) observeMarker(m *marker.Result) {
	if p.status == Lost {
		monitoring.Logf("fusion: marker reacquired after %d missed ticks", p.missed)
	}
	p.acquired = true
	p.missed = 0
	p.status = Tracking

	if finite(m.Pitch) && finite(m.Yaw) && finite(m.Roll) {
		p.pitch.Filter(m.Pitch, 0)
		p.yaw.Filter(m.Yaw, 0)
		p.roll.Filter(m.Roll, 0)
	}
	if m.Distance != nil && finite(*m.Distance) {
		p.distance.Filter(*m.Distance, 0)
	}
	if m.ApproachSpeed != nil && finite(*m.ApproachSpeed) {
		p.approach = *m.ApproachSpeed
	}
	if m.LateralSpeed != nil && finite(*m.LateralSpeed) {
		p.lateral = *m.LateralSpeed
		p.speedKnown = true
	}
}

func (p *Pipeline) missMarker() {
	if !p.acquired {
		p.status = Searching
		return
	}
	p.missed++
	if p.missed >= p.cfg.StaleAfterTicks {
		if p.status != Lost {
			monitoring.Logf("fusion: marker lost after %d ticks", p.missed)
		}
		p.status = Lost
		return
	}
	p.status = Coasting
}

func (p *Pipeline) observeMotion(s *motion.Sample) {
	lin := s.LinearAcceleration()
	if !finite(lin.X) || !finite(lin.Y) || !finite(lin.Z) {
		return
	}

	var control []float64
	if g := p.cfg.RotationControlGain; g != 0 {
		w := s.RotationRate.Mul(g)
		control = []float64{w.X, w.Y, w.Z}
	}

	est, err := p.velocity.Filter([]float64{lin.X, lin.Y, lin.Z}, control)
	if err != nil {
		monitoring.Logf("fusion: motion filter rejected sample: %v", err)
		return
	}
	p.smoothed = r3.Vector{X: est[0], Y: est[1], Z: est[2]}
	p.steadiness = s.Steadiness()

	p.window[p.head] = p.smoothed
	p.head = (p.head + 1) % len(p.window)
	if p.size < len(p.window) {
		p.size++
	}
}

// vibration is the RMS deviation of the windowed smoothed vectors from
// their mean.
func (p *Pipeline) vibration() float64 {
	if p.size < 2 {
		return 0
	}
	var mean r3.Vector
	for i := 0; i < p.size; i++ {
		mean = mean.Add(p.window[i])
	}
	mean = mean.Mul(1 / float64(p.size))

	var sum float64
	for i := 0; i < p.size; i++ {
		d := p.window[i].Sub(mean)
		sum += d.Dot(d)
	}
	return math.Sqrt(sum / float64(p.size))
}

func (p *Pipeline) estimate(ts time.Time) PoseEstimate {
	pose := PoseEstimate{
		SpeedKnown:    p.speedKnown,
		ApproachSpeed: p.approach,
		LateralSpeed:  p.lateral,
		Velocity:      p.smoothed,
		Steadiness:    p.steadiness,
		Vibration:     p.vibration(),
		Status:        p.status,
		MissedTicks:   p.missed,
		Timestamp:     ts,
	}
	if p.pitch.Initialized() {
		pose.Angle = Angles{
			Pitch: p.pitch.Estimate(),
			Yaw:   p.yaw.Estimate(),
			Roll:  p.roll.Estimate(),
		}
	}
	if p.distance.Initialized() {
		pose.Distance = p.distance.Estimate()
	}
	if p.pitch.Initialized() && p.distance.Initialized() {
		pose.Stability = Stability(p.pitch.Covariance(), p.distance.Covariance())
	}
	return pose
}

// Reset discards all filter state and returns to Searching.
func (p *Pipeline) Reset() {
	p.pitch.Reset()
	p.yaw.Reset()
	p.roll.Reset()
	p.distance.Reset()
	p.velocity.Reset()

	p.smoothed = r3.Vector{}
	p.steadiness = 0
	for i := range p.window {
		p.window[i] = r3.Vector{}
	}
	p.head, p.size = 0, 0

	p.approach, p.lateral = 0, 0
	p.speedKnown = false
	p.acquired = false
	p.missed = 0
	p.status = Searching
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
