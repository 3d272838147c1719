// Package session accumulates scored pose estimates over one practice
// session and produces the final score, grade and feedback.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/weldcoach/internal/config"
	"github.com/banshee-data/weldcoach/internal/fusion"
	"github.com/banshee-data/weldcoach/internal/monitoring"
	"github.com/banshee-data/weldcoach/internal/quality"
	"github.com/banshee-data/weldcoach/internal/technique"
	"github.com/banshee-data/weldcoach/internal/timeutil"
)

// ErrInvalidTransition is wrapped by every call the current state does not
// allow.
var ErrInvalidTransition = errors.New("invalid session transition")

// Defaults for Options fields left zero.
const (
	DefaultMaxSamples       = 1000
	DefaultToleranceQuality = 80
)

// State is the aggregator's lifecycle state.
type State uint8

const (
	Idle State = iota
	Running
	Paused
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Sample is one scored pose.
type Sample struct {
	Pose      fusion.PoseEstimate `json:"pose"`
	Quality   float64             `json:"quality"`
	Breakdown quality.Breakdown   `json:"breakdown"`
	Timestamp time.Time           `json:"timestamp"`
}

// Options tune an Aggregator.
type Options struct {
	MaxSamples       int            // sliding window size
	ToleranceQuality float64        // samples above this count as in tolerance
	Clock            timeutil.Clock // nil uses the real clock
}

// OptionsFromTuning reads the session keys of the tuning file.
func OptionsFromTuning(t *config.TuningConfig) Options {
	if t == nil {
		t = config.EmptyTuningConfig()
	}
	return Options{
		MaxSamples:       t.GetMaxSamples(),
		ToleranceQuality: t.GetToleranceQuality(),
	}
}

// Aggregator is the session state machine:
//
//	Idle -> Running <-> Paused -> Completed -> Idle (Reset)
//
// Elapsed time only advances while Running. A Running session completes on
// its own once elapsed time reaches the technique's duration.
type Aggregator struct {
	params technique.Parameters
	opts   Options
	clock  timeutil.Clock

	state      State
	id         string
	startedAt  time.Time
	resumedAt  time.Time     // start of the current running stretch
	accrued    time.Duration // elapsed time before resumedAt
	samples    *sampleRing
	result     *Result
}

// New returns an Idle aggregator for params.
func New(params technique.Parameters, opts Options) (*Aggregator, error) {
	if _, err := technique.Lookup(params.Technique); err != nil {
		return nil, err
	}
	if params.Duration <= 0 {
		return nil, fmt.Errorf("session duration must be positive, got %s", params.Duration)
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}
	if opts.ToleranceQuality == 0 {
		opts.ToleranceQuality = DefaultToleranceQuality
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Aggregator{
		params:  params,
		opts:    opts,
		clock:   opts.Clock,
		samples: newSampleRing(opts.MaxSamples),
	}, nil
}

// Params returns the technique parameters the session is scored against.
func (a *Aggregator) Params() technique.Parameters { return a.params }

// State returns the current state.
func (a *Aggregator) State() State { return a.state }

// ID returns the identifier assigned at Start, or "" while Idle.
func (a *Aggregator) ID() string { return a.id }

// Len returns the number of retained samples.
func (a *Aggregator) Len() int { return a.samples.size }

// Samples returns the retained samples, oldest first.
func (a *Aggregator) Samples() []Sample { return a.samples.ordered() }

// Elapsed returns the running time of the session, excluding pauses.
func (a *Aggregator) Elapsed() time.Duration {
	if a.state == Running {
		return a.accrued + a.clock.Since(a.resumedAt)
	}
	return a.accrued
}

// Remaining returns the time left before auto-completion.
func (a *Aggregator) Remaining() time.Duration {
	if r := a.params.Duration - a.Elapsed(); r > 0 {
		return r
	}
	return 0
}

// Result returns the completed session's result.
func (a *Aggregator) Result() (Result, bool) {
	if a.result == nil {
		return Result{}, false
	}
	return a.result.clone(), true
}

// Start begins a new session.
func (a *Aggregator) Start() error {
	if a.state != Idle {
		return a.reject("start")
	}
	now := a.clock.Now()
	a.id = uuid.NewString()
	a.startedAt = now
	a.resumedAt = now
	a.accrued = 0
	a.state = Running
	monitoring.Logf("session %s: %s started, target %s", a.id, a.params.Technique, a.params.Duration)
	return nil
}

// Pause stops elapsed-time accounting without discarding samples.
func (a *Aggregator) Pause() error {
	if a.state != Running {
		return a.reject("pause")
	}
	a.accrued += a.clock.Since(a.resumedAt)
	a.state = Paused
	monitoring.Logf("session %s: paused at %s", a.id, a.accrued)
	return nil
}

// Resume continues a paused session.
func (a *Aggregator) Resume() error {
	if a.state != Paused {
		return a.reject("resume")
	}
	a.resumedAt = a.clock.Now()
	a.state = Running
	monitoring.Logf("session %s: resumed", a.id)
	return nil
}

// Record scores pose and appends it to the sample window. It completes the
// session when the duration has been reached, in which case the returned
// bool is true and Result is available.
func (a *Aggregator) Record(pose fusion.PoseEstimate) (Sample, bool, error) {
	if a.state != Running {
		return Sample{}, false, a.reject("record")
	}
	b := quality.Evaluate(pose, a.params)
	s := Sample{
		Pose:      pose,
		Quality:   b.Overall,
		Breakdown: b,
		Timestamp: pose.Timestamp,
	}
	a.samples.add(s)
	_, done := a.CheckDuration()
	return s, done, nil
}

// CheckDuration completes a Running session whose elapsed time has reached
// the technique duration. It reports whether the session is Completed.
func (a *Aggregator) CheckDuration() (Result, bool) {
	if a.state == Running && a.Elapsed() >= a.params.Duration {
		monitoring.Logf("session %s: duration reached", a.id)
		return a.complete(), true
	}
	if a.state == Completed {
		return a.result.clone(), true
	}
	return Result{}, false
}

// Stop ends a Running or Paused session early and returns its result.
func (a *Aggregator) Stop() (Result, error) {
	if a.state != Running && a.state != Paused {
		return Result{}, a.reject("stop")
	}
	return a.complete(), nil
}

// Reset clears samples and timing and returns to Idle from any state.
// Results already returned to callers are unaffected.
func (a *Aggregator) Reset() {
	if a.state != Idle {
		monitoring.Logf("session %s: reset from %s", a.id, a.state)
	}
	a.samples.clear()
	a.state = Idle
	a.id = ""
	a.startedAt = time.Time{}
	a.resumedAt = time.Time{}
	a.accrued = 0
	a.result = nil
}

func (a *Aggregator) complete() Result {
	if a.state == Running {
		a.accrued += a.clock.Since(a.resumedAt)
	}
	a.state = Completed

	r := summarize(a.params, a.samples.ordered(), a.opts.ToleranceQuality)
	r.ID = a.id
	r.Duration = a.accrued
	r.StartedAt = a.startedAt
	r.CompletedAt = a.clock.Now()
	a.result = &r

	monitoring.Logf("session %s: completed in %s, score %d (%s)", a.id, r.Duration, r.Score, r.Grade)
	return r.clone()
}

func (a *Aggregator) reject(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, a.state)
}
