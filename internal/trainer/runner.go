// Package trainer drives the per-tick pipeline: marker geometry, sensor
// fusion, quality scoring and session aggregation.
package trainer

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/weldcoach/internal/config"
	"github.com/banshee-data/weldcoach/internal/fusion"
	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/monitoring"
	"github.com/banshee-data/weldcoach/internal/motion"
	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
	"github.com/banshee-data/weldcoach/internal/timeutil"
)

// Config wires the components of a Runner.
type Config struct {
	Camera       marker.Camera
	Fusion       fusion.Config
	Params       technique.Parameters
	Session      session.Options
	TickInterval time.Duration
	MarkerHold   int            // ticks a live detector frame is reused for
	Clock        timeutil.Clock // nil uses the real clock
}

// ConfigFromTuning assembles a Config for tech from the tuning file.
func ConfigFromTuning(t *config.TuningConfig, tech technique.Technique) (Config, error) {
	if t == nil {
		t = config.EmptyTuningConfig()
	}
	params, err := technique.Lookup(tech)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Camera: marker.Camera{
			MarkerSizeMM:    t.GetMarkerSizeMM(),
			FocalLengthPx:   t.GetFocalLengthPx(),
			FrameWidthPx:    t.GetFrameWidthPx(),
			FrameHeightPx:   t.GetFrameHeightPx(),
			MaxViewAngleDeg: t.GetMaxViewAngleDeg(),
			MountPitchDeg:   t.GetMountPitchDeg(),
			StandoffMM:      t.GetStandoffMM(),
		},
		Fusion:       fusion.ConfigFromTuning(t),
		Params:       params,
		Session:      session.OptionsFromTuning(t),
		TickInterval: t.GetTickInterval(),
		MarkerHold:   t.GetMarkerHoldTicks(),
	}, nil
}

// Update is what one tick produced.
type Update struct {
	Pose      fusion.PoseEstimate
	Sample    *session.Sample // nil when nothing was recorded this tick
	State     session.State
	Completed bool
	Result    *session.Result // set on the tick the session completes
}

// Runner owns the filters and the aggregator of one session. Step and Run
// must be called from a single goroutine.
type Runner struct {
	cfg      Config
	clock    timeutil.Clock
	tracker  *marker.Tracker
	pipeline *fusion.Pipeline
	agg      *session.Aggregator

	// OnUpdate, when set, receives every tick's Update. It runs on the
	// tick goroutine and must not block.
	OnUpdate func(Update)

	// Tap, when set, receives the raw inputs of every tick, for recording.
	Tap func(ts time.Time, obs *marker.Observation, s *motion.Sample)
}

// NewRunner validates cfg and builds the pipeline.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", cfg.TickInterval)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	cfg.Session.Clock = cfg.Clock

	tracker, err := marker.NewTracker(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	pipeline, err := fusion.NewPipeline(cfg.Fusion)
	if err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}
	agg, err := session.New(cfg.Params, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &Runner{
		cfg:      cfg,
		clock:    cfg.Clock,
		tracker:  tracker,
		pipeline: pipeline,
		agg:      agg,
	}, nil
}

// Session exposes the aggregator for Pause, Resume and inspection.
func (r *Runner) Session() *session.Aggregator { return r.agg }

// Start begins the session. Filters start fresh.
func (r *Runner) Start() error {
	r.tracker.Reset()
	r.pipeline.Reset()
	return r.agg.Start()
}

// Reset discards the session and all filter state.
func (r *Runner) Reset() {
	r.tracker.Reset()
	r.pipeline.Reset()
	r.agg.Reset()
}

// Step runs one tick at ts with the inputs that arrived since the previous
// tick. Poses are scored and recorded only while the session is Running
// and the marker has been acquired at least once; the duration is checked
// on every Running tick regardless.
func (r *Runner) Step(ts time.Time, obs *marker.Observation, s *motion.Sample) Update {
	if r.Tap != nil {
		r.Tap(ts, obs, s)
	}

	var geom *marker.Result
	if obs != nil {
		res := r.tracker.Track(*obs)
		geom = &res
	}
	pose := r.pipeline.Tick(geom, s, ts)

	u := Update{Pose: pose}
	if r.agg.State() == session.Running {
		if pose.Acquired() {
			sample, done, err := r.agg.Record(pose)
			if err == nil {
				u.Sample = &sample
				u.Completed = done
			}
		} else {
			_, u.Completed = r.agg.CheckDuration()
		}
		if u.Completed {
			if res, ok := r.agg.Result(); ok {
				u.Result = &res
			}
		}
	}
	u.State = r.agg.State()

	if r.OnUpdate != nil {
		r.OnUpdate(u)
	}
	return u
}

// Run starts the session if it is Idle and ticks at the configured
// interval until it completes or ctx is cancelled. On cancellation an
// active session is stopped and its result returned together with
// ctx.Err(). A FiniteSource that reports Done stops the session the same
// way, without an error.
func (r *Runner) Run(ctx context.Context, src Source) (session.Result, error) {
	if r.agg.State() == session.Idle {
		if err := r.Start(); err != nil {
			return session.Result{}, err
		}
	}
	if res, ok := r.agg.Result(); ok {
		return res, nil
	}

	ticker := r.clock.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	monitoring.Logf("trainer: ticking every %s", r.cfg.TickInterval)

	finite, _ := src.(FiniteSource)
	for {
		select {
		case <-ctx.Done():
			return r.stop(), ctx.Err()
		case ts := <-ticker.C():
			obs, s := src.Latest()
			if finite != nil && finite.Done() {
				monitoring.Logf("trainer: input exhausted, stopping session")
				return r.stop(), nil
			}
			if u := r.Step(ts, obs, s); u.Completed && u.Result != nil {
				return *u.Result, nil
			}
		}
	}
}

func (r *Runner) stop() session.Result {
	res, err := r.agg.Stop()
	if err != nil {
		res, _ = r.agg.Result()
	}
	return res
}
