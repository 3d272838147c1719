package replay

import (
	"errors"
	"io"

	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/monitoring"
	"github.com/banshee-data/weldcoach/internal/motion"
	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/timeutil"
	"github.com/banshee-data/weldcoach/internal/trainer"
)

// ErrEmptyRecording is returned by Drive when the source has no ticks.
var ErrEmptyRecording = errors.New("replay: recording has no ticks")

// TickSource yields ticks in order until io.EOF. Reader and Synthetic both
// satisfy it.
type TickSource interface {
	Next() (Tick, error)
}

// Player hands one recorded tick to each Latest call, so a recording can
// feed Runner.Run at the live tick rate. After the recording ends Latest
// returns nil inputs and Done reports true.
type Player struct {
	src  TickSource
	done bool
	err  error
}

var _ trainer.Source = (*Player)(nil)

// NewPlayer plays ticks from src.
func NewPlayer(src TickSource) *Player {
	return &Player{src: src}
}

// Latest returns the inputs of the next recorded tick.
func (p *Player) Latest() (*marker.Observation, *motion.Sample) {
	if p.done {
		return nil, nil
	}
	t, err := p.src.Next()
	if err != nil {
		p.done = true
		if !errors.Is(err, io.EOF) {
			p.err = err
		}
		return nil, nil
	}
	return t.Marker, t.Motion
}

// Done reports whether the recording is exhausted.
func (p *Player) Done() bool { return p.done }

// Err returns the read error that ended playback, if it was not io.EOF.
func (p *Player) Err() error { return p.err }

// Drive steps r through every tick of src using the recorded timestamps
// instead of a ticker. clock must be the runner's clock; it is set to each
// tick's timestamp so elapsed time follows the recording. The session is
// started on the first tick if Idle and stopped when src ends early.
func Drive(r *trainer.Runner, clock *timeutil.MockClock, src TickSource) (session.Result, error) {
	agg := r.Session()
	ticks := 0
	for {
		t, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return session.Result{}, err
		}

		clock.Set(t.Timestamp)
		if agg.State() == session.Idle {
			if err := r.Start(); err != nil {
				return session.Result{}, err
			}
		}
		ticks++
		if u := r.Step(t.Timestamp, t.Marker, t.Motion); u.Completed && u.Result != nil {
			monitoring.Logf("replay: session completed after %d ticks", ticks)
			return *u.Result, nil
		}
	}

	if res, ok := agg.Result(); ok {
		return res, nil
	}
	if ticks == 0 {
		return session.Result{}, ErrEmptyRecording
	}
	monitoring.Logf("replay: input ended after %d ticks, stopping session", ticks)
	return agg.Stop()
}
