// Package technique defines the supported welding processes and the fixed
// parameter table each session is scored against.
package technique

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTechnique is returned for names or values outside the
// supported set.
var ErrUnknownTechnique = errors.New("unknown welding technique")

// Technique is a welding process.
type Technique uint8

const (
	MIG Technique = iota + 1
	TIG
	Electrode
)

// All lists every supported technique in display order.
var All = []Technique{MIG, TIG, Electrode}

func (t Technique) String() string {
	switch t {
	case MIG:
		return "MIG"
	case TIG:
		return "TIG"
	case Electrode:
		return "ELECTRODE"
	}
	return fmt.Sprintf("Technique(%d)", uint8(t))
}

// Parse returns the technique named s, ignoring case.
func Parse(s string) (Technique, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MIG":
		return MIG, nil
	case "TIG":
		return TIG, nil
	case "ELECTRODE", "MMA", "STICK":
		return Electrode, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTechnique, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Technique) MarshalText() ([]byte, error) {
	if _, err := Lookup(t); err != nil {
		return nil, err
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Technique) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the range, endpoints included.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Midpoint returns the centre of the range.
func (r Range) Midpoint() float64 { return (r.Min + r.Max) / 2 }

func (r Range) String() string { return fmt.Sprintf("%g-%g", r.Min, r.Max) }

// Weights are the per-component contributions to the overall quality. They
// sum to one for every technique.
type Weights struct {
	Angle     float64 `json:"angle"`
	Distance  float64 `json:"distance"`
	Speed     float64 `json:"speed"`
	Stability float64 `json:"stability"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 { return w.Angle + w.Distance + w.Speed + w.Stability }

// MovementPattern is the torch motion a technique calls for.
type MovementPattern string

const (
	Oscillating MovementPattern = "oscillating"
	Linear      MovementPattern = "linear"
	Dragging    MovementPattern = "dragging"
)

// Parameters is the constant scoring profile of one technique.
//
// Angle is the work angle in degrees, Distance the tip-to-work distance in
// mm and Speed the travel speed in mm/s. VibrationTolerance is the largest
// acceptable RMS of the smoothed acceleration in m/s². Duration is
// encoded in JSON as duration_s, in seconds.
type Parameters struct {
	Technique          Technique       `json:"technique"`
	Angle              Range           `json:"angle"`
	Distance           Range           `json:"distance"`
	Speed              Range           `json:"speed"`
	Weights            Weights         `json:"weights"`
	VibrationTolerance float64         `json:"vibration_tolerance"`
	Duration           time.Duration   `json:"-"`
	Pattern            MovementPattern `json:"pattern"`
	Tips               [3]string       `json:"tips"`
}

type plainParameters Parameters

type parametersJSON struct {
	*plainParameters
	DurationSeconds float64 `json:"duration_s"`
}

// MarshalJSON implements json.Marshaler.
func (p Parameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(parametersJSON{(*plainParameters)(&p), p.Duration.Seconds()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Parameters) UnmarshalJSON(b []byte) error {
	aux := parametersJSON{plainParameters: (*plainParameters)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.Duration = time.Duration(aux.DurationSeconds * float64(time.Second))
	return nil
}

// Lookup returns the parameter table entry for t.
func Lookup(t Technique) (Parameters, error) {
	switch t {
	case MIG:
		return Parameters{
			Technique:          MIG,
			Angle:              Range{Min: 70, Max: 80},
			Distance:           Range{Min: 10, Max: 15},
			Speed:              Range{Min: 5, Max: 10},
			Weights:            Weights{Angle: 0.35, Distance: 0.25, Speed: 0.20, Stability: 0.20},
			VibrationTolerance: 0.3,
			Duration:           60 * time.Second,
			Pattern:            Oscillating,
			Tips: [3]string{
				"Use smooth, controlled oscillating movements.",
				"Hold the same angle for the whole pass.",
				"Watch the bead as it forms.",
			},
		}, nil
	case TIG:
		return Parameters{
			Technique:          TIG,
			Angle:              Range{Min: 60, Max: 75},
			Distance:           Range{Min: 2, Max: 5},
			Speed:              Range{Min: 2, Max: 5},
			Weights:            Weights{Angle: 0.25, Distance: 0.35, Speed: 0.25, Stability: 0.15},
			VibrationTolerance: 0.1,
			Duration:           90 * time.Second,
			Pattern:            Linear,
			Tips: [3]string{
				"Keep precise control of the tungsten electrode.",
				"Keep a constant distance to the work.",
				"Watch the weld pool.",
			},
		}, nil
	case Electrode:
		return Parameters{
			Technique:          Electrode,
			Angle:              Range{Min: 60, Max: 80},
			Distance:           Range{Min: 5, Max: 10},
			Speed:              Range{Min: 3, Max: 7},
			Weights:            Weights{Angle: 0.25, Distance: 0.30, Speed: 0.20, Stability: 0.25},
			VibrationTolerance: 0.2,
			Duration:           75 * time.Second,
			Pattern:            Dragging,
			Tips: [3]string{
				"Close the gap as the electrode is consumed.",
				"Use a smooth dragging motion.",
				"Match travel speed to the joint type.",
			},
		}, nil
	}
	return Parameters{}, fmt.Errorf("%w: %d", ErrUnknownTechnique, uint8(t))
}

// MustLookup is Lookup for the compile-time constants; it panics on an
// unknown technique.
func MustLookup(t Technique) Parameters {
	p, err := Lookup(t)
	if err != nil {
		panic(err)
	}
	return p
}
