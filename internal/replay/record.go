// Package replay records the raw inputs of a training session as JSON lines
// and plays them back, and generates synthetic demo input.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/motion"
)

// ErrMalformedTick is wrapped by Reader.Next for lines that do not decode.
var ErrMalformedTick = errors.New("replay: malformed tick")

// Tick is the input delivered to the pipeline at one tick. Either input may
// be nil.
type Tick struct {
	Timestamp time.Time
	Marker    *marker.Observation
	Motion    *motion.Sample
}

type tickRecord struct {
	T      time.Time     `json:"t"`
	Marker *markerRecord `json:"marker,omitempty"`
	Motion *motionRecord `json:"motion,omitempty"`
}

type markerRecord struct {
	T        time.Time     `json:"t"`
	Detected bool          `json:"detected"`
	Corners  [4][2]float64 `json:"corners"`
}

type motionRecord struct {
	T        time.Time  `json:"t"`
	Accel    [3]float64 `json:"accel"`
	Gyro     [3]float64 `json:"gyro"`
	Absolute bool       `json:"abs,omitempty"`
}

func toRecord(t Tick) tickRecord {
	rec := tickRecord{T: t.Timestamp}
	if o := t.Marker; o != nil {
		m := &markerRecord{T: o.Timestamp, Detected: o.Detected}
		for i, p := range o.Corners {
			m.Corners[i] = [2]float64{p.X, p.Y}
		}
		rec.Marker = m
	}
	if s := t.Motion; s != nil {
		rec.Motion = &motionRecord{
			T:        s.Timestamp,
			Accel:    [3]float64{s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z},
			Gyro:     [3]float64{s.RotationRate.X, s.RotationRate.Y, s.RotationRate.Z},
			Absolute: s.Absolute,
		}
	}
	return rec
}

func (rec tickRecord) tick() Tick {
	t := Tick{Timestamp: rec.T}
	if m := rec.Marker; m != nil {
		o := &marker.Observation{Detected: m.Detected, Timestamp: m.T}
		for i, c := range m.Corners {
			o.Corners[i] = r2.Point{X: c[0], Y: c[1]}
		}
		t.Marker = o
	}
	if m := rec.Motion; m != nil {
		t.Motion = &motion.Sample{
			Timestamp:    m.T,
			Acceleration: r3.Vector{X: m.Accel[0], Y: m.Accel[1], Z: m.Accel[2]},
			RotationRate: r3.Vector{X: m.Gyro[0], Y: m.Gyro[1], Z: m.Gyro[2]},
			Absolute:     m.Absolute,
		}
	}
	return t
}

// Writer appends ticks to a recording, one JSON object per line.
type Writer struct {
	enc   *json.Encoder
	count int
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes t as one line.
func (w *Writer) Write(t Tick) error {
	if err := w.enc.Encode(toRecord(t)); err != nil {
		return fmt.Errorf("replay: write tick %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of ticks written.
func (w *Writer) Count() int { return w.count }

// Reader decodes a recording written by Writer.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Reader{scanner: sc}
}

// Next returns the next tick, or io.EOF at the end of the recording. Blank
// lines are skipped; any other undecodable line is an error.
func (r *Reader) Next() (Tick, error) {
	for r.scanner.Scan() {
		r.line++
		b := r.scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec tickRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return Tick{}, fmt.Errorf("%w: line %d: %v", ErrMalformedTick, r.line, err)
		}
		return rec.tick(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return Tick{}, err
	}
	return Tick{}, io.EOF
}
