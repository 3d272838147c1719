package motion

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/weldcoach/internal/monitoring"
)

// ErrMalformedLine is wrapped by every ParseLine failure.
var ErrMalformedLine = errors.New("malformed motion line")

// jsonLine is the object form emitted by the phone bridge.
type jsonLine struct {
	T        float64 `json:"t"` // Unix milliseconds
	AX       float64 `json:"ax"`
	AY       float64 `json:"ay"`
	AZ       float64 `json:"az"`
	GX       float64 `json:"gx"`
	GY       float64 `json:"gy"`
	GZ       float64 `json:"gz"`
	Absolute bool    `json:"abs"`
}

// ParseLine decodes one IMU line. Two forms are accepted:
//
//	t_ms,ax,ay,az,gx,gy,gz[,abs]
//	{"t":t_ms,"ax":..,"ay":..,"az":..,"gx":..,"gy":..,"gz":..,"abs":false}
//
// where t_ms is Unix time in milliseconds, a* is acceleration including
// gravity in m/s² and g* is rotation rate in deg/s.
func ParseLine(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, fmt.Errorf("%w: empty", ErrMalformedLine)
	}

	var s Sample
	if strings.HasPrefix(line, "{") {
		var j jsonLine
		if err := json.Unmarshal([]byte(line), &j); err != nil {
			return Sample{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
		s = Sample{
			Timestamp:    fromMillis(j.T),
			Acceleration: r3.Vector{X: j.AX, Y: j.AY, Z: j.AZ},
			RotationRate: r3.Vector{X: j.GX, Y: j.GY, Z: j.GZ},
			Absolute:     j.Absolute,
		}
	} else {
		fields := strings.Split(line, ",")
		if len(fields) != 7 && len(fields) != 8 {
			return Sample{}, fmt.Errorf("%w: want 7 or 8 fields, got %d", ErrMalformedLine, len(fields))
		}
		var vals [7]float64
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return Sample{}, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i+1, err)
			}
			vals[i] = v
		}
		s = Sample{
			Timestamp:    fromMillis(vals[0]),
			Acceleration: r3.Vector{X: vals[1], Y: vals[2], Z: vals[3]},
			RotationRate: r3.Vector{X: vals[4], Y: vals[5], Z: vals[6]},
		}
		if len(fields) == 8 {
			abs, err := strconv.ParseBool(strings.TrimSpace(fields[7]))
			if err != nil {
				return Sample{}, fmt.Errorf("%w: absolute flag: %v", ErrMalformedLine, err)
			}
			s.Absolute = abs
		}
	}

	if !s.finite() {
		return Sample{}, fmt.Errorf("%w: non-finite value", ErrMalformedLine)
	}
	return s, nil
}

func fromMillis(ms float64) time.Time {
	sec := math.Floor(ms / 1000)
	nsec := math.Round((ms - sec*1000) * float64(time.Millisecond))
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// Reader yields samples from a line stream. Blank lines and lines starting
// with '#' are ignored; malformed lines are skipped and counted, since a
// serial bridge often emits partial lines on connect.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	skipped int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next well-formed sample, or io.EOF at the end of the
// stream.
func (r *Reader) Next() (Sample, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		s, err := ParseLine(text)
		if err != nil {
			r.skipped++
			monitoring.Logf("motion: skipping line %d: %v", r.line, err)
			continue
		}
		return s, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Sample{}, err
	}
	return Sample{}, io.EOF
}

// Skipped returns how many malformed lines have been dropped.
func (r *Reader) Skipped() int { return r.skipped }
