package technique

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsSumToOne(t *testing.T) {
	t.Parallel()

	for _, tech := range All {
		p, err := Lookup(tech)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, p.Weights.Sum(), 1e-9, tech.String())
	}
}

func TestRangesAreOrdered(t *testing.T) {
	t.Parallel()

	for _, tech := range All {
		p := MustLookup(tech)
		for name, r := range map[string]Range{"angle": p.Angle, "distance": p.Distance, "speed": p.Speed} {
			assert.LessOrEqual(t, r.Min, r.Max, "%s %s", tech, name)
			assert.Greater(t, r.Min, 0.0, "%s %s", tech, name)
		}
		assert.Equal(t, tech, p.Technique)
		assert.Positive(t, p.Duration)
		for _, tip := range p.Tips {
			assert.NotEmpty(t, tip)
		}
	}
}

func TestEmphasis(t *testing.T) {
	t.Parallel()

	mig := MustLookup(MIG).Weights
	assert.Greater(t, mig.Angle, mig.Distance)

	for _, tech := range []Technique{TIG, Electrode} {
		w := MustLookup(tech).Weights
		assert.Greater(t, w.Distance, w.Angle, tech.String())
	}
}

func TestLookupUnknown(t *testing.T) {
	t.Parallel()

	_, err := Lookup(Technique(0))
	assert.ErrorIs(t, err, ErrUnknownTechnique)
	_, err = Lookup(Technique(42))
	assert.ErrorIs(t, err, ErrUnknownTechnique)
	assert.Panics(t, func() { MustLookup(Technique(9)) })
}

func TestParse(t *testing.T) {
	t.Parallel()

	cases := map[string]Technique{
		"MIG":        MIG,
		"tig":        TIG,
		" electrode": Electrode,
		"stick":      Electrode,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Parse("laser")
	assert.ErrorIs(t, err, ErrUnknownTechnique)
}

func TestTextRoundTrip(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(map[string]Technique{"technique": Electrode})
	require.NoError(t, err)
	assert.JSONEq(t, `{"technique":"ELECTRODE"}`, string(b))

	var out struct{ Technique Technique }
	require.NoError(t, json.Unmarshal([]byte(`{"Technique":"tig"}`), &out))
	assert.Equal(t, TIG, out.Technique)

	_, err = json.Marshal(Technique(0))
	assert.Error(t, err)
}

func TestRange(t *testing.T) {
	t.Parallel()

	r := Range{Min: 70, Max: 80}
	assert.True(t, r.Contains(70))
	assert.True(t, r.Contains(80))
	assert.False(t, r.Contains(80.0001))
	assert.Equal(t, 75.0, r.Midpoint())
	assert.Equal(t, "70-80", r.String())
	assert.Equal(t, "Technique(7)", Technique(7).String())
}

func TestParametersJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(MustLookup(TIG))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "TIG", raw["technique"])
	assert.Equal(t, 90.0, raw["duration_s"])
	assert.Equal(t, map[string]any{"min": 2.0, "max": 5.0}, raw["distance"])
	assert.Equal(t, 0.35, raw["weights"].(map[string]any)["distance"])
	assert.NotContains(t, raw, "Duration")

	var back Parameters
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, MustLookup(TIG), back)
}
