package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pressure = VariableIdentity{Name: "pressure", Code: "7"}

func snap(chunk string, t ModelTime, v float64) Snapshot {
	return Snapshot{
		Identity:   pressure,
		Time:       t,
		TimeUnits:  "hours since 1970-01-01 00:00:00",
		Units:      "Pa",
		Grid:       Grid{Latitude: []float64{-1, 1}, Longitude: []float64{0}},
		Values:     []float64{v, v},
		Provenance: Provenance{Chunk: chunk, File: chunk + ".json"},
	}
}

func batch(chunk string, times ...ModelTime) []Snapshot {
	out := make([]Snapshot, len(times))
	for i, t := range times {
		out[i] = snap(chunk, t, float64(t))
	}
	return out
}

func retainedSet(times ...ModelTime) func(ModelTime) bool {
	set := make(map[ModelTime]bool, len(times))
	for _, t := range times {
		set[t] = true
	}
	return func(t ModelTime) bool { return set[t] }
}

func keptTimes(res OverlapResolution) []ModelTime {
	out := make([]ModelTime, 0, len(res.Kept))
	for _, s := range res.Kept {
		out = append(out, s.Time)
	}
	return out
}

func TestResolveOverlap(t *testing.T) {
	t.Run("no overlap keeps everything", func(t *testing.T) {
		res, err := ResolveOverlap(pressure, "b", retainedSet(1, 2), batch("b", 3, 4, 5))
		require.NoError(t, err)
		assert.Equal(t, []ModelTime{3, 4, 5}, keptTimes(res))
		assert.Empty(t, res.Dropped)
	})

	t.Run("leading overlap drops first snapshot", func(t *testing.T) {
		res, err := ResolveOverlap(pressure, "b", retainedSet(1, 2, 3), batch("b", 3, 4, 5))
		require.NoError(t, err)
		assert.Equal(t, []ModelTime{4, 5}, keptTimes(res))
		require.Len(t, res.Dropped, 1)
		assert.Equal(t, ModelTime(3), res.Dropped[0].Time)
	})

	t.Run("single-element batch fully retained", func(t *testing.T) {
		res, err := ResolveOverlap(pressure, "b", retainedSet(3), batch("b", 3))
		require.NoError(t, err)
		assert.Empty(t, res.Kept)
		assert.Len(t, res.Dropped, 1)
	})

	t.Run("two-element batch fully retained drops both", func(t *testing.T) {
		res, err := ResolveOverlap(pressure, "b", retainedSet(1, 2), batch("b", 1, 2))
		require.NoError(t, err)
		assert.Empty(t, res.Kept)
		assert.Len(t, res.Dropped, 2)
	})

	t.Run("empty batch", func(t *testing.T) {
		res, err := ResolveOverlap(pressure, "b", retainedSet(1), nil)
		require.NoError(t, err)
		assert.Empty(t, res.Kept)
		assert.Empty(t, res.Dropped)
	})
}

func TestResolveOverlap_Ambiguous(t *testing.T) {
	tests := []struct {
		name      string
		retained  []ModelTime
		batch     []ModelTime
		positions []int
	}{
		{name: "overlap at second position only", retained: []ModelTime{1, 2}, batch: []ModelTime{0.5, 2}, positions: []int{1}},
		{name: "two overlaps in a longer batch", retained: []ModelTime{1, 2, 3}, batch: []ModelTime{2, 3, 4}, positions: []int{0, 1}},
		{name: "three overlaps", retained: []ModelTime{1, 2, 3}, batch: []ModelTime{1, 2, 3}, positions: []int{0, 1, 2}},
		{name: "overlap in the middle", retained: []ModelTime{5}, batch: []ModelTime{4, 5, 6}, positions: []int{1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ResolveOverlap(pressure, "b", retainedSet(tc.retained...), batch("b", tc.batch...))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOverlapAmbiguity)
			assert.Empty(t, res.Kept)

			var overlapErr *OverlapError
			require.True(t, errors.As(err, &overlapErr))
			assert.Equal(t, tc.positions, overlapErr.Positions)
			assert.Equal(t, len(tc.batch), overlapErr.BatchLen)
			assert.Equal(t, "b", overlapErr.Chunk)
			assert.Equal(t, pressure, overlapErr.Identity)
		})
	}
}
