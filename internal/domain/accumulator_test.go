package domain

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(acc *Accumulator) []float64 {
	out := make([]float64, 0, acc.Len())
	for _, s := range acc.Snapshots() {
		out = append(out, s.Values[0])
	}
	return out
}

func TestAccumulator_TailOverlap(t *testing.T) {
	acc := NewAccumulator(pressure)

	_, err := acc.Merge("a", []Snapshot{snap("a", 1, 10), snap("a", 2, 20), snap("a", 3, 30)})
	require.NoError(t, err)

	res, err := acc.Merge("b", []Snapshot{snap("b", 3, 99), snap("b", 4, 40)})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Appended)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 4, res.Len)
	require.Len(t, res.Kept, 1)
	assert.Equal(t, "b", res.Kept[0].Provenance.Chunk)
	assert.Equal(t, []ModelTime{1, 2, 3, 4}, acc.Times())
	assert.Equal(t, []float64{10, 20, 30, 40}, values(acc), "T3 must come from chunk a")
	assert.Equal(t, "a", acc.Snapshots()[2].Provenance.Chunk)
}

func TestAccumulator_FullDuplicateChunk(t *testing.T) {
	acc := NewAccumulator(pressure)

	_, err := acc.Merge("a", []Snapshot{snap("a", 1, 10), snap("a", 2, 20)})
	require.NoError(t, err)

	res, err := acc.Merge("b", []Snapshot{snap("b", 1, 11), snap("b", 2, 21)})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Appended)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, 2, res.Len)
	assert.Empty(t, res.Kept)
	assert.Equal(t, []float64{10, 20}, values(acc))
}

func TestAccumulator_Idempotent(t *testing.T) {
	chunkA := []Snapshot{snap("a", 1, 10), snap("a", 2, 20), snap("a", 3, 30)}
	chunkB := []Snapshot{snap("b", 3, 31), snap("b", 4, 40)}

	once := NewAccumulator(pressure)
	for _, b := range [][]Snapshot{chunkA, chunkB} {
		_, err := once.Merge(b[0].Provenance.Chunk, b)
		require.NoError(t, err)
	}

	twice := NewAccumulator(pressure)
	for _, b := range [][]Snapshot{chunkA, chunkB, chunkB} {
		_, err := twice.Merge(b[0].Provenance.Chunk, b)
		require.NoError(t, err)
	}

	assert.Equal(t, once.Snapshots(), twice.Snapshots())
}

func TestAccumulator_GapPreserved(t *testing.T) {
	acc := NewAccumulator(pressure)

	_, err := acc.Merge("a", []Snapshot{snap("a", 1, 10), snap("a", 2, 20)})
	require.NoError(t, err)
	_, err = acc.Merge("c", []Snapshot{snap("c", 10, 100), snap("c", 11, 110)})
	require.NoError(t, err)

	assert.Equal(t, []ModelTime{1, 2, 10, 11}, acc.Times())
}

func TestAccumulator_RejectsWithoutChange(t *testing.T) {
	tests := []struct {
		name  string
		batch []Snapshot
		err   error
	}{
		{
			name:  "ambiguous overlap",
			batch: []Snapshot{snap("b", 2, 0), snap("b", 3, 0), snap("b", 4, 0)},
			err:   ErrOverlapAmbiguity,
		},
		{
			name:  "older non-overlapping batch",
			batch: []Snapshot{snap("b", 0.5, 0)},
			err:   ErrOutOfOrder,
		},
		{
			name:  "unsorted batch",
			batch: []Snapshot{snap("b", 5, 0), snap("b", 4, 0)},
			err:   ErrOutOfOrder,
		},
		{
			name:  "duplicate inside batch",
			batch: []Snapshot{snap("b", 5, 0), snap("b", 5, 0)},
			err:   ErrOutOfOrder,
		},
		{
			name: "different identity",
			batch: func() []Snapshot {
				s := snap("b", 5, 0)
				s.Identity = VariableIdentity{Name: "pressure", Code: "8"}
				return []Snapshot{s}
			}(),
			err: ErrIdentityMismatch,
		},
		{
			name: "different grid",
			batch: func() []Snapshot {
				s := snap("b", 5, 0)
				s.Grid = Grid{Latitude: []float64{-2, 2}, Longitude: []float64{0}}
				return []Snapshot{s}
			}(),
			err: ErrStructuralMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			acc := NewAccumulator(pressure)
			_, err := acc.Merge("a", []Snapshot{snap("a", 1, 10), snap("a", 2, 20), snap("a", 3, 30)})
			require.NoError(t, err)
			before := acc.Snapshots()

			_, err = acc.Merge("b", tc.batch)
			require.ErrorIs(t, err, tc.err)
			assert.Equal(t, before, acc.Snapshots())
			assert.False(t, acc.Contains(5))
		})
	}
}

func TestAccumulator_FirstBatchMustBeOrdered(t *testing.T) {
	acc := NewAccumulator(pressure)
	_, err := acc.Merge("a", []Snapshot{snap("a", 2, 0), snap("a", 1, 0)})
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.Zero(t, acc.Len())
}

func TestAccumulator_RejectsNonFiniteTimes(t *testing.T) {
	nan := ModelTime(math.NaN())

	acc := NewAccumulator(pressure)
	_, err := acc.Merge("a", []Snapshot{snap("a", 1, 10), snap("a", nan, 0), snap("a", 0.5, 0)})
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.Zero(t, acc.Len())

	_, err = acc.Merge("a", []Snapshot{snap("a", 1, 10)})
	require.NoError(t, err)
	_, err = acc.Merge("b", []Snapshot{snap("b", nan, 0)})
	require.ErrorIs(t, err, ErrOutOfOrder)
	_, err = acc.Merge("c", []Snapshot{snap("c", ModelTime(math.Inf(1)), 0)})
	require.ErrorIs(t, err, ErrOutOfOrder)

	assert.Equal(t, []ModelTime{1}, acc.Times())
	require.ErrorIs(t, VerifyOrder([]Snapshot{snap("a", nan, 0)}), ErrOutOfOrder)
}

func TestAccumulator_DropValuesKeepsStructureChecks(t *testing.T) {
	acc := NewAccumulator(pressure)
	_, err := acc.Merge("a", []Snapshot{snap("a", 1, 10), snap("a", 2, 20)})
	require.NoError(t, err)

	acc.DropValues()
	for _, s := range acc.Snapshots() {
		assert.Nil(t, s.Values)
	}

	res, err := acc.Merge("b", []Snapshot{snap("b", 2, 21), snap("b", 3, 30)})
	require.NoError(t, err)
	assert.Equal(t, []float64{30}, res.Kept[0].Values)
	assert.Equal(t, []ModelTime{1, 2, 3}, acc.Times())

	wide := snap("c", 4, 0)
	wide.Values = []float64{1, 2, 3}
	_, err = acc.Merge("c", []Snapshot{wide})
	require.ErrorIs(t, err, ErrStructuralMismatch, "value count still checked after values are released")
}

func TestRegistry_SeparatesIdentities(t *testing.T) {
	r := NewRegistry()
	other := VariableIdentity{Name: "pressure", Code: "8"}

	_, err := r.Accumulate(pressure, "a", []Snapshot{snap("a", 1, 10)})
	require.NoError(t, err)

	s := snap("a", 1, 99)
	s.Identity = other
	_, err = r.Accumulate(other, "a", []Snapshot{s})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Get(pressure).Len())
	assert.Equal(t, 1, r.Get(other).Len())
	assert.Equal(t, []float64{10}, values(r.Get(pressure)))

	r.Release(pressure)
	assert.Nil(t, r.Get(pressure))
	assert.NotNil(t, r.Get(other))
}

func TestRegistry_ConcurrentIdentities(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 8 {
		id := VariableIdentity{Name: "field", Code: string(rune('a' + i))}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range 4 {
				s := snap("c", ModelTime(chunk), 0)
				s.Identity = id
				_, err := r.Accumulate(id, "c", []Snapshot{s})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for i := range 8 {
		id := VariableIdentity{Name: "field", Code: string(rune('a' + i))}
		assert.Equal(t, 4, r.Get(id).Len())
	}
}
