package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// ModelTime is a point on the model's own time axis, in the record's time units.
type ModelTime float64

func (t ModelTime) String() string {
	return strconv.FormatFloat(float64(t), 'f', -1, 64)
}

// Finite reports whether t is neither NaN nor infinite. Only finite times can
// be ordered.
func (t ModelTime) Finite() bool {
	return !math.IsNaN(float64(t)) && !math.IsInf(float64(t), 0)
}

// Grid holds the horizontal coordinates of a field.
type Grid struct {
	Latitude  []float64 `json:"latitude"`
	Longitude []float64 `json:"longitude"`
}

// Points is the number of horizontal grid points, or 0 for a grid without coordinates.
func (g Grid) Points() int {
	return len(g.Latitude) * len(g.Longitude)
}

// Equal reports whether both grids have identical coordinates.
func (g Grid) Equal(o Grid) bool {
	return slices.Equal(g.Latitude, o.Latitude) && slices.Equal(g.Longitude, o.Longitude)
}

// Level describes the vertical levels of a field, e.g. model_level_number.
type Level struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Count is the number of vertical levels; a nil level counts as one.
func (l *Level) Count() int {
	if l == nil || len(l.Values) == 0 {
		return 1
	}
	return len(l.Values)
}

func levelsEqual(a, b *Level) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name == b.Name && slices.Equal(a.Values, b.Values)
}

// Provenance records where a snapshot was read from.
type Provenance struct {
	Chunk string `json:"chunk"`
	File  string `json:"file"`
	Index int    `json:"index"`
}

func (p Provenance) String() string {
	return fmt.Sprintf("%s:%s[%d]", p.Chunk, p.File, p.Index)
}

// Snapshot is one variable's field values at a single model time.
type Snapshot struct {
	Identity   VariableIdentity     `json:"identity"`
	Time       ModelTime            `json:"time"`
	TimeBounds []float64            `json:"time_bounds,omitempty"`
	TimeUnits  string               `json:"time_units"`
	Units      string               `json:"units,omitempty"`
	Grid       Grid                 `json:"grid"`
	Level      *Level               `json:"level,omitempty"`
	Coords     map[string][]float64 `json:"coords,omitempty"`
	Attributes map[string]string    `json:"attributes,omitempty"`
	Values     []float64            `json:"values"`
	Provenance Provenance           `json:"provenance"`
}

// CheckCompatible returns a *MismatchError when o cannot join a series that
// already holds s. Timestamps, values and provenance are not compared.
func (s Snapshot) CheckCompatible(o Snapshot) error {
	field := ""
	switch {
	case s.Identity != o.Identity:
		field = "identity"
	case s.TimeUnits != o.TimeUnits:
		field = "time units"
	case s.Units != o.Units:
		field = "units"
	case !s.Grid.Equal(o.Grid):
		field = "grid"
	case !levelsEqual(s.Level, o.Level):
		field = "level"
	case !maps.EqualFunc(s.Coords, o.Coords, func(a, b []float64) bool { return slices.Equal(a, b) }):
		field = "auxiliary coordinates"
	case len(s.Values) != len(o.Values):
		field = "value count"
	default:
		return nil
	}
	return &MismatchError{
		Identity: s.Identity,
		Field:    field,
		Retained: s.Provenance,
		Incoming: o.Provenance,
	}
}
