package source

import (
	"maps"
	"slices"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

// CodeAttribute is the record attribute holding the variable's source code.
const CodeAttribute = "STASH"

// File is one decoded source file: every field record it contains.
type File struct {
	Fields []FieldRecord `json:"fields"`
}

// FieldRecord is one variable as stored in a source file. A record may span
// several times; Data holds one flattened field per entry of Times.
type FieldRecord struct {
	Name         string               `json:"name"`
	Units        string               `json:"units,omitempty"`
	TimeUnits    string               `json:"time_units"`
	Times        []float64            `json:"times"`
	TimeBounds   [][]float64          `json:"time_bounds,omitempty"`
	Grid         domain.Grid          `json:"grid"`
	Level        *domain.Level        `json:"level,omitempty"`
	AuxCoords    map[string][]float64 `json:"aux_coords,omitempty"`
	AuxFactories []string             `json:"aux_factories,omitempty"`
	Attributes   map[string]string    `json:"attributes,omitempty"`
	Data         [][]float64          `json:"data"`
}

// Identity returns the record's name and STASH code.
func (r FieldRecord) Identity() domain.VariableIdentity {
	return domain.VariableIdentity{Name: r.Name, Code: r.Attributes[CodeAttribute]}
}

// clone copies the metadata containers so normalization never edits a record
// shared through the decode cache. Data arrays are shared; they are never written.
func (r FieldRecord) clone() FieldRecord {
	r.AuxCoords = maps.Clone(r.AuxCoords)
	r.AuxFactories = slices.Clone(r.AuxFactories)
	r.Attributes = maps.Clone(r.Attributes)
	return r
}

// Normalization is an idempotent metadata edit: it removes something if present
// and does nothing otherwise.
type Normalization func(*FieldRecord)

// RemoveAuxCoord drops the named auxiliary coordinate.
func RemoveAuxCoord(name string) Normalization {
	return func(r *FieldRecord) { delete(r.AuxCoords, name) }
}

// RemoveAuxFactory drops every auxiliary factory with the given name.
func RemoveAuxFactory(name string) Normalization {
	return func(r *FieldRecord) {
		r.AuxFactories = slices.DeleteFunc(r.AuxFactories, func(f string) bool { return f == name })
	}
}

// DeleteAttribute drops the named attribute.
func DeleteAttribute(name string) Normalization {
	return func(r *FieldRecord) { delete(r.Attributes, name) }
}

// DropTimeBounds clears the time bounds of accumulated fields.
func DropTimeBounds(r *FieldRecord) {
	r.TimeBounds = nil
}

// DefaultNormalizations strips the metadata that is either locally computed
// or derived from terrain and therefore differs between files of one variable.
func DefaultNormalizations(stripTimeBounds bool) []Normalization {
	n := []Normalization{
		RemoveAuxCoord("forecast_reference_time"),
		RemoveAuxFactory("altitude"),
		RemoveAuxCoord("surface_altitude"),
		RemoveAuxCoord("altitude"),
		DeleteAttribute("ukmo__process_flags"),
	}
	if stripTimeBounds {
		n = append(n, DropTimeBounds)
	}
	return n
}
