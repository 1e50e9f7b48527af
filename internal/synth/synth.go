// Package synth writes synthetic chunked model output: consecutive chunks of
// source files whose timestamps optionally overlap, carrying the per-file
// metadata that the loader strips. It backs cmd/genchunks and end-to-end tests.
package synth

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
	"github.com/couchcryptid/model-output-consolidator/internal/manifest"
	"github.com/couchcryptid/model-output-consolidator/internal/source"
)

// TimeUnits is the time axis of every generated record.
const TimeUnits = "hours since 1970-01-01 00:00:00"

// DefaultVariables are generated when Options.Variables is empty.
var DefaultVariables = []domain.VariableIdentity{
	{Name: "air_pressure", Code: "m01s00i407"},
	{Name: "air_temperature", Code: "m01s16i203"},
	{Name: "x_wind", Code: "m01s03i225"},
}

// Options controls the generated layout.
type Options struct {
	Dir           string
	RunID         string
	Chunks        int
	FilesPerChunk int
	TimesPerFile  int
	// Overlap is how many trailing timestamps of a chunk reappear at the start
	// of the next one: 0 or 1.
	Overlap   int
	Start     float64
	Step      float64
	Lat, Lon  int
	Format    string // "json" or "msgpack"
	Variables []domain.VariableIdentity
}

func (o *Options) applyDefaults() {
	if o.Chunks == 0 {
		o.Chunks = 2
	}
	if o.FilesPerChunk == 0 {
		o.FilesPerChunk = 2
	}
	if o.TimesPerFile == 0 {
		o.TimesPerFile = 3
	}
	if o.Step == 0 {
		o.Step = 1
	}
	if o.Lat == 0 {
		o.Lat = 3
	}
	if o.Lon == 0 {
		o.Lon = 4
	}
	if o.Format == "" {
		o.Format = "json"
	}
	if len(o.Variables) == 0 {
		o.Variables = DefaultVariables
	}
}

func (o *Options) validate() error {
	var errs []error
	if o.Dir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if o.Chunks < 1 || o.FilesPerChunk < 1 || o.TimesPerFile < 1 {
		errs = append(errs, errors.New("chunks, files per chunk and times per file must be positive"))
	}
	if o.Overlap < 0 || o.Overlap > 1 {
		errs = append(errs, fmt.Errorf("overlap %d: only 0 or 1 trailing timestamps can repeat", o.Overlap))
	}
	if o.Overlap >= o.FilesPerChunk*o.TimesPerFile {
		errs = append(errs, errors.New("overlap must be shorter than a chunk"))
	}
	if o.Step <= 0 {
		errs = append(errs, errors.New("step must be positive"))
	}
	if o.Format != "json" && o.Format != "msgpack" {
		errs = append(errs, fmt.Errorf("format %q: want json or msgpack", o.Format))
	}
	return errors.Join(errs...)
}

// ChunkName is the name of the i-th chunk: pa, pb, ...
func ChunkName(i int) string {
	return "p" + string(rune('a'+i%26)) + suffix(i/26)
}

func suffix(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}

// Generate writes the chunk files and a manifest.yaml under opts.Dir and
// returns the manifest.
func Generate(opts Options) (*manifest.Manifest, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	m := &manifest.Manifest{RunID: opts.RunID, BaseDir: opts.Dir}
	for _, id := range opts.Variables {
		m.Variables = append(m.Variables, manifest.VariableSpec{Name: id.Name, Code: id.Code})
	}

	perChunk := opts.FilesPerChunk * opts.TimesPerFile
	for c := range opts.Chunks {
		name := ChunkName(c)
		first := c * (perChunk - opts.Overlap)
		for f := range opts.FilesPerChunk {
			file := &source.File{}
			for v, id := range opts.Variables {
				times := make([]float64, opts.TimesPerFile)
				for i := range times {
					times[i] = opts.Start + float64(first+f*opts.TimesPerFile+i)*opts.Step
				}
				file.Fields = append(file.Fields, record(opts, id, v, c, times))
			}

			path := filepath.Join(opts.Dir, fmt.Sprintf("%s%03d.%s", name, f, opts.Format))
			if err := source.Encode(path, file); err != nil {
				return nil, err
			}
		}
		m.Chunks = append(m.Chunks, manifest.ChunkSpec{Name: name, Files: []string{name + "[0-9][0-9][0-9]." + opts.Format}})
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.Save(filepath.Join(opts.Dir, "manifest.yaml")); err != nil {
		return nil, err
	}
	return m, nil
}

// record builds one field record. The forecast reference time and process
// flags differ per chunk, as they do in real model output.
func record(opts Options, id domain.VariableIdentity, v, chunk int, times []float64) source.FieldRecord {
	lat := axis(opts.Lat, -90, 90)
	lon := axis(opts.Lon, 0, 360)

	data := make([][]float64, len(times))
	for i, t := range times {
		field := make([]float64, opts.Lat*opts.Lon)
		for p := range field {
			field[p] = Value(v, t, p, chunk)
		}
		data[i] = field
	}

	return source.FieldRecord{
		Name:      id.Name,
		Units:     "1",
		TimeUnits: TimeUnits,
		Times:     times,
		Grid:      domain.Grid{Latitude: lat, Longitude: lon},
		AuxCoords: map[string][]float64{
			"forecast_reference_time": {opts.Start + float64(chunk)*opts.Step},
			"surface_altitude":        make([]float64, opts.Lat*opts.Lon),
		},
		AuxFactories: []string{"altitude"},
		Attributes: map[string]string{
			source.CodeAttribute:  id.Code,
			"source":              "synthetic",
			"ukmo__process_flags": fmt.Sprintf("chunk-%d", chunk),
		},
		Data: data,
	}
}

// Value is the synthetic field value. It encodes the chunk in the fraction so
// the chunk a retained snapshot came from can be read back.
func Value(variable int, t float64, point, chunk int) float64 {
	return float64(variable*1000) + math.Sin(t+float64(point)) + float64(chunk)/1000
}

func axis(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = (lo + hi) / 2
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
