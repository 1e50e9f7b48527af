package source

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
	"github.com/couchcryptid/model-output-consolidator/internal/observability"
)

// Loader turns a chunk's source files into single-time snapshots of one variable.
type Loader struct {
	decoder        Decoder
	normalizations []Normalization
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// NewLoader creates a Loader applying DefaultNormalizations to every record.
func NewLoader(decoder Decoder, stripTimeBounds bool, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		decoder:        decoder,
		normalizations: DefaultNormalizations(stripTimeBounds),
		logger:         logger,
		metrics:        metrics,
	}
}

// Load returns the snapshots of id found in chunk, in file order and then in
// record order. Files without the variable are skipped with a warning.
func (l *Loader) Load(chunk domain.Chunk, id domain.VariableIdentity) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	for _, path := range chunk.Files {
		file, err := l.decoder.Decode(path)
		if err != nil {
			return nil, fmt.Errorf("chunk %q: %w", chunk.Name, err)
		}

		found := false
		for _, rec := range file.Fields {
			if rec.Identity() != id {
				continue
			}
			found = true

			snaps, err := l.split(chunk.Name, path, rec)
			if err != nil {
				return nil, err
			}
			out = append(out, snaps...)
		}

		if !found {
			l.logger.Warn("variable missing from source file, skipping",
				"error", domain.ErrMissingVariable,
				"variable", id.Name,
				"code", id.Code,
				"chunk", chunk.Name,
				"file", path,
			)
			l.metrics.FilesSkipped.Inc()
		}
	}

	l.metrics.SnapshotsLoaded.Add(float64(len(out)))
	return out, nil
}

// split normalizes rec and slices it into one snapshot per time.
func (l *Loader) split(chunk, path string, rec FieldRecord) ([]domain.Snapshot, error) {
	rec = rec.clone()
	for _, n := range l.normalizations {
		n(&rec)
	}

	if err := validateRecord(rec); err != nil {
		return nil, fmt.Errorf("%w: %s in %s (chunk %q): %s", domain.ErrStructuralMismatch, rec.Identity(), path, chunk, err)
	}

	out := make([]domain.Snapshot, len(rec.Times))
	for i, t := range rec.Times {
		var bounds []float64
		if len(rec.TimeBounds) > 0 {
			bounds = rec.TimeBounds[i]
		}
		out[i] = domain.Snapshot{
			Identity:   rec.Identity(),
			Time:       domain.ModelTime(t),
			TimeBounds: bounds,
			TimeUnits:  rec.TimeUnits,
			Units:      rec.Units,
			Grid:       rec.Grid,
			Level:      rec.Level,
			Coords:     rec.AuxCoords,
			Attributes: rec.Attributes,
			Values:     rec.Data[i],
			Provenance: domain.Provenance{Chunk: chunk, File: path, Index: i},
		}
	}
	return out, nil
}

func validateRecord(rec FieldRecord) error {
	if len(rec.Data) != len(rec.Times) {
		return fmt.Errorf("%d data arrays for %d times", len(rec.Data), len(rec.Times))
	}
	for i, t := range rec.Times {
		if !domain.ModelTime(t).Finite() {
			return fmt.Errorf("time %d is %v", i, t)
		}
	}
	if len(rec.TimeBounds) > 0 && len(rec.TimeBounds) != len(rec.Times) {
		return fmt.Errorf("%d time bounds for %d times", len(rec.TimeBounds), len(rec.Times))
	}
	if rec.Grid.Points() == 0 {
		return nil
	}
	want := rec.Grid.Points() * rec.Level.Count()
	for i, d := range rec.Data {
		if len(d) != want {
			return fmt.Errorf("time %d holds %d values, grid and levels need %d", i, len(d), want)
		}
	}
	return nil
}
