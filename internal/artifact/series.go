package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

// SeriesFormat tags the header of every consolidated artifact.
const SeriesFormat = "consolidated-series/v1"

// maxPrealloc bounds how many snapshots ReadSeries reserves up front from the
// header count.
const maxPrealloc = 1024

// Compression selects how consolidated artifacts are written.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a compression name.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case CompressionNone, CompressionZstd:
		return c, nil
	case "":
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

func (c Compression) extension() string {
	if c == CompressionZstd {
		return ".zst"
	}
	return ""
}

// SeriesName is the consolidated file name for a variable: "<name>_<code>.series.msgpack[.zst]".
func SeriesName(id domain.VariableIdentity, c Compression) string {
	return id.Key() + ".series.msgpack" + c.extension()
}

// SeriesHeader precedes the frames of a consolidated artifact and carries the
// metadata shared by every snapshot.
type SeriesHeader struct {
	Format     string                  `json:"format"`
	RunID      string                  `json:"run_id"`
	Identity   domain.VariableIdentity `json:"identity"`
	TimeUnits  string                  `json:"time_units"`
	Units      string                  `json:"units,omitempty"`
	Grid       domain.Grid             `json:"grid"`
	Level      *domain.Level           `json:"level,omitempty"`
	Coords     map[string][]float64    `json:"coords,omitempty"`
	Attributes map[string]string       `json:"attributes,omitempty"`
	Count      int                     `json:"count"`
}

// seriesFrame is the per-timestamp part of a consolidated artifact.
type seriesFrame struct {
	Time       domain.ModelTime  `json:"time"`
	TimeBounds []float64         `json:"time_bounds,omitempty"`
	Values     []float64         `json:"values"`
	Provenance domain.Provenance `json:"provenance"`
}

// Series is a decoded consolidated artifact.
type Series struct {
	Header    SeriesHeader
	Snapshots []domain.Snapshot
}

// Times returns the series timestamps in order.
func (s *Series) Times() []domain.ModelTime {
	out := make([]domain.ModelTime, len(s.Snapshots))
	for i, snap := range s.Snapshots {
		out[i] = snap.Time
	}
	return out
}

// SnapshotSource reads staged snapshots back for concatenation.
type SnapshotSource interface {
	Load(st Staged) (domain.Snapshot, error)
}

// Writer concatenates staged snapshots into one consolidated artifact per variable.
type Writer struct {
	outputDir   string
	compression Compression
	logger      *slog.Logger
}

// NewWriter creates a Writer placing series under outputDir/<run-id>/.
func NewWriter(outputDir string, compression Compression, logger *slog.Logger) *Writer {
	return &Writer{
		outputDir:   outputDir,
		compression: compression,
		logger:      logger,
	}
}

// Write streams staged (already in timestamp order) from src into the
// variable's consolidated artifact and returns its path. The artifact appears
// under its final name only once completely written; on failure nothing is
// left behind and the error wraps domain.ErrWriteFailure.
func (w *Writer) Write(runID string, id domain.VariableIdentity, staged []Staged, src SnapshotSource) (string, error) {
	path, err := w.write(runID, id, staged, src)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrWriteFailure, id, err)
	}
	return path, nil
}

func (w *Writer) write(runID string, id domain.VariableIdentity, staged []Staged, src SnapshotSource) (string, error) {
	if len(staged) == 0 {
		return "", errors.New("no snapshots to write")
	}

	dir := filepath.Join(w.outputDir, runID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, SeriesName(id, w.compression))

	tmp, err := os.CreateTemp(dir, "."+SeriesName(id, w.compression)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				w.logger.Warn("remove partial series failed", "error", rmErr, "file", tmp.Name())
			}
		}
	}()

	if err := w.encode(tmp, runID, staged, src); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	committed = true

	w.logger.Info("consolidated series written", "variable", id.Name, "code", id.Code, "snapshots", len(staged), "file", path)
	return path, nil
}

func (w *Writer) encode(f io.Writer, runID string, staged []Staged, src SnapshotSource) error {
	bw := bufio.NewWriter(f)
	var out io.Writer = bw
	var zw *zstd.Encoder
	if w.compression == CompressionZstd {
		var err error
		zw, err = zstd.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		defer zw.Close()
		out = zw
	}

	enc := msgpack.NewEncoder(out)
	enc.SetCustomStructTag("json")

	var first domain.Snapshot
	for i, st := range staged {
		snap, err := src.Load(st)
		if err != nil {
			return err
		}
		if i == 0 {
			first = snap
			header := SeriesHeader{
				Format:     SeriesFormat,
				RunID:      runID,
				Identity:   snap.Identity,
				TimeUnits:  snap.TimeUnits,
				Units:      snap.Units,
				Grid:       snap.Grid,
				Level:      snap.Level,
				Coords:     snap.Coords,
				Attributes: snap.Attributes,
				Count:      len(staged),
			}
			if err := enc.Encode(&header); err != nil {
				return fmt.Errorf("encode header: %w", err)
			}
		} else {
			if err := first.CheckCompatible(snap); err != nil {
				return err
			}
			if snap.Time <= staged[i-1].Time {
				return fmt.Errorf("%w: %s at %s follows %s", domain.ErrOutOfOrder, snap.Identity, snap.Time, staged[i-1].Time)
			}
		}

		frame := seriesFrame{
			Time:       snap.Time,
			TimeBounds: snap.TimeBounds,
			Values:     snap.Values,
			Provenance: snap.Provenance,
		}
		if err := enc.Encode(&frame); err != nil {
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("close zstd stream: %w", err)
		}
	}
	return bw.Flush()
}

// ReadSeries decodes a consolidated artifact written by Writer. Files ending
// in .zst are decompressed.
func ReadSeries(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")

	var header SeriesHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("decode series header: %w", err)
	}
	if header.Format != SeriesFormat {
		return nil, fmt.Errorf("unsupported series format %q", header.Format)
	}
	if header.Count < 0 {
		return nil, fmt.Errorf("invalid series count %d", header.Count)
	}

	series := &Series{Header: header, Snapshots: make([]domain.Snapshot, 0, min(header.Count, maxPrealloc))}
	for i := range header.Count {
		var frame seriesFrame
		if err := dec.Decode(&frame); err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
		series.Snapshots = append(series.Snapshots, domain.Snapshot{
			Identity:   header.Identity,
			Time:       frame.Time,
			TimeBounds: frame.TimeBounds,
			TimeUnits:  header.TimeUnits,
			Units:      header.Units,
			Grid:       header.Grid,
			Level:      header.Level,
			Coords:     header.Coords,
			Attributes: header.Attributes,
			Values:     frame.Values,
			Provenance: frame.Provenance,
		})
	}
	return series, nil
}
