package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

// Staged points at one intermediate per-snapshot artifact.
type Staged struct {
	Identity   domain.VariableIdentity
	Time       domain.ModelTime
	Path       string
	Provenance domain.Provenance
}

// Store keeps intermediate per-snapshot artifacts under a directory scoped to
// one run, so overlapping runs never share files.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the run scope "<root>/<runID>-<uuid>".
func NewStore(root, runID string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Join(root, runID+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch scope: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir is the run's scratch scope.
func (s *Store) Dir() string { return s.dir }

// StagedName is the intermediate file name for a snapshot: "<name>_<code>_<time>.msgpack".
func StagedName(id domain.VariableIdentity, t domain.ModelTime) string {
	return id.Key() + "_" + t.String() + ".msgpack"
}

// Stage writes one snapshot to its intermediate artifact.
func (s *Store) Stage(snap domain.Snapshot) (Staged, error) {
	path := filepath.Join(s.dir, StagedName(snap.Identity, snap.Time))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Staged{}, fmt.Errorf("%w: stage %s at %s: %w", domain.ErrWriteFailure, snap.Identity, snap.Time, err)
	}

	w := bufio.NewWriter(f)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	err = enc.Encode(snap)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Staged{}, fmt.Errorf("%w: stage %s at %s: %w", domain.ErrWriteFailure, snap.Identity, snap.Time, err)
	}

	return Staged{
		Identity:   snap.Identity,
		Time:       snap.Time,
		Path:       path,
		Provenance: snap.Provenance,
	}, nil
}

// Load reads a staged snapshot back.
func (s *Store) Load(st Staged) (domain.Snapshot, error) {
	f, err := os.Open(st.Path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("open staged snapshot: %w", err)
	}
	defer f.Close()

	var snap domain.Snapshot
	dec := msgpack.NewDecoder(bufio.NewReader(f))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode staged snapshot %s: %w", st.Path, err)
	}
	return snap, nil
}

// Cleanup deletes the given intermediate artifacts. A file that is already
// gone is not an error; other failures are logged and skipped. It returns the
// number of files removed.
func (s *Store) Cleanup(staged []Staged) int {
	removed := 0
	for _, st := range staged {
		err := os.Remove(st.Path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.logger.Warn("remove intermediate artifact failed", "error", err, "file", st.Path)
		}
	}
	return removed
}

// Close removes the run's scratch scope and anything left in it.
func (s *Store) Close() error {
	return os.RemoveAll(s.dir)
}
