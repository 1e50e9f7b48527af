// Package manifest reads the YAML chunk layout of a consolidation run:
// the chunks in acquisition order, the file selectors of each chunk and the
// variables to consolidate.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

// Manifest is the chunk layout of one run.
type Manifest struct {
	// RunID names the run; it scopes output and scratch directories.
	// When empty the caller derives one from the clock.
	RunID string `yaml:"run_id,omitempty"`

	// Chunks lists the acquisition streams in the order they are merged.
	Chunks []ChunkSpec `yaml:"chunks"`

	// Variables lists the identities to consolidate.
	Variables []VariableSpec `yaml:"variables"`

	// BaseDir anchors relative file selectors. Load sets it to the
	// manifest's directory.
	BaseDir string `yaml:"-"`
}

// ChunkSpec selects the source files of one chunk. Files holds paths or glob
// patterns.
type ChunkSpec struct {
	Name  string   `yaml:"name"`
	Files []string `yaml:"files"`
}

// VariableSpec selects one variable by display name and source code.
type VariableSpec struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

var runIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidRunID reports whether id can name a run directory.
func ValidRunID(id string) bool {
	return runIDRe.MatchString(id)
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.BaseDir = filepath.Dir(path)
	return m, nil
}

// Parse decodes and validates a manifest. Unknown keys are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate reports every problem in the manifest at once.
func (m *Manifest) Validate() error {
	var errs []error

	if m.RunID != "" && !ValidRunID(m.RunID) {
		errs = append(errs, fmt.Errorf("run_id %q: only letters, digits, '.', '_' and '-' are allowed", m.RunID))
	}
	if len(m.Chunks) == 0 {
		errs = append(errs, errors.New("no chunks defined"))
	}
	chunkNames := make(map[string]bool, len(m.Chunks))
	for i, c := range m.Chunks {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("chunk %d: name is required", i))
		case chunkNames[name]:
			errs = append(errs, fmt.Errorf("chunk %q: duplicate name", name))
		}
		chunkNames[name] = true

		if len(c.Files) == 0 {
			errs = append(errs, fmt.Errorf("chunk %q: no file selectors", c.Name))
		}
		for j, sel := range c.Files {
			if strings.TrimSpace(sel) == "" {
				errs = append(errs, fmt.Errorf("chunk %q: file selector %d is empty", c.Name, j))
				continue
			}
			if _, err := filepath.Match(sel, ""); err != nil {
				errs = append(errs, fmt.Errorf("chunk %q: file selector %q: %w", c.Name, sel, err))
			}
		}
	}

	if len(m.Variables) == 0 {
		errs = append(errs, errors.New("no variables defined"))
	}
	seen := make(map[domain.VariableIdentity]bool, len(m.Variables))
	for i, v := range m.Variables {
		id := v.Identity()
		switch {
		case !id.Valid():
			errs = append(errs, fmt.Errorf("variable %d: name and code are required", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("variable %s: listed twice", id))
		}
		seen[id] = true
	}

	return errors.Join(errs...)
}

// Identity converts the selector into a domain identity.
func (v VariableSpec) Identity() domain.VariableIdentity {
	return domain.VariableIdentity{Name: strings.TrimSpace(v.Name), Code: strings.TrimSpace(v.Code)}
}

// Identities returns the selected variables in manifest order.
func (m *Manifest) Identities() []domain.VariableIdentity {
	out := make([]domain.VariableIdentity, len(m.Variables))
	for i, v := range m.Variables {
		out[i] = v.Identity()
	}
	return out
}

// Resolve expands every chunk's selectors into an ordered file list. Files of
// a chunk are sorted by base name and listed once even when several selectors
// match them. A chunk matching no file is kept, with a warning.
func (m *Manifest) Resolve(logger *slog.Logger) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(m.Chunks))
	for _, spec := range m.Chunks {
		files, err := m.expand(spec)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			logger.Warn("chunk matches no files", "chunk", spec.Name, "selectors", spec.Files)
		}
		chunks = append(chunks, domain.Chunk{Name: strings.TrimSpace(spec.Name), Files: files})
	}
	return chunks, nil
}

func (m *Manifest) expand(spec ChunkSpec) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, sel := range spec.Files {
		pattern := sel
		if !filepath.IsAbs(pattern) && m.BaseDir != "" {
			pattern = filepath.Join(m.BaseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("chunk %q: expand %q: %w", spec.Name, sel, err)
		}
		for _, path := range matches {
			if info, err := os.Stat(path); err != nil || info.IsDir() {
				continue
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}

	slices.SortFunc(files, func(a, b string) int {
		if c := strings.Compare(filepath.Base(a), filepath.Base(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return files, nil
}

// Save writes the manifest as YAML.
func (m *Manifest) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
