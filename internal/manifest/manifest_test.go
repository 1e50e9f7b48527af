package manifest

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

const sample = `
run_id: "0601"
chunks:
  - name: pa
    files: ["glpa*.json"]
  - name: pb
    files: ["glpb*.json", "extra/glpb*.json"]
variables:
  - name: air_pressure
    code: m01s00i407
  - name: air_temperature
    code: m01s16i203
`

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o640))
	}
}

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "0601", m.RunID)
	require.Len(t, m.Chunks, 2)
	assert.Equal(t, "pb", m.Chunks[1].Name)
	assert.Equal(t, []domain.VariableIdentity{
		{Name: "air_pressure", Code: "m01s00i407"},
		{Name: "air_temperature", Code: "m01s16i203"},
	}, m.Identities())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty document", "", "manifest is empty"},
		{"unknown key", "chunkz: []", "field chunkz not found"},
		{"no chunks", "variables: [{name: a, code: b}]", "no chunks defined"},
		{"no variables", "chunks: [{name: pa, files: [x]}]", "no variables defined"},
		{"duplicate chunk", "chunks: [{name: pa, files: [x]}, {name: pa, files: [y]}]\nvariables: [{name: a, code: b}]", `chunk "pa": duplicate name`},
		{"unnamed chunk", "chunks: [{files: [x]}]\nvariables: [{name: a, code: b}]", "chunk 0: name is required"},
		{"chunk without selectors", "chunks: [{name: pa}]\nvariables: [{name: a, code: b}]", `chunk "pa": no file selectors`},
		{"blank selector", "chunks: [{name: pa, files: [\" \"]}]\nvariables: [{name: a, code: b}]", "file selector 0 is empty"},
		{"bad pattern", "chunks: [{name: pa, files: [\"[x\"]}]\nvariables: [{name: a, code: b}]", "syntax error in pattern"},
		{"variable without code", "chunks: [{name: pa, files: [x]}]\nvariables: [{name: a}]", "variable 0: name and code are required"},
		{"run id with separator", "run_id: ../x\nchunks: [{name: pa, files: [x]}]\nvariables: [{name: a, code: b}]", `run_id "../x"`},
		{"duplicate variable", "chunks: [{name: pa, files: [x]}]\nvariables: [{name: a, code: b}, {name: a, code: b}]", "variable a (b): listed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	m := &Manifest{
		Chunks:    []ChunkSpec{{Name: "pa"}, {Name: "pa", Files: []string{"x"}}},
		Variables: []VariableSpec{{Name: "a"}},
	}
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file selectors")
	assert.Contains(t, err.Error(), "duplicate name")
	assert.Contains(t, err.Error(), "name and code are required")
}

func TestLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "glpa002.json", "glpa001.json", "glpb001.json", "extra/glpb000.json", "notes.txt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(sample), 0o640))

	m, err := Load(filepath.Join(dir, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, dir, m.BaseDir)

	chunks, err := m.Resolve(slog.Default())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, domain.Chunk{
		Name:  "pa",
		Files: []string{filepath.Join(dir, "glpa001.json"), filepath.Join(dir, "glpa002.json")},
	}, chunks[0])
	assert.Equal(t, []string{
		filepath.Join(dir, "extra", "glpb000.json"),
		filepath.Join(dir, "glpb001.json"),
	}, chunks[1].Files, "files sort by base name across selectors")
}

func TestResolve_DeduplicatesAndKeepsEmptyChunks(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a1.json")

	m := &Manifest{
		BaseDir: dir,
		Chunks: []ChunkSpec{
			{Name: "a", Files: []string{"a*.json", "a1.json"}},
			{Name: "empty", Files: []string{"z*.json"}},
		},
		Variables: []VariableSpec{{Name: "x", Code: "1"}},
	}
	chunks, err := m.Resolve(slog.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "a1.json")}, chunks[0].Files)
	assert.Equal(t, "empty", chunks[1].Name)
	assert.Empty(t, chunks[1].Files)
}

func TestResolve_AbsoluteSelectors(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a1.json")

	m := &Manifest{
		BaseDir: "/elsewhere",
		Chunks:  []ChunkSpec{{Name: "a", Files: []string{filepath.Join(dir, "*.json")}}},
	}
	chunks, err := m.Resolve(slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a1.json")}, chunks[0].Files)
}

func TestSave_RoundTrips(t *testing.T) {
	m, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Chunks, loaded.Chunks)
	assert.Equal(t, m.Variables, loaded.Variables)
	assert.Equal(t, m.RunID, loaded.RunID)
}

func TestValidRunID(t *testing.T) {
	assert.True(t, ValidRunID("0601"))
	assert.True(t, ValidRunID("20240601T000000Z"))
	assert.True(t, ValidRunID("cycle_06.a-1"))
	assert.False(t, ValidRunID(""))
	assert.False(t, ValidRunID(".hidden"))
	assert.False(t, ValidRunID("a/b"))
	assert.False(t, ValidRunID("a b"))
}
