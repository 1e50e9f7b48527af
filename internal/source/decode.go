package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Decoder reads one source file.
type Decoder interface {
	Decode(path string) (*File, error)
}

// FileDecoder picks the encoding from the file extension: .json or .msgpack.
type FileDecoder struct{}

func (FileDecoder) Decode(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	var file File
	r := bufio.NewReader(f)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.NewDecoder(r).Decode(&file)
	case ".msgpack", ".mpk":
		dec := msgpack.NewDecoder(r)
		dec.SetCustomStructTag("json")
		err = dec.Decode(&file)
	default:
		return nil, fmt.Errorf("decode %s: unsupported source format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &file, nil
}

// Encode writes file to path in the encoding selected by its extension.
func Encode(path string, file *File) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create source file: %w", err)
	}

	w := bufio.NewWriter(f)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.NewEncoder(w).Encode(file)
	case ".msgpack", ".mpk":
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		err = enc.Encode(file)
	default:
		err = fmt.Errorf("unsupported source format %q", ext)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
