// Command genchunks writes synthetic chunked model output and a matching
// manifest, for trying the consolidator locally. Consecutive chunks repeat
// their boundary timestamp when -overlap is 1, as restarted model runs do.
//
// Usage:
//
//	go run ./cmd/genchunks -out data/synthetic -chunks 4 -overlap 1
//	go run ./cmd/consolidate run --manifest data/synthetic/manifest.yaml
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/model-output-consolidator/internal/domain"
	"github.com/couchcryptid/model-output-consolidator/internal/synth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for chunk files and manifest.yaml")
	runID := flag.String("run-id", "", "run id written to the manifest (default: derived from a fixed clock)")
	chunks := flag.Int("chunks", 3, "number of chunks")
	files := flag.Int("files", 2, "source files per chunk")
	times := flag.Int("times", 3, "timestamps per source file")
	overlap := flag.Int("overlap", 1, "trailing timestamps repeated by the next chunk (0 or 1)")
	step := flag.Float64("step", 1, "hours between timestamps")
	lat := flag.Int("lat", 3, "latitude points")
	lon := flag.Int("lon", 4, "longitude points")
	format := flag.String("format", "json", "source encoding (json|msgpack)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	// Set a fixed clock for a reproducible default run id.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	id := *runID
	if id == "" {
		id = domain.NewRunID()
	}

	m, err := synth.Generate(synth.Options{
		Dir:           *out,
		RunID:         id,
		Chunks:        *chunks,
		FilesPerChunk: *files,
		TimesPerFile:  *times,
		Overlap:       *overlap,
		Step:          *step,
		Lat:           *lat,
		Lon:           *lon,
		Format:        *format,
	})
	if err != nil {
		return fmt.Errorf("generate chunks: %w", err)
	}

	for _, c := range m.Chunks {
		log.Printf("chunk %s: %d files (%v)", c.Name, *files, c.Files)
	}
	log.Printf("run %s: %d chunks, %d variables, manifest %s/manifest.yaml", m.RunID, len(m.Chunks), len(m.Variables), *out)
	return nil
}
