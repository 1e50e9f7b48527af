// Command consolidate folds chunked model output into one series per variable.
//
// Usage:
//
//	consolidate validate --manifest run.yaml --probe
//	consolidate run --manifest run.yaml --output-dir /data/consolidated
//	consolidate inspect /data/consolidated/0601/air_pressure_m01s00i407.series.msgpack
package main

import (
	"fmt"
	"os"

	"github.com/couchcryptid/model-output-consolidator/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
