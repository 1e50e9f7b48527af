package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/model-output-consolidator/internal/artifact"
	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

// SeriesReport is the inspect view of a consolidated series.
type SeriesReport struct {
	Path   string                `json:"path"`
	Header artifact.SeriesHeader `json:"header"`
	Frames []FrameReport         `json:"frames"`
}

// FrameReport is one timestamp of a series and where it came from.
type FrameReport struct {
	Time       domain.ModelTime  `json:"time"`
	Provenance domain.Provenance `json:"provenance"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <series-file>",
		Short: "Show the header and timestamps of a consolidated series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runInspect(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	series, err := artifact.ReadSeries(path)
	if err != nil {
		return commandError("read series", err)
	}

	report := SeriesReport{
		Path:   path,
		Header: series.Header,
		Frames: make([]FrameReport, len(series.Snapshots)),
	}
	for i, s := range series.Snapshots {
		report.Frames[i] = FrameReport{Time: s.Time, Provenance: s.Provenance}
	}

	if rootOpts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return renderSeries(cmd.OutOrStdout(), report)
}

func renderSeries(w io.Writer, r SeriesReport) error {
	h := r.Header
	span := "empty"
	if n := len(r.Frames); n > 0 {
		span = fmt.Sprintf("%s .. %s", r.Frames[0].Time, r.Frames[n-1].Time)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "variable:\t%s\n", h.Identity)
	fmt.Fprintf(tw, "run:\t%s\n", h.RunID)
	fmt.Fprintf(tw, "format:\t%s\n", h.Format)
	fmt.Fprintf(tw, "units:\t%s\n", h.Units)
	fmt.Fprintf(tw, "time units:\t%s\n", h.TimeUnits)
	fmt.Fprintf(tw, "grid:\t%d x %d\n", len(h.Grid.Latitude), len(h.Grid.Longitude))
	if h.Level != nil {
		fmt.Fprintf(tw, "levels:\t%s (%d)\n", h.Level.Name, h.Level.Count())
	}
	fmt.Fprintf(tw, "snapshots:\t%d (%s)\n", len(r.Frames), span)
	if err := tw.Flush(); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCHUNK\tFILE\tINDEX")
	for _, f := range r.Frames {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", f.Time, f.Provenance.Chunk, f.Provenance.File, f.Provenance.Index)
	}
	return tw.Flush()
}
