package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/model-output-consolidator/internal/config"
	"github.com/couchcryptid/model-output-consolidator/internal/domain"
	"github.com/couchcryptid/model-output-consolidator/internal/manifest"
	"github.com/couchcryptid/model-output-consolidator/internal/observability"
	"github.com/couchcryptid/model-output-consolidator/internal/source"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	Manifest string
	Probe    bool
}

// ValidationReport describes a resolved manifest.
type ValidationReport struct {
	Manifest  string                    `json:"manifest"`
	RunID     string                    `json:"run_id,omitempty"`
	Chunks    []ChunkReport             `json:"chunks"`
	Variables []domain.VariableIdentity `json:"variables"`
}

// ChunkReport lists the files a chunk resolved to and, when probed, the
// snapshot count per variable.
type ChunkReport struct {
	Name      string            `json:"name"`
	Files     []string          `json:"files"`
	Snapshots map[string]int    `json:"snapshots,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a manifest and show the files each chunk resolves to",
		Long: `Parse and validate a chunk manifest, expand its file selectors and
report what each chunk contains. With --probe every source file is decoded
and the snapshots of each variable are counted per chunk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Manifest, "manifest", "m", "", "chunk manifest (YAML)")
	cmd.Flags().BoolVar(&opts.Probe, "probe", false, "decode source files and count snapshots per variable")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *ValidateOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return commandError("load config", err)
	}
	logger := observability.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	m, err := manifest.Load(opts.Manifest)
	if err != nil {
		return commandError("invalid manifest", err)
	}
	chunks, err := m.Resolve(logger)
	if err != nil {
		return commandError("resolve manifest", err)
	}

	report := ValidationReport{
		Manifest:  opts.Manifest,
		RunID:     m.RunID,
		Variables: m.Identities(),
	}

	var loader *source.Loader
	if opts.Probe {
		metrics := observability.NewMetricsWith(prometheus.NewRegistry())
		decoder := source.NewCachedDecoder(source.FileDecoder{}, cfg.SourceCacheSize, metrics)
		loader = source.NewLoader(decoder, cfg.StripTimeBounds, logger, metrics)
	}

	probeFailed := false
	for _, chunk := range chunks {
		cr := ChunkReport{Name: chunk.Name, Files: chunk.Files}
		if cr.Files == nil {
			cr.Files = []string{}
		}
		if loader != nil {
			cr.Snapshots = make(map[string]int)
			for _, id := range report.Variables {
				snaps, err := loader.Load(chunk, id)
				if err != nil {
					if cr.Errors == nil {
						cr.Errors = make(map[string]string)
					}
					cr.Errors[id.Key()] = err.Error()
					probeFailed = true
					continue
				}
				cr.Snapshots[id.Key()] = len(snaps)
			}
		}
		report.Chunks = append(report.Chunks, cr)
	}

	if rootOpts.Format == "json" {
		err = writeJSON(cmd.OutOrStdout(), report)
	} else {
		err = renderReport(cmd.OutOrStdout(), report, opts.Probe)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if probeFailed {
		return &ExitError{Code: ExitFailure, Message: "some source files could not be read"}
	}
	return nil
}

func renderReport(w io.Writer, r ValidationReport, probed bool) error {
	runID := r.RunID
	if runID == "" {
		runID = "(derived at run time)"
	}
	if _, err := fmt.Fprintf(w, "manifest %s is valid: run %s, %d chunks, %d variables\n\n",
		r.Manifest, runID, len(r.Chunks), len(r.Variables)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "CHUNK\tFILES")
	if probed {
		for _, id := range r.Variables {
			fmt.Fprintf(tw, "\t%s", id.Key())
		}
	}
	fmt.Fprintln(tw)

	for _, c := range r.Chunks {
		fmt.Fprintf(tw, "%s\t%d", c.Name, len(c.Files))
		if probed {
			for _, id := range r.Variables {
				if _, failed := c.Errors[id.Key()]; failed {
					fmt.Fprint(tw, "\terror")
					continue
				}
				fmt.Fprintf(tw, "\t%d", c.Snapshots[id.Key()])
			}
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, c := range r.Chunks {
		for _, key := range slices.Sorted(maps.Keys(c.Errors)) {
			if _, err := fmt.Fprintf(w, "%s/%s: %s\n", c.Name, key, c.Errors[key]); err != nil {
				return err
			}
		}
	}
	return nil
}
