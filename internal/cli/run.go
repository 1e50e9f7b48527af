package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/model-output-consolidator/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/model-output-consolidator/internal/adapter/kafka"
	"github.com/couchcryptid/model-output-consolidator/internal/artifact"
	"github.com/couchcryptid/model-output-consolidator/internal/config"
	"github.com/couchcryptid/model-output-consolidator/internal/domain"
	"github.com/couchcryptid/model-output-consolidator/internal/manifest"
	"github.com/couchcryptid/model-output-consolidator/internal/observability"
	"github.com/couchcryptid/model-output-consolidator/internal/pipeline"
	"github.com/couchcryptid/model-output-consolidator/internal/source"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Manifest  string
	RunID     string
	OutputDir string
	Workers   int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consolidate every variable of a manifest",
		Long: `Load each chunk of the manifest in order, drop the snapshots that
overlap earlier chunks, and write one consolidated series per variable.

A variable that fails does not stop the others. The command exits 1 when
any variable failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsolidation(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Manifest, "manifest", "m", "", "chunk manifest (YAML)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run identifier (default: manifest run_id, else derived from the clock)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "output directory (overrides OUTPUT_DIR)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "variables consolidated in parallel (overrides WORKERS)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runConsolidation(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return commandError("load config", err)
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if cmd.Flags().Changed("workers") {
		if opts.Workers < 1 {
			return commandError(fmt.Sprintf("invalid --workers %d: must be at least 1", opts.Workers), nil)
		}
		cfg.Workers = opts.Workers
	}

	logger := observability.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	m, err := manifest.Load(opts.Manifest)
	if err != nil {
		return commandError("load manifest", err)
	}
	chunks, err := m.Resolve(logger)
	if err != nil {
		return commandError("resolve manifest", err)
	}

	runID := firstNonEmpty(opts.RunID, m.RunID, domain.NewRunID())
	if !manifest.ValidRunID(runID) {
		return commandError(fmt.Sprintf("invalid run id %q", runID), nil)
	}
	compression, err := artifact.ParseCompression(cfg.OutputCompression)
	if err != nil {
		return commandError("output compression", err)
	}

	// The default registry is only needed when /metrics is served.
	var metrics *observability.Metrics
	if cfg.HTTPAddr != "" {
		metrics = observability.NewMetrics()
	} else {
		metrics = observability.NewMetricsWith(prometheus.NewRegistry())
	}

	store, err := artifact.NewStore(cfg.ScratchDir, runID, logger)
	if err != nil {
		return commandError("scratch directory", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("scratch cleanup error", "error", err, "dir", store.Dir())
		}
	}()

	decoder := source.NewCachedDecoder(source.FileDecoder{}, cfg.SourceCacheSize, metrics)
	loader := source.NewLoader(decoder, cfg.StripTimeBounds, logger, metrics)
	writer := artifact.NewWriter(cfg.OutputDir, compression, logger)

	var notifier pipeline.Notifier = pipeline.NopNotifier{}
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		notifier = publisher
		logger.Info("series events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	consolidator := pipeline.New(loader, store, writer, notifier, logger, metrics, cfg.Workers)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, consolidator, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := consolidator.Run(ctx, pipeline.Plan{
		RunID:     runID,
		Chunks:    chunks,
		Variables: m.Identities(),
	})

	if err := renderSummary(cmd.OutOrStdout(), rootOpts.Format, summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if failed := len(summary.Failed()); failed > 0 {
		return &ExitError{
			Code:    ExitFailure,
			Message: fmt.Sprintf("%d of %d variables failed", failed, len(summary.Results)),
			Err:     summary.Err(),
		}
	}
	return nil
}

type summaryView struct {
	RunID      string         `json:"run_id"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	DurationMS int64          `json:"duration_ms"`
	Variables  []variableView `json:"variables"`
}

type variableView struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	Status    string `json:"status"`
	Snapshots int    `json:"snapshots"`
	Dropped   int    `json:"duplicates_dropped"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

func renderSummary(w io.Writer, format string, s *pipeline.Summary) error {
	if format != "json" {
		return s.Render(w)
	}

	view := summaryView{
		RunID:      s.RunID,
		Succeeded:  s.Succeeded(),
		Failed:     len(s.Failed()),
		DurationMS: s.Duration.Milliseconds(),
		Variables:  make([]variableView, 0, len(s.Results)),
	}
	for _, r := range s.Results {
		v := variableView{
			Name:      r.Identity.Name,
			Code:      r.Identity.Code,
			Status:    r.Status(),
			Snapshots: r.Snapshots,
			Dropped:   r.Dropped,
			Output:    r.Output,
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		view.Variables = append(view.Variables, v)
	}
	return writeJSON(w, view)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
