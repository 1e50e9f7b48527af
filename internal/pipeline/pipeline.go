package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/model-output-consolidator/internal/artifact"
	"github.com/couchcryptid/model-output-consolidator/internal/domain"
	"github.com/couchcryptid/model-output-consolidator/internal/observability"
)

// SnapshotLoader reads the snapshots of one variable from one chunk.
type SnapshotLoader interface {
	Load(chunk domain.Chunk, id domain.VariableIdentity) ([]domain.Snapshot, error)
}

// Stager keeps intermediate per-snapshot artifacts from the moment a snapshot
// is merged until its series is written.
type Stager interface {
	Stage(snap domain.Snapshot) (artifact.Staged, error)
	Load(st artifact.Staged) (domain.Snapshot, error)
	Cleanup(staged []artifact.Staged) int
}

// SeriesWriter persists one consolidated series.
type SeriesWriter interface {
	Write(runID string, id domain.VariableIdentity, staged []artifact.Staged, src artifact.SnapshotSource) (string, error)
}

// Notifier announces a consolidated series to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, event domain.SeriesConsolidated) error
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.SeriesConsolidated) error { return nil }

// Plan is one consolidation run: chunks in acquisition order and the variables to fold.
type Plan struct {
	RunID     string
	Chunks    []domain.Chunk
	Variables []domain.VariableIdentity
}

// Consolidator folds chunks into one series per variable. Chunks of a variable
// are always merged in plan order on a single goroutine; up to workers
// variables are processed at once.
type Consolidator struct {
	loader   SnapshotLoader
	stager   Stager
	writer   SeriesWriter
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	workers  int
	ready    atomic.Bool

	mu       sync.Mutex
	progress Progress
}

// Progress is a point-in-time view of the current or last run.
type Progress struct {
	RunID     string `json:"run_id"`
	Variables int    `json:"variables"`
	Done      int    `json:"done"`
	Failed    int    `json:"failed"`
	Running   bool   `json:"running"`
}

// New creates a Consolidator with the given stages and observability.
func New(loader SnapshotLoader, stager Stager, writer SeriesWriter, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics, workers int) *Consolidator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Consolidator{
		loader:   loader,
		stager:   stager,
		writer:   writer,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		workers:  max(workers, 1),
	}
}

// CheckReadiness returns nil once at least one variable has been consolidated.
func (c *Consolidator) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("no variable consolidated yet")
	}
	return nil
}

// Progress reports how far the current or last run has come.
func (c *Consolidator) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *Consolidator) record(res VariableResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.Done++
	if !res.OK() {
		c.progress.Failed++
	}
}

// Run consolidates every variable of plan. A failing variable never stops the
// others; failures are reported in the returned Summary. Cancelling ctx stops
// variables that have not started yet.
func (c *Consolidator) Run(ctx context.Context, plan Plan) *Summary {
	start := domain.Now()
	c.logger.Info("consolidation started",
		"run_id", plan.RunID,
		"chunks", len(plan.Chunks),
		"variables", len(plan.Variables),
		"workers", c.workers,
	)
	c.metrics.RunActive.Set(1)
	defer c.metrics.RunActive.Set(0)

	c.mu.Lock()
	c.progress = Progress{RunID: plan.RunID, Variables: len(plan.Variables), Running: true}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.progress.Running = false
		c.mu.Unlock()
	}()

	registry := domain.NewRegistry()
	results := make([]VariableResult, len(plan.Variables))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, id := range plan.Variables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = VariableResult{Identity: id, Err: fmt.Errorf("not started: %w", err)}
			} else {
				results[i] = c.consolidate(ctx, registry, plan, id)
			}
			c.record(results[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{RunID: plan.RunID, Results: results, Duration: domain.Since(start)}
	c.logger.Info("consolidation finished",
		"run_id", plan.RunID,
		"succeeded", summary.Succeeded(),
		"failed", len(summary.Failed()),
		"duration", summary.Duration,
	)
	return summary
}

// consolidate runs one variable from loading to cleanup. Snapshots kept by a
// merge are staged straight away and their values released from the
// accumulator, so only one chunk's fields are held in memory. Any error fails
// only this variable.
func (c *Consolidator) consolidate(ctx context.Context, registry *domain.Registry, plan Plan, id domain.VariableIdentity) VariableResult {
	start := domain.Now()
	logger := c.logger.With("variable", id.Name, "code", id.Code)
	res := VariableResult{Identity: id}
	defer registry.Release(id)

	var staged []artifact.Staged
	defer func() {
		removed := c.stager.Cleanup(staged)
		logger.Debug("intermediate artifacts removed", "count", removed)
	}()

	for _, chunk := range plan.Chunks {
		batch, err := c.loader.Load(chunk, id)
		if err != nil {
			return c.fail(logger, res, err)
		}
		if len(batch) == 0 {
			logger.Debug("chunk holds no snapshots", "chunk", chunk.Name)
			continue
		}

		merged, err := registry.Accumulate(id, chunk.Name, batch)
		if err != nil {
			return c.fail(logger, res, err)
		}
		for _, snap := range merged.Kept {
			st, err := c.stager.Stage(snap)
			if err != nil {
				return c.fail(logger, res, err)
			}
			staged = append(staged, st)
		}
		registry.Get(id).DropValues()

		res.Loaded += len(batch)
		res.Dropped += merged.Dropped
		c.metrics.SnapshotsRetained.Add(float64(merged.Appended))
		c.metrics.DuplicatesDropped.Add(float64(merged.Dropped))
		logger.Info("chunk merged",
			"chunk", chunk.Name,
			"loaded", len(batch),
			"appended", merged.Appended,
			"dropped", merged.Dropped,
			"retained", merged.Len,
		)
	}

	acc := registry.Get(id)
	if acc == nil || acc.Len() == 0 {
		return c.fail(logger, res, fmt.Errorf("%w: %s absent from all %d chunks", domain.ErrMissingVariable, id, len(plan.Chunks)))
	}
	snapshots := acc.Snapshots()
	if err := domain.VerifyOrder(snapshots); err != nil {
		return c.fail(logger, res, err)
	}

	path, err := c.writer.Write(plan.RunID, id, staged, c.stager)
	if err != nil {
		return c.fail(logger, res, err)
	}

	res.Output = path
	res.Snapshots = len(snapshots)
	c.metrics.VariablesConsolidated.Inc()
	c.metrics.ConsolidationDuration.Observe(domain.Since(start).Seconds())
	c.ready.Store(true)

	event := domain.SeriesConsolidated{
		RunID:          plan.RunID,
		Variable:       id.Name,
		Code:           id.Code,
		Path:           path,
		Snapshots:      len(snapshots),
		Dropped:        res.Dropped,
		FirstTime:      snapshots[0].Time,
		LastTime:       snapshots[len(snapshots)-1].Time,
		TimeUnits:      snapshots[0].TimeUnits,
		ConsolidatedAt: domain.Now().UTC(),
	}
	if err := c.notifier.Notify(ctx, event); err != nil {
		logger.Warn("publish consolidation event failed", "error", err)
	}
	return res
}

func (c *Consolidator) fail(logger *slog.Logger, res VariableResult, err error) VariableResult {
	kind := domain.ErrorKind(err)
	c.metrics.VariableFailures.WithLabelValues(kind).Inc()
	logger.Error("variable consolidation failed", "kind", kind, "error", err)
	res.Err = err
	return res
}
