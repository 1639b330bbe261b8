// Package app drives the enrichment, metadata, and registry-import runs:
// loading inputs, resuming from checkpoints, fanning work out to the pool,
// and summarizing what happened.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/munistat/jobenrich/internal/checkpoint"
	"github.com/munistat/jobenrich/internal/dataset"
	"github.com/munistat/jobenrich/internal/enrich"
	"github.com/munistat/jobenrich/internal/util"
	"github.com/munistat/jobenrich/internal/worker"
)

// errorSampleSize bounds how many row errors the summary retains verbatim.
const errorSampleSize = 10

// Options configures one enrichment run.
type Options struct {
	InputPath  string
	OutputPath string
	Limit      int
	Resume     bool
	DryRun     bool

	Workers         int
	MaxAttempts     int
	RequestTimeout  time.Duration
	RateLimitRPS    float64
	CheckpointEvery int

	BackoffBase time.Duration
	BackoffMin  time.Duration
	BackoffMax  time.Duration

	// NewEnricher builds the enrichment backend. It is called only once the
	// run is committed to doing real work, so dry runs never need a credential.
	NewEnricher func(ctx context.Context) (enrich.Enricher, error)

	Log *slog.Logger
}

// RowError is one retained row failure, redacted and truncated for logging.
type RowError struct {
	Index   int
	Message string
}

// Summary describes a finished (or short-circuited) run.
type Summary struct {
	NothingToDo bool
	DryRun      bool
	Interrupted bool

	Planned    int
	Succeeded  int
	Failed     int
	Elapsed    time.Duration
	RowsPerSec float64

	ErrorSample []RowError
}

// Run enriches every pending row of the input dataset and writes the combined
// output CSV. Row-level failures are recorded and the row emitted with blank
// enrichment columns; only infrastructure failures make Run return an error.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	table, err := dataset.Load(opts.InputPath, opts.Limit)
	if err != nil {
		return nil, err
	}
	outputCols := table.OutputColumns(enrich.Columns())

	store := checkpoint.NewStore(opts.OutputPath)
	state := checkpoint.NewState(len(table.Rows))
	if opts.Resume {
		state, err = store.Load()
		if err != nil {
			return nil, err
		}
		state.Total = len(table.Rows)
	}

	pending := make([]int, 0, len(table.Rows))
	for i := range table.Rows {
		if !state.Has(i) {
			pending = append(pending, i)
		}
	}

	log.Info("run plan",
		"input", opts.InputPath,
		"output", opts.OutputPath,
		"rows", len(table.Rows),
		"already_done", state.Count(),
		"pending", len(pending),
		"workers", opts.Workers,
		"resume", opts.Resume,
		"checkpoint", store.Path())

	if len(pending) == 0 {
		log.Info("nothing to do, all rows already processed")
		return &Summary{NothingToDo: true}, nil
	}
	if opts.DryRun {
		log.Info("dry run, stopping before any enrichment call")
		return &Summary{DryRun: true, Planned: len(pending)}, nil
	}

	enricher, err := opts.NewEnricher(ctx)
	if err != nil {
		return nil, err
	}

	w, err := dataset.OpenWriter(opts.OutputPath, outputCols, opts.Resume)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = w.Close()
	}()

	tr := newTracker(store, state, opts.CheckpointEvery, log)

	process := func(attemptCtx context.Context, idx int) (map[string]string, error) {
		posting := enrich.PostingFromRecord(table.Rows[idx])
		res, err := enricher.EnrichPosting(attemptCtx, posting)
		if err != nil {
			return nil, err
		}
		return res.Flatten(), nil
	}

	var succeeded, failed int
	onResult := func(res worker.Result[int, map[string]string]) error {
		// A row killed by the run's own cancellation stays pending: it is
		// neither written nor checkpointed, so resume picks it back up.
		if res.Err != nil && errors.Is(res.Err, context.Canceled) {
			return nil
		}

		idx := res.Input
		flattened := res.Output
		if res.Err != nil {
			failed++
			flattened = enrich.BlankFlattened()
			tr.recordError(idx, res.Err)
		} else {
			succeeded++
		}

		rec := make(dataset.Record, len(outputCols))
		for k, v := range table.Rows[idx] {
			rec[k] = v
		}
		for k, v := range flattened {
			rec[k] = v
		}
		if err := w.Append(rec); err != nil {
			return fmt.Errorf("append row %d: %w", idx, err)
		}
		return tr.complete(idx)
	}

	start := time.Now()
	_, runErr := worker.ProcessAllWithCallback(ctx, pending, process, onResult, worker.Options{
		Workers:           opts.Workers,
		MaxAttempts:       opts.MaxAttempts,
		RequestTimeout:    opts.RequestTimeout,
		RateLimitRPS:      opts.RateLimitRPS,
		Retryable:         enrich.Retryable,
		BackoffBase:       opts.BackoffBase,
		BackoffMin:        opts.BackoffMin,
		BackoffMax:        opts.BackoffMax,
		BackoffJitterFrac: 0.2,
	})

	// The checkpoint always reflects every completed row, interrupted or not.
	if err := tr.persist(); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			log.Error("final checkpoint save failed", "error", err)
		}
	}

	elapsed := time.Since(start)
	summary := &Summary{
		Planned:     len(pending),
		Succeeded:   succeeded,
		Failed:      failed,
		Elapsed:     elapsed,
		Interrupted: errors.Is(runErr, context.Canceled),
		ErrorSample: tr.sample,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		summary.RowsPerSec = float64(succeeded+failed) / secs
	}

	log.Info("run finished",
		"planned", summary.Planned,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", elapsed.Round(time.Millisecond),
		"rows_per_sec", fmt.Sprintf("%.2f", summary.RowsPerSec),
		"interrupted", summary.Interrupted)
	for _, re := range summary.ErrorSample {
		log.Warn("row error", "row", re.Index, "error", re.Message)
	}
	if summary.Failed > len(summary.ErrorSample) {
		log.Warn("additional row errors omitted", "count", summary.Failed-len(summary.ErrorSample))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return summary, runErr
	}
	if summary.Interrupted {
		return summary, context.Canceled
	}
	return summary, nil
}

// tracker owns the checkpoint state during a run. Its lock is separate from
// the writer's so a slow append never blocks checkpoint persistence.
type tracker struct {
	mu    sync.Mutex
	store *checkpoint.Store
	state *checkpoint.State
	every int
	log   *slog.Logger

	startedAt time.Time
	thisRun   int

	sample []RowError
}

func newTracker(store *checkpoint.Store, state *checkpoint.State, every int, log *slog.Logger) *tracker {
	if every <= 0 {
		every = 10
	}
	return &tracker{
		store:     store,
		state:     state,
		every:     every,
		log:       log,
		startedAt: time.Now(),
	}
}

// complete marks a row done and persists the checkpoint every N completions.
// The caller appends the output row first, so the checkpoint never claims a
// row the output file does not have.
func (t *tracker) complete(idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Mark(idx)
	t.thisRun++

	done := t.state.Count()
	if done%t.every != 0 {
		return nil
	}
	if err := t.store.Save(t.state); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	elapsed := time.Since(t.startedAt).Seconds()
	var rate, eta float64
	if elapsed > 0 {
		rate = float64(t.thisRun) / elapsed
	}
	remaining := t.state.Total - done
	if rate > 0 {
		eta = float64(remaining) / rate
	}
	t.log.Info("progress",
		"completed", done,
		"total", t.state.Total,
		"rate_rows_per_sec", fmt.Sprintf("%.2f", rate),
		"eta", (time.Duration(eta * float64(time.Second))).Round(time.Second))
	return nil
}

func (t *tracker) recordError(idx int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Errors++
	if len(t.sample) >= errorSampleSize {
		return
	}
	msg := util.Truncate(util.RedactSecrets(err.Error()), 500)
	t.sample = append(t.sample, RowError{Index: idx, Message: msg})
}

func (t *tracker) persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Save(t.state)
}
