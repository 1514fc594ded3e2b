package collector

import (
	"context"
	"log/slog"
	"time"

	"dtfcollect/lib/ledger"
	"dtfcollect/lib/source"
	"dtfcollect/lib/universe"
)

type RunOptions struct {
	LedgerPath string
	BatchSize  int
	// MaxBatches caps the number of batches this invocation runs. 0 means
	// run until the universe is exhausted.
	MaxBatches int
	// MaxRuntime stops new batches from starting once it has elapsed. An
	// in-flight batch still completes and flushes. 0 means no time box.
	MaxRuntime   time.Duration
	SleepBatches time.Duration
	SleepUnits   time.Duration
	SleepPages   time.Duration
	OnProgress   func(p Progress)
	OnRecord     func(rec ledger.Record)
}

// Progress is emitted before each batch, after the ledger re-scan.
type Progress struct {
	Batch     int
	Done      int
	Remaining int
	Total     int
}

type RunSummary struct {
	Universe  int
	Done      int
	Batches   int
	Written   int
	Succeeded int
	Failed    int
	TimedOut  bool
}

// Run drives batches until the sharded universe is exhausted or a cap is hit.
// Between batches the ledger is re-scanned and remaining work recomputed from
// the file; in-memory counters are never trusted across a batch boundary, so
// an interrupted run resumes exactly where the ledger says it stopped.
// Failed units are recorded, not re-attempted here.
func Run(ctx context.Context, provider source.Provider, units []universe.WorkUnit, opts RunOptions) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "collector:Run")
	defer span.End()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	start := time.Now()
	summary := RunSummary{Universe: len(units)}

	w, err := ledger.OpenWriter(opts.LedgerPath)
	if err != nil {
		return summary, err
	}
	defer w.Close()

	for {
		done, err := ledger.ScanDone(opts.LedgerPath)
		if err != nil {
			return summary, err
		}
		remaining := pending(units, done)
		summary.Done = len(units) - len(remaining)

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Batch:     summary.Batches + 1,
				Done:      summary.Done,
				Remaining: len(remaining),
				Total:     len(units),
			})
		}
		if len(remaining) == 0 {
			slog.InfoContext(ctx, "universe exhausted", "total", len(units))
			break
		}
		if opts.MaxBatches > 0 && summary.Batches >= opts.MaxBatches {
			slog.InfoContext(ctx, "batch cap reached", "batches", summary.Batches)
			break
		}
		if opts.MaxRuntime > 0 && time.Since(start) >= opts.MaxRuntime {
			summary.TimedOut = true
			slog.InfoContext(ctx, "time box elapsed, not starting another batch",
				"elapsed", time.Since(start).String())
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if summary.Batches > 0 {
			if err := politeSleep(ctx, opts.SleepBatches); err != nil {
				return summary, err
			}
		}

		batch := remaining
		if len(batch) > batchSize {
			batch = batch[:batchSize]
		}
		slog.InfoContext(ctx, "starting batch",
			"batch", summary.Batches+1, "units", len(batch), "remaining", len(remaining))

		result, err := RunBatch(ctx, provider, w, batch, BatchOptions{
			SleepUnits: opts.SleepUnits,
			SleepPages: opts.SleepPages,
			OnRecord:   opts.OnRecord,
		})
		summary.Batches++
		summary.Written += result.Written
		summary.Succeeded += result.Succeeded
		summary.Failed += result.Written - result.Succeeded
		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// pending filters units to those without any ledger record, preserving
// universe order.
func pending(units []universe.WorkUnit, done map[string]bool) []universe.WorkUnit {
	out := make([]universe.WorkUnit, 0, len(units))
	for _, u := range units {
		if !done[u.ID] {
			out = append(out, u)
		}
	}
	return out
}
