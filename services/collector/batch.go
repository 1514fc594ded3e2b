package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dtfcollect/lib/ledger"
	"dtfcollect/lib/source"
	"dtfcollect/lib/universe"
)

const DefaultBatchSize = 25

type BatchOptions struct {
	SleepUnits time.Duration
	SleepPages time.Duration
	// OnRecord is called after each record has been appended to the ledger.
	OnRecord func(rec ledger.Record)
}

type BatchResult struct {
	Written   int
	Succeeded int
}

// RunBatch collects the given units under exactly one freshly established
// session. Failure to establish the session aborts the batch; records already
// appended stay in the ledger. The session is released on every exit path.
func RunBatch(ctx context.Context, provider source.Provider, w *ledger.Writer, units []universe.WorkUnit, opts BatchOptions) (BatchResult, error) {
	ctx, span := tracer.Start(ctx, "collector:RunBatch")
	defer span.End()

	sess, err := provider.Establish(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("establish session: %w", err)
	}
	defer sess.Close()

	var result BatchResult
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 {
			if err := politeSleep(ctx, opts.SleepUnits); err != nil {
				return result, err
			}
		}
		rec, err := CollectUnit(ctx, sess, unit, opts.SleepPages)
		if err != nil {
			// cancelled mid-unit: nothing is appended, the unit stays
			// absent from the ledger and the next run picks it up again
			return result, err
		}
		if err := w.Append(rec); err != nil {
			return result, fmt.Errorf("append record for %s: %w", unit.ID, err)
		}
		result.Written++
		if rec.Status == ledger.StatusOK {
			result.Succeeded++
		} else {
			slog.WarnContext(ctx, "unit failed",
				"unit_id", unit.ID, "error", rec.ErrorMessage, "http_status", rec.HTTPStatus)
		}
		if opts.OnRecord != nil {
			opts.OnRecord(rec)
		}
	}
	return result, nil
}
