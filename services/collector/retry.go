package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dtfcollect/lib/ledger"
	"dtfcollect/lib/source"
	"dtfcollect/lib/universe"
)

type RetryOptions struct {
	// MaxAttempts bounds the attempts per failed unit, first try included.
	MaxAttempts int
	// SleepRetry is the base backoff between attempts; it grows linearly
	// with the attempt number.
	SleepRetry time.Duration
	SleepUnits time.Duration
	SleepPages time.Duration
	// BatchSize is how many failed units share one fresh session.
	BatchSize int
	OnRecord  func(rec ledger.Record)
}

// FindFailed returns the units whose authoritative (last-occurrence) record
// is an error, in unit id order.
func FindFailed(path string) ([]ledger.Record, error) {
	failed, err := ledger.ScanFailed(path)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Record, 0, len(failed))
	for _, rec := range failed {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

// RetryFailed re-collects failed units in chunks, one fresh session per
// chunk, and returns replacement records keyed by unit id. Replacements are
// produced for exhausted failures too, so a unit that was retried and still
// fails is distinguishable from one that was never retried. On a session
// error the replacements gathered so far are returned alongside the error.
func RetryFailed(ctx context.Context, provider source.Provider, failed []ledger.Record, opts RetryOptions) (map[string]ledger.Record, error) {
	ctx, span := tracer.Start(ctx, "collector:RetryFailed")
	defer span.End()

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	replacements := make(map[string]ledger.Record, len(failed))
	for start := 0; start < len(failed); start += batchSize {
		chunk := failed[start:min(start+batchSize, len(failed))]

		sess, err := provider.Establish(ctx)
		if err != nil {
			return replacements, fmt.Errorf("establish session: %w", err)
		}
		err = func() error {
			defer sess.Close()
			for i, old := range chunk {
				if err := ctx.Err(); err != nil {
					return err
				}
				if i > 0 {
					if err := politeSleep(ctx, opts.SleepUnits); err != nil {
						return err
					}
				}
				unit := universe.WorkUnit{ID: old.UnitID, Name: old.Name, Role: old.Role}
				rec, err := retryUnit(ctx, sess, unit, maxAttempts, opts)
				if err != nil {
					return err
				}
				replacements[unit.ID] = rec
				if opts.OnRecord != nil {
					opts.OnRecord(rec)
				}
			}
			return nil
		}()
		if err != nil {
			return replacements, err
		}
	}
	return replacements, nil
}

// retryUnit runs the bounded attempt loop for one unit. Before every attempt
// after the first it sleeps a growing backoff and refreshes the session; a
// refresh failure is fatal to the whole chunk.
func retryUnit(ctx context.Context, sess source.Session, unit universe.WorkUnit, maxAttempts int, opts RetryOptions) (ledger.Record, error) {
	var rec ledger.Record
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := opts.SleepRetry * time.Duration(attempt-1)
			if err := politeSleep(ctx, backoff); err != nil {
				return rec, err
			}
			if err := sess.Refresh(ctx); err != nil {
				return rec, err
			}
		}
		r, err := CollectUnit(ctx, sess, unit, opts.SleepPages)
		if err != nil {
			return rec, err
		}
		rec = r
		rec.AttemptCount = attempt
		rec.Retried = true
		if rec.Status == ledger.StatusOK {
			return rec, nil
		}
		slog.WarnContext(ctx, "retry attempt failed",
			"unit_id", unit.ID, "attempt", attempt, "error", rec.ErrorMessage)
	}
	return rec, nil
}

// Patch writes the repaired ledger. With inplace the original is backed up
// with a timestamped suffix first, then atomically replaced; any failure
// before the final rename leaves the original byte-for-byte untouched.
func Patch(inputPath, outputPath string, inplace bool, replacements map[string]ledger.Record) (backupPath string, err error) {
	if inplace {
		backupPath, err = ledger.Backup(inputPath)
		if err != nil {
			return "", fmt.Errorf("backup ledger: %w", err)
		}
		outputPath = inputPath
	}
	if err := ledger.Rewrite(inputPath, outputPath, replacements); err != nil {
		return backupPath, err
	}
	return backupPath, nil
}
