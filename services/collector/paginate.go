// Package collector is the resumable batch collection engine. It drives work
// units through the remote's cursor under batch-scoped sessions, records
// every outcome in the append-only progress ledger and repairs failed units
// in an explicit retry pass.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dtfcollect/lib/ledger"
	"dtfcollect/lib/source"
	"dtfcollect/lib/universe"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/collector")

// politeSleep waits d plus up to 25% jitter so hops never land on a fixed
// cadence the remote could key on.
func politeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	wait := d
	if ms := int(d.Milliseconds() / 4); ms > 0 {
		if extra, err := random.IntRange(0, ms); err == nil {
			wait += time.Duration(extra) * time.Millisecond
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// CollectUnit follows one work unit's cursor until the remote reports no more
// data, then shapes the outcome as a ledger record. The first failed page
// yields an error record and discards pages already fetched for the unit; a
// failed unit is always retried whole. Cancellation is returned as an error,
// never as a record: an interrupted unit must stay absent from the ledger so
// the next run re-attempts it.
func CollectUnit(ctx context.Context, sess source.Session, unit universe.WorkUnit, sleepPages time.Duration) (ledger.Record, error) {
	ctx, span := tracer.Start(ctx, "collector:CollectUnit", trace.WithAttributes(
		attribute.String("unit_id", unit.ID),
	))
	defer span.End()

	rec := ledger.Record{
		UnitID:       unit.ID,
		Name:         unit.Name,
		Role:         unit.Role,
		Payload:      []json.RawMessage{},
		AttemptCount: 1,
	}

	var items []json.RawMessage
	token := ""
	for {
		page, err := sess.FetchPage(ctx, unit.ID, token)
		if err != nil {
			if cancelErr := canceled(ctx, err); cancelErr != nil {
				return ledger.Record{}, cancelErr
			}
			rec.Status = ledger.StatusError
			rec.ErrorMessage = err.Error()
			var fetchErr *source.FetchError
			if errors.As(err, &fetchErr) {
				rec.HTTPStatus = fetchErr.HTTPStatus
			}
			rec.Timestamp = time.Now().UTC()
			return rec, nil
		}
		items = append(items, page.Items...)
		if page.NextToken == "" || len(page.Items) == 0 {
			break
		}
		token = page.NextToken
		if err := politeSleep(ctx, sleepPages); err != nil {
			return ledger.Record{}, err
		}
	}

	rec.Status = ledger.StatusOK
	if items != nil {
		rec.Payload = items
	}
	rec.ItemCount = len(items)
	rec.Timestamp = time.Now().UTC()
	return rec, nil
}

// canceled reports whether a fetch failure is really the operator stopping
// the run. The concrete client wraps transport errors in *FetchError, which
// loses the context error chain, so the context itself is consulted too.
func canceled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
