package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"node-ledger/models"
	"node-ledger/services"
)

const (
	auditBatchSize = 500
	// Requests younger than this may still belong to an open transaction
	// and are left for the next pass.
	auditSettleDelay = time.Minute
)

// ObjectPutter stores one object. utils.R2Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// WithdrawalSource lists withdrawal requests after a keyset cursor, up to
// and including until.
type WithdrawalSource interface {
	Since(ctx context.Context, c services.WithdrawalCursor, until time.Time, limit int) ([]models.WithdrawalRequest, error)
}

// AuditExporter copies new withdrawal requests to object storage as JSON
// Lines, one object per batch, for the operator's payout reconciliation.
type AuditExporter struct {
	source   WithdrawalSource
	store    ObjectPutter
	interval time.Duration
	clock    clockwork.Clock

	cursor services.WithdrawalCursor
}

func NewAuditExporter(source WithdrawalSource, store ObjectPutter, interval time.Duration, clock clockwork.Clock) *AuditExporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuditExporter{source: source, store: store, interval: interval, clock: clock}
}

func (w *AuditExporter) Start(ctx context.Context) {
	log.Info("[AUDIT] starting withdrawal audit exporter")
	go w.run(ctx)
}

func (w *AuditExporter) run(ctx context.Context) {
	// Backfill everything on start: object keys are deterministic, so
	// re-exporting after a restart overwrites rather than duplicates.
	if _, err := w.ExportOnce(ctx); err != nil {
		log.WithError(err).Warn("[AUDIT] initial export failed")
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := w.ExportOnce(ctx); err != nil {
				log.WithError(err).Error("[AUDIT] export failed")
			}
		case <-ctx.Done():
			log.Info("[AUDIT] withdrawal audit exporter stopped")
			return
		}
	}
}

// ExportOnce drains all settled requests past the cursor and returns how
// many were written. The cursor only advances past a batch once it is stored.
func (w *AuditExporter) ExportOnce(ctx context.Context) (int, error) {
	until := w.clock.Now().Add(-auditSettleDelay)
	total := 0
	for {
		batch, err := w.source.Since(ctx, w.cursor, until, auditBatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for i := range batch {
			if err := enc.Encode(&batch[i]); err != nil {
				return total, errors.Wrap(err, "encode withdrawal")
			}
		}

		first, last := batch[0], batch[len(batch)-1]
		key := fmt.Sprintf("withdrawals/%s/%d-%s.jsonl",
			first.CreatedAt.UTC().Format("2006/01/02"), first.CreatedAt.UTC().UnixNano(), first.ID)
		if err := w.store.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
			return total, err
		}

		w.cursor = services.CursorOf(last)
		total += len(batch)
		log.WithFields(log.Fields{"key": key, "count": len(batch)}).Info("[AUDIT] exported withdrawals")

		if len(batch) < auditBatchSize {
			return total, nil
		}
	}
}
