// Package worker consumes row-appended events and keeps a local SQLite
// mirror of the ledger store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dailyledger/internal/amqp"
	"dailyledger/internal/log"
	"dailyledger/internal/metrics"
	"dailyledger/internal/sheets"
)

// Mirror is the part of storage.SQLiteStore the worker writes to.
type Mirror interface {
	MirrorRow(ctx context.Context, sourceRef string, cells []string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// MirrorWorker copies appended rows into the mirror. Redelivered events are
// idempotent: each is keyed by the store's row reference, or by the event ID
// when the store returned none.
type MirrorWorker struct {
	mirror  Mirror
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewMirrorWorker(mirror Mirror, m *metrics.Metrics, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		mirror:  mirror,
		metrics: m,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRowAppended processes a single row appended message from AMQP. A
// returned error requeues the delivery.
func (w *MirrorWorker) HandleRowAppended(ctx context.Context, msg *amqp.RowAppendedMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	ref := msg.RowRef
	if ref == "" {
		ref = msg.ID
	}
	if ref == "" {
		// Nothing to key on; requeueing would loop forever.
		w.metrics.Mirrored(metrics.MirrorFailed)
		w.logger.WarnContext(ctx, "Dropping row appended message without reference")
		return nil
	}

	inserted, err := w.mirror.MirrorRow(ctx, ref, msg.Cells)
	if err != nil {
		w.metrics.Mirrored(metrics.MirrorFailed)
		return fmt.Errorf("mirror row %s: %w", ref, err)
	}
	if !inserted {
		w.metrics.Mirrored(metrics.MirrorDuplicate)
		w.logger.DebugContext(ctx, "Row already mirrored", log.FieldRowRef, ref)
		return nil
	}

	w.metrics.Mirrored(metrics.MirrorInserted)
	w.logger.InfoContext(ctx, "Mirrored appended row",
		log.FieldRowRef, ref,
		log.FieldRecordedBy, msg.RecordedBy,
		"event_id", msg.ID)
	return nil
}

// Drift compares the primary store with the mirror.
type Drift struct {
	SourceRows int
	MirrorRows int
}

// Missing is how many source rows the mirror lacks. Negative means the mirror
// holds rows the source no longer has.
func (d Drift) Missing() int {
	return d.SourceRows - d.MirrorRows
}

// CheckDrift counts data rows on both sides and logs a warning on drift. It
// runs at startup to surface events lost while the worker was down.
func (w *MirrorWorker) CheckDrift(ctx context.Context, source sheets.RowReader) (Drift, error) {
	rows, err := source.ReadAll(ctx)
	if err != nil {
		return Drift{}, fmt.Errorf("read source: %w", err)
	}
	var d Drift
	for i, r := range rows {
		if i == 0 || blank(r) {
			continue
		}
		d.SourceRows++
	}
	if d.MirrorRows, err = w.mirror.Count(ctx); err != nil {
		return d, fmt.Errorf("count mirror: %w", err)
	}

	if d.Missing() != 0 {
		w.logger.WarnContext(ctx, "Mirror out of step with source",
			"source_rows", d.SourceRows,
			"mirror_rows", d.MirrorRows,
			"missing", d.Missing())
	} else {
		w.logger.InfoContext(ctx, "Mirror in step with source", "rows", d.SourceRows)
	}
	return d, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
