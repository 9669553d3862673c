package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"dailyledger/internal/amqp"
	"dailyledger/internal/metrics"
	"dailyledger/internal/sheets/memory"
	"dailyledger/internal/storage"
)

var header = []string{"Date", "Name", "Type", "Category", "Amount"}

func newMirror(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "mirror.db"), header)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHandleRowAppendedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mirror := newMirror(t)
	w := NewMirrorWorker(mirror, metrics.New(), nil)

	msg := amqp.NewRowAppendedMessage("Sheet1!A5:I5", "Dileepa", []string{"2024-03-18", "Dileepa", "Expense", "Food", "250.00"})
	for i := 0; i < 2; i++ {
		if err := w.HandleRowAppended(ctx, msg); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}
	// Same row published twice under different event IDs.
	again := amqp.NewRowAppendedMessage(msg.RowRef, msg.RecordedBy, msg.Cells)
	if err := w.HandleRowAppended(ctx, again); err != nil {
		t.Fatalf("republish: %v", err)
	}

	n, err := mirror.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("mirror rows = %d, want 1", n)
	}

	rows, err := mirror.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 || rows[1][3] != "Food" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestHandleRowAppendedFallsBackToEventID(t *testing.T) {
	ctx := context.Background()
	mirror := newMirror(t)
	w := NewMirrorWorker(mirror, nil, nil)

	a := amqp.NewRowAppendedMessage("", "Nilupa", []string{"2024-03-18"})
	b := amqp.NewRowAppendedMessage("", "Nilupa", []string{"2024-03-18"})
	for _, m := range []*amqp.RowAppendedMessage{a, b, a} {
		if err := w.HandleRowAppended(ctx, m); err != nil {
			t.Fatalf("HandleRowAppended: %v", err)
		}
	}
	if n, _ := mirror.Count(ctx); n != 2 {
		t.Fatalf("mirror rows = %d, want 2", n)
	}
}

type failingMirror struct{}

func (failingMirror) MirrorRow(context.Context, string, []string) (bool, error) {
	return false, errors.New("disk full")
}

func (failingMirror) Count(context.Context) (int, error) { return 0, nil }

func TestHandleRowAppendedRequeuesOnFailure(t *testing.T) {
	w := NewMirrorWorker(failingMirror{}, nil, nil)
	if err := w.HandleRowAppended(context.Background(), amqp.NewRowAppendedMessage("r1", "x", nil)); err == nil {
		t.Fatal("expected error so the delivery is requeued")
	}
	if err := w.HandleRowAppended(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
	if err := w.HandleRowAppended(context.Background(), &amqp.RowAppendedMessage{}); err != nil {
		t.Fatalf("message without reference should be dropped, got %v", err)
	}
}

func TestCheckDrift(t *testing.T) {
	ctx := context.Background()
	source := memory.New(header)
	for _, r := range [][]any{
		{"2024-03-01", "Dileepa", "Income", "Salary", "100"},
		{"", "", "", "", ""},
		{"2024-03-02", "Nilupa", "Expense", "Food", "20"},
	} {
		if _, err := source.AppendRow(ctx, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	mirror := newMirror(t)
	w := NewMirrorWorker(mirror, nil, nil)
	if err := w.HandleRowAppended(ctx, amqp.NewRowAppendedMessage("mem:2", "Dileepa", []string{"2024-03-01"})); err != nil {
		t.Fatalf("mirror: %v", err)
	}

	d, err := w.CheckDrift(ctx, source)
	if err != nil {
		t.Fatalf("CheckDrift: %v", err)
	}
	if d.SourceRows != 2 || d.MirrorRows != 1 || d.Missing() != 1 {
		t.Fatalf("drift = %+v", d)
	}

	source.FailReads(errors.New("offline"))
	if _, err := w.CheckDrift(ctx, source); err == nil {
		t.Fatal("expected read error")
	}
}
