package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, header []string) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteStore(context.Background(), path, header)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteStoreAppendAndRead(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, []string{"දිනය", "මුදල", "සටහන්"})

	ref, err := s.AppendRow(ctx, []any{"2024-03-01", "500.00", nil})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "sqlite:1" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if _, err := s.AppendRow(ctx, []any{"2024-03-02", "Rs.3,288.00", "ok"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %v", rows)
	}
	if rows[0][0] != "දිනය" || rows[1][2] != "" || rows[2][1] != "Rs.3,288.00" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestSQLiteStoreKeepsExistingHeader(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t, []string{"Date", "Amount"})
	s.Close()

	reopened, err := NewSQLiteStore(ctx, path, []string{"Other"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rows, err := reopened.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows[0]) != 2 || rows[0][0] != "Date" {
		t.Fatalf("header should survive reopen, got %v", rows[0])
	}
}

func TestSQLiteStoreMirrorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, []string{"Date"})

	inserted, err := s.MirrorRow(ctx, "evt-1", []string{"2024-03-01"})
	if err != nil || !inserted {
		t.Fatalf("first mirror: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.MirrorRow(ctx, "evt-1", []string{"2024-03-01"})
	if err != nil || inserted {
		t.Fatalf("redelivery should be a no-op: inserted=%v err=%v", inserted, err)
	}
	// Plain appends never collide with each other.
	for i := 0; i < 2; i++ {
		if _, err := s.AppendRow(ctx, []any{"2024-03-01"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 rows, got %d err=%v", n, err)
	}
}
