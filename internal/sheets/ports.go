package sheets

import (
	"context"
	"fmt"
)

// Ports for outbound store adapters. Every backend speaks raw rows; header
// normalization and typing happen in the ledger package.
type (
	// RowReader returns the whole sheet, header row first.
	RowReader interface {
		ReadAll(ctx context.Context) ([][]string, error)
	}

	// RowAppender appends one row in store column order and returns a
	// backend-specific reference to it. A nil error means the store
	// confirmed the write.
	RowAppender interface {
		AppendRow(ctx context.Context, cells []any) (rowRef string, err error)
	}

	Store interface {
		RowReader
		RowAppender
	}
)

// Cells renders appended values the way every backend stores them.
func Cells(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
