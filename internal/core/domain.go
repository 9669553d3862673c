package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Expense Kind = "expense"
	Income  Kind = "income"
)

// Canonical ledger fields, in the column order the store expects on append.
const (
	FieldDate          Field = "date"
	FieldRecordedBy    Field = "recorded_by"
	FieldKind          Field = "kind"
	FieldCategory      Field = "category"
	FieldAmount        Field = "amount"
	FieldPaymentMethod Field = "payment_method"
	FieldBillNo        Field = "bill_no"
	FieldLocation      Field = "location"
	FieldRemarks       Field = "remarks"
)

type (
	Kind string

	Field string

	// Date is a calendar date at UTC midnight. The zero value is the
	// unresolved marker produced by a failed parse; it stays distinct from a
	// real 0001-01-01 because resolution is tracked separately from Time.
	Date struct {
		time.Time
		ok bool
	}

	// Transaction is one materialized ledger row. It is never mutated after
	// materialization.
	Transaction struct {
		Row           int // 1-based source row; the header is row 1
		Date          Date
		RawDate       string
		RecordedBy    string
		Kind          Kind   // empty when TypeLabel matched no configured kind
		TypeLabel     string // type cell as written in the store
		Category      string
		Amount        decimal.Decimal
		PaymentMethod string
		BillNo        string
		Location      string
		Remarks       string
		Extra         map[string]string // columns outside the canonical set
	}

	// Entry is a new transaction submitted for append.
	Entry struct {
		Date          Date
		Kind          Kind
		Category      string
		Amount        decimal.Decimal
		PaymentMethod string
		BillNo        string
		Location      string
		Remarks       string
	}
)

// Fields returns the canonical fields in store column order.
func Fields() []Field {
	return []Field{
		FieldDate, FieldRecordedBy, FieldKind, FieldCategory, FieldAmount,
		FieldPaymentMethod, FieldBillNo, FieldLocation, FieldRemarks,
	}
}

func (f Field) Valid() bool {
	for _, c := range Fields() {
		if c == f {
			return true
		}
	}
	return false
}

func (k Kind) Valid() bool {
	return k == Expense || k == Income
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind resolves a predicate string such as "expense" or "Income".
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", &ValidationError{Field: string(FieldKind), Value: s, Err: ErrUnknownKind}
	}
	return k, nil
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), ok: true}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// Resolved reports whether d holds a real calendar date.
func (d Date) Resolved() bool {
	return d.ok
}

// AddDays returns d shifted by n days. Unresolved dates stay unresolved.
func (d Date) AddDays(n int) Date {
	if !d.Resolved() {
		return d
	}
	return Date{Time: d.Time.AddDate(0, 0, n), ok: true}
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// String renders the ISO form, or "" for the unresolved marker.
func (d Date) String() string {
	if !d.Resolved() {
		return ""
	}
	return d.Format("2006-01-02")
}

// InRange reports whether t has a resolved date within [start, end].
func (t Transaction) InRange(start, end Date) bool {
	if !t.Date.Resolved() {
		return false
	}
	return !t.Date.Before(start) && !t.Date.After(end)
}
