package ledger

import (
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"dailyledger/internal/core"
)

// Column is one display column: the canonical field it shows and its heading.
type Column struct {
	Field core.Field
	Label string
}

// DefaultColumns is the list view of the entry app. Bill number and location
// are recorded but not shown.
func DefaultColumns() []Column {
	return []Column{
		{core.FieldDate, "දිනය"},
		{core.FieldRecordedBy, "නම"},
		{core.FieldKind, "වර්ගය"},
		{core.FieldCategory, "කාණ්ඩය"},
		{core.FieldAmount, "මුදල"},
		{core.FieldPaymentMethod, "ගෙවූ ක්‍රමය"},
		{core.FieldRemarks, "සටහන්"},
	}
}

// Format controls how values are rendered for display.
type Format struct {
	CurrencyPrefix  string
	ZeroPlaceholder string
	// KindLabels is the display text per kind. Rows with an unknown kind show
	// their original type cell.
	KindLabels map[core.Kind]string
}

func DefaultFormat() Format {
	return Format{
		CurrencyPrefix:  "Rs. ",
		ZeroPlaceholder: "-",
		KindLabels: map[core.Kind]string{
			core.Expense: "වියදම්",
			core.Income:  "ආදායම්",
		},
	}
}

// Money renders d with thousands grouping and two decimals, e.g. "Rs. 3,288.00".
// Negative values keep their sign in front of the prefix.
func (f Format) Money(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	abs := d.Abs().Round(2)
	fixed := abs.StringFixed(2)
	frac := fixed[strings.IndexByte(fixed, '.'):]
	return sign + f.CurrencyPrefix + humanize.BigComma(abs.Truncate(0).BigInt()) + frac
}

// Amount renders a list-view amount: the placeholder for zero, Money otherwise.
func (f Format) Amount(d decimal.Decimal) string {
	if d.IsZero() {
		return f.ZeroPlaceholder
	}
	return f.Money(d)
}

// Kind renders the type column of tx.
func (f Format) Kind(tx core.Transaction) string {
	if tx.Kind.Valid() {
		if label, ok := f.KindLabels[tx.Kind]; ok && label != "" {
			return label
		}
		return string(tx.Kind)
	}
	return tx.TypeLabel
}

// FormatAmount renders d with the default format.
func FormatAmount(d decimal.Decimal) string {
	return DefaultFormat().Amount(d)
}

// Table is a display-ready projection.
type Table struct {
	// Fields holds the canonical field of each column; pass-through columns
	// of a raw projection have an empty field.
	Fields []core.Field
	Header []string
	Rows   [][]string
}

// Projector selects and renders display columns.
type Projector struct {
	Columns []Column
	Format  Format
}

func NewProjector(columns []Column, format Format) *Projector {
	if len(columns) == 0 {
		columns = DefaultColumns()
	}
	return &Projector{Columns: columns, Format: format}
}

// Project renders txs in display order. Columns whose field the source schema
// lacks are omitted instead of being shown empty.
func (p *Projector) Project(l Ledger, txs []core.Transaction) Table {
	t := Table{Rows: make([][]string, 0, len(txs))}
	var cols []Column
	for _, c := range p.Columns {
		if !l.Has(c.Field) {
			continue
		}
		cols = append(cols, c)
		t.Fields = append(t.Fields, c.Field)
		label := c.Label
		if label == "" {
			label = string(c.Field)
		}
		t.Header = append(t.Header, label)
	}
	for _, tx := range SortForDisplay(txs) {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = p.cell(tx, c.Field)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ProjectRaw renders txs with every column the source header carries, in
// header order. Canonical fields use their display label when one is
// configured and the source heading otherwise; pass-through columns keep
// their own name and values. Rows are in display order.
func (p *Projector) ProjectRaw(l Ledger, txs []core.Transaction) Table {
	labels := make(map[core.Field]string, len(p.Columns))
	for _, c := range p.Columns {
		if c.Label != "" {
			labels[c.Field] = c.Label
		}
	}
	fieldAt := make(map[int]core.Field, len(l.Schema.Columns))
	for f, i := range l.Schema.Columns {
		fieldAt[i] = f
	}

	t := Table{Rows: make([][]string, 0, len(txs))}
	var extras []string
	for i := range l.Schema.Header {
		if f, ok := fieldAt[i]; ok {
			label := labels[f]
			if label == "" {
				label = l.Schema.Header[i]
			}
			t.Fields = append(t.Fields, f)
			t.Header = append(t.Header, label)
			extras = append(extras, "")
			continue
		}
		name := l.Schema.ExtraName(i)
		t.Fields = append(t.Fields, "")
		t.Header = append(t.Header, name)
		extras = append(extras, name)
	}
	for _, tx := range SortForDisplay(txs) {
		row := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			if f == "" {
				row[i] = tx.Extra[extras[i]]
				continue
			}
			row[i] = p.cell(tx, f)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (p *Projector) cell(tx core.Transaction, f core.Field) string {
	switch f {
	case core.FieldDate:
		if tx.Date.Resolved() {
			return tx.Date.String()
		}
		return tx.RawDate
	case core.FieldRecordedBy:
		return tx.RecordedBy
	case core.FieldKind:
		return p.Format.Kind(tx)
	case core.FieldCategory:
		return tx.Category
	case core.FieldAmount:
		return p.Format.Amount(tx.Amount)
	case core.FieldPaymentMethod:
		return tx.PaymentMethod
	case core.FieldBillNo:
		return tx.BillNo
	case core.FieldLocation:
		return tx.Location
	case core.FieldRemarks:
		return tx.Remarks
	}
	return ""
}

// SortForDisplay returns a copy of txs ordered newest first. Equal dates keep
// source order and unresolved dates go last.
func SortForDisplay(txs []core.Transaction) []core.Transaction {
	out := append([]core.Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Date, out[j].Date
		if !a.Resolved() || !b.Resolved() {
			return a.Resolved() && !b.Resolved()
		}
		return a.After(b)
	})
	return out
}
