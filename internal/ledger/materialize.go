// Package ledger turns raw store rows into typed transactions and derives
// totals, category breakdowns and display projections from them.
package ledger

import (
	"strings"

	"dailyledger/internal/core"
	"dailyledger/internal/parse"
	"dailyledger/internal/schema"
)

// Issue reasons recorded during materialization.
const (
	ReasonMalformedAmount = "malformed_amount"
	ReasonUnresolvedDate  = "unresolved_date"
	ReasonUnknownKind     = "unknown_kind"
)

// Issue describes one cell that fell back to its default value.
type Issue struct {
	Row    int
	Field  core.Field
	Raw    string
	Reason string
}

// Observer is notified of every fallback so it can be counted.
type Observer interface {
	MalformedField(field core.Field, reason string)
}

// Ledger is a read snapshot of the store: every non-blank data row in source
// order, plus the schema it was read with.
type Ledger struct {
	Schema       schema.Mapping
	Transactions []core.Transaction
	Issues       []Issue
}

// Has reports whether the source schema carried field f.
func (l Ledger) Has(f core.Field) bool {
	return l.Schema.Has(f)
}

// KindLabels maps each kind to the type-cell spellings that denote it.
type KindLabels map[core.Kind][]string

// DefaultKindLabels covers the Sinhala labels written by the entry form and
// their English equivalents.
func DefaultKindLabels() KindLabels {
	return KindLabels{
		core.Expense: {"වියදම්", "Expense", "Expenses"},
		core.Income:  {"ආදායම්", "Income"},
	}
}

// Materializer converts rows into transactions. It holds no mutable state.
type Materializer struct {
	normalizer *schema.Normalizer
	amounts    *parse.AmountParser
	dates      *parse.DateParser
	kinds      map[string]core.Kind
	observer   Observer
}

// Options configures a Materializer. Nil parsers fall back to the defaults.
type Options struct {
	Normalizer *schema.Normalizer
	Amounts    *parse.AmountParser
	Dates      *parse.DateParser
	Kinds      KindLabels
	Observer   Observer
}

func NewMaterializer(opts Options) *Materializer {
	m := &Materializer{
		normalizer: opts.Normalizer,
		amounts:    opts.Amounts,
		dates:      opts.Dates,
		kinds:      make(map[string]core.Kind),
		observer:   opts.Observer,
	}
	if m.normalizer == nil {
		m.normalizer = schema.NewNormalizer(schema.DefaultSynonyms())
	}
	if m.amounts == nil {
		m.amounts = parse.NewAmountParser(parse.DefaultCurrencyMarkers)
	}
	if m.dates == nil {
		m.dates = parse.NewDateParser(parse.DefaultDateLayouts)
	}
	kinds := opts.Kinds
	if kinds == nil {
		kinds = DefaultKindLabels()
	}
	for _, k := range []core.Kind{core.Expense, core.Income} {
		m.kinds[schema.Fold(string(k))] = k
		for _, label := range kinds[k] {
			if key := schema.Fold(label); key != "" {
				m.kinds[key] = k
			}
		}
	}
	return m
}

// ResolveKind maps a type cell onto a kind; ok is false for unknown labels.
func (m *Materializer) ResolveKind(label string) (core.Kind, bool) {
	k, ok := m.kinds[schema.Fold(label)]
	return k, ok
}

// Materialize reads rows whose first element is the header row.
func (m *Materializer) Materialize(rows [][]string) Ledger {
	if len(rows) == 0 {
		return Ledger{Schema: m.normalizer.Normalize(nil)}
	}
	return m.MaterializeMapped(m.normalizer.Normalize(rows[0]), rows[1:])
}

// MaterializeMapped converts data rows using an already normalized header.
// Each row is processed on its own; a bad cell never aborts the batch.
func (m *Materializer) MaterializeMapped(mapping schema.Mapping, data [][]string) Ledger {
	l := Ledger{
		Schema:       mapping,
		Transactions: make([]core.Transaction, 0, len(data)),
	}
	for i, row := range data {
		if blankRow(row) {
			continue
		}
		tx, issues := m.materializeRow(mapping, i+2, row)
		l.Transactions = append(l.Transactions, tx)
		for _, is := range issues {
			if m.observer != nil {
				m.observer.MalformedField(is.Field, is.Reason)
			}
		}
		l.Issues = append(l.Issues, issues...)
	}
	return l
}

func (m *Materializer) materializeRow(mapping schema.Mapping, rowNum int, row []string) (core.Transaction, []Issue) {
	cell := func(f core.Field) string {
		i := mapping.Index(f)
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var issues []Issue
	tx := core.Transaction{
		Row:           rowNum,
		RawDate:       cell(core.FieldDate),
		RecordedBy:    cell(core.FieldRecordedBy),
		TypeLabel:     cell(core.FieldKind),
		Category:      cell(core.FieldCategory),
		PaymentMethod: cell(core.FieldPaymentMethod),
		BillNo:        cell(core.FieldBillNo),
		Location:      cell(core.FieldLocation),
		Remarks:       cell(core.FieldRemarks),
	}

	if mapping.Has(core.FieldDate) {
		tx.Date = m.dates.Parse(tx.RawDate)
		if !tx.Date.Resolved() {
			issues = append(issues, Issue{Row: rowNum, Field: core.FieldDate, Raw: tx.RawDate, Reason: ReasonUnresolvedDate})
		}
	}

	raw := cell(core.FieldAmount)
	amount, ok := m.amounts.Parse(raw)
	tx.Amount = amount
	if !ok {
		issues = append(issues, Issue{Row: rowNum, Field: core.FieldAmount, Raw: raw, Reason: ReasonMalformedAmount})
	}

	if mapping.Has(core.FieldKind) {
		if k, ok := m.ResolveKind(tx.TypeLabel); ok {
			tx.Kind = k
		} else {
			issues = append(issues, Issue{Row: rowNum, Field: core.FieldKind, Raw: tx.TypeLabel, Reason: ReasonUnknownKind})
		}
	}

	for _, i := range mapping.Extra {
		if i >= len(row) {
			continue
		}
		if tx.Extra == nil {
			tx.Extra = make(map[string]string, len(mapping.Extra))
		}
		tx.Extra[mapping.ExtraName(i)] = strings.TrimSpace(row[i])
	}
	return tx, issues
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
