package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"dailyledger/internal/core"
)

// DefaultUncategorized labels breakdown rows whose category cell is blank.
const DefaultUncategorized = "Uncategorized"

// Query selects a date window and, optionally, a kind predicate.
type Query struct {
	Start core.Date
	End   core.Date
	// Kinds restricts the filtered set. Empty keeps every kind, including
	// rows whose type label matched nothing.
	Kinds []core.Kind
	// BreakdownKind is the kind whose amounts are grouped by category.
	// Zero means expense.
	BreakdownKind core.Kind
}

// Validate checks bounds before any data is touched.
func (q Query) Validate() error {
	if !q.Start.Resolved() {
		return &core.ValidationError{Field: "start", Err: core.ErrUnresolvedBound}
	}
	if !q.End.Resolved() {
		return &core.ValidationError{Field: "end", Err: core.ErrUnresolvedBound}
	}
	if q.Start.After(q.End) {
		return &core.ValidationError{Field: "range", Value: q.Start.String() + ".." + q.End.String(), Err: core.ErrInvertedRange}
	}
	for _, k := range q.Kinds {
		if !k.Valid() {
			return &core.ValidationError{Field: string(core.FieldKind), Value: string(k), Err: core.ErrUnknownKind}
		}
	}
	if q.BreakdownKind != "" && !q.BreakdownKind.Valid() {
		return &core.ValidationError{Field: "breakdown", Value: string(q.BreakdownKind), Err: core.ErrUnknownKind}
	}
	return nil
}

// CategoryAmount is one breakdown row.
type CategoryAmount struct {
	Category string
	Amount   decimal.Decimal
	Count    int
}

// Report holds the filtered set and the totals derived from it.
type Report struct {
	Start    core.Date
	End      core.Date
	Filtered []core.Transaction

	IncomeTotal  decimal.Decimal
	ExpenseTotal decimal.Decimal
	Balance      decimal.Decimal

	BreakdownKind core.Kind
	// Breakdown is in first-seen order. It is empty and BreakdownAvailable is
	// false when the source has no category column.
	Breakdown          []CategoryAmount
	BreakdownAvailable bool
}

// BreakdownMap is the breakdown keyed by category.
func (r Report) BreakdownMap() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(r.Breakdown))
	for _, c := range r.Breakdown {
		out[c.Category] = c.Amount
	}
	return out
}

// Aggregator computes reports over a ledger snapshot.
type Aggregator struct {
	Uncategorized string
}

func NewAggregator(uncategorized string) *Aggregator {
	if uncategorized == "" {
		uncategorized = DefaultUncategorized
	}
	return &Aggregator{Uncategorized: uncategorized}
}

// Aggregate filters l to the inclusive window in q and totals the result.
// Rows with an unresolved date never match a window.
func (a *Aggregator) Aggregate(l Ledger, q Query) (Report, error) {
	if err := q.Validate(); err != nil {
		return Report{}, err
	}
	bk := q.BreakdownKind
	if bk == "" {
		bk = core.Expense
	}

	r := Report{
		Start:              q.Start,
		End:                q.End,
		Filtered:           []core.Transaction{},
		IncomeTotal:        decimal.Zero,
		ExpenseTotal:       decimal.Zero,
		BreakdownKind:      bk,
		Breakdown:          []CategoryAmount{},
		BreakdownAvailable: l.Has(core.FieldCategory),
	}

	byCategory := make(map[string]int)
	for _, tx := range l.Transactions {
		if !tx.InRange(q.Start, q.End) || !matchKind(q.Kinds, tx.Kind) {
			continue
		}
		r.Filtered = append(r.Filtered, tx)

		switch tx.Kind {
		case core.Income:
			r.IncomeTotal = r.IncomeTotal.Add(tx.Amount)
		case core.Expense:
			r.ExpenseTotal = r.ExpenseTotal.Add(tx.Amount)
		}

		if !r.BreakdownAvailable || tx.Kind != bk {
			continue
		}
		cat := tx.Category
		if cat == "" {
			cat = a.label()
		}
		i, ok := byCategory[cat]
		if !ok {
			i = len(r.Breakdown)
			byCategory[cat] = i
			r.Breakdown = append(r.Breakdown, CategoryAmount{Category: cat, Amount: decimal.Zero})
		}
		r.Breakdown[i].Amount = r.Breakdown[i].Amount.Add(tx.Amount)
		r.Breakdown[i].Count++
	}
	r.Balance = r.IncomeTotal.Sub(r.ExpenseTotal)
	return r, nil
}

func (a *Aggregator) label() string {
	if a == nil || a.Uncategorized == "" {
		return DefaultUncategorized
	}
	return a.Uncategorized
}

func matchKind(kinds []core.Kind, k core.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

// SortBreakdown orders a breakdown by amount, largest first. Ties keep their
// first-seen order.
func SortBreakdown(b []CategoryAmount) []CategoryAmount {
	out := append([]CategoryAmount(nil), b...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out
}

// MonthSummary totals one calendar month.
type MonthSummary struct {
	Year    int
	Month   int
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
	Count   int
}

// Monthly groups resolved rows by calendar month, oldest first.
func Monthly(l Ledger) []MonthSummary {
	idx := make(map[int]int)
	var out []MonthSummary
	for _, tx := range l.Transactions {
		if !tx.Date.Resolved() {
			continue
		}
		key := tx.Date.Year()*100 + int(tx.Date.Month())
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, MonthSummary{
				Year:    tx.Date.Year(),
				Month:   int(tx.Date.Month()),
				Income:  decimal.Zero,
				Expense: decimal.Zero,
			})
		}
		switch tx.Kind {
		case core.Income:
			out[i].Income = out[i].Income.Add(tx.Amount)
		case core.Expense:
			out[i].Expense = out[i].Expense.Add(tx.Amount)
		}
		out[i].Count++
	}
	for i := range out {
		out[i].Balance = out[i].Income.Sub(out[i].Expense)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
