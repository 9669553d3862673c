package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// WriteCSV writes the table header and rows as comma-separated text.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// SummaryLabels are the headings of the document summary block.
type SummaryLabels struct {
	Income  string
	Expense string
	Balance string
}

func DefaultSummaryLabels() SummaryLabels {
	return SummaryLabels{Income: "ආදායම", Expense: "වියදම", Balance: "ඉතිරිය"}
}

// SummaryLine is one labelled total.
type SummaryLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Document is the renderer-neutral form of a printable report: a title, the
// projected table and a block of totals.
type Document struct {
	Title   string        `json:"title"`
	Period  string        `json:"period"`
	Header  []string      `json:"header"`
	Rows    [][]string    `json:"rows"`
	Summary []SummaryLine `json:"summary"`
}

// BuildDocument assembles a Document from a report and its projection.
// Totals in the summary always use Money; the zero placeholder is for rows only.
func BuildDocument(title string, r Report, t Table, f Format, labels SummaryLabels) Document {
	return Document{
		Title:  title,
		Period: r.Start.String() + " - " + r.End.String(),
		Header: append([]string(nil), t.Header...),
		Rows:   append([][]string(nil), t.Rows...),
		Summary: []SummaryLine{
			{Label: labels.Income, Value: f.Money(r.IncomeTotal)},
			{Label: labels.Expense, Value: f.Money(r.ExpenseTotal)},
			{Label: labels.Balance, Value: f.Money(r.Balance)},
		},
	}
}

// SummaryText renders the summary block one "label: value" per line.
func (d Document) SummaryText() string {
	var b strings.Builder
	for i, s := range d.Summary {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Label)
		b.WriteString(": ")
		b.WriteString(s.Value)
	}
	return b.String()
}
