package http

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dailyledger/internal/core"
	"dailyledger/internal/ledger"
	"dailyledger/internal/log"
)

type amountView struct {
	Value   decimal.Decimal `json:"value"`
	Display string          `json:"display"`
}

type breakdownView struct {
	Category string     `json:"category"`
	Amount   amountView `json:"amount"`
	Count    int        `json:"count"`
}

type freshness struct {
	LoadedAt string `json:"loaded_at,omitempty"`
	Stale    bool   `json:"stale"`
	Warning  string `json:"warning,omitempty"`
}

type reportView struct {
	Start              string          `json:"start"`
	End                string          `json:"end"`
	Income             amountView      `json:"income"`
	Expense            amountView      `json:"expense"`
	Balance            amountView      `json:"balance"`
	Count              int             `json:"count"`
	BreakdownKind      core.Kind       `json:"breakdown_kind"`
	BreakdownAvailable bool            `json:"breakdown_available"`
	Breakdown          []breakdownView `json:"breakdown"`
	Header             []string        `json:"header"`
	Rows               [][]string      `json:"rows"`
	freshness
}

type tableView struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Issues int        `json:"issues,omitempty"`
	freshness
}

type monthView struct {
	Year    int        `json:"year"`
	Month   int        `json:"month"`
	Income  amountView `json:"income"`
	Expense amountView `json:"expense"`
	Balance amountView `json:"balance"`
	Count   int        `json:"count"`
}

type monthlyView struct {
	Months []monthView `json:"months"`
	freshness
}

func newFreshness(loadedAt time.Time, stale bool) freshness {
	f := freshness{Stale: stale}
	if !loadedAt.IsZero() {
		f.LoadedAt = loadedAt.UTC().Format(time.RFC3339)
	}
	if stale {
		f.Warning = StaleWarning
	}
	return f
}

func (s *Server) amount(d decimal.Decimal) amountView {
	return amountView{Value: d, Display: s.ledger.Format().Money(d)}
}

// query parses the request's report window, writing a 400 on failure.
func (s *Server) query(w http.ResponseWriter, r *http.Request) (ledger.Query, bool) {
	q, err := ParseQuery(r.URL.Query(), s.ledger.DefaultRange(), s.dates)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Rejected report query",
			log.NewFields().WithQuery(r.URL.RawQuery).WithErrorType(log.ErrorTypeValidation).WithError(err).ToSlice()...)
		FromError(err, http.StatusBadRequest).Write(w)
		return q, false
	}
	return q, true
}

// failed writes err unless the result can still be served stale.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, err error, stale bool) bool {
	if err == nil || stale {
		return false
	}
	s.logger.ErrorContext(r.Context(), "Ledger request failed",
		log.NewFields().WithErrorType(errorType(err)).WithError(err).ToSlice()...)
	FromError(err, http.StatusBadRequest).Write(w)
	return true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q, ok := s.query(w, r)
	if !ok {
		return
	}
	res, err := s.ledger.Report(r.Context(), q)
	if s.failed(w, r, err, res.Stale) {
		return
	}

	rep := res.Report
	view := reportView{
		Start:              rep.Start.String(),
		End:                rep.End.String(),
		Income:             s.amount(rep.IncomeTotal),
		Expense:            s.amount(rep.ExpenseTotal),
		Balance:            s.amount(rep.Balance),
		Count:              len(rep.Filtered),
		BreakdownKind:      rep.BreakdownKind,
		BreakdownAvailable: rep.BreakdownAvailable,
		Breakdown:          make([]breakdownView, 0, len(rep.Breakdown)),
		Header:             res.Table.Header,
		Rows:               nonNilRows(res.Table.Rows),
		freshness:          newFreshness(res.LoadedAt, res.Stale),
	}
	for _, b := range rep.Breakdown {
		view.Breakdown = append(view.Breakdown, breakdownView{Category: b.Category, Amount: s.amount(b.Amount), Count: b.Count})
	}
	NewJSONResponse().Freshness(res.LoadedAt, res.Stale).Data(view).Write(w)
}

// handleTransactions lists the window's rows, or every row with raw=1.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("raw"); raw == "1" || strings.EqualFold(raw, "true") {
		table, snap, err := s.ledger.Listing(r.Context())
		if s.failed(w, r, err, snap.Stale) {
			return
		}
		NewJSONResponse().Freshness(snap.LoadedAt, snap.Stale).Data(tableView{
			Header:    table.Header,
			Rows:      nonNilRows(table.Rows),
			Issues:    len(snap.Ledger.Issues),
			freshness: newFreshness(snap.LoadedAt, snap.Stale),
		}).Write(w)
		return
	}

	q, ok := s.query(w, r)
	if !ok {
		return
	}
	res, err := s.ledger.Report(r.Context(), q)
	if s.failed(w, r, err, res.Stale) {
		return
	}
	NewJSONResponse().Freshness(res.LoadedAt, res.Stale).Data(tableView{
		Header:    res.Table.Header,
		Rows:      nonNilRows(res.Table.Rows),
		freshness: newFreshness(res.LoadedAt, res.Stale),
	}).Write(w)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Monthly(r.Context())
	if s.failed(w, r, err, res.Stale) {
		return
	}
	view := monthlyView{Months: make([]monthView, 0, len(res.Months)), freshness: newFreshness(res.LoadedAt, res.Stale)}
	for _, m := range res.Months {
		view.Months = append(view.Months, monthView{
			Year:    m.Year,
			Month:   m.Month,
			Income:  s.amount(m.Income),
			Expense: s.amount(m.Expense),
			Balance: s.amount(m.Balance),
			Count:   m.Count,
		})
	}
	NewJSONResponse().Freshness(res.LoadedAt, res.Stale).Data(view).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	rules := s.ledger.Rules()
	categories := make(map[core.Kind][]string, len(rules.Categories))
	for k, c := range rules.Categories {
		categories[k] = append([]string(nil), c...)
	}
	NewJSONResponse().Data(map[string]any{
		"kinds":                 []core.Kind{core.Expense, core.Income},
		"categories":            categories,
		"payment_methods":       rules.PaymentMethods,
		"income_payment_method": rules.IncomePaymentMethod,
	}).Write(w)
}

// handleExportCSV never serves stale data.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	q, ok := s.query(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.ledger.ExportCSV(r.Context(), &buf, q); err != nil {
		s.failed(w, r, err, false)
		return
	}
	s.logger.InfoContext(r.Context(), "Ledger exported",
		log.NewFields().WithOperation(log.OpExport).WithRange(q.Start.String(), q.End.String()).ToSlice()...)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger-`+q.Start.String()+`-`+q.End.String()+`.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleDocument renders the printable report as JSON, or as plain text with
// format=text.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	q, ok := s.query(w, r)
	if !ok {
		return
	}
	title := sanitizeInput(r.URL.Query().Get("title"))
	if title == "" {
		title = s.documentTitle
	}
	doc, err := s.ledger.Document(r.Context(), title, q)
	if err != nil {
		s.failed(w, r, err, false)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(RenderText(doc)))
		return
	}
	NewJSONResponse().Data(doc).Write(w)
}

// RenderText lays a document out as tab-separated plain text.
func RenderText(doc ledger.Document) string {
	var b strings.Builder
	b.WriteString(doc.Title)
	b.WriteByte('\n')
	b.WriteString(doc.Period)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(doc.Header, "\t"))
	b.WriteByte('\n')
	for _, row := range doc.Rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(doc.SummaryText())
	b.WriteByte('\n')
	return b.String()
}

func nonNilRows(rows [][]string) [][]string {
	if rows == nil {
		return [][]string{}
	}
	return rows
}
