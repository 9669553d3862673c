package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dailyledger/internal/auth"
	"dailyledger/internal/core"
	"dailyledger/internal/metrics"
	"dailyledger/internal/services"
	"dailyledger/internal/sheets/memory"
)

var testHeader = []string{"Date", "Name", "Type", "Category", "Amount", "Payment Method", "Bill No", "Location", "Remarks"}

type fixture struct {
	server  *Server
	ledger  *services.LedgerService
	store   *memory.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New(testHeader)
	for _, r := range [][]any{
		{"2024-03-01", "Dileepa", "Income", "Salary", "50000", "", "", "", ""},
		{"2024-03-02", "Nilupa", "Expense", "Food", "Rs. 1,250.50", "Cash", "", "", "lunch"},
		{"2024-02-27", "Dileepa", "Expense", "Transport", "300", "Card", "", "", ""},
	} {
		if _, err := store.AppendRow(context.Background(), r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	m := metrics.New()
	svc, err := services.NewLedgerService(services.Options{
		Store: store,
		Rules: services.EntryRules{
			Categories: map[core.Kind][]string{
				core.Expense: {"Food", "Transport"},
				core.Income:  {"Salary"},
			},
			PaymentMethods:      []string{"Cash", "Card"},
			IncomePaymentMethod: "Bank/Cash",
			KindCells:           map[core.Kind]string{core.Expense: "Expense", core.Income: "Income"},
		},
		Metrics:  m,
		Clock:    core.FixedClock(time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC)),
		CacheTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewLedgerService: %v", err)
	}

	hash, err := auth.HashPassword("secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users, err := auth.NewDirectory([]auth.User{{Username: "dileepa", DisplayName: "Mr. Dileepa", PasswordHash: hash}})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}

	srv := NewServer(":0", Deps{Ledger: svc, Users: users, Metrics: m, RateLimitPerMinute: 1000})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &fixture{server: srv, ledger: svc, store: store, metrics: m}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.RemoteAddr = "192.0.2.10:4321"
	rec := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
}

func TestReady(t *testing.T) {
	f := newFixture(t)
	if rec := f.get(t, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d: %s", rec.Code, rec.Body.String())
	}

	f.store.FailReads(errors.New("sheet offline"))
	f.ledger.Invalidate()
	rec := f.get(t, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("stale ready status = %d", rec.Code)
	}
	checks := decode[map[string]any](t, rec)["checks"].(map[string]any)
	if !strings.HasPrefix(checks["store"].(string), "degraded") {
		t.Fatalf("store check = %v", checks["store"])
	}
}

func TestReadyWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.FailReads(errors.New("sheet offline"))
	rec := f.get(t, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode[map[string]any](t, rec)["status"] != "not_ready" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/report?start=2024-03-01&end=2024-03-31")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Ledger-Loaded-At") == "" {
		t.Fatal("missing loaded-at header")
	}
	got := decode[reportView](t, rec)
	if got.Count != 2 {
		t.Fatalf("count = %d", got.Count)
	}
	if got.Income.Display != "Rs. 50,000.00" || got.Expense.Display != "Rs. 1,250.50" || got.Balance.Display != "Rs. 48,749.50" {
		t.Fatalf("totals = %+v %+v %+v", got.Income, got.Expense, got.Balance)
	}
	if !got.BreakdownAvailable || len(got.Breakdown) != 1 || got.Breakdown[0].Category != "Food" {
		t.Fatalf("breakdown = %+v", got.Breakdown)
	}
	if got.Stale || got.Warning != "" {
		t.Fatalf("fresh report flagged stale: %+v", got.freshness)
	}
	if len(got.Rows) != 2 || got.Rows[0][0] != "2024-03-02" {
		t.Fatalf("rows = %v", got.Rows)
	}
}

func TestReportMonthAndKind(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/report?month=2024-02&kind=expense")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[reportView](t, rec)
	if got.Start != "2024-02-01" || got.End != "2024-02-29" || got.Count != 1 {
		t.Fatalf("report = %+v", got)
	}
}

func TestReportRejectsBadQuery(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		target string
		field  string
	}{
		{"inverted range", "/api/report?start=2024-03-31&end=2024-03-01", "range"},
		{"unresolved bound", "/api/report?start=someday", "start"},
		{"unknown kind", "/api/report?kind=transfer", "kind"},
		{"bad month", "/api/report?month=March", "month"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			body := decode[ErrorBody](t, rec)
			if body.Code != CodeBadRequest || body.Field != tt.field {
				t.Fatalf("body = %+v", body)
			}
		})
	}
	if reads := f.store.Reads(); reads != 0 {
		t.Fatalf("invalid queries touched the store %d times", reads)
	}
}

func TestStaleReportAndStrictExport(t *testing.T) {
	f := newFixture(t)
	if rec := f.get(t, "/api/report?month=2024-03"); rec.Code != http.StatusOK {
		t.Fatalf("warm-up status = %d", rec.Code)
	}

	f.store.FailReads(errors.New("sheet offline"))
	f.ledger.Invalidate()

	rec := f.get(t, "/api/report?month=2024-03")
	if rec.Code != http.StatusOK {
		t.Fatalf("stale status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Warning"), StaleWarning) {
		t.Fatalf("warning header = %q", rec.Header().Get("Warning"))
	}
	got := decode[reportView](t, rec)
	if !got.Stale || got.Count != 2 {
		t.Fatalf("stale report = %+v", got)
	}

	rec = f.get(t, "/api/export.csv?month=2024-03")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("export status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatal("failed export carried an attachment header")
	}
	if decode[ErrorBody](t, rec).Code != CodeUnavailable {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestReportWithoutAnySnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.FailReads(errors.New("sheet offline"))
	rec := f.get(t, "/api/report")
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d, retry-after = %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestTransactions(t *testing.T) {
	f := newFixture(t)

	got := decode[tableView](t, f.get(t, "/api/transactions?month=2024-03"))
	if len(got.Rows) != 2 {
		t.Fatalf("window rows = %d", len(got.Rows))
	}

	got = decode[tableView](t, f.get(t, "/api/transactions?raw=1"))
	if len(got.Rows) != 3 {
		t.Fatalf("raw rows = %d", len(got.Rows))
	}
	if len(got.Header) != len(testHeader) {
		t.Fatalf("raw header = %v", got.Header)
	}
}

func TestMonthly(t *testing.T) {
	f := newFixture(t)
	got := decode[monthlyView](t, f.get(t, "/api/monthly"))
	if len(got.Months) != 2 {
		t.Fatalf("months = %+v", got.Months)
	}
	if got.Months[0].Month != 2 || got.Months[1].Month != 3 {
		t.Fatalf("order = %+v", got.Months)
	}
	if got.Months[1].Balance.Display != "Rs. 48,749.50" {
		t.Fatalf("march balance = %+v", got.Months[1].Balance)
	}
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	body := decode[map[string]any](t, f.get(t, "/api/categories"))
	cats := body["categories"].(map[string]any)
	if len(cats["expense"].([]any)) != 2 || body["income_payment_method"] != "Bank/Cash" {
		t.Fatalf("body = %v", body)
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/export.csv?month=2024-03")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if want := `attachment; filename="ledger-2024-03-01-2024-03-31.csv"`; rec.Header().Get("Content-Disposition") != want {
		t.Fatalf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
}

func TestDocument(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/export/document?month=2024-03&title=March")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		Title   string `json:"title"`
		Period  string `json:"period"`
		Summary []struct {
			Value string `json:"value"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Title != "March" || doc.Period != "2024-03-01 - 2024-03-31" || len(doc.Summary) != 3 {
		t.Fatalf("doc = %+v", doc)
	}

	rec = f.get(t, "/api/export/document?month=2024-03&format=text")
	text := rec.Body.String()
	if !strings.HasPrefix(text, defaultDocumentTitle+"\n") || !strings.Contains(text, "Rs. 50,000.00") {
		t.Fatalf("text = %q", text)
	}
}

func entryRequest(body string, withAuth bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.SetBasicAuth("Dileepa", "secret")
	}
	return req
}

func TestCreateEntryRequiresAuth(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"no credentials", entryRequest(`{"kind":"expense"}`, false)},
		{"wrong password", func() *http.Request {
			r := entryRequest(`{"kind":"expense"}`, false)
			r.SetBasicAuth("dileepa", "guess")
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("missing challenge")
			}
		})
	}
	if f.store.Len() != 3 {
		t.Fatalf("rows = %d", f.store.Len())
	}
}

func TestCreateEntry(t *testing.T) {
	f := newFixture(t)
	if rec := f.get(t, "/api/report?month=2024-03"); rec.Code != http.StatusOK {
		t.Fatalf("warm-up status = %d", rec.Code)
	}

	rec := f.do(t, entryRequest(`{"kind":"expense","amount":"Rs. 250","category":"food","payment_method":"cash","remarks":" tea "}`, true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[entryView](t, rec)
	want := []string{"2024-03-18", "Mr. Dileepa", "Expense", "Food", "250.00", "Cash", "", "", "tea"}
	if got.RowRef == "" || strings.Join(got.Cells, "|") != strings.Join(want, "|") {
		t.Fatalf("entry = %+v", got)
	}

	report := decode[reportView](t, f.get(t, "/api/report?month=2024-03"))
	if report.Count != 3 || report.Expense.Display != "Rs. 1,500.50" {
		t.Fatalf("report after append = %+v", report)
	}
}

func TestCreateEntryFormBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/entries",
		strings.NewReader("kind=income&amount=1000&category=Salary&date=2024-03-15"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("dileepa", "secret")
	rec := f.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[entryView](t, rec)
	if got.Cells[0] != "2024-03-15" || got.Cells[5] != "Bank/Cash" {
		t.Fatalf("cells = %v", got.Cells)
	}
}

func TestCreateEntryValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"negative amount", `{"kind":"expense","amount":"-5","category":"Food"}`, "amount"},
		{"zero amount", `{"kind":"expense","amount":"0","category":"Food"}`, "amount"},
		{"missing amount", `{"kind":"expense","category":"Food"}`, "amount"},
		{"unknown kind", `{"kind":"gift","amount":"5"}`, "kind"},
		{"unknown category", `{"kind":"expense","amount":"5","category":"Toys"}`, "category"},
		{"unknown payment", `{"kind":"expense","amount":"5","category":"Food","payment_method":"Cheque"}`, "payment_method"},
		{"unresolved date", `{"kind":"expense","amount":"5","category":"Food","date":"soon"}`, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, entryRequest(tt.body, true))
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			body := decode[ErrorBody](t, rec)
			if body.Code != CodeInvalidEntry || body.Field != tt.field {
				t.Fatalf("body = %+v", body)
			}
		})
	}
	if f.store.Len() != 3 {
		t.Fatalf("rejected entries were written: rows = %d", f.store.Len())
	}
}

func TestCreateEntryStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailAppends(errors.New("quota exceeded"))
	rec := f.do(t, entryRequest(`{"kind":"expense","amount":"5","category":"Food"}`, true))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, entryRequest(`{"kind":`, true))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/nothing")
	if rec.Code != http.StatusNotFound || decode[ErrorBody](t, rec).Code != CodeNotFound {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimited(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(":0", Deps{Ledger: f.ledger, Metrics: f.metrics, RateLimitPerMinute: 2})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
		req.RemoteAddr = "198.51.100.7:1000"
		last = httptest.NewRecorder()
		srv.Handler.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests || last.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d", last.Code)
	}
}

func TestRouteMetrics(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/api/report?month=2024-03")
	f.get(t, "/nothing")

	rec := f.get(t, "/metrics")
	b, _ := io.ReadAll(rec.Body)
	body := string(b)
	for _, want := range []string{`route="/api/report"`, `route="unmatched"`, "ledger_cache_events_total"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}
