package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"dailyledger/internal/core"
	"dailyledger/internal/ledger"
	"dailyledger/internal/parse"
)

func TestParseQuery(t *testing.T) {
	dates := parse.NewDateParser(parse.DefaultDateLayouts)
	def := ledger.Query{Start: core.NewDate(2024, 3, 1), End: core.NewDate(2024, 3, 31)}

	tests := []struct {
		name      string
		raw       string
		start     core.Date
		end       core.Date
		kinds     []core.Kind
		breakdown core.Kind
		wantErr   error
	}{
		{name: "defaults", raw: "", start: def.Start, end: def.End},
		{name: "explicit range", raw: "start=2024-01-05&end=2024-01-20", start: core.NewDate(2024, 1, 5), end: core.NewDate(2024, 1, 20)},
		{name: "month", raw: "month=2023-12", start: core.NewDate(2023, 12, 1), end: core.NewDate(2023, 12, 31)},
		{name: "month then end override", raw: "month=2024-01&end=2024-01-10", start: core.NewDate(2024, 1, 1), end: core.NewDate(2024, 1, 10)},
		{name: "kinds", raw: "kind=expense,Income", start: def.Start, end: def.End, kinds: []core.Kind{core.Expense, core.Income}},
		{name: "breakdown", raw: "breakdown=income", start: def.Start, end: def.End, breakdown: core.Income},
		{name: "inverted", raw: "start=2024-03-10&end=2024-03-01", wantErr: core.ErrInvertedRange},
		{name: "empty start", raw: "start=", wantErr: core.ErrUnresolvedBound},
		{name: "bad kind", raw: "kind=transfer", wantErr: core.ErrUnknownKind},
		{name: "bad breakdown", raw: "breakdown=x", wantErr: core.ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.raw)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			q, err := ParseQuery(values, def, dates)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !core.IsValidation(err) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Start != tt.start || q.End != tt.end {
				t.Fatalf("range = %s..%s", q.Start, q.End)
			}
			if len(q.Kinds) != len(tt.kinds) {
				t.Fatalf("kinds = %v", q.Kinds)
			}
			for i := range tt.kinds {
				if q.Kinds[i] != tt.kinds[i] {
					t.Fatalf("kinds = %v", q.Kinds)
				}
			}
			if q.BreakdownKind != tt.breakdown {
				t.Fatalf("breakdown = %q", q.BreakdownKind)
			}
		})
	}
}

func newParser(t *testing.T, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader(body))
	p := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestRequestBodyParser(t *testing.T) {
	p := newParser(t, `{"amount": 12.5, "remarks": "  bus\u0000 fare ", "paid": true}`)
	if !p.IsJSON() {
		t.Fatal("expected JSON body")
	}
	if got := p.Get("amount"); got != "12.5" {
		t.Fatalf("amount = %q", got)
	}
	if got := p.Get("remarks"); got != "bus fare" {
		t.Fatalf("remarks = %q", got)
	}
	if got := p.Get("paid"); got != "true" {
		t.Fatalf("paid = %q", got)
	}
	if got := p.Get("missing"); got != "" {
		t.Fatalf("missing = %q", got)
	}

	p = newParser(t, "kind=expense&category=Food")
	if p.IsJSON() || p.Get("category") != "Food" {
		t.Fatalf("form parse failed: %v", p.Get("category"))
	}
}

func TestRequestBodyParserRejectsOversizedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader(strings.Repeat("a", maxBodyBytes+1)))
	p := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := p.Parse(); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

func TestParseEntry(t *testing.T) {
	dates := parse.NewDateParser(parse.DefaultDateLayouts)
	amounts := parse.NewAmountParser(parse.DefaultCurrencyMarkers)
	today := core.NewDate(2024, 3, 18)

	e, err := ParseEntry(newParser(t, `{"kind":"Expense","amount":"Rs. 1,200.50","category":"Food","location":"Kandy"}`), today, dates, amounts)
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	if e.Kind != core.Expense || !e.Amount.Equal(decimal.RequireFromString("1200.50")) || e.Date != today || e.Location != "Kandy" {
		t.Fatalf("entry = %+v", e)
	}

	e, err = ParseEntry(newParser(t, `{"kind":"income","amount":"10","date":"2024-03-02"}`), today, dates, amounts)
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	if e.Date != core.NewDate(2024, 3, 2) {
		t.Fatalf("date = %s", e.Date)
	}

	e, err = ParseEntry(newParser(t, `{"kind":"income","amount":"10","date":"whenever"}`), today, dates, amounts)
	if err != nil || e.Date.Resolved() {
		t.Fatalf("unparseable date should stay unresolved: %+v, %v", e, err)
	}

	for _, body := range []string{
		`{"kind":"expense","amount":"-10"}`,
		`{"kind":"expense","amount":"abc"}`,
		`{"kind":"expense"}`,
		`{"kind":"expense","amount":"12-5"}`,
		`{"kind":"expense","amount":"1e3"}`,
		`{"kind":"expense","amount":"abc7"}`,
		`{"kind":"expense","amount":"1,5"}`,
		`{"kind":"expense","amount":"10.005"}`,
	} {
		if _, err := ParseEntry(newParser(t, body), today, dates, amounts); !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("%s: err = %v", body, err)
		}
	}
	if _, err := ParseEntry(newParser(t, `{"kind":"loan","amount":"1"}`), today, dates, amounts); !errors.Is(err, core.ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}
}
