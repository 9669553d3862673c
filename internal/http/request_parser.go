// Package http serves the ledger over a JSON and CSV API.
//
// This file implements parsing of report query strings and entry bodies.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dailyledger/internal/core"
	"dailyledger/internal/ledger"
	"dailyledger/internal/parse"
)

const maxBodyBytes = 64 << 10

// ParseQuery builds a report query from URL parameters. start and end fall
// back to def; month=YYYY-MM selects a whole calendar month. Bad dates surface
// as unresolved bounds when the query is validated.
func ParseQuery(values url.Values, def ledger.Query, dates *parse.DateParser) (ledger.Query, error) {
	q := def

	if m := strings.TrimSpace(values.Get("month")); m != "" {
		t, err := time.Parse("2006-01", m)
		if err != nil {
			return q, &core.ValidationError{Field: "month", Value: m, Err: core.ErrUnresolvedBound}
		}
		q.Start, q.End = core.MonthBounds(t)
	}
	if values.Has("start") {
		q.Start = dates.Parse(values.Get("start"))
	}
	if values.Has("end") {
		q.End = dates.Parse(values.Get("end"))
	}

	for _, raw := range values["kind"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			k, err := core.ParseKind(part)
			if err != nil {
				return q, err
			}
			q.Kinds = append(q.Kinds, k)
		}
	}
	if b := strings.TrimSpace(values.Get("breakdown")); b != "" {
		k, err := core.ParseKind(b)
		if err != nil {
			return q, &core.ValidationError{Field: "breakdown", Value: b, Err: core.ErrUnknownKind}
		}
		q.BreakdownKind = k
	}
	return q, q.Validate()
}

// RequestBodyParser reads a JSON or form-encoded body once and serves its
// fields by name.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		p.err = json.Unmarshal(p.body, &p.jsonData)
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseEntry reads a submitted transaction. A missing date means today; an
// unparseable one stays unresolved and is rejected on append.
func ParseEntry(p *RequestBodyParser, today core.Date, dates *parse.DateParser, amounts *parse.AmountParser) (core.Entry, error) {
	k, err := core.ParseKind(p.Get("kind"))
	if err != nil {
		return core.Entry{}, err
	}
	amount, err := amounts.ParseSubmitted(p.Get("amount"))
	if err != nil {
		return core.Entry{}, err
	}

	e := core.Entry{
		Date:          today,
		Kind:          k,
		Category:      p.Get("category"),
		Amount:        amount,
		PaymentMethod: p.Get("payment_method"),
		BillNo:        p.Get("bill_no"),
		Location:      p.Get("location"),
		Remarks:       p.Get("remarks"),
	}
	if d := p.Get("date"); d != "" {
		e.Date = dates.Parse(d)
	}
	return e, nil
}

// sanitizeInput drops control characters other than tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
