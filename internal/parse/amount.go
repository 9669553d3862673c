// Package parse converts raw spreadsheet cells into typed values.
//
// Cell parsers never fail: malformed input falls back to a defined value and
// is reported through the ok result so callers can count it. Amounts typed
// into an entry form go through the strict ParseSubmitted instead.
package parse

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"dailyledger/internal/core"
)

// DefaultCurrencyMarkers lists the currency markers seen in historical rows.
var DefaultCurrencyMarkers = []string{"Rs.", "Rs", "රු.", "රු", "LKR"}

// AmountParser turns cells such as "Rs.3,288.00" into non-negative decimals.
type AmountParser struct {
	markers []string
}

// NewAmountParser builds a parser that strips the given currency markers
// wherever they occur. Longer markers are removed first so "Rs." wins over "Rs".
func NewAmountParser(markers []string) *AmountParser {
	ms := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			ms = append(ms, strings.ToLower(m))
		}
	}
	sort.SliceStable(ms, func(i, j int) bool { return len(ms[i]) > len(ms[j]) })
	return &AmountParser{markers: ms}
}

// Parse returns the amount rounded to two places. ok is false when a non-empty
// cell could not be read as a number; the amount is then zero. A leading minus
// is stripped like any other symbol, so the result is never negative.
func (p *AmountParser) Parse(raw string) (amount decimal.Decimal, ok bool) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, true
	}
	s := strings.ToLower(raw)
	for _, m := range p.markers {
		s = strings.ReplaceAll(s, m, "")
	}
	s = collapseDots(keepDigitsAndDots(s))
	if s == "" || s == "." {
		return decimal.Zero, false
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, false
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

var (
	plainAmount    = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
	groupedInteger = regexp.MustCompile(`^[0-9]{1,3}(,[0-9]{3})+$`)
)

// ParseSubmitted reads an amount typed into an entry form. Unlike Parse it
// never repairs its input: one currency marker may lead or trail the number,
// commas must group thousands and at most two decimals are allowed. Anything
// else is an ErrInvalidAmount validation error.
func (p *AmountParser) ParseSubmitted(raw string) (decimal.Decimal, error) {
	invalid := &core.ValidationError{Field: string(core.FieldAmount), Value: raw, Err: core.ErrInvalidAmount}

	s := strings.TrimSpace(raw)
	for _, m := range p.markers {
		if len(s) >= len(m) && strings.EqualFold(s[:len(m)], m) {
			s = strings.TrimSpace(s[len(m):])
			break
		}
	}
	for _, m := range p.markers {
		if len(s) >= len(m) && strings.EqualFold(s[len(s)-len(m):], m) {
			s = strings.TrimSpace(s[:len(s)-len(m)])
			break
		}
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if strings.Contains(whole, ",") {
		if !groupedInteger.MatchString(whole) {
			return decimal.Zero, invalid
		}
		whole = strings.ReplaceAll(whole, ",", "")
	}
	s = whole
	if hasDot {
		s += "." + frac
	}
	if !plainAmount.MatchString(s) {
		return decimal.Zero, invalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid
	}
	return d, nil
}

func keepDigitsAndDots(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// collapseDots turns any run of consecutive dots into one.
func collapseDots(s string) string {
	if !strings.Contains(s, "..") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevDot := false
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			if prevDot {
				continue
			}
			prevDot = true
		} else {
			prevDot = false
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
