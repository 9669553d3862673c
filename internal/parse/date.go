package parse

import (
	"strings"
	"time"

	"dailyledger/internal/core"
)

// DefaultDateLayouts is the accepted format list, highest priority first.
// ISO comes first because new rows are written that way; the day-first
// layouts cover rows typed by hand into the sheet.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
}

// DateParser resolves date cells against an ordered layout list.
type DateParser struct {
	layouts []string
}

func NewDateParser(layouts []string) *DateParser {
	ls := make([]string, 0, len(layouts))
	for _, l := range layouts {
		if l = strings.TrimSpace(l); l != "" {
			ls = append(ls, l)
		}
	}
	return &DateParser{layouts: ls}
}

// Layouts returns a copy of the configured layouts in priority order.
func (p *DateParser) Layouts() []string {
	return append([]string(nil), p.layouts...)
}

// Parse returns the date produced by the first layout that accepts raw, or the
// unresolved zero Date. It never substitutes the current date.
func (p *DateParser) Parse(raw string) core.Date {
	s := strings.TrimSpace(raw)
	if s == "" {
		return core.Date{}
	}
	for _, layout := range p.layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return core.DateOf(t)
	}
	return core.Date{}
}
