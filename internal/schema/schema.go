// Package schema maps drifting spreadsheet headers onto canonical ledger fields.
package schema

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"dailyledger/internal/core"
)

// Synonyms lists, per canonical field, every header spelling seen across
// schema revisions.
type Synonyms map[core.Field][]string

// DefaultSynonyms covers the original Sinhala sheet and the English headers
// introduced later.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		core.FieldDate:          {"දිනය", "Date", "Day"},
		core.FieldRecordedBy:    {"නම", "Name", "User", "Recorded By", "Entered By"},
		core.FieldKind:          {"වර්ගය", "Type", "Transaction Type", "Kind"},
		core.FieldCategory:      {"කාණ්ඩය", "ආදායම් වර්ගය", "Category"},
		core.FieldAmount:        {"මුදල", "මුදල (Rs.)", "Amount", "Amount (Rs.)", "Value"},
		core.FieldPaymentMethod: {"ගෙවූ ක්‍රමය", "Payment Method", "Payment", "Method"},
		core.FieldBillNo:        {"බිල් අංකය", "Bill No", "Bill Number", "Bill #", "Receipt No"},
		core.FieldLocation:      {"ස්ථානය", "Location", "Place", "Shop"},
		core.FieldRemarks:       {"සටහන්", "Remarks", "Notes", "Note", "Comment"},
	}
}

// Mapping is the result of normalizing one header row.
type Mapping struct {
	Header  []string           // trimmed header cells, in column order
	Columns map[core.Field]int // canonical field -> column index
	Extra   []int              // columns that matched no canonical field
}

// Index returns the column for f, or -1 when the source has no such column.
func (m Mapping) Index(f core.Field) int {
	if i, ok := m.Columns[f]; ok {
		return i
	}
	return -1
}

func (m Mapping) Has(f core.Field) bool {
	_, ok := m.Columns[f]
	return ok
}

// Missing lists canonical fields absent from the source, in canonical order.
func (m Mapping) Missing() []core.Field {
	var out []core.Field
	for _, f := range core.Fields() {
		if !m.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// ExtraName is the key under which the values of pass-through column col are
// kept: its header text, or "column_N" when the header cell is blank. A name
// already used by an earlier pass-through column gets " (N)" appended, N being
// the 1-based column number.
func (m Mapping) ExtraName(col int) string {
	name := m.headerName(col)
	for _, i := range m.Extra {
		if i >= col {
			break
		}
		if m.headerName(i) == name {
			return name + " (" + strconv.Itoa(col+1) + ")"
		}
	}
	return name
}

func (m Mapping) headerName(col int) string {
	if col < len(m.Header) && m.Header[col] != "" {
		return m.Header[col]
	}
	return "column_" + strconv.Itoa(col+1)
}

// Normalizer resolves header rows. It is safe for concurrent use and its
// output depends only on the header and the synonym table.
type Normalizer struct {
	lookup map[string]core.Field
}

func NewNormalizer(syn Synonyms) *Normalizer {
	n := &Normalizer{lookup: make(map[string]core.Field)}
	// Canonical order keeps resolution deterministic when two fields share a spelling.
	for _, f := range core.Fields() {
		for _, s := range syn[f] {
			key := Fold(s)
			if key == "" {
				continue
			}
			if _, taken := n.lookup[key]; !taken {
				n.lookup[key] = f
			}
		}
		if key := Fold(string(f)); key != "" {
			if _, taken := n.lookup[key]; !taken {
				n.lookup[key] = f
			}
		}
	}
	return n
}

// Normalize maps header onto canonical fields. When two columns resolve to the
// same field the leftmost wins and the other is kept as an extra column.
func (n *Normalizer) Normalize(header []string) Mapping {
	m := Mapping{
		Header:  make([]string, len(header)),
		Columns: make(map[core.Field]int),
	}
	for i, h := range header {
		m.Header[i] = strings.TrimSpace(h)
		f, ok := n.Resolve(h)
		if !ok || m.Has(f) {
			m.Extra = append(m.Extra, i)
			continue
		}
		m.Columns[f] = i
	}
	return m
}

// Resolve returns the canonical field a single header cell refers to.
func (n *Normalizer) Resolve(header string) (core.Field, bool) {
	f, ok := n.lookup[Fold(header)]
	return f, ok
}

// Fold produces the comparison key used for headers and labels: NFC
// normalized, case folded, with whitespace trimmed and inner runs collapsed.
// Zero-width joiners are kept because Sinhala conjuncts depend on them.
func Fold(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(s)
}
