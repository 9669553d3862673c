package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"dailyledger/internal/auth"
	"dailyledger/internal/core"
	"dailyledger/internal/ledger"
	"dailyledger/internal/parse"
	"dailyledger/internal/schema"
)

// Schema is everything about the sheet layout and its vocabulary that can
// change without a code change. Map keys are canonical field or kind names.
type Schema struct {
	Synonyms            map[string][]string `toml:"synonyms"`
	KindLabels          map[string][]string `toml:"kind_labels"`
	KindDisplay         map[string]string   `toml:"kind_display"`
	Categories          map[string][]string `toml:"categories"`
	PaymentMethods      []string            `toml:"payment_methods"`
	IncomePaymentMethod string              `toml:"income_payment_method"`
	CurrencyMarkers     []string            `toml:"currency_markers"`
	DateLayouts         []string            `toml:"date_layouts"`
	Columns             []ColumnConfig      `toml:"columns"`
	StoreHeader         []string            `toml:"store_header"`
	Uncategorized       string              `toml:"uncategorized"`
	CurrencyPrefix      string              `toml:"currency_prefix"`
	ZeroPlaceholder     string              `toml:"zero_placeholder"`
	Users               []UserConfig        `toml:"users"`
}

type ColumnConfig struct {
	Field string `toml:"field"`
	Label string `toml:"label"`
}

type UserConfig struct {
	Username     string `toml:"username"`
	DisplayName  string `toml:"display_name"`
	PasswordHash string `toml:"password_hash"`
}

// DefaultSchema reproduces the original Sinhala sheet.
func DefaultSchema() Schema {
	syn := schema.DefaultSynonyms()
	s := Schema{
		Synonyms:   make(map[string][]string, len(syn)),
		KindLabels: make(map[string][]string),
		Categories: map[string][]string{
			string(core.Expense): {
				"ආහාර වියදම්", "ගමන් වියදම්", "බිල්පත් ගෙවීම්",
				"අත්‍යාවශ්‍ය ද්‍රව්‍ය", "වාහන නඩත්තු", "රෝහල් වියදම්", "වෙනත්",
			},
			string(core.Income): {"Salary", "Bata", "Rent Income", "Other"},
		},
		PaymentMethods:      []string{"Cash", "Card", "Online Transfer"},
		IncomePaymentMethod: "Bank/Cash",
		CurrencyMarkers:     append([]string(nil), parse.DefaultCurrencyMarkers...),
		DateLayouts:         append([]string(nil), parse.DefaultDateLayouts...),
		StoreHeader:         []string{"දිනය", "නම", "වර්ගය", "කාණ්ඩය", "මුදල", "ගෙවූ ක්‍රමය", "බිල් අංකය", "ස්ථානය", "සටහන්"},
		Uncategorized:       ledger.DefaultUncategorized,
		Users: []UserConfig{
			{Username: "dileepa", DisplayName: "Mr. Dileepa"},
			{Username: "nilupa", DisplayName: "Mrs. Nilupa"},
		},
	}
	for f, names := range syn {
		s.Synonyms[string(f)] = names
	}
	for k, labels := range ledger.DefaultKindLabels() {
		s.KindLabels[string(k)] = labels
	}
	f := ledger.DefaultFormat()
	s.CurrencyPrefix = f.CurrencyPrefix
	s.ZeroPlaceholder = f.ZeroPlaceholder
	s.KindDisplay = make(map[string]string, len(f.KindLabels))
	for k, v := range f.KindLabels {
		s.KindDisplay[string(k)] = v
	}
	for _, c := range ledger.DefaultColumns() {
		s.Columns = append(s.Columns, ColumnConfig{Field: string(c.Field), Label: c.Label})
	}
	return s
}

// LoadSchemaFile reads a TOML schema. Sections left out of the file keep
// their defaults; a section that is present replaces the default wholesale.
func LoadSchemaFile(path string) (Schema, error) {
	var file Schema
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Schema{}, fmt.Errorf("read schema file %s: %w", path, err)
	}
	s := DefaultSchema()
	if file.Synonyms != nil {
		s.Synonyms = file.Synonyms
	}
	if file.KindLabels != nil {
		s.KindLabels = file.KindLabels
	}
	if file.KindDisplay != nil {
		s.KindDisplay = file.KindDisplay
	}
	if file.Categories != nil {
		s.Categories = file.Categories
	}
	if file.PaymentMethods != nil {
		s.PaymentMethods = file.PaymentMethods
	}
	if file.IncomePaymentMethod != "" {
		s.IncomePaymentMethod = file.IncomePaymentMethod
	}
	if file.CurrencyMarkers != nil {
		s.CurrencyMarkers = file.CurrencyMarkers
	}
	if file.DateLayouts != nil {
		s.DateLayouts = file.DateLayouts
	}
	if file.Columns != nil {
		s.Columns = file.Columns
	}
	if file.StoreHeader != nil {
		s.StoreHeader = file.StoreHeader
	}
	if file.Uncategorized != "" {
		s.Uncategorized = file.Uncategorized
	}
	if file.CurrencyPrefix != "" {
		s.CurrencyPrefix = file.CurrencyPrefix
	}
	if file.ZeroPlaceholder != "" {
		s.ZeroPlaceholder = file.ZeroPlaceholder
	}
	if file.Users != nil {
		s.Users = file.Users
	}
	return s, nil
}

func (s Schema) problems() []string {
	var out []string
	for name := range s.Synonyms {
		if !core.Field(name).Valid() {
			out = append(out, fmt.Sprintf("schema synonyms: unknown field '%s'", name))
		}
	}
	for _, section := range []struct {
		name string
		keys []string
	}{
		{"kind_labels", keysOf(s.KindLabels)},
		{"categories", keysOf(s.Categories)},
		{"kind_display", keysOfString(s.KindDisplay)},
	} {
		for _, k := range section.keys {
			if !core.Kind(k).Valid() {
				out = append(out, fmt.Sprintf("schema %s: unknown kind '%s'", section.name, k))
			}
		}
	}
	for _, c := range s.Columns {
		if !core.Field(c.Field).Valid() {
			out = append(out, fmt.Sprintf("schema columns: unknown field '%s'", c.Field))
		}
	}
	if len(s.DateLayouts) == 0 {
		out = append(out, "schema date_layouts: at least one layout is required")
	}
	if len(s.StoreHeader) != len(core.Fields()) {
		out = append(out, fmt.Sprintf("schema store_header: expected %d columns, got %d", len(core.Fields()), len(s.StoreHeader)))
	}
	seen := make(map[string]bool)
	for _, u := range s.Users {
		if u.Username == "" {
			out = append(out, "schema users: username is required")
			continue
		}
		if seen[u.Username] {
			out = append(out, fmt.Sprintf("schema users: duplicate username '%s'", u.Username))
		}
		seen[u.Username] = true
	}
	return out
}

func keysOf(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keysOfString(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// SynonymTable converts the synonyms section for the schema normalizer.
func (s Schema) SynonymTable() schema.Synonyms {
	out := make(schema.Synonyms, len(s.Synonyms))
	for f, names := range s.Synonyms {
		out[core.Field(f)] = names
	}
	return out
}

func (s Schema) Kinds() ledger.KindLabels {
	out := make(ledger.KindLabels, len(s.KindLabels))
	for k, labels := range s.KindLabels {
		out[core.Kind(k)] = labels
	}
	return out
}

// CategoriesFor returns the allowed categories for kind k.
func (s Schema) CategoriesFor(k core.Kind) []string {
	return s.Categories[string(k)]
}

func (s Schema) DisplayColumns() []ledger.Column {
	out := make([]ledger.Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		out = append(out, ledger.Column{Field: core.Field(c.Field), Label: c.Label})
	}
	return out
}

func (s Schema) Format() ledger.Format {
	f := ledger.Format{
		CurrencyPrefix:  s.CurrencyPrefix,
		ZeroPlaceholder: s.ZeroPlaceholder,
		KindLabels:      make(map[core.Kind]string, len(s.KindDisplay)),
	}
	for k, v := range s.KindDisplay {
		f.KindLabels[core.Kind(k)] = v
	}
	return f
}

// KindCell is the type cell written to the store for k: the first label
// configured for it, or the kind name.
func (s Schema) KindCell(k core.Kind) string {
	if labels := s.KindLabels[string(k)]; len(labels) > 0 {
		return labels[0]
	}
	return string(k)
}

func (s Schema) AuthUsers() []auth.User {
	out := make([]auth.User, 0, len(s.Users))
	for _, u := range s.Users {
		out = append(out, auth.User{Username: u.Username, DisplayName: u.DisplayName, PasswordHash: u.PasswordHash})
	}
	return out
}
