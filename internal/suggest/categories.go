package suggest

import (
	"sort"
	"strings"
)

// DefaultPlaceType is used when no category translates to a place type
const DefaultPlaceType = "tourist_attraction"

// DefaultMinScore is the weight a category must exceed to be used
const DefaultMinScore = 0.1

// defaultCategoryTable maps interest categories to place types
var defaultCategoryTable = map[string]string{
	"historical site": "tourist_attraction",
	"historical_site": "tourist_attraction",
	"gastronomy":      "restaurant",
	"restaurant":      "restaurant",
	"nature park":     "park",
	"nature_park":     "park",
	"museum":          "museum",
	"shopping":        "shopping_mall",
	"nightlife":       "night_club",
	"adventure":       "amusement_park",
	"family":          "zoo",
	"relaxation":      "spa",
	"cafe":            "cafe",
	"lodging":         "lodging",
	"beach":           "natural_feature",
}

// Translator maps interest categories to place types
type Translator struct {
	table map[string]string
	keys  []string
}

// NewTranslator builds a translator over table, or the built-in table when
// table is nil. Keys are matched case-insensitively.
func NewTranslator(table map[string]string) *Translator {
	if table == nil {
		table = defaultCategoryTable
	}
	t := &Translator{table: make(map[string]string, len(table))}
	for k, v := range table {
		key := strings.ToLower(strings.TrimSpace(k))
		t.table[key] = v
		t.keys = append(t.keys, key)
	}
	sort.Strings(t.keys)
	return t
}

var defaultTranslator = NewTranslator(nil)

// Categories returns the known interest categories in sorted order
func (t *Translator) Categories() []string {
	return append([]string(nil), t.keys...)
}

// UnsupportedTypes returns the sorted place types in the table that
// supported rejects
func (t *Translator) UnsupportedTypes(supported func(placeType string) bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, pt := range t.table {
		if seen[pt] || supported(pt) {
			continue
		}
		seen[pt] = true
		out = append(out, pt)
	}
	sort.Strings(out)
	return out
}

func (t *Translator) lookup(category string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return "", false
	}
	if pt, ok := t.table[c]; ok {
		return pt, true
	}
	for _, key := range t.keys {
		if strings.Contains(c, key) || strings.Contains(key, c) {
			return t.table[key], true
		}
	}
	return "", false
}

// Translate returns the sorted, duplicate-free place types for categories.
// Unknown categories are dropped; if nothing matches the result is
// DefaultPlaceType alone.
func (t *Translator) Translate(categories []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range categories {
		pt, ok := t.lookup(c)
		if !ok || seen[pt] {
			continue
		}
		seen[pt] = true
		out = append(out, pt)
	}
	if len(out) == 0 {
		return []string{DefaultPlaceType}
	}
	sort.Strings(out)
	return out
}

// TranslateWeights translates the categories whose weight exceeds minScore
func (t *Translator) TranslateWeights(weights map[string]float64, minScore float64) []string {
	var categories []string
	for c, w := range weights {
		if w > minScore {
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	return t.Translate(categories)
}
