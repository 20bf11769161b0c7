package workbook

import (
	"sort"
	"strings"
	"time"
)

// Month columns are recognized by name: any column header that parses as a
// calendar date is a forecast month, everything else is a dimension or
// identifier column. Day-first formats come first because the workbook is
// maintained in a Brazilian locale.
var monthFormats = []string{
	"02/01/2006",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseMonth tries the locale format chain against a column name or a
// permitted-months token.
func ParseMonth(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range monthFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ColumnSet is the partition of a sheet's columns computed once at load
// time, so consumers never re-parse column names ad hoc.
type ColumnSet struct {
	Dimensions []string
	Months     []string
}

// Classify splits column names into dimensions and months, preserving the
// sheet's column order within each group.
func Classify(names []string) ColumnSet {
	var cs ColumnSet
	for _, name := range names {
		if _, ok := ParseMonth(name); ok {
			cs.Months = append(cs.Months, name)
		} else {
			cs.Dimensions = append(cs.Dimensions, name)
		}
	}
	return cs
}

// MonthKey normalizes a month column name or token to its ISO form, which is
// the canonical representation used for deduplication and for the Controle
// sheet.
func MonthKey(s string) (string, bool) {
	t, ok := ParseMonth(s)
	if !ok {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// ParsePermittedMonths splits the semicolon-joined Controle cell into a
// sorted set of ISO month keys. The same calendar date serialized two
// different ways must collapse to one entry; skipping the dedup here
// double-counts months downstream.
func ParsePermittedMonths(cell string) []string {
	seen := make(map[string]bool)
	var months []string
	for _, token := range strings.Split(cell, ";") {
		key, ok := MonthKey(token)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		months = append(months, key)
	}
	sort.Strings(months)
	return months
}

// FormatPermittedMonths serializes month keys back into the Controle cell
// form, normalizing and deduplicating on the way out as well.
func FormatPermittedMonths(months []string) string {
	return strings.Join(ParsePermittedMonths(strings.Join(months, ";")), ";")
}
