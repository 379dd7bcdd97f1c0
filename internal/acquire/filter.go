// Package acquire narrows a labeled corpus export down to the domains the
// annotation project works on.
package acquire

import (
	"strings"

	"distractors/internal/table"
)

// DefaultDomains is the allow-list used when none is given.
var DefaultDomains = []string{"insurance", "real estate", "travel"}

// FilterDomains keeps the rows of t whose trimmed "domain" value is in
// allow. Headers are normalized first; column and row order are preserved.
// A *table.SchemaError is returned when there is no domain column.
func FilterDomains(t table.Table, allow []string) (table.Table, error) {
	t = table.NormalizeHeaders(t)
	if err := table.RequireColumns(t, "domain"); err != nil {
		return table.Table{}, err
	}
	if len(allow) == 0 {
		allow = DefaultDomains
	}
	set := make(map[string]struct{}, len(allow))
	for _, d := range allow {
		set[strings.TrimSpace(d)] = struct{}{}
	}

	di := t.Index("domain")
	out := table.Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if di >= len(row) {
			continue
		}
		if _, ok := set[strings.TrimSpace(row[di])]; ok {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// ParseDomains splits a comma-separated allow-list, dropping blanks.
func ParseDomains(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
