package probe

import (
	"fmt"
	"sort"
	"strings"
)

const distinctCapPerColumn = 10000

// Uniqueness holds bounded distinct-count stats for a sample.
//
// Ratios use PerColumnTotal as denominator: a column only counts a row when
// it has a non-blank value there. TotalRows is informational.
type Uniqueness struct {
	TotalRows         int
	PerColumnTotal    map[string]int
	PerColumnDistinct map[string]int
	// PerColumnCapped is set once a column reaches distinctCapPerColumn
	// distinct values; counting stops there.
	PerColumnCapped map[string]bool
	ColumnOrder     []string
}

// computeUniqueness scans rows aligned with cols. Rows of the wrong width
// are skipped; blank values do not count.
func computeUniqueness(rows [][]string, cols []string) Uniqueness {
	stats := Uniqueness{
		PerColumnTotal:    make(map[string]int, len(cols)),
		PerColumnDistinct: make(map[string]int, len(cols)),
		PerColumnCapped:   make(map[string]bool, len(cols)),
		ColumnOrder:       append([]string(nil), cols...),
	}
	if len(rows) == 0 || len(cols) == 0 {
		return stats
	}

	sets := make([]map[string]struct{}, len(cols))
	for i := range sets {
		sets[i] = make(map[string]struct{})
	}

	for _, r := range rows {
		if len(r) != len(cols) {
			continue
		}
		stats.TotalRows++

		for i, col := range cols {
			v := strings.TrimSpace(r[i])
			if v == "" {
				continue
			}
			stats.PerColumnTotal[col]++

			if stats.PerColumnCapped[col] {
				continue
			}
			sets[i][v] = struct{}{}
			if len(sets[i]) >= distinctCapPerColumn {
				stats.PerColumnCapped[col] = true
				sets[i] = nil
			}
		}
	}

	for i, col := range cols {
		if stats.PerColumnCapped[col] {
			stats.PerColumnDistinct[col] = distinctCapPerColumn
			continue
		}
		stats.PerColumnDistinct[col] = len(sets[i])
	}
	return stats
}

// formatUniqueness lists columns by ascending uniqueness ratio, ties by name.
// Columns with no values are omitted.
func formatUniqueness(stats Uniqueness) string {
	if stats.TotalRows <= 0 {
		return "uniqueness: no rows sampled\n"
	}

	type row struct {
		Col    string
		Dist   int
		Den    int
		Ratio  float64
		Capped bool
	}

	rows := make([]row, 0, len(stats.ColumnOrder))
	for _, col := range stats.ColumnOrder {
		den := stats.PerColumnTotal[col]
		if den <= 0 {
			continue
		}
		d := stats.PerColumnDistinct[col]
		rows = append(rows, row{Col: col, Dist: d, Den: den, Ratio: float64(d) / float64(den), Capped: stats.PerColumnCapped[col]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Ratio == rows[j].Ratio {
			return rows[i].Col < rows[j].Col
		}
		return rows[i].Ratio < rows[j].Ratio
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\tsampled_rows=%d\n", stats.TotalRows)
	fmt.Fprintf(&b, "%-20s\t%-7s\t%-7s\tratio\tcapped\n", "col", "unique", "rows")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s\t%-7d\t%d\t%.1f%%\t%t\n", r.Col, r.Dist, r.Den, r.Ratio*100, r.Capped)
	}
	return b.String()
}
