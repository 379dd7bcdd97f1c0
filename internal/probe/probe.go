// Package probe inspects a CSV dataset before it is fed to annotation or
// combination: which required columns are missing, how domains are spread,
// whether conversations parse into turns, and how unique each column is.
package probe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"distractors/internal/combine"
	"distractors/internal/conversation"
	"distractors/internal/session"
	"distractors/internal/table"
)

// Consumers names the tools whose input requirements are checked.
var Consumers = map[string][]string{
	"annotate": session.RequiredColumns,
	"combine":  {combine.ColConversationJSON, combine.ColDistractors},
}

// Options bounds an inspection.
type Options struct {
	// MaxRows limits how many data rows are sampled; 0 means all.
	MaxRows int
}

// ConsumerCheck lists the columns a consumer needs but the table lacks.
type ConsumerCheck struct {
	Name    string
	Missing []string
}

// OK reports whether the consumer can read the table.
func (c ConsumerCheck) OK() bool { return len(c.Missing) == 0 }

// ConversationStats classifies the cells of the conversation column.
type ConversationStats struct {
	Column     string
	Structured int
	Raw        int
	Empty      int
}

// Report is the result of Inspect.
type Report struct {
	Rows      int
	Sampled   int
	Columns   []string
	Consumers []ConsumerCheck
	// Domains counts trimmed domain values; blank values count as "unknown".
	Domains      map[string]int
	Conversation *ConversationStats
	Uniqueness   Uniqueness
}

// Consumer returns the check for name.
func (r Report) Consumer(name string) (ConsumerCheck, bool) {
	for _, c := range r.Consumers {
		if c.Name == name {
			return c, true
		}
	}
	return ConsumerCheck{}, false
}

// InspectFile reads path and inspects it.
func InspectFile(path string, opt Options) (Report, error) {
	t, err := table.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	return Inspect(t, opt), nil
}

// Inspect normalizes t's headers and reports on the first opt.MaxRows rows.
func Inspect(t table.Table, opt Options) Report {
	t = table.NormalizeHeaders(t)

	rows := t.Rows
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		rows = rows[:opt.MaxRows]
	}
	sample := table.Table{Columns: t.Columns, Rows: rows}

	r := Report{
		Rows:       t.Len(),
		Sampled:    sample.Len(),
		Columns:    append([]string(nil), t.Columns...),
		Uniqueness: computeUniqueness(sample.Rows, sample.Columns),
	}

	names := make([]string, 0, len(Consumers))
	for n := range Consumers {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		check := ConsumerCheck{Name: n}
		var se *table.SchemaError
		if err := table.RequireColumns(t, Consumers[n]...); errors.As(err, &se) {
			check.Missing = se.Missing
		}
		r.Consumers = append(r.Consumers, check)
	}

	if di := sample.Index("domain"); di >= 0 {
		r.Domains = map[string]int{}
		for _, row := range sample.Rows {
			d := strings.TrimSpace(row[di])
			if d == "" {
				d = "unknown"
			}
			r.Domains[d]++
		}
	}

	for _, col := range []string{"conversation", combine.ColConversationJSON} {
		ci := sample.Index(col)
		if ci < 0 {
			continue
		}
		cs := &ConversationStats{Column: col}
		for _, row := range sample.Rows {
			cell := row[ci]
			switch {
			case strings.TrimSpace(cell) == "":
				cs.Empty++
			case isStructured(cell):
				cs.Structured++
			default:
				cs.Raw++
			}
		}
		r.Conversation = cs
		break
	}
	return r
}

func isStructured(cell string) bool {
	_, ok := conversation.Parse(cell).Turns()
	return ok
}

// Format renders r as a plain-text report.
func Format(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows=%d sampled=%d columns=%s\n", r.Rows, r.Sampled, strings.Join(r.Columns, ","))

	for _, c := range r.Consumers {
		if c.OK() {
			fmt.Fprintf(&b, "%s: ok\n", c.Name)
			continue
		}
		fmt.Fprintf(&b, "%s: missing %s\n", c.Name, strings.Join(c.Missing, ", "))
	}

	if r.Domains != nil {
		keys := make([]string, 0, len(r.Domains))
		for k := range r.Domains {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("domains:")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%d", k, r.Domains[k])
		}
		b.WriteString("\n")
	}

	if cs := r.Conversation; cs != nil {
		fmt.Fprintf(&b, "%s: structured=%d raw=%d empty=%d\n", cs.Column, cs.Structured, cs.Raw, cs.Empty)
	}

	b.WriteString(formatUniqueness(r.Uniqueness))
	return b.String()
}
