package table

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeHeader_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "domain", want: "domain"},
		{in: "  Domain  ", want: "domain"},
		{in: "System Instruction", want: "system_instruction"},
		{in: "SYSTEM \t  INSTRUCTION", want: "system_instruction"},
		{in: "conversation json", want: "conversation_json"},
		{in: "Target_System_Instruction", want: "target_system_instruction"},
		{in: "", want: ""},
		{in: "   ", want: ""},
	}

	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Fatalf("NormalizeHeader(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeHeaders_PreservesOrderAndDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := Table{
		Columns: []string{" Scenario", "DOMAIN ", "System  Instruction", "Conversation"},
		Rows:    [][]string{{"s", "travel", "be nice", "[]"}},
	}
	orig := append([]string(nil), in.Columns...)

	out := NormalizeHeaders(in)

	want := []string{"scenario", "domain", "system_instruction", "conversation"}
	if !reflect.DeepEqual(out.Columns, want) {
		t.Fatalf("columns=%v want %v", out.Columns, want)
	}
	if !reflect.DeepEqual(in.Columns, orig) {
		t.Fatalf("input columns mutated: %v", in.Columns)
	}
	if !reflect.DeepEqual(out.Rows, in.Rows) {
		t.Fatalf("rows changed: %v", out.Rows)
	}
}

func TestRequireColumns(t *testing.T) {
	t.Parallel()

	tb := Table{Columns: []string{"domain", "scenario"}}

	if err := RequireColumns(tb, "domain"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	err := RequireColumns(tb, "domain", "system_instruction", "conversation")
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SchemaError, got %T (%v)", err, err)
	}
	if !reflect.DeepEqual(se.Missing, []string{"system_instruction", "conversation"}) {
		t.Fatalf("missing=%v", se.Missing)
	}
	if !strings.Contains(err.Error(), "system_instruction, conversation") {
		t.Fatalf("message=%q", err.Error())
	}
}

func TestReadCSV_BOMRaggedAndQuoted(t *testing.T) {
	t.Parallel()

	src := "\uFEFFdomain,scenario,conversation\n" +
		"travel,\"book, a flight\",\"[{\"\"role\"\": \"\"user\"\"}]\"\n" +
		"insurance\n" +
		"a,b,c,d\n"

	tb, err := ReadCSV(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if !reflect.DeepEqual(tb.Columns, []string{"domain", "scenario", "conversation"}) {
		t.Fatalf("columns=%q", tb.Columns)
	}
	if tb.Len() != 3 {
		t.Fatalf("rows=%d want 3", tb.Len())
	}
	if got, _ := tb.Get(0, "scenario"); got != "book, a flight" {
		t.Fatalf("scenario=%q", got)
	}
	if got, _ := tb.Get(0, "conversation"); got != `[{"role": "user"}]` {
		t.Fatalf("conversation=%q", got)
	}
	if got, ok := tb.Get(1, "conversation"); !ok || got != "" {
		t.Fatalf("padded cell=%q ok=%v", got, ok)
	}
	if len(tb.Rows[2]) != 3 {
		t.Fatalf("long row not truncated: %v", tb.Rows[2])
	}
	if _, ok := tb.Get(0, "nope"); ok {
		t.Fatalf("expected ok=false for unknown column")
	}
}

func TestReadCSV_Empty(t *testing.T) {
	t.Parallel()

	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("err=%v want ErrNoHeader", err)
	}

	tb, err := ReadCSV(strings.NewReader("a,b\n"))
	if err != nil {
		t.Fatalf("header-only: %v", err)
	}
	if tb.Len() != 0 || len(tb.Columns) != 2 {
		t.Fatalf("unexpected table: %+v", tb)
	}
}

func TestWriteFileAtomic_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.csv")

	in := Table{
		Columns: []string{"a", "b"},
		Rows:    [][]string{{"1", "multi\nline"}, {"x,y", `"q"`}},
	}
	if err := WriteFileAtomic(path, in); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\n got=%#v\nwant=%#v", got, in)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteCSV_HeaderFirst(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, Table{Columns: []string{"x"}, Rows: [][]string{{"1"}}}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if buf.String() != "x\n1\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestRowMap(t *testing.T) {
	t.Parallel()

	tb := Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1"}}}
	m := tb.RowMap(0)
	if m["a"] != "1" || m["b"] != "" || len(m) != 2 {
		t.Fatalf("RowMap=%v", m)
	}
}
