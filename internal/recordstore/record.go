package recordstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"distractors/internal/conversation"
	"distractors/internal/table"
)

// Column names of a persisted distractor record.
const (
	ColTimestamp         = "timestamp"
	ColDomain            = "domain"
	ColScenario          = "scenario"
	ColSystemInstruction = "system_instruction"
	ColConversationJSON  = "conversation_json"
	ColDistractor        = "distractor"
)

// Columns is the fixed header of every per-domain file.
var Columns = []string{
	ColTimestamp,
	ColDomain,
	ColScenario,
	ColSystemInstruction,
	ColConversationJSON,
	ColDistractor,
}

// Record is one human-authored distractor attached to a source example.
type Record struct {
	Timestamp         string
	Domain            string
	Scenario          string
	SystemInstruction string
	ConversationJSON  string
	Distractor        string
}

// NewRecord builds a record from a normalized source row.
//
// The source conversation is parsed and stored in its canonical JSON form,
// the distractor is trimmed and a blank domain becomes UnknownDomain.
func NewRecord(src map[string]string, distractor string, now time.Time) (Record, error) {
	conv, err := conversation.Parse(src["conversation"]).JSON()
	if err != nil {
		return Record{}, fmt.Errorf("encode conversation: %w", err)
	}
	domain := strings.TrimSpace(src["domain"])
	if domain == "" {
		domain = UnknownDomain
	}
	return Record{
		Timestamp:         now.UTC().Format(time.RFC3339Nano),
		Domain:            domain,
		Scenario:          src["scenario"],
		SystemInstruction: src["system_instruction"],
		ConversationJSON:  conv,
		Distractor:        strings.TrimSpace(distractor),
	}, nil
}

// Map returns the record keyed by column name.
func (r Record) Map() map[string]string {
	return map[string]string{
		ColTimestamp:         r.Timestamp,
		ColDomain:            r.Domain,
		ColScenario:          r.Scenario,
		ColSystemInstruction: r.SystemInstruction,
		ColConversationJSON:  r.ConversationJSON,
		ColDistractor:        r.Distractor,
	}
}

// Values returns the record in Columns order.
func (r Record) Values() []string {
	return []string{r.Timestamp, r.Domain, r.Scenario, r.SystemInstruction, r.ConversationJSON, r.Distractor}
}

// RecordFromMap is the inverse of Map. Absent keys become empty fields.
func RecordFromMap(m map[string]string) Record {
	return Record{
		Timestamp:         m[ColTimestamp],
		Domain:            m[ColDomain],
		Scenario:          m[ColScenario],
		SystemInstruction: m[ColSystemInstruction],
		ConversationJSON:  m[ColConversationJSON],
		Distractor:        m[ColDistractor],
	}
}

// AppendRecord appends r to its domain file under dir and returns the path.
func AppendRecord(dir string, r Record) (string, error) {
	path := DomainPath(dir, r.Domain)
	if err := Append(path, r.Map(), Columns); err != nil {
		return "", err
	}
	return path, nil
}

// RowHash is a stable identity for r: lowercase hex SHA-256 over
// "column=value" pairs in Columns order, joined by the ASCII unit separator.
func RowHash(r Record) string {
	vals := r.Values()

	var b strings.Builder
	b.Grow(len(Columns) * 32)
	for i, c := range Columns {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(vals[i])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ReadDir loads every *.csv file in dir, keyed by file name without the
// extension. Headers are normalized, so files written by hand with
// "Conversation JSON" style headers are read too.
func ReadDir(dir string) (map[string][]Record, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(paths)

	out := make(map[string][]Record, len(paths))
	for _, p := range paths {
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			continue
		}
		t, err := table.ReadFile(p)
		if err != nil {
			return nil, err
		}
		t = table.NormalizeHeaders(t)

		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		recs := make([]Record, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			recs = append(recs, RecordFromMap(t.RowMap(i)))
		}
		out[name] = recs
	}
	return out, nil
}
