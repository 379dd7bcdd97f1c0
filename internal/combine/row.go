package combine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Column names the pipeline reads or rewrites.
const (
	ColDistractors             = "distractors"
	ColConversationJSON        = "conversation_json"
	ColTargetSystemInstruction = "target_system_instruction"
)

// Candidate keys inside a distractors element.
const (
	KeyBotTurn    = "bot turn"
	KeyDistractor = "distractor"
)

// Candidate is one (bot turn, distractor) pair offered for a row.
type Candidate struct {
	BotTurn    string
	Distractor string

	// raw is the original JSON object; it is what gets written back out.
	raw json.RawMessage
}

var errNoCandidates = errors.New("empty distractors list")

// parseCandidates decodes a distractors cell. Every element must be an
// object with string "bot turn" and "distractor" members.
func parseCandidates(cell string) ([]Candidate, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(cell)), &items); err != nil {
		return nil, fmt.Errorf("decode distractors: %w", err)
	}
	if len(items) == 0 {
		return nil, errNoCandidates
	}

	out := make([]Candidate, 0, len(items))
	for i, it := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(it, &obj); err != nil || obj == nil {
			return nil, fmt.Errorf("distractors[%d]: not an object", i)
		}
		bot, err := stringMember(obj, KeyBotTurn)
		if err != nil {
			return nil, fmt.Errorf("distractors[%d]: %w", i, err)
		}
		dis, err := stringMember(obj, KeyDistractor)
		if err != nil {
			return nil, fmt.Errorf("distractors[%d]: %w", i, err)
		}
		out = append(out, Candidate{BotTurn: bot, Distractor: dis, raw: it})
	}
	return out, nil
}

func stringMember(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("missing key %q", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("key %q: not a string", key)
	}
	return s, nil
}

// singletonJSON renders [c] with two-space indentation, keeping the
// candidate's original member order.
func singletonJSON(c Candidate) (string, error) {
	src := make([]byte, 0, len(c.raw)+2)
	src = append(src, '[')
	src = append(src, c.raw...)
	src = append(src, ']')
	return indentJSON(src)
}

func indentJSON(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, src, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// reindentConversation validates a conversation_json cell and re-serializes
// it with two-space indentation.
func reindentConversation(cell string) (string, error) {
	b := []byte(strings.TrimSpace(cell))
	if !json.Valid(b) {
		return "", errors.New("conversation_json is not valid JSON")
	}
	return indentJSON(b)
}

// cleanTargetInstruction unwraps a target instruction stored as a JSON array
// of strings. Values not starting with `["` are returned unchanged.
//
// A decodable array yields its first element (an empty array leaves the
// value alone); text that looks like an array but does not decode has the
// surrounding brackets, quotes and spaces trimmed.
func cleanTargetInstruction(s string) string {
	if !strings.HasPrefix(s, `["`) {
		return s
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return strings.Trim(s, `[]"' `)
	}
	if len(arr) == 0 {
		return s
	}
	var first string
	if err := json.Unmarshal(arr[0], &first); err == nil {
		return first
	}
	return string(arr[0])
}

// processRow applies the per-row rewrite to a copy of row. The returned map
// is nil when err is non-nil.
func processRow(row map[string]string, pick Picker) (map[string]string, error) {
	dcell, ok := row[ColDistractors]
	if !ok {
		return nil, fmt.Errorf("missing column %q", ColDistractors)
	}
	cands, err := parseCandidates(dcell)
	if err != nil {
		return nil, err
	}
	chosen := cands[pick(len(cands))]

	ccell, ok := row[ColConversationJSON]
	if !ok {
		return nil, fmt.Errorf("missing column %q", ColConversationJSON)
	}
	conv, err := reindentConversation(ccell)
	if err != nil {
		return nil, err
	}
	dist, err := singletonJSON(chosen)
	if err != nil {
		return nil, fmt.Errorf("encode distractor: %w", err)
	}

	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v
	}
	out[ColDistractors] = dist
	out[ColConversationJSON] = conv
	if v, ok := row[ColTargetSystemInstruction]; ok {
		out[ColTargetSystemInstruction] = cleanTargetInstruction(v)
	}
	return out, nil
}
