// Package conversation normalises conversation fields coming from
// heterogeneous dataset exports into an ordered sequence of turns.
//
// A conversation may arrive as structured data, as JSON text, or as a
// Python-repr-like string using single quotes. Parse tries each shape in a
// fixed order and falls back to passing the original value through untouched,
// so one malformed field never fails a whole batch.
package conversation

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Value is the result of Parse: either a structured sequence or the raw,
// unparseable original.
//
// Structured items are kept as their JSON encoding so that key order and
// numeric literals survive persistence unchanged.
type Value struct {
	structured bool
	items      []json.RawMessage
	raw        any
}

// Structured reports whether the value parsed into a sequence.
func (v Value) Structured() bool { return v.structured }

// Raw returns the original value for the passthrough case, nil otherwise.
func (v Value) Raw() any {
	if v.structured {
		return nil
	}
	return v.raw
}

// Len is the number of items in a structured value (0 for raw).
func (v Value) Len() int { return len(v.items) }

// Items returns the JSON encoding of each sequence element.
func (v Value) Items() []json.RawMessage { return v.items }

// Turns decodes the sequence into turns. ok is false for raw values and for
// sequences containing anything other than objects carrying both "role" and
// "content".
func (v Value) Turns() ([]Turn, bool) {
	if !v.structured {
		return nil, false
	}
	out := make([]Turn, 0, len(v.items))
	for _, it := range v.items {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(it, &m); err != nil || m == nil {
			return nil, false
		}
		role, ok := m["role"]
		if !ok {
			return nil, false
		}
		content, ok := m["content"]
		if !ok {
			return nil, false
		}
		out = append(out, Turn{Role: scalarText(role), Content: scalarText(content)})
	}
	return out, true
}

// JSON returns the canonical persisted form: a compact JSON array of the
// sequence items, or the JSON encoding of the raw value.
func (v Value) JSON() (string, error) {
	if v.structured {
		if len(v.items) == 0 {
			return "[]", nil
		}
		return marshal(v.items)
	}
	return marshal(v.raw)
}

// DisplayRole maps a stored role onto the two roles a chat view can show.
// Anything other than "assistant" (case-insensitive) is shown as "user".
func DisplayRole(role string) string {
	if strings.EqualFold(role, "assistant") {
		return "assistant"
	}
	return "user"
}

// Parse converts a conversation field of unknown shape into a Value.
//
// Resolution order, first success wins:
//  1. a sequence whose elements are all mappings is kept as is;
//  2. blank text is an empty sequence;
//  3. strict JSON: an array is kept, a single object becomes a one-element
//     sequence;
//  4. text with single quotes and no double quotes is retried with every
//     single quote replaced by a double quote;
//  5. anything else passes through as raw.
//
// Parse never fails.
func Parse(in any) Value {
	switch x := in.(type) {
	case Value:
		return x
	case []Turn:
		return fromElements(in, len(x), func(i int) any { return x[i] })
	case []map[string]any:
		return fromElements(in, len(x), func(i int) any { return x[i] })
	case []any:
		for _, e := range x {
			if _, ok := e.(map[string]any); !ok {
				return rawValue(in)
			}
		}
		return fromElements(in, len(x), func(i int) any { return x[i] })
	case string:
		return parseText(x, in)
	case []byte:
		return parseText(string(x), in)
	case json.RawMessage:
		return parseText(string(x), in)
	default:
		return rawValue(in)
	}
}

func fromElements(orig any, n int, at func(i int) any) Value {
	items := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		b, err := marshalBytes(at(i))
		if err != nil {
			return rawValue(orig)
		}
		items = append(items, b)
	}
	return Value{structured: true, items: items}
}

func parseText(s string, orig any) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{structured: true, items: []json.RawMessage{}}
	}

	if items, ok := decodeSequence(s); ok {
		return Value{structured: true, items: items}
	}

	// Python-literal style: only when there is no double quote at all, since a
	// mix of both quote styles makes the delimiters ambiguous.
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		if items, ok := decodeSequence(strings.ReplaceAll(s, "'", `"`)); ok {
			return Value{structured: true, items: items}
		}
	}

	return rawValue(orig)
}

func decodeSequence(s string) ([]json.RawMessage, bool) {
	b := []byte(s)
	if !json.Valid(b) {
		return nil, false
	}
	switch b[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, false
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		return items, true
	case '{':
		return []json.RawMessage{json.RawMessage(b)}, true
	default:
		return nil, false
	}
}

func rawValue(v any) Value { return Value{raw: v} }

// scalarText renders a JSON value as display text: strings unquoted, null as
// empty, everything else as its JSON literal.
func scalarText(b json.RawMessage) string {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}

func marshal(v any) (string, error) {
	b, err := marshalBytes(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// marshalBytes is json.Marshal without HTML escaping, so conversation text
// stays readable in CSV exports.
func marshalBytes(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
