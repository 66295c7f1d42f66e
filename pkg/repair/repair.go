// Package repair turns loosely structured text returned by a generative
// inference service into a schema conformant map. Whatever the input, the
// returned value contains every expected field: data that cannot be recovered
// is replaced by an explicit sentinel and reported in the diagnostics.
package repair

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel marks a field whose data could not be recovered from the input.
const Sentinel = "[data unavailable]"

// ValidateAndRepair parses raw into a map containing exactly the expected
// fields plus any extra fields the input carried. Repair strategies are tried
// in order, each more permissive than the last; the first one that yields a
// parseable object wins. Missing fields are then filled with Sentinel and
// recorded as "missing: <field>" diagnostics, so the result is structurally
// complete and ok is always true.
//
// The function is deterministic: identical (raw, expectedFields) inputs yield
// identical outputs, and re-running it on its own successful output yields the
// same value with no diagnostics.
func ValidateAndRepair(raw string, expectedFields []string) (bool, map[string]string, []string) {
	diagnostics := []string{}

	parsed := parseWithStrategies(raw, expectedFields)

	value := make(map[string]string, len(expectedFields))
	for k, v := range parsed {
		value[k] = v
	}

	for _, field := range expectedFields {
		v, present := value[field]
		switch {
		case !present:
			value[field] = Sentinel
			diagnostics = append(diagnostics, "missing: "+field)
		case strings.TrimSpace(v) == "":
			value[field] = Sentinel
			diagnostics = append(diagnostics, "empty: "+field)
		}
	}

	return true, value, diagnostics
}

// parseWithStrategies runs the ordered strategy chain and returns the first
// successfully parsed object, or an empty map when nothing could be recovered.
func parseWithStrategies(raw string, expectedFields []string) map[string]string {
	stripped := stripWrapper(raw)

	// Fast path: direct structured parse.
	if m, ok := tryParse(stripped); ok {
		return m
	}

	// Normalization: quote bare keys, escape interior quotes.
	normalized := Normalize(stripped)
	if m, ok := tryParse(normalized); ok {
		return m
	}

	// Classified repair of an unterminated string at the failure position.
	if m, ok := repairUnterminated(normalized); ok {
		return m
	}

	// Independent per-field extraction, accepted at half recovery or better.
	// Tried against the pre-normalization text first: normalization escapes
	// quotes it cannot place, which would hide fields from the per-field
	// patterns.
	if m, ok := extractFields(stripped, expectedFields); ok {
		return m
	}
	if m, ok := extractFields(normalized, expectedFields); ok {
		return m
	}

	return map[string]string{}
}

// stripWrapper removes fenced-block markers and any prose before the first
// '{' and after the last '}'.
func stripWrapper(raw string) string {
	text := strings.TrimSpace(raw)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[:idx]
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func tryParse(text string) (map[string]string, bool) {
	if text == "" {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}

	return stringify(obj), true
}

// stringify renders every top-level value as a string. Nested structures are
// re-encoded compactly; encoding/json sorts object keys, keeping the result
// deterministic.
func stringify(obj map[string]any) map[string]string {
	out := make(map[string]string, len(obj))

	for k, v := range obj {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			out[k] = ""
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			encoded, err := json.Marshal(t)
			if err != nil {
				out[k] = fmt.Sprintf("%v", t)
				continue
			}
			out[k] = string(encoded)
		}
	}

	return out
}

// repairUnterminated handles the parser failing inside an open string. Three
// fixes are tried at the failure position P, in order: close the string at the
// next structural delimiter after P, close it immediately at P with minimal
// closing brackets, and truncate to the last known complete field.
func repairUnterminated(text string) (map[string]string, bool) {
	pos, open, inString := scanState(text)
	if !inString {
		return nil, false
	}

	// (i) Insert a closing quote right before the next structural delimiter
	// after the point where the broken string opened.
	for i := pos; i < len(text) && i < pos+200; i++ {
		if text[i] == ',' || text[i] == '}' || text[i] == ']' {
			candidate := text[:i] + `"` + text[i:]
			if m, ok := tryParse(candidate); ok {
				return m, true
			}
			break
		}
	}

	// (ii) Close the string at end of input plus whatever brackets remain open.
	candidate := text + `"` + closers(open)
	if m, ok := tryParse(candidate); ok {
		return m, true
	}

	// (iii) Truncate to the last complete field and close the object.
	if last := strings.LastIndex(text, `",`); last > 0 {
		candidate = text[:last+1] + "\n}"
		if m, ok := tryParse(candidate); ok {
			return m, true
		}
	}

	return nil, false
}

// scanState walks text with the string lexer. When the end of input is
// reached inside a string it reports the offset just past that string's
// opening quote, the stack of still-open containers, and inString=true.
func scanState(text string) (pos int, open []byte, inString bool) {
	var lx lexer

	stringStart := 0
	for i := 0; i < len(text); i++ {
		before := lx.state
		lx.step(text, i)
		if before == stateOutside && (lx.state == stateInKey || lx.state == stateInValue) {
			stringStart = i + 1
		}
	}

	inString = lx.state == stateInKey || lx.state == stateInValue || lx.state == stateEscaped
	return stringStart, lx.open, inString
}

func closers(open []byte) string {
	var b strings.Builder
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
