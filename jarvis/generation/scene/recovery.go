package scene

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

const maxRawSnippet = 300

var errUnrecoverable = errors.New("could not parse 3D model data")

// Recover extracts the records of a JSON array from a completion that may be fenced, wrapped in an object
// or truncated mid-record. Strategies run in order and the first one that yields a list wins:
//
//  1. strict parse of the fence-stripped text
//  2. extraction of every complete top-level object carrying "type" and "position"
//  3. closing the unmatched brackets of the remainder and parsing once more
//
// Failures are StructuredParse errors whose Snippet holds the start of raw.
func Recover(raw string) ([]any, error) {
	text := stripFences(raw)

	if records, ok := parseStrict(text); ok {
		return records, nil
	}

	text, ok := fromFirstBracket(text)
	if !ok {
		return nil, parseError(raw, ports.ErrNoJSON)
	}

	if records := extractRecords(text); len(records) > 0 {
		return records, nil
	}

	if records, ok := closeAndParse(text); ok {
		return records, nil
	}

	return nil, parseError(raw, errUnrecoverable)
}

func parseError(raw string, err error) error {
	e := ports.NewError(ports.KindStructuredParse, "recover", err)
	e.Snippet = firstChars(raw, maxRawSnippet)
	return e
}

// stripFences removes markdown code fence markers at the start or end of any line.
func stripFences(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fenced := false
		if t := strings.TrimSpace(line); strings.HasPrefix(t, "```") {
			t = strings.TrimPrefix(t, "```")
			if len(t) >= 4 && strings.EqualFold(t[:4], "json") {
				t = t[4:]
			}
			line, fenced = t, true
		}
		if t := strings.TrimRightFunc(line, unicode.IsSpace); strings.HasSuffix(t, "```") {
			line, fenced = strings.TrimSuffix(t, "```"), true
		}
		if fenced && strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// parseStrict accepts a list, an object wrapping a list under "objects", or any other single object.
func parseStrict(text string) ([]any, bool) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false
	}

	switch v := data.(type) {
	case []any:
		return v, true
	case map[string]any:
		if objects, ok := v["objects"].([]any); ok {
			return objects, true
		}
		return []any{v}, true
	default:
		return nil, false
	}
}

// fromFirstBracket discards everything before the first '['. Without one, the first '{' is wrapped in a list.
func fromFirstBracket(text string) (string, bool) {
	if i := strings.IndexByte(text, '['); i >= 0 {
		return text[i:], true
	}
	if i := strings.IndexByte(text, '{'); i >= 0 {
		return "[" + text[i:], true
	}
	return "", false
}

type scanState int

const (
	outsideString scanState = iota
	inString
	escaped
)

// scanner tracks string literals and escapes one byte at a time.
type scanner struct {
	state scanState
}

// step advances over c and reports whether c is structural, i.e. outside any string literal.
func (s *scanner) step(c byte) bool {
	switch s.state {
	case escaped:
		s.state = inString
		return false
	case inString:
		switch c {
		case '\\':
			s.state = escaped
		case '"':
			s.state = outsideString
		}
		return false
	default:
		if c == '"' {
			s.state = inString
			return false
		}
		return true
	}
}

// extractRecords parses every top-level {...} span in isolation and keeps objects with "type" and "position".
// A '}' seen at depth zero is ignored.
func extractRecords(text string) []any {
	var (
		sc      scanner
		depth   int
		start   = -1
		records []any
	)

	for i := 0; i < len(text); i++ {
		c := text[i]
		if !sc.step(c) {
			continue
		}

		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if rec, ok := parseRecord(text[start : i+1]); ok {
					records = append(records, rec)
				}
				start = -1
			}
		}
	}

	return records
}

func parseRecord(span string) (map[string]any, bool) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(span), &rec); err != nil {
		return nil, false
	}
	_, hasType := rec["type"]
	_, hasPosition := rec["position"]
	return rec, hasType && hasPosition
}

// closeAndParse drops one trailing comma and appends the closers of every bracket left open outside strings,
// innermost first.
func closeAndParse(text string) ([]any, bool) {
	repaired := strings.TrimRightFunc(text, unicode.IsSpace)
	repaired = strings.TrimRightFunc(strings.TrimSuffix(repaired, ","), unicode.IsSpace)

	var (
		sc    scanner
		stack []byte
	)
	for i := 0; i < len(repaired); i++ {
		c := repaired[i]
		if !sc.step(c) {
			continue
		}
		switch c {
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if n := len(stack); n > 0 && matches(stack[n-1], c) {
				stack = stack[:n-1]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(repaired)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			sb.WriteByte('}')
		} else {
			sb.WriteByte(']')
		}
	}

	var data any
	if err := json.Unmarshal([]byte(sb.String()), &data); err != nil {
		return nil, false
	}
	list, ok := data.([]any)
	return list, ok
}

func matches(open, closer byte) bool {
	return (open == '{' && closer == '}') || (open == '[' && closer == ']')
}

func firstChars(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
