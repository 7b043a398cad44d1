package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when model output contains no JSON object.
var ErrNoJSON = errors.New("response did not contain a JSON object")

var fenceRe = regexp.MustCompile("(?i)```(?:json)?[ \t]*")

// ExtractJSON recovers the JSON object from model output. Markdown fences
// and surrounding prose are dropped. When the object does not parse as-is,
// common literal defects are repaired: trailing commas, // comments,
// single-quoted strings and unquoted keys.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = fenceRe.ReplaceAllString(text, "")

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}
	candidate := text[start : end+1]

	var v any
	err := json.Unmarshal([]byte(candidate), &v)
	if err == nil {
		return json.RawMessage(candidate), nil
	}

	repaired := repairJSON(candidate)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), nil
	}
	return nil, fmt.Errorf("parsing JSON after repairs: %w", err)
}

// repairJSON rewrites the JSON5-ish literals models tend to emit. String
// contents are left alone.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	var last byte // last significant byte outside strings
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			j, ok := scanString(s, i)
			b.WriteString(s[i:j])
			if !ok {
				return b.String()
			}
			last, i = '"', j

		case c == '\'':
			j, ok := scanString(s, i)
			if !ok {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(requote(s[i+1 : j-1]))
			last, i = '"', j

		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}

		case c == ',':
			if k := skipSpace(s, i+1); k < len(s) && (s[k] == ']' || s[k] == '}') {
				i++
				continue
			}
			b.WriteByte(',')
			last, i = ',', i+1

		case isIdentStart(c) && (last == '{' || last == ','):
			j := i + 1
			for j < len(s) && isIdent(s[j]) {
				j++
			}
			if k := skipSpace(s, j); k < len(s) && s[k] == ':' {
				b.WriteString(`"` + s[i:j] + `"`)
			} else {
				b.WriteString(s[i:j])
			}
			last, i = 'a', j

		default:
			b.WriteByte(c)
			if !isSpace(c) {
				last = c
			}
			i++
		}
	}
	return b.String()
}

// scanString returns the index just past the string literal opening at
// s[i]. ok is false when the literal is unterminated.
func scanString(s string, i int) (end int, ok bool) {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1, true
		}
	}
	return len(s), false
}

// requote turns the body of a single-quoted literal into a double-quoted
// JSON string.
func requote(body string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			if body[i+1] == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(body[i+1])
			}
			i++
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		switch {
		case isSpace(s[i]):
			i++
		case s[i] == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		default:
			return i
		}
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
