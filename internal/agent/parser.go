package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseNotes decodes the note-extraction reply as a JSON array of strings.
// Smaller models often wrap the array, so it also accepts:
//   - Code-fenced: ```json\n[...]\n```
//   - Surrounding text: `Here are the notes:\n["likes go"]\nHope that helps.`
//
// Blank notes are dropped. An error means no array could be decoded.
func ParseNotes(reply string) ([]string, error) {
	content := strings.TrimSpace(reply)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	notes, err := decodeNotes(content)
	if err == nil {
		return notes, nil
	}
	if start, end := findJSONArray(content); start >= 0 && end > start {
		if notes, err2 := decodeNotes(content[start:end]); err2 == nil {
			return notes, nil
		}
	}
	return nil, err
}

// decodeNotes decodes raw as is and only repairs escapes when that fails.
func decodeNotes(raw string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		list = nil
		if err2 := json.Unmarshal([]byte(sanitizeJSONEscapes(raw)), &list); err2 != nil {
			return nil, fmt.Errorf("decode notes: %w", err)
		}
	}
	notes := make([]string, 0, len(list))
	for _, n := range list {
		if n = strings.TrimSpace(n); n != "" {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

// findJSONArray locates the first top-level JSON array in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONArray(s string) (int, int) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return -1, -1
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++ // skip escaped character
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// sanitizeJSONEscapes drops the backslash of escapes JSON does not allow
// (e.g. \% or \Y) inside string literals. Valid escapes, including a
// literal \\ pair, are copied through untouched.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"':
			inString = false
			buf.WriteByte(ch)
		case '\\':
			if i+1 >= len(s) {
				continue
			}
			switch next := s[i+1]; next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				buf.WriteByte(next)
			default:
				buf.WriteByte(next)
			}
			i++
		default:
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
