package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeObject parses model content as a single JSON object, tolerating
// markdown code fences and the invalid escape sequences some models
// emit inside strings.
func DecodeObject(content string) (map[string]any, error) {
	cleaned := stripCodeFence(content)
	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		if err2 := json.Unmarshal([]byte(sanitizeJSONEscapes(cleaned)), &out); err2 != nil {
			return nil, &ExecError{Op: "decode content", Err: fmt.Errorf("not a JSON object: %w", err)}
		}
	}
	if out == nil {
		return nil, &ExecError{Op: "decode content", Err: fmt.Errorf("content decoded to null")}
	}
	return out, nil
}

// stripCodeFence removes a surrounding ```…``` block if present.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	// Single-line fence or fence without closing line.
	return strings.TrimSpace(strings.Trim(content, "`"))
}

// sanitizeJSONEscapes fixes invalid JSON escape sequences produced by
// some models. Valid escapes: \", \\, \/, \b, \f, \n, \r, \t, \uXXXX.
// Invalid ones (e.g. \% or \Y) are corrected by dropping the backslash.
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
				buf.WriteByte(ch)
				continue
			}
			next := s[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				// Valid escape: keep both bytes and consume the
				// escaped character so it is not re-examined.
				buf.WriteByte(ch)
				buf.WriteByte(next)
				i++
			default:
				// Invalid escape: drop the backslash, the next byte
				// goes through the normal path.
			}
		default:
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
