package oracle

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\\r?\\n?(.*?)```")

// ExtractObject isolates the JSON object embedded in an oracle reply. Fenced
// blocks are tried before the surrounding text.
func ExtractObject(text string) (json.RawMessage, error) {
	return extract(text, '{', '}', "object")
}

// ExtractArray isolates the JSON array embedded in an oracle reply.
func ExtractArray(text string) (json.RawMessage, error) {
	return extract(text, '[', ']', "array")
}

// DecodeObject extracts an object from text and unmarshals it into v.
func DecodeObject(text string, v any) error {
	raw, err := ExtractObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newParseError("object", "decode: "+err.Error(), text)
	}
	return nil
}

// DecodeArray extracts an array from text and unmarshals it into v.
func DecodeArray(text string, v any) error {
	raw, err := ExtractArray(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newParseError("array", "decode: "+err.Error(), text)
	}
	return nil
}

func extract(text string, open, closer byte, want string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newParseError(want, "empty reply", text)
	}

	var candidates []string
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, text)

	for _, c := range candidates {
		if raw, ok := firstBalanced(c, open, closer); ok {
			return raw, nil
		}
	}
	return nil, newParseError(want, "no well-formed "+want+" found", text)
}

// firstBalanced scans s for the first span that opens with open, closes at
// depth zero, and is valid JSON as written or after cleanup. A span that is
// already valid is returned untouched.
func firstBalanced(s string, open, closer byte) (json.RawMessage, bool) {
	for start := strings.IndexByte(s, open); start >= 0; {
		if end := matchClose(s, start, open, closer); end > start {
			span := s[start : end+1]
			if json.Valid([]byte(span)) {
				return json.RawMessage(span), true
			}
			if cleaned := cleanJSON(span); json.Valid([]byte(cleaned)) {
				return json.RawMessage(cleaned), true
			}
		}
		next := strings.IndexByte(s[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchClose returns the index of the delimiter closing s[start], skipping
// delimiters inside JSON strings, or -1.
func matchClose(s string, start int, open, closer byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// cleanJSON drops // line comments outside strings and trailing commas,
// both common in generated JSON.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return dropTrailingCommas(strings.Join(lines, "\n"))
}

// dropTrailingCommas removes commas that directly precede a closing brace or
// bracket, leaving string contents alone.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
