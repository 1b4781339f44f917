package oracle

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ExtractJSON returns the first balanced {...} span in text. A span that is not
// valid JSON is a format error; later spans are not considered. Braces inside
// JSON strings are ignored, so prose and code fences around the reply do not
// confuse the scan. An opening brace that never closes is skipped.
func ExtractJSON(text string) ([]byte, error) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}
		candidate := text[start : end+1]
		if !gjson.Valid(candidate) {
			return nil, fmt.Errorf("first JSON object in reply does not decode: %w", ErrPlanFormat)
		}
		return []byte(candidate), nil
	}
	return nil, fmt.Errorf("no JSON object in reply: %w", ErrPlanFormat)
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
