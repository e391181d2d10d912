package inference

import (
	"fmt"
	"strings"
)

// ExtractJSONObject recovers the JSON object embedded in a raw model reply.
// Models wrap structured output in markdown fences or narration
// ("Here's the extracted data: ..."); we keep everything between the first
// '{' and its matching closing brace and drop the rest.
func ExtractJSONObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)

	// strip markdown fences first
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in payload")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unterminated JSON object in payload")
}
