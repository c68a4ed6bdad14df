package ai

import (
	"encoding/json"
	"fmt"
)

// ExtractJSONObject returns the first balanced {...} object in text. Models
// often wrap JSON in prose or code fences.
func ExtractJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if start < 0 {
			if ch == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeJSON salvages the first JSON object in text into dst.
func DecodeJSON(text string, dst any) error {
	obj, ok := ExtractJSONObject(text)
	if !ok {
		return fmt.Errorf("%w: no JSON object in response", ErrEmptyResponse)
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return fmt.Errorf("decode AI response: %w", err)
	}
	return nil
}
