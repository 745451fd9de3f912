package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON decodes the first JSON object in text into out. Models often
// wrap JSON in code fences or add a sentence around it.
func decodeJSON(text string, out any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object in response", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}
	return nil
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
