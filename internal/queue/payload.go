package queue

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// StripNulls removes null-valued object fields at every depth. Array
// elements are kept but their contents are stripped too.
func StripNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = StripNulls(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = StripNulls(val)
		}
		return out
	default:
		return v
	}
}

// Envelope builds the worker callback body {"data": {"taskId": id, ...}}
// from a task payload. A payload that is not a JSON object is carried under
// "payload".
func Envelope(taskID uuid.UUID, payload json.RawMessage) ([]byte, error) {
	data := map[string]any{}

	if len(bytes.TrimSpace(payload)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()

		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("failed to decode task payload: %w", err)
		}
		switch v := StripNulls(decoded).(type) {
		case map[string]any:
			data = v
		case nil:
		default:
			data["payload"] = v
		}
	}
	data["taskId"] = taskID.String()

	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery body: %w", err)
	}
	return body, nil
}
