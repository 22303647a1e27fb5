// Package payload projects named fields out of stored JSON payloads. The
// reader keeps payloads opaque; this is the one convenience used to show a
// display value for a match.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field returns the top-level field name of a JSON object payload as text.
// Strings are unquoted; numbers, booleans, objects and arrays are returned as
// compact JSON. A missing or null field reports ok=false.
func Field(payload []byte, name string) (value string, ok bool, err error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", false, fmt.Errorf("decoding payload: %w", err)
	}
	raw, exists := doc[name]
	if !exists || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false, fmt.Errorf("compacting field %q: %w", name, err)
	}
	return buf.String(), true, nil
}

// Fields projects several fields at once, omitting missing ones.
func Fields(payload []byte, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, ok, err := Field(payload, name)
		if err != nil {
			return nil, err
		}
		if ok {
			out[name] = v
		}
	}
	return out, nil
}

// JSON returns p unchanged when it is valid JSON, otherwise p as a
// base64-encoded JSON string, so responses can embed any payload.
func JSON(p []byte) json.RawMessage {
	if len(p) == 0 {
		return json.RawMessage(`""`)
	}
	if json.Valid(p) {
		return json.RawMessage(p)
	}
	quoted, _ := json.Marshal(p)
	return json.RawMessage(quoted)
}
