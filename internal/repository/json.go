package repository

import (
	"encoding/json"
	"fmt"
)

// jsonParam renders v as JSON text for a jsonb parameter. A nil pointer
// becomes SQL NULL.
func jsonParam(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return string(b), nil
}

func jsonScan(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
