package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairJSON returns s as JSON, stripping markdown fences and repairing
// common model mistakes (trailing commas, single quotes, truncation).
func RepairJSON(s string) (json.RawMessage, error) {
	s = stripFences(s)
	if s == "" {
		return nil, errors.New("empty JSON payload")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, fmt.Errorf("repairing JSON: %w", err)
	}
	if !json.Valid([]byte(fixed)) {
		return nil, errors.New("repaired payload is still not valid JSON")
	}
	return json.RawMessage(fixed), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
