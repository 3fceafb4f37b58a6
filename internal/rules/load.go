package rules

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a JSON array of rule definitions from disk. Conditions
// travel in the AST wire format and are decoded into typed nodes.
func LoadFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var out []*Rule
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode rules file %s: %w", path, err)
	}
	return out, nil
}
