package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/jackzampolin/proposer/internal/providers"
)

// decodeStructured parses raw model output into T after validating it against
// schema. On error the zero T is returned and callers fall back to an empty result.
func decodeStructured[T any](raw string, schema json.RawMessage) (T, error) {
	var out T
	parsed, err := providers.DecodeStructured(schema, raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(parsed, &out); err != nil {
		return out, fmt.Errorf("%w: %v", providers.ErrStructuredOutput, err)
	}
	return out, nil
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
