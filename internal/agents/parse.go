package agents

import (
	"encoding/json"
	"strings"

	"perp-trader/internal/models"
)

// ParseDecisions extracts the structured decision list from the model's
// raw output. The model is asked for a JSON array but may wrap it in prose
// or markdown fences; everything from the first '[' to the last ']' is
// treated as the array. Output with no parseable array yields an empty
// list, not an error: a confused model means "do nothing this cycle".
func ParseDecisions(raw string) []models.Decision {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil
	}

	var decisions []models.Decision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decisions); err != nil {
		return nil
	}

	out := decisions[:0]
	for _, d := range decisions {
		if d.Action == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}
