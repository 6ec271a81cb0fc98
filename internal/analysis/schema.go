package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Schema limits.
const (
	MaxHighlights = 4
	MaxRisks      = 3
	MinScore      = 0
	MaxScore      = 100
)

// ToolName is the forced tool the model answers through.
const ToolName = "submit_location_analysis"

var requiredFields = []string{"highlights", "risks", "score", "investmentStrategy"}

// SchemaProperties returns the JSON schema properties of a Result as sent
// to the model.
func SchemaProperties() map[string]any {
	str := map[string]any{"type": "string"}
	return map[string]any{
		"highlights": map[string]any{
			"type":        "array",
			"items":       str,
			"maxItems":    MaxHighlights,
			"description": "Strengths of the location, under 80 words in total.",
		},
		"risks": map[string]any{
			"type":        "array",
			"items":       str,
			"maxItems":    MaxRisks,
			"description": "Weaknesses of the location, under 60 words in total.",
		},
		"score": map[string]any{
			"type":        "integer",
			"minimum":     MinScore,
			"maximum":     MaxScore,
			"description": "Investment suitability from 0 to 100.",
		},
		"investmentStrategy": map[string]any{
			"type":        "string",
			"description": "Brief strategy, at most 50 words.",
		},
		"estimatedCensus": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"metrics": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"populationDensity":     str,
						"medianHouseholdIncome": str,
						"medianAge":             map[string]any{"type": "number"},
						"educationLevel":        str,
						"unemploymentRate":      str,
						"housingVacancyRate":    str,
						"topIndustries":         map[string]any{"type": "array", "items": str},
					},
				},
			},
		},
	}
}

// RequiredFields lists the fields every response must carry.
func RequiredFields() []string {
	return append([]string(nil), requiredFields...)
}

// SchemaJSON renders the schema for prompts that cannot attach it as a
// tool definition.
func SchemaJSON() string {
	b, _ := json.MarshalIndent(map[string]any{
		"type":       "object",
		"properties": SchemaProperties(),
		"required":   requiredFields,
	}, "", "  ")
	return string(b)
}

// Decode validates raw model output and converts it to a Result. Any
// structural problem yields a *SchemaViolationError.
func Decode(raw []byte) (*Result, error) {
	raw = stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &SchemaViolationError{Problems: []string{"response is not a JSON object"}}
	}

	var problems []string
	for _, f := range requiredFields {
		if v, ok := fields[f]; !ok || string(v) == "null" {
			problems = append(problems, f+" is required")
		}
	}
	if len(problems) > 0 {
		return nil, &SchemaViolationError{Problems: problems}
	}

	var r Result
	if err := decodeField(fields, "highlights", &r.Highlights); err != nil {
		problems = append(problems, err.Error())
	}
	if err := decodeField(fields, "risks", &r.Risks); err != nil {
		problems = append(problems, err.Error())
	}
	if err := decodeField(fields, "investmentStrategy", &r.InvestmentStrategy); err != nil {
		problems = append(problems, err.Error())
	}

	var score json.Number
	if err := decodeField(fields, "score", &score); err != nil {
		problems = append(problems, err.Error())
	} else if s, err := integer(score); err != nil {
		problems = append(problems, err.Error())
	} else if s < MinScore || s > MaxScore {
		problems = append(problems, fmt.Sprintf("score %d outside %d..%d", s, MinScore, MaxScore))
	} else {
		r.Score = s
	}

	if len(r.Highlights) > MaxHighlights {
		problems = append(problems, fmt.Sprintf("%d highlights, at most %d allowed", len(r.Highlights), MaxHighlights))
	}
	if len(r.Risks) > MaxRisks {
		problems = append(problems, fmt.Sprintf("%d risks, at most %d allowed", len(r.Risks), MaxRisks))
	}

	if v, ok := fields["estimatedCensus"]; ok && string(v) != "null" {
		var ec EstimatedCensus
		if err := json.Unmarshal(v, &ec); err != nil {
			problems = append(problems, "estimatedCensus: "+err.Error())
		} else {
			r.EstimatedCensus = &ec
		}
	}

	if len(problems) > 0 {
		return nil, &SchemaViolationError{Problems: problems}
	}
	return &r, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(fields[name]))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%s: wrong type", name)
	}
	return nil
}

// integer accepts whole numbers, including forms like 72.0.
func integer(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("score %s is not an integer", n)
	}
	return int(f), nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}
