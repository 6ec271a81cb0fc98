package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Valid(t *testing.T) {
	r, err := Decode([]byte(validJSON))
	require.NoError(t, err)
	assert.Equal(t, 78, r.Score)
	assert.Len(t, r.Highlights, 2)
	assert.Equal(t, []string{"High prices"}, r.Risks)
	assert.Nil(t, r.EstimatedCensus)
}

func TestDecode_Lenient(t *testing.T) {
	fenced := "```json\n" + `{"highlights":[],"risks":[],"score":72.0,"investmentStrategy":"Hold."}` + "\n```"
	r, err := Decode([]byte(fenced))
	require.NoError(t, err)
	assert.Equal(t, 72, r.Score)

	r, err = Decode([]byte(`{"highlights":[],"risks":[],"score":0,"investmentStrategy":"","estimatedCensus":{"metrics":{"populationDensity":"High","unemploymentRate":"4.1%"}}}`))
	require.NoError(t, err)
	require.NotNil(t, r.EstimatedCensus)
	assert.Equal(t, "High", r.EstimatedCensus.Metrics.PopulationDensity)
}

func TestDecode_Violations(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		problem string
	}{
		{"not json", `score: 5`, "not a JSON object"},
		{"array", `[1,2]`, "not a JSON object"},
		{"missing fields", `{"score":50}`, "highlights is required"},
		{"null field", `{"highlights":null,"risks":[],"score":1,"investmentStrategy":""}`, "highlights is required"},
		{"score too high", `{"highlights":[],"risks":[],"score":101,"investmentStrategy":""}`, "outside 0..100"},
		{"score negative", `{"highlights":[],"risks":[],"score":-3,"investmentStrategy":""}`, "outside 0..100"},
		{"fractional score", `{"highlights":[],"risks":[],"score":7.5,"investmentStrategy":""}`, "not an integer"},
		{"score wrong type", `{"highlights":[],"risks":[],"score":true,"investmentStrategy":""}`, "score: wrong type"},
		{"too many highlights", `{"highlights":["a","b","c","d","e"],"risks":[],"score":1,"investmentStrategy":""}`, "5 highlights"},
		{"too many risks", `{"highlights":[],"risks":["a","b","c","d"],"score":1,"investmentStrategy":""}`, "4 risks"},
		{"highlights wrong type", `{"highlights":"great","risks":[],"score":1,"investmentStrategy":""}`, "highlights: wrong type"},
		{"strategy wrong type", `{"highlights":[],"risks":[],"score":1,"investmentStrategy":{}}`, "investmentStrategy: wrong type"},
		{"bad estimate", `{"highlights":[],"risks":[],"score":1,"investmentStrategy":"","estimatedCensus":"none"}`, "estimatedCensus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode([]byte(tt.raw))
			assert.Nil(t, r)
			assert.ErrorIs(t, err, ErrSchemaViolation)
			assert.ErrorContains(t, err, tt.problem)
		})
	}
}

func TestSchemaJSON(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(SchemaJSON()), &doc))
	assert.Equal(t, "object", doc["type"])
	assert.ElementsMatch(t, []any{"highlights", "risks", "score", "investmentStrategy"}, doc["required"])

	props := doc["properties"].(map[string]any)
	assert.EqualValues(t, MaxHighlights, props["highlights"].(map[string]any)["maxItems"])
	assert.EqualValues(t, MaxRisks, props["risks"].(map[string]any)["maxItems"])
	assert.Equal(t, "integer", props["score"].(map[string]any)["type"])
}

func TestRequiredFieldsIsCopy(t *testing.T) {
	f := RequiredFields()
	f[0] = "changed"
	assert.Equal(t, "highlights", RequiredFields()[0])
}
