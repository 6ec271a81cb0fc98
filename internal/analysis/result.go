package analysis

import "time"

// Result is the model's assessment of a location.
type Result struct {
	Score              int              `json:"score"`
	Highlights         []string         `json:"highlights"`
	Risks              []string         `json:"risks"`
	InvestmentStrategy string           `json:"investmentStrategy"`
	EstimatedCensus    *EstimatedCensus `json:"estimatedCensus,omitempty"`

	// CacheMeta is set when the result was served from cache.
	CacheMeta *CacheMeta `json:"_cacheMeta,omitempty"`
	// Degraded marks a placeholder returned after a hard failure.
	Degraded bool `json:"degraded,omitempty"`
	// Disabled marks a placeholder returned because the model is off.
	Disabled bool `json:"disabled,omitempty"`
}

// CacheMeta records when a cached result was produced.
type CacheMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

// EstimatedCensus is the model's estimate when no statistics were
// available.
type EstimatedCensus struct {
	Metrics EstimatedMetrics `json:"metrics"`
}

// EstimatedMetrics are coarse, model-estimated demographics.
type EstimatedMetrics struct {
	PopulationDensity     string   `json:"populationDensity,omitempty"`
	MedianHouseholdIncome string   `json:"medianHouseholdIncome,omitempty"`
	MedianAge             float64  `json:"medianAge,omitempty"`
	EducationLevel        string   `json:"educationLevel,omitempty"`
	UnemploymentRate      string   `json:"unemploymentRate,omitempty"`
	HousingVacancyRate    string   `json:"housingVacancyRate,omitempty"`
	TopIndustries         []string `json:"topIndustries,omitempty"`
}

// DegradedResult is the user-facing placeholder for a failed analysis.
func DegradedResult(message string) *Result {
	return &Result{
		Score:              0,
		Highlights:         []string{},
		Risks:              []string{"Analysis unavailable"},
		InvestmentStrategy: message,
		Degraded:           true,
	}
}

// DisabledResult is returned when the model is switched off.
func DisabledResult() *Result {
	return &Result{
		Highlights:         []string{},
		Risks:              []string{},
		InvestmentStrategy: "AI analysis is disabled by configuration.",
		Disabled:           true,
	}
}
