// Package census turns raw ACS block-group counts into a normalized
// demographic profile with state and national benchmarks attached.
package census

import (
	"math"

	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
	"github.com/tanshuai2008/HouSmart-test/pkg/acs"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
)

// Unit describes how a metric value should be read.
type Unit string

// Metric units.
const (
	UnitPercentage Unit = "percentage"
	UnitCurrency   Unit = "currency"
	UnitCount      Unit = "count"
	UnitYears      Unit = "years"
)

// Metric is one normalized value for the block group.
type Metric struct {
	Local float64 `json:"local"`
	Unit  Unit    `json:"unit"`
}

// Metric keys.
const (
	MedianIncome    = "medianIncome"
	MedianHomeValue = "medianHomeValue"
	MedianRent      = "medianGrossRent"
	MedianAge       = "medianAge"
	TotalPopulation = "totalPopulation"

	IncomeUnder50k = "incomeUnder50kPct"
	Income50to150k = "income50kTo150kPct"
	IncomeOver150k = "incomeOver150kPct"

	AgeUnder18 = "ageUnder18Pct"
	Age18to24  = "age18To24Pct"
	Age25to44  = "age25To44Pct"
	Age45to64  = "age45To64Pct"
	Age65Plus  = "age65PlusPct"

	EduHighSchool = "eduHighSchoolPct"
	EduBachelor   = "eduBachelorPct"
	EduAdvanced   = "eduAdvancedPct"
	EduOther      = "eduOtherPct"

	RaceWhite    = "raceWhitePct"
	RaceBlack    = "raceBlackPct"
	RaceAsian    = "raceAsianPct"
	RaceHispanic = "raceHispanicPct"
	RaceOther    = "raceOtherPct"
)

// Category groups percentage metrics that partition one population. Keys
// are ordered like the matching benchmark labels.
type Category struct {
	Name   string
	Keys   []string
	Labels []string
}

// Categories lists the percentage categories of a profile.
var Categories = []Category{
	{"income", []string{IncomeUnder50k, Income50to150k, IncomeOver150k}, benchmark.IncomeLabels},
	{"age", []string{AgeUnder18, Age18to24, Age25to44, Age45to64, Age65Plus}, benchmark.AgeLabels},
	{"race", []string{RaceWhite, RaceBlack, RaceAsian, RaceHispanic, RaceOther}, benchmark.RaceLabels},
	{"education", []string{EduHighSchool, EduBachelor, EduAdvanced, EduOther}, benchmark.EducationLabels},
}

// Profile is the normalized view of one block group.
type Profile struct {
	Geo       geocode.GeoIdentifier `json:"locationIdentifiers"`
	StateName string                `json:"stateName"`
	Metrics   map[string]Metric     `json:"metrics"`
	Raw       acs.Values            `json:"rawMetrics,omitempty"`
	Benchmark benchmark.Benchmark   `json:"benchmarks"`
}

// Value returns the local value of a metric, or 0 when absent.
func (p *Profile) Value(key string) float64 {
	return p.Metrics[key].Local
}

// CategorySum adds up the percentages of one category.
func (p *Profile) CategorySum(c Category) float64 {
	var total float64
	for _, k := range c.Keys {
		total += p.Value(k)
	}
	return total
}

// pct returns num/den as a percentage rounded to one decimal. A zero or
// negative denominator yields 0.
func pct(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return round1(num / den * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
