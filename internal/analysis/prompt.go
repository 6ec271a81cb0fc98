package analysis

import (
	"encoding/json"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
	"github.com/tanshuai2008/HouSmart-test/internal/census"
	"github.com/tanshuai2008/HouSmart-test/internal/market"
)

// MaxPOIChars caps the serialized POI sample in the prompt.
const MaxPOIChars = 2000

// Input is everything the model sees for one request. Profile is nil when
// statistics were unavailable; the model is then asked to estimate them.
// Benchmark is used only when Profile is nil. Approximate marks a run whose
// location could not be pinned down; its result is never cached.
type Input struct {
	Request     Request
	Profile     *census.Profile
	Benchmark   *benchmark.Benchmark
	Market      *market.Data
	Approximate bool
}

// Cacheable reports whether the result for in may be read from or written
// to the cache.
func (in Input) Cacheable() bool {
	return in.Request.Cacheable() && !in.Approximate
}

func (in Input) benchmark() benchmark.Benchmark {
	if in.Profile != nil {
		return in.Profile.Benchmark
	}
	if in.Benchmark != nil {
		return *in.Benchmark
	}
	return benchmark.MustDefault().Lookup(benchmark.National)
}

// Prompt is the rendered model request.
type Prompt struct {
	System string
	User   string
}

const systemPrompt = `You are a real estate investment expert. You assess residential locations for buy-and-hold investors using neighborhood amenities, rental market data and census demographics compared against state and national benchmarks.

Rules:
- highlights: at most 4 points describing strengths, under 80 words in total.
- risks: at most 3 points describing weaknesses, under 60 words in total.
- score: an integer from 0 to 100. Use the benchmarks to judge whether the area is high-income or highly educated relative to its state and the nation.
- investmentStrategy: a brief strategy of at most 50 words.
- Whenever you cite a number or value, make it **bold**.
- Do not use markdown code blocks.`

var printer = message.NewPrinter(language.English)

// BuildPrompt renders the prompt for in.
func BuildPrompt(in Input) Prompt {
	var b strings.Builder
	req := in.Request

	printer.Fprintf(&b, "Analyze the location %q for residential real estate investment.\n\n", req.Address)

	writeWeights(&b, req.Weights)
	if !req.Cacheable() {
		b.WriteString("USER PREFERENCES:\n")
		b.WriteString(strings.TrimSpace(req.UserPreferences))
		b.WriteString("\nWhen these preferences conflict with the priority weights, the preferences win. " +
			"Name any such conflict explicitly in the risks and let the preferences drive the score.\n\n")
	}

	writeMarket(&b, in.Market)

	if in.Profile != nil {
		writeProfile(&b, in.Profile)
	} else {
		b.WriteString("CENSUS DATA: unavailable for this address.\n")
		if in.Approximate {
			b.WriteString("The exact location could not be resolved; base the assessment on the address text.\n")
		}
		b.WriteString("Estimate the demographics from general knowledge of the area and return them in " +
			"estimatedCensus.metrics with populationDensity, medianHouseholdIncome, medianAge, educationLevel, " +
			"unemploymentRate, housingVacancyRate and topIndustries.\n\n")
	}

	writeBenchmarks(&b, in.benchmark())
	return Prompt{System: systemPrompt, User: b.String()}
}

func writeWeights(b *strings.Builder, weights map[string]int) {
	if len(weights) == 0 {
		b.WriteString("PRIORITY WEIGHTS: none supplied, use balanced default weighting.\n\n")
		return
	}
	names := make([]string, 0, len(weights))
	for k := range weights {
		names = append(names, k)
	}
	sort.Strings(names)

	b.WriteString("PRIORITY WEIGHTS (0-100, higher matters more):\n")
	for _, k := range names {
		printer.Fprintf(b, "- %s: %d\n", k, weights[k])
	}
	b.WriteString("Weight the score toward the highest priorities.\n\n")
}

func writeMarket(b *strings.Builder, d *market.Data) {
	sample := "[]"
	if d != nil && len(d.Places) > 0 {
		if raw, err := json.Marshal(d.Places); err == nil {
			sample = string(raw)
		}
	}
	b.WriteString("POI DATA (sample): ")
	b.WriteString(truncateRunes(sample, MaxPOIChars))
	b.WriteString("\n\n")

	if d == nil || d.Rent == nil {
		return
	}
	r := d.Rent
	printer.Fprintf(b, "RENT ESTIMATE: $%.0f/month (range $%.0f - $%.0f %s)\n", r.Rent, r.RangeLow, r.RangeHigh, r.Currency)
	for _, c := range r.Comparables {
		printer.Fprintf(b, "- comparable %s: $%.0f/month, $%.2f/sqft, %.1f mi away, similarity %.2f\n",
			c.AddressLine1, c.Price, c.PricePerSqft, c.DistanceMiles, c.Similarity)
	}
	b.WriteString("\n")
}

func writeProfile(b *strings.Builder, p *census.Profile) {
	printer.Fprintf(b, "CENSUS DATA (block group %s, %s):\n", p.Geo.FullGeoID, p.StateName)

	scalars := []struct {
		label string
		key   string
		money bool
	}{
		{"Median household income", census.MedianIncome, true},
		{"Median home value", census.MedianHomeValue, true},
		{"Median gross rent", census.MedianRent, true},
		{"Median age", census.MedianAge, false},
		{"Total population", census.TotalPopulation, false},
	}
	for _, s := range scalars {
		m, ok := p.Metrics[s.key]
		if !ok {
			continue
		}
		if s.money {
			printer.Fprintf(b, "- %s: $%.0f\n", s.label, m.Local)
		} else {
			printer.Fprintf(b, "- %s: %v\n", s.label, m.Local)
		}
	}

	for _, c := range census.Categories {
		parts := make([]string, len(c.Keys))
		for i, k := range c.Keys {
			parts[i] = printer.Sprintf("%s %.1f%%", c.Labels[i], p.Value(k))
		}
		printer.Fprintf(b, "- %s: %s\n", titleCase(c.Name), strings.Join(parts, " | "))
	}
	b.WriteString("\n")
}

func writeBenchmarks(b *strings.Builder, bm benchmark.Benchmark) {
	b.WriteString("CONTEXTUAL BENCHMARKS (use these for comparison):\n")
	rows := []struct {
		scope string
		row   benchmark.Row
	}{
		{"State (" + bm.StateName + ")", bm.State},
		{"National", bm.National},
	}
	for _, r := range rows {
		printer.Fprintf(b, "%s median income: $%d\n", r.scope, r.row.MedianIncome)
		printer.Fprintf(b, "%s income (%s): %s\n", r.scope, strings.Join(benchmark.IncomeLabels, "|"), joinPct(r.row.Income))
		printer.Fprintf(b, "%s age (%s): %s\n", r.scope, strings.Join(benchmark.AgeLabels, "|"), joinPct(r.row.Age))
		printer.Fprintf(b, "%s race (%s): %s\n", r.scope, strings.Join(benchmark.RaceLabels, "|"), joinPct(r.row.Race))
		printer.Fprintf(b, "%s education (%s): %s\n", r.scope, strings.Join(benchmark.EducationLabels, "|"), joinPct(r.row.Education))
	}
}

func joinPct(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = printer.Sprintf("%.1f%%", x)
	}
	return strings.Join(parts, " | ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// truncateRunes cuts s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
