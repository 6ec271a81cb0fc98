package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tanshuai2008/HouSmart-test/internal/analysis"
	"github.com/tanshuai2008/HouSmart-test/internal/census"
	"github.com/tanshuai2008/HouSmart-test/internal/config"
	"github.com/tanshuai2008/HouSmart-test/internal/pipeline"
)

var (
	analyzeWeights     []string
	analyzePreferences string
	analyzeJSON        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <address>",
	Short: "Analyze one address and print the report",
	Long: "Analyze one address and print the report.\n\n" +
		"Priority weights (--weight) accept any name; the standard factors are " +
		strings.Join(analysis.Factors, ", ") + " and match without regard to case.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		weights, err := parseWeights(analyzeWeights)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), func() *config.Config { return cfg }, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		req := analysis.Request{Address: args[0], Weights: weights, UserPreferences: analyzePreferences}
		rep, runErr := env.Pipeline.Run(cmd.Context(), req)
		if rep != nil {
			var werr error
			if analyzeJSON {
				werr = writeReportJSON(cmd.OutOrStdout(), rep)
			} else {
				werr = writeReportTable(cmd.OutOrStdout(), rep)
			}
			if werr != nil {
				return werr
			}
		}
		return runErr
	},
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeWeights, "weight", "w", nil, "priority weight as Name=0..100 (repeatable)")
	analyzeCmd.Flags().StringVarP(&analyzePreferences, "preferences", "p", "", "free-text preferences (bypasses the cache)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// parseWeights turns Name=Value pairs into a weight map, spelling known
// factors the standard way.
func parseWeights(pairs []string) (map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(pairs))
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		name = analysis.CanonicalFactor(name)
		if !ok || name == "" {
			return nil, eris.Errorf("weight %q: expected Name=Value", p)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 || n > 100 {
			return nil, eris.Errorf("weight %q: value must be an integer 0..100", p)
		}
		out[name] = n
	}
	return out, nil
}

func writeReportJSON(w io.Writer, rep *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// scoreColor buckets a score for display.
func scoreColor(score int) *color.Color {
	switch {
	case score >= 75:
		return color.New(color.FgGreen, color.Bold)
	case score >= 50:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func writeReportTable(w io.Writer, rep *pipeline.Report) error {
	fmt.Fprintf(w, "Address: %s\n", rep.Address)
	if g := rep.Geo; g != nil {
		approx := ""
		if g.Approximate {
			approx = " (approximate)"
		}
		fmt.Fprintf(w, "Block group: %s via %s%s\n", g.FullGeoID, g.Source, approx)
	}

	if p := rep.Profile; p != nil {
		fmt.Fprintf(w, "\nDemographics (%s):\n", p.StateName)
		if err := renderProfile(w, p); err != nil {
			return err
		}
	}

	if a := rep.Analysis; a != nil {
		fmt.Fprintln(w)
		switch {
		case a.Disabled:
			fmt.Fprintln(w, color.New(color.FgHiBlack).Sprint("Analysis disabled"))
		case a.Degraded:
			fmt.Fprintln(w, color.New(color.FgRed).Sprint("Analysis unavailable"))
		default:
			fmt.Fprintf(w, "Score: %s\n", scoreColor(a.Score).Sprint(a.Score))
		}
		if a.CacheMeta != nil {
			fmt.Fprintf(w, "Cached at: %s\n", a.CacheMeta.Timestamp.Format("2006-01-02 15:04 MST"))
		}
		for _, h := range a.Highlights {
			fmt.Fprintf(w, "  + %s\n", h)
		}
		for _, r := range a.Risks {
			fmt.Fprintf(w, "  - %s\n", r)
		}
		if a.InvestmentStrategy != "" {
			fmt.Fprintf(w, "Strategy: %s\n", a.InvestmentStrategy)
		}
		if e := a.EstimatedCensus; e != nil {
			fmt.Fprintf(w, "Estimated: income %s, median age %.1f, education %s, unemployment %s\n",
				e.Metrics.MedianHouseholdIncome, e.Metrics.MedianAge, e.Metrics.EducationLevel, e.Metrics.UnemploymentRate)
		}
	}

	if len(rep.Warnings) > 0 {
		warn := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintln(w)
		for _, msg := range rep.Warnings {
			fmt.Fprintln(w, warn("warning: "+msg))
		}
	}
	return nil
}

// renderProfile prints the category percentages next to their state and
// national benchmarks.
func renderProfile(w io.Writer, p *census.Profile) error {
	table := tablewriter.NewWriter(w)
	table.Header("Category", "Bucket", "Local", "State", "National")

	bench := map[string][2][]float64{
		"income":    {p.Benchmark.State.Income, p.Benchmark.National.Income},
		"age":       {p.Benchmark.State.Age, p.Benchmark.National.Age},
		"race":      {p.Benchmark.State.Race, p.Benchmark.National.Race},
		"education": {p.Benchmark.State.Education, p.Benchmark.National.Education},
	}

	var data [][]string
	for _, c := range census.Categories {
		b := bench[c.Name]
		for i, k := range c.Keys {
			data = append(data, []string{c.Name, c.Labels[i], pct(p.Value(k)), pctAt(b[0], i), pctAt(b[1], i)})
		}
	}

	scalars := make([]string, 0, len(p.Metrics))
	for k, m := range p.Metrics {
		if m.Unit != census.UnitPercentage {
			scalars = append(scalars, k)
		}
	}
	sort.Strings(scalars)
	for _, k := range scalars {
		data = append(data, []string{"summary", k, strconv.FormatFloat(p.Value(k), 'f', -1, 64), "", ""})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func pctAt(xs []float64, i int) string {
	if i >= len(xs) {
		return ""
	}
	return pct(xs[i])
}
