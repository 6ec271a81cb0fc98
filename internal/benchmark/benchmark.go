// Package benchmark holds the read-only state and national reference
// distributions that local demographics are compared against.
package benchmark

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// National is the name of the fallback row used for unknown states.
const National = "United States"

// Bucket labels, in the order the distributions are stored.
var (
	IncomeLabels    = []string{"<50k", "50k-150k", ">150k"}
	AgeLabels       = []string{"<18", "18-24", "25-44", "45-64", "65+"}
	RaceLabels      = []string{"White", "Black", "Asian", "Hispanic", "Other"}
	EducationLabels = []string{"High School", "Bachelor", "Advanced", "Other"}
)

//go:embed benchmarks.yaml
var tableYAML []byte

// Row is one geography's reference distributions. Each slice holds
// percentages in the order of the matching *Labels variable.
type Row struct {
	Name         string    `yaml:"name" json:"name"`
	FIPS         string    `yaml:"fips,omitempty" json:"fips,omitempty"`
	MedianIncome int       `yaml:"median_income" json:"medianIncome"`
	Income       []float64 `yaml:"income" json:"income"`
	Age          []float64 `yaml:"age" json:"age"`
	Race         []float64 `yaml:"race" json:"race"`
	Education    []float64 `yaml:"education" json:"education"`
}

// Benchmark pairs a state's row with the national row.
type Benchmark struct {
	StateName string `json:"stateName"`
	State     Row    `json:"state"`
	National  Row    `json:"national"`
}

// Store is an immutable lookup table keyed by state name.
type Store struct {
	byName map[string]Row
	byFIPS map[string]string
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
	defaultErr   error
)

// Default returns the store built from the embedded table. The table is
// parsed once per process.
func Default() (*Store, error) {
	defaultOnce.Do(func() {
		defaultStore, defaultErr = Parse(tableYAML)
	})
	return defaultStore, defaultErr
}

// MustDefault is Default for callers that treat a broken embedded table as
// a programming error.
func MustDefault() *Store {
	s, err := Default()
	if err != nil {
		panic(err)
	}
	return s
}

// Parse builds a store from YAML shaped like the embedded table.
func Parse(data []byte) (*Store, error) {
	var doc struct {
		States []Row `yaml:"states"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "benchmark: parse table")
	}

	s := &Store{
		byName: make(map[string]Row, len(doc.States)),
		byFIPS: make(map[string]string, len(doc.States)),
	}
	for _, r := range doc.States {
		if err := r.validate(); err != nil {
			return nil, err
		}
		s.byName[r.Name] = r
		if r.FIPS != "" {
			s.byFIPS[r.FIPS] = r.Name
		}
	}
	if _, ok := s.byName[National]; !ok {
		return nil, eris.Errorf("benchmark: table has no %q row", National)
	}
	return s, nil
}

func (r Row) validate() error {
	checks := []struct {
		field string
		got   []float64
		want  []string
	}{
		{"income", r.Income, IncomeLabels},
		{"age", r.Age, AgeLabels},
		{"race", r.Race, RaceLabels},
		{"education", r.Education, EducationLabels},
	}
	for _, c := range checks {
		if len(c.got) != len(c.want) {
			return eris.Errorf("benchmark: %s: %s has %d buckets, want %d", r.Name, c.field, len(c.got), len(c.want))
		}
	}
	return nil
}

// Lookup returns the benchmark for a state name. Unknown names resolve to
// the national row on both sides.
func (s *Store) Lookup(stateName string) Benchmark {
	nat := s.byName[National]
	row, ok := s.byName[strings.TrimSpace(stateName)]
	if !ok {
		return Benchmark{StateName: National, State: nat, National: nat}
	}
	return Benchmark{StateName: row.Name, State: row, National: nat}
}

// StateNameForFIPS maps a 2-digit state FIPS code to its name. Unknown
// codes map to National.
func (s *Store) StateNameForFIPS(fips string) string {
	if name, ok := s.byFIPS[fips]; ok {
		return name
	}
	return National
}

// Names lists every row name, sorted, with National last.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		if name != National {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append(names, National)
}

// DetectState returns the longest state name that appears in address, or
// National when none does. Matching is case-sensitive so "Kansas" in
// "Arkansas" loses to the longer name.
func (s *Store) DetectState(address string) string {
	best := National
	for name := range s.byName {
		if name == National || !strings.Contains(address, name) {
			continue
		}
		if best == National || len(name) > len(best) {
			best = name
		}
	}
	return best
}
