package census

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
	"github.com/tanshuai2008/HouSmart-test/pkg/acs"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
)

type fakeACS struct {
	values acs.Values
	err    error
	vars   []string
	geo    acs.Geography
}

func (f *fakeACS) BlockGroup(_ context.Context, geo acs.Geography, vars []string) (acs.Values, error) {
	f.geo = geo
	f.vars = vars
	return f.values, f.err
}

// fullValues is a complete block group: 1,000 people, 400 households,
// 700 adults over 25.
func fullValues() acs.Values {
	v := acs.Values{
		VarMedianIncome:    91000,
		VarMedianHomeValue: 850000,
		VarMedianRent:      2300,
		VarMedianAge:       36.4,
		VarTotalPopulation: 1000,
		VarSexAgeTotal:     1000,
		VarHouseholds:      400,

		VarEduTotal:      700,
		VarEduHighSchool: 140,
		VarEduBachelor:   210,
		VarEduMasters:    100,
		VarEduProfession: 30,
		VarEduDoctorate:  20,

		VarRaceWhite: 450,
		VarRaceBlack: 150,
		VarRaceAsian: 120,
		VarHispanic:  200,
	}
	// 400 households: 120 under 50k, 200 mid, 80 over 150k.
	spread(v, incomeUnder50k, 120)
	spread(v, income50to150k, 200)
	spread(v, incomeOver150k, 80)
	// 1,000 people.
	spread(v, ageUnder18, 200)
	spread(v, age18to24, 100)
	spread(v, age25to44, 350)
	spread(v, age45to64, 220)
	spread(v, age65plus, 130)
	return v
}

// spread puts n into the first code of a bracket group.
func spread(v acs.Values, codes []string, n float64) {
	v[codes[0]] = n
}

func TestVariables(t *testing.T) {
	vars := Variables()
	seen := map[string]bool{}
	for _, v := range vars {
		assert.False(t, seen[v], "duplicate %s", v)
		seen[v] = true
	}
	// 18 scalars + 16 income brackets + 46 sex-by-age brackets.
	assert.Len(t, vars, 18+16+46)
	assert.True(t, seen["B01001_049E"])
	assert.True(t, seen["B01001_027E"])
	assert.False(t, seen["B01001_026E"], "female total is not a bracket")
	assert.True(t, seen["B19001_017E"])
}

func TestAgeBrackets(t *testing.T) {
	assert.Equal(t, []string{"B01001_003E", "B01001_004E", "B01001_005E", "B01001_006E", "B01001_027E", "B01001_028E", "B01001_029E", "B01001_030E"}, ageUnder18)
	assert.Len(t, age65plus, 12)
	assert.Equal(t, "B01001_049E", age65plus[len(age65plus)-1])
}

func TestDerive_Closure(t *testing.T) {
	p := &Profile{Metrics: Derive(fullValues())}

	for _, c := range Categories {
		assert.InDelta(t, 100, p.CategorySum(c), 0.2, c.Name)
	}

	assert.Equal(t, 30.0, p.Value(IncomeUnder50k))
	assert.Equal(t, 50.0, p.Value(Income50to150k))
	assert.Equal(t, 20.0, p.Value(IncomeOver150k))
	assert.Equal(t, 35.0, p.Value(Age25to44))
	assert.Equal(t, 20.0, p.Value(EduHighSchool))
	assert.Equal(t, 30.0, p.Value(EduBachelor))
	assert.Equal(t, 21.4, p.Value(EduAdvanced))
	assert.Equal(t, 28.6, p.Value(EduOther))
	assert.Equal(t, 45.0, p.Value(RaceWhite))
	assert.Equal(t, 8.0, p.Value(RaceOther))

	assert.Equal(t, Metric{Local: 91000, Unit: UnitCurrency}, p.Metrics[MedianIncome])
	assert.Equal(t, Metric{Local: 36.4, Unit: UnitYears}, p.Metrics[MedianAge])
	assert.Equal(t, UnitPercentage, p.Metrics[RaceAsian].Unit)
}

func TestDerive_SafeDivision(t *testing.T) {
	m := Derive(acs.Values{VarEduHighSchool: 50, VarRaceWhite: 10})
	for _, c := range Categories {
		for _, k := range c.Keys {
			assert.Equal(t, 0.0, m[k].Local, k)
		}
	}
	assert.NotContains(t, m, MedianIncome)
}

func TestDerive_FallbackDenominators(t *testing.T) {
	v := acs.Values{}
	spread(v, incomeUnder50k, 30)
	spread(v, incomeOver150k, 10)
	spread(v, ageUnder18, 25)
	spread(v, age65plus, 75)
	v[VarRaceWhite] = 60
	v[VarSexAgeTotal] = 100

	m := Derive(v)
	assert.Equal(t, 75.0, m[IncomeUnder50k].Local)
	assert.Equal(t, 25.0, m[IncomeOver150k].Local)
	assert.Equal(t, 75.0, m[Age65Plus].Local)
	assert.Equal(t, 60.0, m[RaceWhite].Local)
	assert.Equal(t, 40.0, m[RaceOther].Local)
}

func TestDerive_OtherNeverNegative(t *testing.T) {
	m := Derive(acs.Values{
		VarTotalPopulation: 100,
		VarRaceWhite:       80,
		VarHispanic:        40,
		VarEduTotal:        10,
		VarEduBachelor:     12,
	})
	assert.Equal(t, 0.0, m[RaceOther].Local)
	assert.Equal(t, 0.0, m[EduOther].Local)
}

// 700 White residents, 100 of whom are Hispanic: the Hispanic group must
// not be counted twice.
func TestDerive_RaceClosesWithHispanicResidents(t *testing.T) {
	m := Derive(acs.Values{
		VarTotalPopulation: 1000,
		VarRaceTotal:       1000,
		VarRaceWhite:       600,
		VarRaceBlack:       100,
		VarRaceAsian:       100,
		VarHispanic:        200,
	})

	var sum float64
	for _, k := range []string{RaceWhite, RaceBlack, RaceAsian, RaceHispanic, RaceOther} {
		sum += m[k].Local
	}
	assert.InDelta(t, 100.0, sum, 0.5)
	assert.Equal(t, 60.0, m[RaceWhite].Local)
	assert.Equal(t, 20.0, m[RaceHispanic].Local)
	assert.Equal(t, 0.0, m[RaceOther].Local)
}

func TestDerive_RaceUsesEthnicityTotal(t *testing.T) {
	m := Derive(acs.Values{
		VarTotalPopulation: 1000,
		VarRaceTotal:       800,
		VarRaceWhite:       400,
		VarHispanic:        200,
	})
	assert.Equal(t, 50.0, m[RaceWhite].Local)
	assert.Equal(t, 25.0, m[RaceHispanic].Local)
	assert.Equal(t, 25.0, m[RaceOther].Local)
}

func TestVariables_NonOverlappingRaceTable(t *testing.T) {
	vars := Variables()
	for _, v := range vars {
		assert.NotContains(t, v, "B02001_", "race counts that include Hispanic residents")
		assert.NotContains(t, v, "B03003_")
	}
	assert.Contains(t, vars, VarRaceTotal)
	assert.Contains(t, vars, "B03002_012E")
}

func TestPct(t *testing.T) {
	assert.Equal(t, 33.3, pct(1, 3))
	assert.Equal(t, 66.7, pct(2, 3))
	assert.Equal(t, 0.0, pct(5, 0))
	assert.Equal(t, 0.0, pct(5, -1))
}

func testGeo() *geocode.GeoIdentifier {
	return &geocode.GeoIdentifier{State: "36", County: "061", Tract: "007600", BlockGroup: "1", FullGeoID: "360610076001"}
}

func TestNormalize(t *testing.T) {
	client := &fakeACS{values: fullValues()}
	n := NewNormalizer(client, benchmark.MustDefault(), WithRawMetrics())

	p, err := n.Normalize(context.Background(), testGeo())
	require.NoError(t, err)
	assert.Equal(t, "New York", p.StateName)
	assert.Equal(t, "New York", p.Benchmark.StateName)
	assert.Equal(t, benchmark.National, p.Benchmark.National.Name)
	assert.Equal(t, "360610076001", p.Geo.FullGeoID)
	assert.NotEmpty(t, p.Raw)
	assert.Equal(t, acs.Geography{State: "36", County: "061", Tract: "007600", BlockGroup: "1"}, client.geo)
	assert.Equal(t, Variables(), client.vars)
}

func TestNormalize_UnknownStateUsesNational(t *testing.T) {
	geo := testGeo()
	geo.State = "99"
	n := NewNormalizer(&fakeACS{values: fullValues()}, benchmark.MustDefault())

	p, err := n.Normalize(context.Background(), geo)
	require.NoError(t, err)
	assert.Equal(t, benchmark.National, p.StateName)
	assert.Nil(t, p.Raw)
}

func TestNormalize_Unavailable(t *testing.T) {
	store := benchmark.MustDefault()
	tests := []struct {
		name   string
		geo    *geocode.GeoIdentifier
		client *fakeACS
	}{
		{"nil geography", nil, &fakeACS{}},
		{"no data", testGeo(), &fakeACS{err: acs.ErrNoData}},
		{"transport error", testGeo(), &fakeACS{err: errors.New("connection refused")}},
		{"empty row", testGeo(), &fakeACS{values: acs.Values{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewNormalizer(tt.client, store).Normalize(context.Background(), tt.geo)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrStatisticsUnavailable)
		})
	}
}
