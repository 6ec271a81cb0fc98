package benchmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(vals []float64) float64 {
	var t float64
	for _, v := range vals {
		t += v
	}
	return t
}

func TestDefault_Loads(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	names := s.Names()
	// 50 states, DC, Puerto Rico, national.
	assert.Len(t, names, 53)
	assert.Equal(t, National, names[len(names)-1])
}

func TestDefault_ClosedCategories(t *testing.T) {
	s := MustDefault()
	for _, name := range s.Names() {
		b := s.Lookup(name)
		assert.InDelta(t, 100, sum(b.State.Income), 0.2, "%s income", name)
		assert.InDelta(t, 100, sum(b.State.Age), 0.2, "%s age", name)
		assert.InDelta(t, 100, sum(b.State.Education), 0.2, "%s education", name)
		for _, v := range b.State.Race {
			assert.GreaterOrEqual(t, v, 0.0, "%s race", name)
		}
	}
}

func TestLookup(t *testing.T) {
	s := MustDefault()

	b := s.Lookup("New York")
	assert.Equal(t, "New York", b.StateName)
	assert.Equal(t, "36", b.State.FIPS)
	assert.Equal(t, National, b.National.Name)
	assert.Positive(t, b.State.MedianIncome)

	b = s.Lookup("  Texas ")
	assert.Equal(t, "Texas", b.StateName)
}

func TestLookup_UnknownFallsBackToNational(t *testing.T) {
	s := MustDefault()
	b := s.Lookup("Atlantis")
	assert.Equal(t, National, b.StateName)
	assert.Equal(t, b.National, b.State)
}

func TestStateNameForFIPS(t *testing.T) {
	s := MustDefault()
	tests := []struct {
		fips string
		want string
	}{
		{"36", "New York"},
		{"06", "California"},
		{"11", "District of Columbia"},
		{"72", "Puerto Rico"},
		{"99", National},
		{"", National},
	}
	for _, tt := range tests {
		t.Run(tt.fips, func(t *testing.T) {
			assert.Equal(t, tt.want, s.StateNameForFIPS(tt.fips))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("states: ["))
	assert.Error(t, err)

	_, err = Parse([]byte(`states:
  - name: Nowhere
    income: [1, 2, 3]
    age: [1, 2, 3, 4, 5]
    race: [1, 2, 3, 4, 5]
    education: [1, 2, 3, 4]
`))
	assert.ErrorContains(t, err, "United States")

	_, err = Parse([]byte(`states:
  - name: United States
    income: [1, 2]
    age: [1, 2, 3, 4, 5]
    race: [1, 2, 3, 4, 5]
    education: [1, 2, 3, 4]
`))
	assert.ErrorContains(t, err, "income has 2 buckets")
}

func TestDetectState(t *testing.T) {
	s := MustDefault()
	tests := []struct {
		address string
		want    string
	}{
		{"100 1st Ave, New York, New York 10009", "New York"},
		{"1 Capitol Way, Charleston, West Virginia", "West Virginia"},
		{"500 President Clinton Ave, Little Rock, Arkansas", "Arkansas"},
		{"1 Main St, Springfield, IL", National},
		{"", National},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.DetectState(tt.address), tt.address)
	}
}
