package census

import "fmt"

// ACS 5-year variable codes read for a block group.
const (
	VarMedianIncome    = "B19013_001E"
	VarMedianHomeValue = "B25077_001E"
	VarMedianRent      = "B25064_001E"
	VarMedianAge       = "B01002_001E"
	VarTotalPopulation = "B01003_001E"

	VarEduTotal      = "B15003_001E"
	VarEduHighSchool = "B15003_017E"
	VarEduBachelor   = "B15003_022E"
	VarEduMasters    = "B15003_023E"
	VarEduProfession = "B15003_024E"
	VarEduDoctorate  = "B15003_025E"

	// B03002 splits Hispanic or Latino residents out of every race
	// bucket, so the four groups never overlap.
	VarRaceTotal   = "B03002_001E"
	VarRaceWhite   = "B03002_003E"
	VarRaceBlack   = "B03002_004E"
	VarRaceAsian   = "B03002_006E"
	VarHispanic    = "B03002_012E"
	VarHouseholds  = "B19001_001E"
	VarSexAgeTotal = "B01001_001E"
)

// Household income brackets B19001_002E..017E, split at the 50k and 150k
// boundaries.
var (
	incomeUnder50k = seq("B19001_%03dE", 2, 10)  // < $50,000
	income50to150k = seq("B19001_%03dE", 11, 15) // $50,000 - $149,999
	incomeOver150k = seq("B19001_%03dE", 16, 17) // >= $150,000
)

// B01001 sex-by-age brackets. Male 003..025 and female 027..049 share the
// same age layout, offset by 24.
var (
	ageUnder18 = sexAge(3, 6)
	age18to24  = sexAge(7, 10)
	age25to44  = sexAge(11, 14)
	age45to64  = sexAge(15, 19)
	age65plus  = sexAge(20, 25)
)

func seq(format string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf(format, i))
	}
	return out
}

func sexAge(maleFrom, maleTo int) []string {
	male := seq("B01001_%03dE", maleFrom, maleTo)
	female := seq("B01001_%03dE", maleFrom+24, maleTo+24)
	return append(male, female...)
}

// Variables lists every code fetched for a profile, without duplicates.
func Variables() []string {
	groups := [][]string{
		{
			VarMedianIncome, VarMedianHomeValue, VarMedianRent, VarMedianAge, VarTotalPopulation,
			VarEduTotal, VarEduHighSchool, VarEduBachelor, VarEduMasters, VarEduProfession, VarEduDoctorate,
			VarRaceTotal, VarRaceWhite, VarRaceBlack, VarRaceAsian, VarHispanic,
			VarHouseholds, VarSexAgeTotal,
		},
		incomeUnder50k, income50to150k, incomeOver150k,
		ageUnder18, age18to24, age25to44, age45to64, age65plus,
	}

	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		for _, v := range g {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
