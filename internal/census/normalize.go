package census

import "github.com/tanshuai2008/HouSmart-test/pkg/acs"

// Derive computes normalized metrics from raw block-group values. Missing
// inputs count as zero; a category whose denominator is zero reports 0
// for every bucket.
func Derive(v acs.Values) map[string]Metric {
	m := make(map[string]Metric, 24)

	medians := []struct {
		key  string
		code string
		unit Unit
	}{
		{MedianIncome, VarMedianIncome, UnitCurrency},
		{MedianHomeValue, VarMedianHomeValue, UnitCurrency},
		{MedianRent, VarMedianRent, UnitCurrency},
		{MedianAge, VarMedianAge, UnitYears},
		{TotalPopulation, VarTotalPopulation, UnitCount},
	}
	for _, md := range medians {
		if val, ok := v[md.code]; ok {
			m[md.key] = Metric{Local: val, Unit: md.unit}
		}
	}

	// Income: household brackets over the household total.
	lo, mid, hi := sum(v, incomeUnder50k), sum(v, income50to150k), sum(v, incomeOver150k)
	households := firstPositive(v[VarHouseholds], lo+mid+hi)
	setPct(m, IncomeUnder50k, lo, households)
	setPct(m, Income50to150k, mid, households)
	setPct(m, IncomeOver150k, hi, households)

	// Age: male + female brackets over total population.
	ages := []float64{sum(v, ageUnder18), sum(v, age18to24), sum(v, age25to44), sum(v, age45to64), sum(v, age65plus)}
	people := firstPositive(v[VarSexAgeTotal], total(ages))
	for i, key := range []string{AgeUnder18, Age18to24, Age25to44, Age45to64, Age65Plus} {
		setPct(m, key, ages[i], people)
	}

	// Education: population 25+, with a remainder bucket.
	edu25 := v[VarEduTotal]
	hs := v[VarEduHighSchool]
	bach := v[VarEduBachelor]
	adv := v[VarEduMasters] + v[VarEduProfession] + v[VarEduDoctorate]
	setPct(m, EduHighSchool, hs, edu25)
	setPct(m, EduBachelor, bach, edu25)
	setPct(m, EduAdvanced, adv, edu25)
	setPct(m, EduOther, max(0, edu25-hs-bach-adv), edu25)

	// Race and ethnicity over total population. White, Black and Asian
	// count non-Hispanic residents only.
	pop := firstPositive(v[VarRaceTotal], v[VarTotalPopulation], v[VarSexAgeTotal])
	white, black, asian, hispanic := v[VarRaceWhite], v[VarRaceBlack], v[VarRaceAsian], v[VarHispanic]
	setPct(m, RaceWhite, white, pop)
	setPct(m, RaceBlack, black, pop)
	setPct(m, RaceAsian, asian, pop)
	setPct(m, RaceHispanic, hispanic, pop)
	setPct(m, RaceOther, max(0, pop-white-black-asian-hispanic), pop)

	return m
}

func setPct(m map[string]Metric, key string, num, den float64) {
	m[key] = Metric{Local: pct(num, den), Unit: UnitPercentage}
}

func sum(v acs.Values, codes []string) float64 {
	var t float64
	for _, c := range codes {
		t += v[c]
	}
	return t
}

func total(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}

func firstPositive(xs ...float64) float64 {
	for _, x := range xs {
		if x > 0 {
			return x
		}
	}
	return 0
}
