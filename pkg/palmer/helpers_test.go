package palmer

import (
	"math"
	"math/rand"
	"testing"
)

func approxEqual(a, b, epsilon float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= epsilon
}

func assertSeries(t *testing.T, name string, got, want []float64, epsilon float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length %d, want %d", name, len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i], epsilon) {
			t.Errorf("%s[%d] = %v, want %v", name, i, got[i], want[i])
		}
	}
}

// seasonalPET is a smooth annual PET cycle peaking in July.
func seasonalPET(months int) Series {
	pet := make(Series, months)
	for k := range pet {
		pet[k] = 2.5 + 2*math.Sin(2*math.Pi*float64(k%12-3)/12)
	}
	return pet
}

// randomPrecip draws exponentially distributed monthly totals with the
// given mean from a fixed seed.
func randomPrecip(months int, mean float64, seed int64) Series {
	r := rand.New(rand.NewSource(seed))
	p := make(Series, months)
	for k := range p {
		p[k] = math.Round(mean*r.ExpFloat64()*100) / 100
	}
	return p
}

func hasWarning(ws []Warning, kind WarningKind) bool {
	for _, w := range ws {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
