package palmer

import (
	"math"
	"testing"
)

func TestRunSpellsSequences(t *testing.T) {
	tests := []struct {
		name      string
		z         []float64
		pdsi      []float64
		selection []Selection
		state     []SpellState
	}{
		{
			name:      "all zero",
			z:         []float64{0, 0, 0},
			pdsi:      []float64{0, 0, 0},
			selection: []Selection{SelectX2, SelectX2, SelectX2},
			state:     []SpellState{NoSpell, NoSpell, NoSpell},
		},
		{
			name:      "drought establishes on the fourth month",
			z:         []float64{-1, -1, -1, -1},
			pdsi:      []float64{-0.3333, -0.6323, -0.9005, -1.1411},
			selection: []Selection{SelectX2, SelectX2, SelectX2, SelectX3},
			state:     []SpellState{IncipientDry, IncipientDry, IncipientDry, EstablishedDrought},
		},
		{
			name:      "ambiguous month settled by a later drought",
			z:         []float64{0.9, -0.6, -3},
			pdsi:      []float64{0.3, -0.2, -1.1794},
			selection: []Selection{SelectX1, SelectX2, SelectX3},
			state:     []SpellState{IncipientWet, IncipientDry, EstablishedDrought},
		},
		{
			name:      "ambiguous month settled by a later wet spell",
			z:         []float64{0.9, -0.6, 3},
			pdsi:      []float64{0.3, 0.0691, 1.062},
			selection: []Selection{SelectX1, SelectX1, SelectX3},
			state:     []SpellState{IncipientWet, IncipientWet, EstablishedWet},
		},
		{
			name:      "ambiguous final month takes the larger magnitude",
			z:         []float64{0.9, -0.6},
			pdsi:      []float64{0.3, -0.2},
			selection: []Selection{SelectX1, SelectX2},
			state:     []SpellState{IncipientWet, IncipientDry},
		},
		{
			name:      "abatement that does not end the spell keeps X3",
			z:         []float64{3.3, 3, 0, 3},
			pdsi:      []float64{1.1, 1.9867, 1.7821, 2.5985},
			selection: []Selection{SelectX3, SelectX3, SelectX3, SelectX3},
			state:     []SpellState{EstablishedWet, EstablishedWet, Abating, EstablishedWet},
		},
		{
			name: "weak anomaly against a fading wet spell keeps it abating",
			z:    append(append([]float64{3.3}, repeated(0.15, 20)...), 0.1, 0.2),
			pdsi: []float64{
				1.1, 1.0367, 0.9799, 0.929, 0.8833, 0.8423, 0.8055, 0.7725, 0.7429, 0.7164, 0.6926, 0.6713,
				0.6522, 0.635, 0.6196, 0.6058, 0.5934, 0.5823, 0.5723, 0.5634, 0.5554, 0.5315, 0.5434,
			},
			selection: repeatedSelection(SelectX3, 23),
			state:     append(repeatedState(EstablishedWet, 21), Abating, EstablishedWet),
		},
		{
			name:      "spell ending after several abating months backtracks along X1 and X2",
			z:         []float64{3.3, 3, -1.5, 0.7, 0.7, -4},
			pdsi:      []float64{1.1, 1.9867, -0.5, 0.2333, 0.4426, -1.3333},
			selection: []Selection{SelectX3, SelectX3, SelectX2, SelectX1, SelectX1, SelectX3},
			state:     []SpellState{EstablishedWet, EstablishedWet, Abating, Abating, Abating, EstablishedDrought},
		},
		{
			name:      "abating months before an ambiguous final month follow the larger branch",
			z:         []float64{3.3, 3, -1.5, -1.5, 0.3, -0.2},
			pdsi:      []float64{1.1, 1.9867, -0.5, -0.9485, -0.7508, -0.7401},
			selection: []Selection{SelectX3, SelectX3, SelectX2, SelectX2, SelectX2, SelectX2},
			state:     []SpellState{EstablishedWet, EstablishedWet, Abating, Abating, Abating, IncipientDry},
		},
		{
			name:      "abating months at the end of the record keep X3",
			z:         []float64{3.3, 3, 0, 0},
			pdsi:      []float64{1.1, 1.9867, 1.7821, 1.5985},
			selection: []Selection{SelectX3, SelectX3, SelectX3, SelectX3},
			state:     []SpellState{EstablishedWet, EstablishedWet, Abating, Abating},
		},
		{
			name:      "probability rounding to zero ends the abatement",
			z:         []float64{-3.3, -3, -0.01, -0.29, 4},
			pdsi:      []float64{-1.1, -1.9867, -1.7854, -1.6982, 1.3333},
			selection: []Selection{SelectX3, SelectX3, SelectX3, SelectX3, SelectX3},
			state:     []SpellState{EstablishedDrought, EstablishedDrought, Abating, EstablishedDrought, EstablishedWet},
		},
		{
			name:      "wet spell ends and a drought begins in one month",
			z:         []float64{3.3, -6},
			pdsi:      []float64{1.1, -2},
			selection: []Selection{SelectX3, SelectX3},
			state:     []SpellState{EstablishedWet, EstablishedDrought},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := RunSpells(tt.z, DefaultParams())
			assertSeries(t, "PDSI", s.PDSI, tt.pdsi, 1e-6)
			for k := range tt.z {
				if s.Selection[k] != tt.selection[k] {
					t.Errorf("Selection[%d] = %v, want %v", k, s.Selection[k], tt.selection[k])
				}
				if s.State[k] != tt.state[k] {
					t.Errorf("State[%d] = %v, want %v", k, s.State[k], tt.state[k])
				}
			}
		})
	}
}

func TestRunSpellsSustainedDrought(t *testing.T) {
	z := make([]float64, 240)
	for k := range z {
		z[k] = -1
	}

	s := RunSpells(z, DefaultParams())

	// X3 converges to (Z/3) / (1 - 0.897).
	want := -1.0 / 3 / 0.103
	if got := s.PDSI[len(z)-1]; !approxEqual(got, want, 0.01) {
		t.Errorf("final PDSI = %v, want about %v", got, want)
	}
	for k := 3; k < len(z); k++ {
		if s.X3[k] >= -0.5 {
			t.Fatalf("X3[%d] = %v, want an established drought", k, s.X3[k])
		}
		if s.PHDI[k] != s.X3[k] {
			t.Fatalf("PHDI[%d] = %v, want X3 %v", k, s.PHDI[k], s.X3[k])
		}
	}
}

func TestRunSpellsAbatementProbability(t *testing.T) {
	s := RunSpells([]float64{3.3, 3, 0, 3}, DefaultParams())

	// U = -0.15 against Ze = 3 * (0.5 - 0.897 * 1.9867).
	want := 100 * 0.15 / (3 * (0.897*1.9867 - 0.5))
	if got := s.Probability[2]; !approxEqual(got, want, 1e-4) {
		t.Errorf("Probability[2] = %v, want %v", got, want)
	}
	if s.Probability[3] != 0 {
		t.Errorf("Probability[3] = %v, want 0 once the spell resumes", s.Probability[3])
	}

	pe := s.Probability[2] / 100
	pmdi := (1-pe)*s.X3[2] + pe*s.X2[2]
	if !approxEqual(s.PMDI[2], pmdi, 1e-4) {
		t.Errorf("PMDI[2] = %v, want %v", s.PMDI[2], pmdi)
	}
}

func TestRunSpellsBacktrackAfterAbatement(t *testing.T) {
	s := RunSpells([]float64{3.3, 3, -1.5, 0.7, 0.7, -4}, DefaultParams())

	assertSeries(t, "X1", s.X1[2:5], []float64{0, 0.2333, 0.4426}, 1e-6)
	assertSeries(t, "X2", s.X2[2:5], []float64{-0.5, -0.2152, 0}, 1e-6)
	assertSeries(t, "Probability", s.Probability[2:], []float64{42.8994, 30.5544, 16.5527, 100}, 1e-4)

	// The abating months keep their X3 as the hydrological index.
	assertSeries(t, "PHDI", s.PHDI[2:5], []float64{1.2821, 1.3834, 1.4742}, 1e-6)
}

func TestRunSpellsWeakAbatementCarriesOn(t *testing.T) {
	z := append(append([]float64{3.3}, repeated(0.15, 20)...), 0.1)

	s := RunSpells(z, DefaultParams())
	last := len(z) - 1
	if s.X3[last] != 0.5315 {
		t.Errorf("X3[%d] = %v, want 0.5315", last, s.X3[last])
	}
	if s.Probability[last] != 0 {
		t.Errorf("Probability[%d] = %v, want 0 for an anomaly too weak to end the spell", last, s.Probability[last])
	}
	if s.PMDI[last] != s.X3[last] {
		t.Errorf("PMDI[%d] = %v, want X3 %v", last, s.PMDI[last], s.X3[last])
	}
}

func TestRunSpellsEndedSpell(t *testing.T) {
	s := RunSpells([]float64{3.3, -6}, DefaultParams())
	if s.Probability[1] != 100 {
		t.Errorf("Probability[1] = %v, want 100", s.Probability[1])
	}
	if s.X3[1] != -2 {
		t.Errorf("X3[1] = %v, want -2", s.X3[1])
	}
}

func TestRunSpellsSelectionInvariant(t *testing.T) {
	z := make([]float64, 600)
	for k := range z {
		z[k] = 2.5*math.Sin(float64(k)*0.7) + 1.3*math.Cos(float64(k)*0.13)
	}

	s := RunSpells(z, DefaultParams())
	for k := range z {
		x := s.PDSI[k]
		if x != s.X1[k] && x != s.X2[k] && x != s.X3[k] {
			t.Fatalf("month %d: PDSI %v is none of X1 %v, X2 %v, X3 %v", k, x, s.X1[k], s.X2[k], s.X3[k])
		}
		if s.X1[k] < 0 || s.X2[k] > 0 {
			t.Fatalf("month %d: X1 %v or X2 %v has the wrong sign", k, s.X1[k], s.X2[k])
		}
		if p := s.Probability[k]; p < 0 || p > 100 {
			t.Fatalf("month %d: probability %v out of range", k, p)
		}
		wantPHDI := s.X3[k]
		if wantPHDI == 0 {
			wantPHDI = x
		}
		if s.PHDI[k] != wantPHDI {
			t.Fatalf("month %d: PHDI %v, want %v", k, s.PHDI[k], wantPHDI)
		}
	}
}

func TestRunSpellsMissingMonths(t *testing.T) {
	full := RunSpells([]float64{-1, math.NaN(), -1, -1, -1}, DefaultParams())
	skipped := RunSpells([]float64{-1, -1, -1, -1}, DefaultParams())

	if !Missing(full.PDSI[1]) || !Missing(full.PHDI[1]) || !Missing(full.PMDI[1]) {
		t.Errorf("month 1 = %v/%v/%v, want missing", full.PDSI[1], full.PHDI[1], full.PMDI[1])
	}
	assertSeries(t, "PDSI", []float64{full.PDSI[0], full.PDSI[2], full.PDSI[3], full.PDSI[4]}, skipped.PDSI, 0)
}

func TestRunSpellsUnusableFactors(t *testing.T) {
	p := DefaultParams()
	p.Dry = DurationFactors{Slope: 1, Intercept: -1}

	s := RunSpells([]float64{1, -1, 2}, p)
	for k := range s.PDSI {
		if !Missing(s.PDSI[k]) {
			t.Errorf("PDSI[%d] = %v, want missing", k, s.PDSI[k])
		}
	}
	if !hasWarning(s.Warnings, WarningUnusableDurationFactors) {
		t.Errorf("warnings %v lack %s", s.Warnings, WarningUnusableDurationFactors)
	}
}

func TestModifiedIndex(t *testing.T) {
	tests := []struct {
		name           string
		pe, x1, x2, x3 float64
		want           float64
	}{
		{"no spell prefers larger magnitude", 0, 0.4, -0.6, 0, -0.6},
		{"no spell tie picks X1", 0, 0.5, -0.5, 0, 0.5},
		{"established", 0, 0.2, -0.1, 2, 2},
		{"ended", 100, 0.2, -0.1, 2, 2},
		{"abating drought blends toward X1", 50, 0.4, -0.2, -2, -0.8},
		{"abating wet spell blends toward X2", 25, 0.4, -0.4, 2, 1.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := modifiedIndex(tt.pe, tt.x1, tt.x2, tt.x3); !approxEqual(got, tt.want, 1e-12) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func repeated(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func repeatedSelection(sel Selection, n int) []Selection {
	out := make([]Selection, n)
	for i := range out {
		out[i] = sel
	}
	return out
}

func repeatedState(st SpellState, n int) []SpellState {
	out := make([]SpellState, n)
	for i := range out {
		out[i] = st
	}
	return out
}
