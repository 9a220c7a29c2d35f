package palmer

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestComputeTrimsPartialYear(t *testing.T) {
	const months = 30
	in := Input{
		Precipitation: randomPrecip(months, 3, 1),
		PET:           seasonalPET(months),
		AWC:           5,
		StartYear:     2000,
	}

	res, err := Compute(in, WithWaterBalance())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for name, s := range map[string]Series{
		"PDSI": res.PDSI, "PHDI": res.PHDI, "PMDI": res.PMDI, "Z": res.Z,
		"ET": res.WaterBalance.ET, "Loss": res.WaterBalance.Loss,
	} {
		if len(s) != months {
			t.Errorf("%s has %d months, want %d", name, len(s), months)
		}
	}
	if len(res.Spells.State) != months {
		t.Errorf("State has %d months, want %d", len(res.Spells.State), months)
	}
	if res.Window != (Window{Start: 2000, End: 2002}) {
		t.Errorf("window %v, want the full record", res.Window)
	}
	if !hasWarning(res.Warnings, WarningWindowClamped) {
		t.Errorf("warnings %v lack %s", res.Warnings, WarningWindowClamped)
	}
	if res.SCPDSI != nil || res.Calibration != nil {
		t.Error("self-calibration ran without being requested")
	}
}

func TestComputeNoSpellWhenPrecipitationMatchesPET(t *testing.T) {
	const months = 120
	in := Input{
		Precipitation: make(Series, months),
		PET:           make(Series, months),
		AWC:           5,
		StartYear:     1980,
		Calibration:   Window{Start: 1980, End: 1989},
	}
	for k := 0; k < months; k++ {
		in.Precipitation[k] = 2 + float64(k%12)/4
		in.PET[k] = in.Precipitation[k]
	}

	res, err := Compute(in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for k := 0; k < months; k++ {
		if res.Z[k] != 0 || res.PDSI[k] != 0 || res.PHDI[k] != 0 || res.PMDI[k] != 0 {
			t.Fatalf("month %d: Z %v PDSI %v PHDI %v PMDI %v, want all 0",
				k, res.Z[k], res.PDSI[k], res.PHDI[k], res.PMDI[k])
		}
		if s := res.Spells; s.X1[k] != 0 || s.X2[k] != 0 || s.X3[k] != 0 || s.State[k] != NoSpell {
			t.Fatalf("month %d: X1 %v X2 %v X3 %v state %v", k, s.X1[k], s.X2[k], s.X3[k], s.State[k])
		}
	}
	if !hasWarning(res.Warnings, WarningUnusableMonth) {
		t.Errorf("warnings %v lack %s", res.Warnings, WarningUnusableMonth)
	}
}

func TestComputeSustainedDeficit(t *testing.T) {
	const (
		normalYears  = 30
		droughtYears = 5
	)
	months := (normalYears + droughtYears) * 12
	precip := randomPrecip(months, 3, 21)
	for k := normalYears * 12; k < months; k++ {
		precip[k] = 0
	}
	in := Input{
		Precipitation: precip,
		PET:           seasonalPET(months),
		AWC:           6,
		StartYear:     1931,
		Calibration:   Window{Start: 1931, End: 1960},
	}

	res, err := Compute(in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	established, lowest := false, 0.0
	for k := normalYears * 12; k < months; k++ {
		if res.Spells.State[k] == EstablishedDrought {
			established = true
		}
		lowest = math.Min(lowest, res.PDSI[k])
	}
	if !established {
		t.Error("the drought never became established")
	}
	if lowest > -2 {
		t.Errorf("lowest drought PDSI %v, want below -2", lowest)
	}
	if x3 := res.Spells.X3[months-1]; x3 >= -0.5 {
		t.Errorf("final X3 %v, want below -0.5", x3)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	in := calibrationInput()
	a, err := Compute(in, WithSelfCalibration())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(in, WithSelfCalibration())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	for name, pair := range map[string][2]Series{
		"PDSI":   {a.PDSI, b.PDSI},
		"PHDI":   {a.PHDI, b.PHDI},
		"PMDI":   {a.PMDI, b.PMDI},
		"Z":      {a.Z, b.Z},
		"SCPDSI": {a.SCPDSI, b.SCPDSI},
	} {
		for k := range pair[0] {
			if math.Float64bits(pair[0][k]) != math.Float64bits(pair[1][k]) {
				t.Fatalf("%s[%d] differs: %v vs %v", name, k, pair[0][k], pair[1][k])
			}
		}
	}
}

func TestComputeErrors(t *testing.T) {
	good := calibrationInput()

	tests := []struct {
		name      string
		mutate    func(in *Input)
		opts      []Option
		want      error
		retryable bool
	}{
		{
			name:   "length mismatch",
			mutate: func(in *Input) { in.PET = in.PET[:len(in.PET)-1] },
			want:   ErrLengthMismatch,
		},
		{
			name:   "bad awc",
			mutate: func(in *Input) { in.AWC = -1 },
			want:   ErrInvalidAWC,
		},
		{
			name:      "inverted window",
			mutate:    func(in *Input) { in.Calibration = Window{Start: 1980, End: 1950} },
			want:      ErrInvalidCalibration,
			retryable: true,
		},
		{
			name:   "bad params",
			mutate: func(in *Input) {},
			opts: []Option{WithParams(Params{
				Wet: PalmerDurationFactors, Dry: PalmerDurationFactors,
				EstablishThreshold: 0, NearNormal: 0.5, AbatementZ: 0.15, ScaleBound: 4,
			})},
			want: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := good
			in.Precipitation = good.Precipitation.Clone()
			in.PET = good.PET.Clone()
			tt.mutate(&in)

			res, err := Compute(in, tt.opts...)
			if res != nil {
				t.Error("partial result returned with an error")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestComputeMissingMonthsPropagate(t *testing.T) {
	in := calibrationInput()
	in.Precipitation = in.Precipitation.Clone()
	in.Precipitation[100] = math.NaN()

	res, err := Compute(in, WithWaterBalance())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for name, s := range map[string]Series{
		"Z": res.Z, "PDSI": res.PDSI, "PHDI": res.PHDI, "PMDI": res.PMDI, "ET": res.WaterBalance.ET,
	} {
		if !Missing(s[100]) {
			t.Errorf("%s[100] = %v, want missing", name, s[100])
		}
		if Missing(s[101]) {
			t.Errorf("%s[101] is missing", name)
		}
	}

	if _, err := json.Marshal(res); err != nil {
		t.Errorf("result with missing months does not marshal: %v", err)
	}
}
