package palmer

import "math"

// DurationFactors are the slope (m) and intercept (b) of the line relating
// the length of a spell to the accumulated Z-index that marks an extreme
// spell. The index recurrence is X[k] = c*X[k-1] + Z[k]/(m+b) with
// c = 1 - m/(m+b).
type DurationFactors struct {
	Slope     float64 `json:"slope" yaml:"slope"`
	Intercept float64 `json:"intercept" yaml:"intercept"`
}

// PalmerDurationFactors are Palmer's (1965) factors, giving c = 0.897 and a
// Z weight of 1/3.
var PalmerDurationFactors = DurationFactors{Slope: 0.309, Intercept: 2.691}

// Usable reports whether the factors define a finite recurrence.
func (d DurationFactors) Usable() bool {
	sum := d.Slope + d.Intercept
	return sum != 0 && !math.IsNaN(sum) && !math.IsInf(sum, 0)
}

func (d DurationFactors) carry() float64 {
	return 1 - d.Slope/(d.Slope+d.Intercept)
}

func (d DurationFactors) weight() float64 {
	return 1 / (d.Slope + d.Intercept)
}

// next advances an index value by one month.
func (d DurationFactors) next(x, z float64) float64 {
	return d.carry()*x + z*d.weight()
}

// endingAnomaly is the Z value that would bring index x back to the
// near-normal bound (+bound for wd = 1, -bound for wd = -1) in one month.
func (d DurationFactors) endingAnomaly(x, bound float64, wd float64) float64 {
	return (d.Slope + d.Intercept) * (wd*bound - d.carry()*x)
}

// Params holds every constant used by the spell state machine so alternate
// parameterizations can be run side by side.
type Params struct {
	// Wet factors drive X1 and an established wet spell; Dry factors drive
	// X2 and an established drought.
	Wet DurationFactors `json:"wet" yaml:"wet"`
	Dry DurationFactors `json:"dry" yaml:"dry"`

	// EstablishThreshold is the |X1|/|X2| value at which an incipient spell
	// becomes established.
	EstablishThreshold float64 `json:"establish_threshold" yaml:"establish_threshold"`

	// NearNormal bounds the "near normal" band; a spell whose |X3| falls to
	// or below it has ended.
	NearNormal float64 `json:"near_normal" yaml:"near_normal"`

	// AbatementZ is the Z magnitude that holds an index at the near-normal
	// bound. Weaker anomalies count toward ending a spell.
	AbatementZ float64 `json:"abatement_z" yaml:"abatement_z"`

	// ScaleBound is the index value assigned to an extreme spell (4.0).
	ScaleBound float64 `json:"scale_bound" yaml:"scale_bound"`

	// RoundDigits is the number of decimals every monthly value is rounded
	// to. Negative disables rounding.
	RoundDigits int `json:"round_digits" yaml:"round_digits"`
}

// DefaultParams returns Palmer's original constants.
func DefaultParams() Params {
	return Params{
		Wet:                PalmerDurationFactors,
		Dry:                PalmerDurationFactors,
		EstablishThreshold: 1.0,
		NearNormal:         0.5,
		AbatementZ:         0.15,
		ScaleBound:         4.0,
		RoundDigits:        4,
	}
}

// factorsFor selects the factors for an established index: wet when x3 >= 0.
func (p Params) factorsFor(x3 float64) DurationFactors {
	if x3 >= 0 {
		return p.Wet
	}
	return p.Dry
}

func (p Params) round(v float64) float64 {
	if p.RoundDigits < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(p.RoundDigits))
	return math.Round(v*scale) / scale
}
