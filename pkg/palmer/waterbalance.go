package palmer

import (
	"math"
)

// SurfaceCapacity is the nominal moisture capacity of the surface layer.
const SurfaceCapacity = 1.0

// WaterBalance holds the monthly output of the two-layer soil moisture model.
// All series share the length of the inputs. A month with missing
// precipitation or PET is missing in every series.
type WaterBalance struct {
	AWC float64 `json:"awc"`

	Precipitation Series `json:"precipitation"`
	PET           Series `json:"pet"`

	ET                Series `json:"et"`
	PotentialRecharge Series `json:"potential_recharge"`
	Recharge          Series `json:"recharge"`
	Runoff            Series `json:"runoff"`
	PotentialRunoff   Series `json:"potential_runoff"`
	Loss              Series `json:"loss"`
	PotentialLoss     Series `json:"potential_loss"`

	// End-of-month layer moisture.
	SurfaceMoisture    Series `json:"surface_moisture"`
	UnderlyingMoisture Series `json:"underlying_moisture"`
}

// soil is the carried state of the two reservoirs.
type soil struct {
	awc            float64
	surfaceCap     float64
	underCap       float64
	surface, under float64
}

func newSoil(awc float64) soil {
	surfaceCap := math.Min(SurfaceCapacity, awc)
	underCap := awc - surfaceCap
	return soil{
		awc:        awc,
		surfaceCap: surfaceCap,
		underCap:   underCap,
		surface:    surfaceCap,
		under:      underCap,
	}
}

// fluxes is one month of water balance accounting.
type fluxes struct {
	et, pr, r, ro, pro, l, pl float64
}

// potentials are computed from the state at the start of the month.
func (s *soil) potentials(pet float64) (pr, pro, pl float64) {
	stored := s.surface + s.under
	pr = s.awc - stored
	pro = stored

	var pls float64
	if s.surface >= pet {
		pls = pet
	} else {
		pls = s.surface
	}
	plu := math.Min((pet-pls)*s.under/s.awc, s.under)
	pl = pls + plu
	return pr, pro, pl
}

// step advances the soil by one month and returns its fluxes.
func (s *soil) step(p, pet float64) fluxes {
	var f fluxes
	f.pr, f.pro, f.pl = s.potentials(pet)

	b := p - pet
	if b >= 0 {
		f.et = pet

		var rs, ru float64
		if room := s.surfaceCap - s.surface; b > room {
			rs = room
			s.surface = s.surfaceCap
		} else {
			rs = b
			s.surface += b
		}

		excess := b - rs
		if room := s.underCap - s.under; excess > room {
			ru = room
			s.under = s.underCap
			f.ro = excess - ru
		} else {
			ru = excess
			s.under += excess
		}
		f.r = rs + ru
		return f
	}

	deficit := -b
	var ls, lu float64
	if s.surface >= deficit {
		ls = deficit
		s.surface -= deficit
	} else {
		ls = s.surface
		s.surface = 0
		lu = math.Min((deficit-ls)*s.under/s.awc, s.under)
		if lu == s.under {
			s.under = 0
		} else {
			s.under -= lu
		}
	}
	f.l = ls + lu
	f.et = p + f.l
	return f
}

// ComputeWaterBalance runs Palmer's two-layer model over parallel
// precipitation and PET series. Both layers start full. The surface layer
// holds min(1, awc) and the underlying layer the remainder, so an AWC below
// one unit has no underlying layer at all.
func ComputeWaterBalance(awc float64, precip, pet []float64) (*WaterBalance, error) {
	if err := validateAWC(awc); err != nil {
		return nil, err
	}
	if err := validateSeries(precip, pet); err != nil {
		return nil, err
	}

	n := len(precip)
	wb := &WaterBalance{
		AWC:                awc,
		Precipitation:      Series(precip).Clone(),
		PET:                Series(pet).Clone(),
		ET:                 NewMissing(n),
		PotentialRecharge:  NewMissing(n),
		Recharge:           NewMissing(n),
		Runoff:             NewMissing(n),
		PotentialRunoff:    NewMissing(n),
		Loss:               NewMissing(n),
		PotentialLoss:      NewMissing(n),
		SurfaceMoisture:    NewMissing(n),
		UnderlyingMoisture: NewMissing(n),
	}

	s := newSoil(awc)
	for k := 0; k < n; k++ {
		if Missing(precip[k]) || Missing(pet[k]) {
			continue
		}

		f := s.step(precip[k], pet[k])
		if f.r < 0 || f.l < 0 {
			return nil, &FluxError{Month: k, Recharge: f.r, Loss: f.l}
		}

		wb.ET[k] = f.et
		wb.PotentialRecharge[k] = f.pr
		wb.Recharge[k] = f.r
		wb.Runoff[k] = f.ro
		wb.PotentialRunoff[k] = f.pro
		wb.Loss[k] = f.l
		wb.PotentialLoss[k] = f.pl
		wb.SurfaceMoisture[k] = s.surface
		wb.UnderlyingMoisture[k] = s.under
	}
	return wb, nil
}

func validateAWC(awc float64) error {
	if !finite(awc) || awc <= 0 {
		return ErrInvalidAWC
	}
	return nil
}

// validateSeries rejects shape problems and values the water balance
// cannot account for. NaN is allowed and marks a missing month.
func validateSeries(precip, pet []float64) error {
	if len(precip) == 0 || len(pet) == 0 {
		return ErrEmptySeries
	}
	if len(precip) != len(pet) {
		return ErrLengthMismatch
	}
	for k := range precip {
		if v := precip[k]; math.IsInf(v, 0) || v < 0 {
			return &InputError{Series: "precipitation", Month: k, Value: v}
		}
		if v := pet[k]; math.IsInf(v, 0) || v < 0 {
			return &InputError{Series: "pet", Month: k, Value: v}
		}
	}
	return nil
}
