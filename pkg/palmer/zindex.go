package palmer

import (
	"fmt"
	"math"
)

// ZIndex is the moisture anomaly series with the terms used to derive it.
type ZIndex struct {
	Z         Series `json:"z"`
	CAFEC     Series `json:"cafec"`
	Departure Series `json:"departure"`

	// Per calendar month. A month whose weighting factor could not be
	// computed has a NaN K and KHat.
	K                Calendar `json:"k"`
	KHat             Calendar `json:"k_hat"`
	MeanAbsDeparture Calendar `json:"mean_abs_departure"`
	DemandRatio      Calendar `json:"demand_ratio"`

	Warnings []Warning `json:"warnings,omitempty"`
}

// ComputeZIndex applies the CAFEC coefficients to the full record and
// weights each departure by the climatic characteristic K. D-hat and T-hat
// come from the calibration window only; K applies to every year.
//
// A calendar month whose K cannot be computed is reported in Warnings and
// its Z is missing, except where the departure is exactly zero.
func ComputeZIndex(wb *WaterBalance, c Coefficients, startYear int, w Window) *ZIndex {
	n := len(wb.Precipitation)
	zi := &ZIndex{
		Z:         NewMissing(n),
		CAFEC:     NewMissing(n),
		Departure: NewMissing(n),
	}

	absDeparture := NewMissing(n)
	for k := 0; k < n; k++ {
		if Missing(wb.ET[k]) {
			continue
		}
		cafec := c.cafecPrecipitation(wb, k)
		zi.CAFEC[k] = cafec
		zi.Departure[k] = wb.Precipitation[k] - cafec
		absDeparture[k] = math.Abs(zi.Departure[k])
	}

	sp := w.indices(startYear, n)
	dHat := calendarMeans(absDeparture, sp)
	pet := calendarMeans(wb.PET, sp)
	r := calendarMeans(wb.Recharge, sp)
	ro := calendarMeans(wb.Runoff, sp)
	p := calendarMeans(wb.Precipitation, sp)
	l := calendarMeans(wb.Loss, sp)

	var sum float64
	for m := 0; m < MonthsPerYear; m++ {
		zi.MeanAbsDeparture[m] = dHat[m]
		tHat := (pet[m] + r[m] + ro[m]) / (p[m] + l[m])
		zi.DemandRatio[m] = tHat

		kHat, reason := climaticCharacteristic(tHat, dHat[m])
		if reason != "" {
			zi.KHat[m] = math.NaN()
			zi.Warnings = append(zi.Warnings, Warning{
				Kind:          WarningUnusableMonth,
				Month:         -1,
				CalendarMonth: m + 1,
				Message:       fmt.Sprintf("calendar month %d: %s", m+1, reason),
			})
			continue
		}
		zi.KHat[m] = kHat
		sum += dHat[m] * kHat
	}

	usable := finite(sum) && sum != 0
	if !usable {
		zi.Warnings = append(zi.Warnings, Warning{
			Kind:    WarningUnusableMonth,
			Month:   -1,
			Message: fmt.Sprintf("weighting normalizer is %g, no calendar month has a usable K", sum),
		})
	}
	for m := 0; m < MonthsPerYear; m++ {
		if !usable || Missing(zi.KHat[m]) {
			zi.K[m] = math.NaN()
			continue
		}
		zi.K[m] = 17.67 * zi.KHat[m] / sum
	}

	for k := 0; k < n; k++ {
		d := zi.Departure[k]
		if Missing(d) {
			continue
		}
		if kk := zi.K[k%MonthsPerYear]; !Missing(kk) {
			zi.Z[k] = kk * d
		} else if d == 0 {
			zi.Z[k] = 0
		}
	}
	return zi
}

// climaticCharacteristic returns Palmer's K-hat, or a non-empty reason when
// the logarithm is out of its domain.
func climaticCharacteristic(tHat, dHat float64) (float64, string) {
	switch {
	case Missing(dHat):
		return 0, "no data in the calibration window"
	case dHat <= 0:
		return 0, "mean absolute departure is zero"
	case !finite(tHat):
		return 0, "moisture demand ratio is not finite"
	case tHat+2.8 <= 0:
		return 0, "moisture demand ratio out of range"
	}
	kHat := 1.5*math.Log10((tHat+2.8)/dHat) + 0.5
	if !finite(kHat) {
		return 0, "weighting factor is not finite"
	}
	return kHat, ""
}
