package palmer

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DurationScales are the spell lengths, in months, whose extreme Z sums
// define the duration line.
var DurationScales = []int{3, 6, 9, 12, 18, 24, 30, 36, 42, 48}

const (
	// extremeTolerance excludes sums more than 25% beyond the reference percentile.
	extremeTolerance = 1.25
	// fitCorrelation is the correlation the duration fit must reach before
	// it stops dropping the longest scales.
	fitCorrelation = 0.85
	minFitPoints   = 4

	wetPercentile = 0.98
	dryPercentile = 0.02
)

// Calibration is the outcome of self-calibrating a station.
type Calibration struct {
	Window Window          `json:"window"`
	Wet    DurationFactors `json:"wet"`
	Dry    DurationFactors `json:"dry"`

	// Percentiles of the calibration-period PDSI computed with the station
	// duration factors, before Z is rescaled.
	Percentile98 float64 `json:"percentile_98"`
	Percentile2  float64 `json:"percentile_2"`

	WetRatio float64 `json:"wet_ratio"`
	DryRatio float64 `json:"dry_ratio"`

	// Z is the rescaled moisture anomaly and Spells the index computed from it.
	Z      Series  `json:"z"`
	Spells *Spells `json:"spells"`

	Warnings []Warning `json:"warnings,omitempty"`
}

// SelfCalibrate fits station duration factors to the calibration-period Z
// index, then rescales Z so the 2nd and 98th percentiles of the resulting
// PDSI land on -ScaleBound and +ScaleBound, and reruns the spell machine on
// the rescaled series.
func SelfCalibrate(z []float64, startYear int, w Window, p Params) (*Calibration, error) {
	w, warnings, err := ResolveWindow(w, startYear, len(z))
	if err != nil {
		return nil, err
	}
	sp := w.indices(startYear, len(z))
	calZ := present(z, sp)

	wet, err := fitDurationFactors(calZ, 1, p.ScaleBound)
	if err != nil {
		return nil, fmt.Errorf("wet spells: %w", err)
	}
	dry, err := fitDurationFactors(calZ, -1, p.ScaleBound)
	if err != nil {
		return nil, fmt.Errorf("dry spells: %w", err)
	}

	sc := p
	sc.Wet, sc.Dry = wet, dry
	first := RunSpells(z, sc)

	values := present(first.PDSI, sp)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no index values in calibration window %s", ErrCalibrationFailed, w)
	}
	sort.Float64s(values)
	p98 := stat.Quantile(wetPercentile, stat.Empirical, values, nil)
	p2 := stat.Quantile(dryPercentile, stat.Empirical, values, nil)
	if p98 <= 0 || p2 >= 0 {
		return nil, fmt.Errorf("%w: percentiles %g and %g do not straddle zero", ErrCalibrationFailed, p2, p98)
	}

	c := &Calibration{
		Window:       w,
		Wet:          wet,
		Dry:          dry,
		Percentile98: p98,
		Percentile2:  p2,
		WetRatio:     p.ScaleBound / p98,
		DryRatio:     -p.ScaleBound / p2,
		Z:            NewMissing(len(z)),
		Warnings:     warnings,
	}
	for k, v := range z {
		switch {
		case Missing(v):
		case v >= 0:
			c.Z[k] = v * c.WetRatio
		default:
			c.Z[k] = v * c.DryRatio
		}
	}

	c.Spells = RunSpells(c.Z, sc)
	c.Warnings = append(c.Warnings, c.Spells.Warnings...)
	return c, nil
}

// fitDurationFactors relates spell length to the most extreme accumulated Z
// of that length. sign is +1 for wet spells and -1 for droughts.
func fitDurationFactors(z []float64, sign, bound float64) (DurationFactors, error) {
	var xs, ys []float64
	for _, scale := range DurationScales {
		sum, ok := extremeSum(z, scale, sign)
		if !ok {
			break
		}
		xs = append(xs, float64(scale))
		ys = append(ys, sum)
	}
	if len(xs) < 2 {
		return DurationFactors{}, fmt.Errorf("%w: %d months of Z is too short to fit durations", ErrCalibrationFailed, len(z))
	}

	slope, intercept := fitDurationLine(xs, ys, sign)
	d := DurationFactors{
		Slope:     slope / (sign * bound),
		Intercept: intercept / (sign * bound),
	}
	if !d.Usable() || d.Slope+d.Intercept < 0 {
		return DurationFactors{}, fmt.Errorf("%w: fitted duration factors %+v are unusable", ErrCalibrationFailed, d)
	}
	return d, nil
}

// extremeSum returns the most extreme sliding sum of scale months in the
// direction of sign, ignoring sums more than 25% beyond the 98th (or 2nd)
// percentile of all sums. It returns false when z is shorter than scale.
func extremeSum(z []float64, scale int, sign float64) (float64, bool) {
	if len(z) < scale {
		return 0, false
	}

	sums := make([]float64, 0, len(z)-scale+1)
	var sum float64
	for i, v := range z {
		sum += v
		if i >= scale {
			sum -= z[i-scale]
		}
		if i >= scale-1 {
			sums = append(sums, sum)
		}
	}

	sort.Float64s(sums)
	q := wetPercentile
	if sign < 0 {
		q = dryPercentile
	}
	ref := stat.Quantile(q, stat.Empirical, sums, nil)

	var best float64
	for _, s := range sums {
		if sign*s <= 0 {
			continue
		}
		if ref != 0 && s/ref >= extremeTolerance {
			continue
		}
		if sign*s > sign*best {
			best = s
		}
	}
	return best, true
}

// fitDurationLine fits accumulated Z against spell length. While the
// correlation in the direction of sign stays under fitCorrelation the
// longest scale is dropped, down to minFitPoints. The slope comes from
// least squares and the line is shifted to pass through the most extreme
// point.
func fitDurationLine(xs, ys []float64, sign float64) (slope, intercept float64) {
	n := len(xs)
	r := correlation(xs[:n], ys[:n])
	for sign*r < fitCorrelation && n > minFitPoints {
		n--
		r = correlation(xs[:n], ys[:n])
	}

	_, slope = stat.LinearRegression(xs[:n], ys[:n], nil, false)
	if !finite(slope) {
		slope = 0
	}

	best, bestResidual := 0, math.Inf(-1)
	for j := 0; j < n; j++ {
		if res := sign * (ys[j] - slope*xs[j]); res > bestResidual {
			best, bestResidual = j, res
		}
	}
	return slope, ys[best] - slope*xs[best]
}

func correlation(xs, ys []float64) float64 {
	r := stat.Correlation(xs, ys, nil)
	if !finite(r) {
		return 0
	}
	return r
}

// present returns the non-missing values of s inside the span, in order.
func present(s []float64, sp span) []float64 {
	out := make([]float64, 0, sp.last-sp.first)
	for i := sp.first; i < sp.last && i < len(s); i++ {
		if !Missing(s[i]) {
			out = append(out, s[i])
		}
	}
	return out
}
