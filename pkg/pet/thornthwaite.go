// Package pet estimates monthly potential evapotranspiration.
package pet

import (
	"errors"
	"fmt"
	"math"

	"github.com/soniakeys/meeus/v3/julian"
)

var (
	ErrEmptySeries     = errors.New("temperature series is empty")
	ErrInvalidLatitude = errors.New("latitude must be within [-90, 90]")
)

// Thornthwaite's method is fitted with 30-day months of a 365-day year.
var daysInMonth = [12]float64{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Thornthwaite returns monthly PET in millimeters from monthly mean
// temperature in degrees Celsius, starting in January of startYear.
// Temperatures below zero count as zero and a NaN temperature gives a NaN
// PET. The heat index is computed separately for every calendar year.
func Thornthwaite(tempC []float64, latitude float64, startYear int) ([]float64, error) {
	if len(tempC) == 0 {
		return nil, ErrEmptySeries
	}
	if math.IsNaN(latitude) || latitude < -90 || latitude > 90 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidLatitude, latitude)
	}

	var daylight [12]float64
	tanLat := -math.Tan(latitude * math.Pi / 180)
	for m := 0; m < 12; m++ {
		// Mid-month day of a non-leap year.
		j := float64(julian.DayOfYear(startYear, m+1, 1, false)-1) + daysInMonth[m]/2
		declination := 0.4093 * math.Sin(2*math.Pi/365*j-1.405)
		w := math.Acos(clamp(tanLat*declination, -1, 1))
		hours := 24 * w / math.Pi
		daylight[m] = hours / 12 * daysInMonth[m] / 30
	}

	out := make([]float64, len(tempC))
	for first := 0; first < len(tempC); first += 12 {
		last := min(first+12, len(tempC))
		year := tempC[first:last]

		h := heatIndex(year)
		a := 6.75e-7*h*h*h - 7.71e-5*h*h + 1.792e-2*h + 0.49239

		for i, t := range year {
			k := first + i
			switch {
			case math.IsNaN(t):
				out[k] = math.NaN()
			case t <= 0 || h == 0:
				out[k] = 0
			case t < 26.5:
				out[k] = 16 * daylight[i] * math.Pow(10*t/h, a)
			default:
				out[k] = (-415.85 + 32.24*t - 0.43*t*t) * daylight[i]
			}
		}
	}
	return out, nil
}

// heatIndex is the annual sum of (T/5)^1.514 over months above freezing.
func heatIndex(year []float64) float64 {
	var h float64
	for _, t := range year {
		if math.IsNaN(t) || t <= 0 {
			continue
		}
		h += math.Pow(t/5, 1.514)
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
