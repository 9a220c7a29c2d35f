package pet

const millimetersPerInch = 25.4

// FahrenheitToCelsius returns a converted copy of tempF. NaN stays NaN.
func FahrenheitToCelsius(tempF []float64) []float64 {
	out := make([]float64, len(tempF))
	for i, t := range tempF {
		out[i] = (t - 32) * 5 / 9
	}
	return out
}

// ToInches converts millimeters to inches.
func ToInches(mm []float64) []float64 {
	out := make([]float64, len(mm))
	for i, v := range mm {
		out[i] = v / millimetersPerInch
	}
	return out
}
