package palmer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MonthsPerYear is the number of columns when a series is grouped by year.
const MonthsPerYear = 12

// Series is a monthly time series starting in January of a known year.
// math.NaN() marks a missing month.
type Series []float64

// Missing reports whether v is the missing-value sentinel.
func Missing(v float64) bool { return math.IsNaN(v) }

// NewMissing returns a series of n missing months.
func NewMissing(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// Years returns the number of calendar years, counting a partial final year.
func Years(months int) int {
	return (months + MonthsPerYear - 1) / MonthsPerYear
}

// Clone returns a copy of s.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// MarshalJSON writes missing months as null.
func (s Series) MarshalJSON() ([]byte, error) {
	return marshalValues(s)
}

// UnmarshalJSON reads null as a missing month.
func (s *Series) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Series, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*s = out
	return nil
}

// Calendar holds one value per calendar month, January first.
type Calendar [MonthsPerYear]float64

// MarshalJSON writes unusable months as null.
func (c Calendar) MarshalJSON() ([]byte, error) {
	return marshalValues(c[:])
}

func marshalValues(vs []float64) ([]byte, error) {
	if vs == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range vs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if !finite(v) {
			buf.WriteString("null")
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// padYears returns a copy of s extended with missing months to a whole
// number of years.
func padYears(s []float64) Series {
	n := Years(len(s)) * MonthsPerYear
	out := NewMissing(n)
	copy(out, s)
	return out
}

// Window is an inclusive range of calendar years used for calibration.
type Window struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// DefaultWindow is the NCDC/CPC calibration period.
func DefaultWindow() Window {
	return Window{Start: 1931, End: 1990}
}

// IsZero reports whether the window was left unset.
func (w Window) IsZero() bool { return w.Start == 0 && w.End == 0 }

func (w Window) String() string { return fmt.Sprintf("%d-%d", w.Start, w.End) }

// span is a half-open range of series indices [first, last).
type span struct {
	first, last int
}

// ResolveWindow validates w against a series of the given length starting
// in startYear. An unset window becomes DefaultWindow, falling back to the
// whole record when the default does not overlap the data. A window that
// partly overlaps the data is clamped and a warning is returned; one that
// is inverted or lies wholly outside the data is an error.
func ResolveWindow(w Window, startYear, months int) (Window, []Warning, error) {
	dataEnd := startYear + Years(months) - 1
	var warnings []Warning

	if w.IsZero() {
		w = DefaultWindow()
		if w.End < startYear || w.Start > dataEnd {
			full := Window{Start: startYear, End: dataEnd}
			warnings = append(warnings, Warning{
				Kind:    WarningWindowClamped,
				Month:   -1,
				Message: fmt.Sprintf("default calibration %s is outside the data, using full record %s", w, full),
			})
			return full, warnings, nil
		}
	}

	if w.End < w.Start {
		return w, nil, &WindowError{Window: w, DataStart: startYear, DataEnd: dataEnd, Reason: "end year before start year"}
	}
	if w.End < startYear || w.Start > dataEnd {
		return w, nil, &WindowError{Window: w, DataStart: startYear, DataEnd: dataEnd, Reason: "no overlap with the data"}
	}

	clamped := w
	if clamped.Start < startYear {
		clamped.Start = startYear
	}
	if clamped.End > dataEnd {
		clamped.End = dataEnd
	}
	if clamped != w {
		warnings = append(warnings, Warning{
			Kind:    WarningWindowClamped,
			Month:   -1,
			Message: fmt.Sprintf("calibration %s clamped to %s", w, clamped),
		})
	}
	return clamped, warnings, nil
}

// indices converts a resolved window to series indices, limited to months.
func (w Window) indices(startYear, months int) span {
	first := (w.Start - startYear) * MonthsPerYear
	last := (w.End - startYear + 1) * MonthsPerYear
	if first < 0 {
		first = 0
	}
	if last > months {
		last = months
	}
	return span{first: first, last: last}
}

// calendarMeans averages s per calendar month over the span, skipping
// missing months. A calendar month with no data is NaN.
func calendarMeans(s []float64, sp span) Calendar {
	var sums [MonthsPerYear]float64
	var counts [MonthsPerYear]int
	for i := sp.first; i < sp.last && i < len(s); i++ {
		if Missing(s[i]) {
			continue
		}
		m := i % MonthsPerYear
		sums[m] += s[i]
		counts[m]++
	}

	var means Calendar
	for m := range means {
		if counts[m] == 0 {
			means[m] = math.NaN()
			continue
		}
		means[m] = sums[m] / float64(counts[m])
	}
	return means
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
