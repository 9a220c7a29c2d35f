// Package dataset loads a station's monthly precipitation and PET (or
// temperature) record and turns it into engine input.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/pdsi/pkg/config"
	"github.com/chrissnell/pdsi/pkg/palmer"
	"github.com/chrissnell/pdsi/pkg/pet"
	"gorm.io/gorm"
)

var (
	ErrNoData            = errors.New("source returned no monthly records")
	ErrUnsupportedSource = errors.New("unsupported source type")
	ErrNoDatabase        = errors.New("timescaledb source needs a database connection")
)

// Monthly is a contiguous monthly record beginning in January of StartYear.
// Exactly one of PET and Temperature is set.
type Monthly struct {
	StartYear     int
	Precipitation palmer.Series
	PET           palmer.Series
	Temperature   palmer.Series
}

// Source loads one station's monthly record.
type Source interface {
	Load(ctx context.Context) (*Monthly, error)
}

// Record is one month of raw data. Unused fields are NaN.
type Record struct {
	Year          int
	Month         int
	Precipitation float64
	PET           float64
	Temperature   float64
}

// Kind says which second variable a record set carries.
type Kind int

const (
	KindPET Kind = iota
	KindTemperature
)

// Assemble lays records out as a contiguous series. Records must be in
// ascending month order; months absent between them become NaN, as do the
// months of the first year before the first record.
func Assemble(records []Record, kind Kind) (*Monthly, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	first := records[0]
	last := records[len(records)-1]
	for _, r := range records {
		if r.Month < 1 || r.Month > 12 {
			return nil, fmt.Errorf("record %d-%02d: month out of range", r.Year, r.Month)
		}
	}

	n := (last.Year-first.Year)*palmer.MonthsPerYear + last.Month
	if n <= 0 {
		return nil, fmt.Errorf("records out of order: %d-%02d before %d-%02d", last.Year, last.Month, first.Year, first.Month)
	}

	m := &Monthly{
		StartYear:     first.Year,
		Precipitation: palmer.NewMissing(n),
	}
	second := palmer.NewMissing(n)

	prev := -1
	for _, r := range records {
		k := (r.Year-first.Year)*palmer.MonthsPerYear + r.Month - 1
		if k <= prev || k >= n {
			return nil, fmt.Errorf("record %d-%02d: duplicate or out of order", r.Year, r.Month)
		}
		prev = k

		m.Precipitation[k] = r.Precipitation
		if kind == KindPET {
			second[k] = r.PET
		} else {
			second[k] = r.Temperature
		}
	}

	if kind == KindPET {
		m.PET = second
	} else {
		m.Temperature = second
	}
	return m, nil
}

// NewSource builds the Source a station is configured with. db is only
// needed by timescaledb stations.
func NewSource(st config.StationData, db *gorm.DB) (Source, error) {
	switch st.Source.Type {
	case config.SourceCSV:
		return NewCSVSource(st.Source.Path), nil
	case config.SourceSQLite:
		return NewSQLiteSource(st.Source.Path, st.Source.Table), nil
	case config.SourceTimescaleDB:
		if db == nil {
			return nil, ErrNoDatabase
		}
		return NewTimescaleSource(db, st.Source.PullFromDevice), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, st.Source.Type)
}

// Input converts m into engine input for st: precipitation and PET in
// inches, PET estimated with Thornthwaite's method when the source only has
// temperature, and the record trimmed to the station's start year.
func Input(m *Monthly, st config.StationData) (palmer.Input, error) {
	startYear := m.StartYear
	precip := m.Precipitation
	var petIn []float64

	if m.PET != nil {
		petIn = m.PET
		if st.Source.PrecipitationUnits == "mm" {
			petIn = pet.ToInches(petIn)
		}
	} else {
		tempC := []float64(m.Temperature)
		if temperatureUnits(st) == "F" {
			tempC = pet.FahrenheitToCelsius(tempC)
		}
		petMM, err := pet.Thornthwaite(tempC, st.Latitude, startYear)
		if err != nil {
			return palmer.Input{}, fmt.Errorf("estimating PET for %s: %w", st.Name, err)
		}
		petIn = pet.ToInches(petMM)
	}
	if st.Source.PrecipitationUnits == "mm" {
		precip = pet.ToInches(precip)
	}

	if st.StartYear > startYear {
		skip := (st.StartYear - startYear) * palmer.MonthsPerYear
		if skip >= len(precip) {
			return palmer.Input{}, fmt.Errorf("station %s: start year %d is after the last record", st.Name, st.StartYear)
		}
		precip = precip[skip:]
		petIn = petIn[skip:]
		startYear = st.StartYear
	}

	return palmer.Input{
		Precipitation: palmer.Series(precip).Clone(),
		PET:           palmer.Series(petIn).Clone(),
		AWC:           st.AWC,
		StartYear:     startYear,
		Calibration:   calibrationWindow(st, startYear, len(precip)),
	}, nil
}

// calibrationWindow fills a half-specified window from the record's extent.
func calibrationWindow(st config.StationData, startYear, months int) palmer.Window {
	w := palmer.Window{Start: st.CalibrationStart, End: st.CalibrationEnd}
	if w.IsZero() {
		return w
	}
	if w.Start == 0 {
		w.Start = startYear
	}
	if w.End == 0 {
		w.End = startYear + palmer.Years(months) - 1
	}
	return w
}

// The weather tables store Fahrenheit, so that is the timescaledb default.
func temperatureUnits(st config.StationData) string {
	if st.Source.TemperatureUnits != "" {
		return st.Source.TemperatureUnits
	}
	if st.Source.Type == config.SourceTimescaleDB {
		return "F"
	}
	return "C"
}

func nan() float64 { return math.NaN() }
