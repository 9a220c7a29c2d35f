package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CSVSource reads a file with a header row of year,month,precip and either
// pet or temp. Empty cells, NA, M and the -99.99 / -9999 sentinels are missing.
type CSVSource struct {
	path string
}

// NewCSVSource returns a source reading path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Load implements Source.
func (c *CSVSource) Load(ctx context.Context) (*Monthly, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.path, err)
	}
	defer f.Close()

	m, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}
	return m, nil
}

// ReadCSV parses a monthly CSV document.
func ReadCSV(r io.Reader) (*Monthly, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}

	cols, kind, err := headerColumns(header)
	if err != nil {
		return nil, err
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		rec, err := parseRow(row, cols, kind)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return Assemble(records, kind)
}

type columns struct {
	year, month, precip, second int
}

func headerColumns(header []string) (columns, Kind, error) {
	cols := columns{-1, -1, -1, -1}
	kind := KindPET
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "year":
			cols.year = i
		case "month":
			cols.month = i
		case "precip", "precipitation", "prcp":
			cols.precip = i
		case "pet":
			cols.second = i
			kind = KindPET
		case "temp", "tavg", "temperature":
			cols.second = i
			kind = KindTemperature
		}
	}
	if cols.year < 0 || cols.month < 0 || cols.precip < 0 || cols.second < 0 {
		return cols, kind, errors.New("header must name year, month, precip and one of pet or temp")
	}
	return cols, kind, nil
}

func parseRow(row []string, cols columns, kind Kind) (Record, error) {
	rec := Record{Precipitation: nan(), PET: nan(), Temperature: nan()}

	var err error
	if rec.Year, err = strconv.Atoi(strings.TrimSpace(row[cols.year])); err != nil {
		return rec, fmt.Errorf("year: %w", err)
	}
	if rec.Month, err = strconv.Atoi(strings.TrimSpace(row[cols.month])); err != nil {
		return rec, fmt.Errorf("month: %w", err)
	}
	if rec.Precipitation, err = parseValue(row[cols.precip]); err != nil {
		return rec, fmt.Errorf("precip: %w", err)
	}

	v, err := parseValue(row[cols.second])
	if err != nil {
		return rec, fmt.Errorf("pet/temp: %w", err)
	}
	if kind == KindPET {
		rec.PET = v
	} else {
		rec.Temperature = v
	}
	return rec, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "M", "NAN":
		return nan(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v == -99.99 || v == -9999 {
		return nan(), nil
	}
	return v, nil
}
