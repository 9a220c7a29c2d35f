// Command pdsi-calc computes the Palmer indices for one station from a
// monthly CSV file and writes them as CSV, JSON or MessagePack.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/chrissnell/pdsi/internal/dataset"
	"github.com/chrissnell/pdsi/internal/log"
	"github.com/chrissnell/pdsi/pkg/config"
	"github.com/chrissnell/pdsi/pkg/palmer"
	"github.com/chrissnell/pdsi/pkg/responseformat"
)

type options struct {
	input         string
	output        string
	format        string
	awc           float64
	latitude      float64
	startYear     int
	calStart      int
	calEnd        int
	selfCalibrate bool
	waterBalance  bool
	precipUnits   string
	tempUnits     string
}

func main() {
	var opts options
	flag.StringVar(&opts.input, "input", "", "Monthly CSV with year,month,precip and pet or temp columns (required)")
	flag.StringVar(&opts.output, "o", "", "Output file (default stdout)")
	flag.StringVar(&opts.format, "format", "csv", "Output format: csv, json or msgpack")
	flag.Float64Var(&opts.awc, "awc", 0, "Available water capacity of the soil, in inches (required)")
	flag.Float64Var(&opts.latitude, "latitude", 0, "Station latitude in degrees, used when PET is estimated from temperature")
	flag.IntVar(&opts.startYear, "start-year", 0, "Drop records before this year")
	flag.IntVar(&opts.calStart, "cal-start", 0, "First year of the calibration period")
	flag.IntVar(&opts.calEnd, "cal-end", 0, "Last year of the calibration period")
	flag.BoolVar(&opts.selfCalibrate, "self-calibrate", false, "Also compute the self-calibrated indices")
	flag.BoolVar(&opts.waterBalance, "water-balance", false, "Include the water balance terms in JSON and MessagePack output")
	flag.StringVar(&opts.precipUnits, "precip-units", "in", "Units of the precip and pet columns: in or mm")
	flag.StringVar(&opts.tempUnits, "temp-units", "C", "Units of the temp column: C or F")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if opts.input == "" || opts.awc <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	out := io.Writer(os.Stdout)
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := run(opts, out); err != nil {
		log.Errorf("pdsi-calc: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(opts options, out io.Writer) error {
	f, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer f.Close()

	monthly, err := dataset.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.input, err)
	}

	st := config.StationData{
		Name:             opts.input,
		AWC:              opts.awc,
		Latitude:         opts.latitude,
		StartYear:        opts.startYear,
		CalibrationStart: opts.calStart,
		CalibrationEnd:   opts.calEnd,
		SelfCalibrate:    opts.selfCalibrate,
		Source: config.SourceData{
			Type:               config.SourceCSV,
			Path:               opts.input,
			PrecipitationUnits: opts.precipUnits,
			TemperatureUnits:   opts.tempUnits,
		},
	}
	if err := (&config.ConfigData{Stations: []config.StationData{st}}).Validate(); err != nil {
		return err
	}

	in, err := dataset.Input(monthly, st)
	if err != nil {
		return err
	}

	var computeOpts []palmer.Option
	if opts.selfCalibrate {
		computeOpts = append(computeOpts, palmer.WithSelfCalibration())
	}
	if opts.waterBalance {
		computeOpts = append(computeOpts, palmer.WithWaterBalance())
	}

	result, err := palmer.Compute(in, computeOpts...)
	if err != nil {
		if palmer.IsRetryable(err) {
			return fmt.Errorf("%w (try a different -cal-start/-cal-end)", err)
		}
		return err
	}
	for _, w := range result.Warnings {
		log.Warnw("computation warning", "kind", w.Kind, "month", w.Month, "message", w.Message)
	}

	if opts.format == "csv" {
		return writeCSV(out, result)
	}
	format, err := responseformat.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	return responseformat.Encode(out, format, result)
}

// writeCSV writes one row per month. Missing months are empty cells.
func writeCSV(out io.Writer, r *palmer.Result) error {
	writer := csv.NewWriter(out)

	header := []string{"year", "month", "z", "pdsi", "phdi", "pmdi"}
	columns := []palmer.Series{r.Z, r.PDSI, r.PHDI, r.PMDI}
	if r.SCPDSI != nil {
		header = append(header, "scz", "scpdsi", "scphdi", "scpmdi")
		columns = append(columns, r.SCZ, r.SCPDSI, r.SCPHDI, r.SCPMDI)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for k := range r.PDSI {
		record := []string{
			strconv.Itoa(r.StartYear + k/palmer.MonthsPerYear),
			strconv.Itoa(k%palmer.MonthsPerYear + 1),
		}
		for _, s := range columns {
			record = append(record, formatValue(s[k]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatValue(v float64) string {
	if palmer.Missing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
