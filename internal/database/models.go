package database

import (
	"math"
	"time"

	"github.com/chrissnell/pdsi/pkg/palmer"
	"github.com/google/uuid"
)

// PalmerRun is one computation of a station's indices.
type PalmerRun struct {
	RunID            uuid.UUID `gorm:"primaryKey;type:uuid;column:run_id" json:"run_id"`
	StationName      string    `gorm:"column:station_name;not null;index:idx_palmer_runs_station_time,priority:1" json:"station"`
	ComputedAt       time.Time `gorm:"column:computed_at;not null;index:idx_palmer_runs_station_time,priority:2" json:"computed_at"`
	StartYear        int       `gorm:"column:start_year" json:"start_year"`
	Months           int       `gorm:"column:months" json:"months"`
	CalibrationStart int       `gorm:"column:calibration_start" json:"calibration_start"`
	CalibrationEnd   int       `gorm:"column:calibration_end" json:"calibration_end"`
	SelfCalibrated   bool      `gorm:"column:self_calibrated" json:"self_calibrated"`
	WetSlope         *float64  `gorm:"column:wet_slope" json:"wet_slope,omitempty"`
	WetIntercept     *float64  `gorm:"column:wet_intercept" json:"wet_intercept,omitempty"`
	DrySlope         *float64  `gorm:"column:dry_slope" json:"dry_slope,omitempty"`
	DryIntercept     *float64  `gorm:"column:dry_intercept" json:"dry_intercept,omitempty"`
	Warnings         int       `gorm:"column:warnings" json:"warnings"`
}

// TableName specifies the table name for PalmerRun
func (PalmerRun) TableName() string {
	return "palmer_runs"
}

// PalmerMonth holds one month of a run. Missing values are NULL.
type PalmerMonth struct {
	RunID       uuid.UUID `gorm:"primaryKey;type:uuid;column:run_id" json:"-"`
	Month       time.Time `gorm:"primaryKey;column:month" json:"month"`
	StationName string    `gorm:"column:station_name;not null;index" json:"-"`
	PDSI        *float64  `gorm:"column:pdsi" json:"pdsi"`
	PHDI        *float64  `gorm:"column:phdi" json:"phdi"`
	PMDI        *float64  `gorm:"column:pmdi" json:"pmdi"`
	ZIndex      *float64  `gorm:"column:zindex" json:"z"`
	SCPDSI      *float64  `gorm:"column:scpdsi" json:"scpdsi,omitempty"`
	SCPHDI      *float64  `gorm:"column:scphdi" json:"scphdi,omitempty"`
	SCPMDI      *float64  `gorm:"column:scpmdi" json:"scpmdi,omitempty"`
	SCZIndex    *float64  `gorm:"column:sczindex" json:"scz,omitempty"`
}

// TableName specifies the table name for PalmerMonth
func (PalmerMonth) TableName() string {
	return "palmer_months"
}

// StoredSeries is a run with its months in calendar order.
type StoredSeries struct {
	Run    PalmerRun     `json:"run"`
	Months []PalmerMonth `json:"months"`
}

// NewRecords converts a result into rows.
func NewRecords(station string, runID uuid.UUID, computedAt time.Time, r *palmer.Result) (PalmerRun, []PalmerMonth) {
	run := PalmerRun{
		RunID:            runID,
		StationName:      station,
		ComputedAt:       computedAt.UTC(),
		StartYear:        r.StartYear,
		Months:           len(r.PDSI),
		CalibrationStart: r.Window.Start,
		CalibrationEnd:   r.Window.End,
		Warnings:         len(r.Warnings),
	}
	if c := r.Calibration; c != nil {
		run.SelfCalibrated = true
		run.WetSlope = nullable(c.Wet.Slope)
		run.WetIntercept = nullable(c.Wet.Intercept)
		run.DrySlope = nullable(c.Dry.Slope)
		run.DryIntercept = nullable(c.Dry.Intercept)
	}

	months := make([]PalmerMonth, len(r.PDSI))
	for k := range months {
		months[k] = PalmerMonth{
			RunID:       runID,
			Month:       MonthStart(r.StartYear, k),
			StationName: station,
			PDSI:        nullable(r.PDSI[k]),
			PHDI:        nullable(r.PHDI[k]),
			PMDI:        nullable(r.PMDI[k]),
			ZIndex:      nullable(r.Z[k]),
		}
		if r.SCPDSI != nil {
			months[k].SCPDSI = nullable(r.SCPDSI[k])
			months[k].SCPHDI = nullable(r.SCPHDI[k])
			months[k].SCPMDI = nullable(r.SCPMDI[k])
			months[k].SCZIndex = nullable(r.SCZ[k])
		}
	}
	return run, months
}

// MonthStart is the first instant (UTC) of month k of a series starting in
// January of startYear.
func MonthStart(startYear, k int) time.Time {
	return time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, k, 0)
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
