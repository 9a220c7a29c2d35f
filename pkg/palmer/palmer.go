package palmer

import (
	"fmt"
)

// Input is one station's monthly record.
type Input struct {
	// Precipitation and PET share units with AWC. NaN marks a missing month.
	Precipitation Series
	PET           Series

	// AWC is the available water capacity of the soil column.
	AWC float64

	// StartYear is the calendar year of the first (January) value.
	StartYear int

	// Calibration is the window CAFEC coefficients, K and the self-calibration
	// are derived from. The zero value selects DefaultWindow.
	Calibration Window
}

// Result holds every series produced for one station. All series have the
// length of the input.
type Result struct {
	StartYear int    `json:"start_year"`
	Window    Window `json:"calibration"`

	PDSI Series `json:"pdsi"`
	PHDI Series `json:"phdi"`
	PMDI Series `json:"pmdi"`
	Z    Series `json:"z"`

	Spells *Spells `json:"-"`

	// Populated with WithSelfCalibration.
	SCPDSI      Series       `json:"scpdsi,omitempty"`
	SCPHDI      Series       `json:"scphdi,omitempty"`
	SCPMDI      Series       `json:"scpmdi,omitempty"`
	SCZ         Series       `json:"scz,omitempty"`
	Calibration *Calibration `json:"-"`

	// Populated with WithWaterBalance.
	WaterBalance *WaterBalance `json:"water_balance,omitempty"`

	Coefficients Coefficients `json:"coefficients"`
	K            Calendar     `json:"k"`

	Warnings []Warning `json:"warnings,omitempty"`
}

type options struct {
	params        Params
	selfCalibrate bool
	waterBalance  bool
}

// Option adjusts a single Compute call.
type Option func(*options)

// WithParams replaces DefaultParams.
func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

// WithSelfCalibration also computes the self-calibrated indices.
func WithSelfCalibration() Option {
	return func(o *options) { o.selfCalibrate = true }
}

// WithWaterBalance keeps the intermediate water balance series in the result.
func WithWaterBalance() Option {
	return func(o *options) { o.waterBalance = true }
}

// Validate checks the parameters the spell machine depends on.
func (p Params) Validate() error {
	if !finite(p.EstablishThreshold) || p.EstablishThreshold <= 0 {
		return fmt.Errorf("%w: establish threshold %g", ErrInvalidInput, p.EstablishThreshold)
	}
	if !finite(p.NearNormal) || p.NearNormal < 0 {
		return fmt.Errorf("%w: near-normal bound %g", ErrInvalidInput, p.NearNormal)
	}
	if !finite(p.AbatementZ) || p.AbatementZ < 0 {
		return fmt.Errorf("%w: abatement Z %g", ErrInvalidInput, p.AbatementZ)
	}
	if !finite(p.ScaleBound) || p.ScaleBound <= 0 {
		return fmt.Errorf("%w: scale bound %g", ErrInvalidInput, p.ScaleBound)
	}
	return nil
}

// Compute runs the water balance, CAFEC calibration, Z index and spell
// machine over one station's record. Shape and configuration problems are
// returned before any computation starts; numeric edge cases inside the
// record are reported as warnings on the result.
func Compute(in Input, opts ...Option) (*Result, error) {
	o := options{params: DefaultParams()}
	for _, opt := range opts {
		opt(&o)
	}
	p := o.params

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := validateAWC(in.AWC); err != nil {
		return nil, err
	}
	if err := validateSeries(in.Precipitation, in.PET); err != nil {
		return nil, err
	}

	n := len(in.Precipitation)
	w, warnings, err := ResolveWindow(in.Calibration, in.StartYear, n)
	if err != nil {
		return nil, err
	}

	// Calibration groups months into whole years.
	precip := padYears(in.Precipitation)
	pet := padYears(in.PET)

	wb, err := ComputeWaterBalance(in.AWC, precip, pet)
	if err != nil {
		return nil, err
	}
	coef := ComputeCoefficients(wb, in.StartYear, w)
	zi := ComputeZIndex(wb, coef, in.StartYear, w)
	warnings = append(warnings, zi.Warnings...)

	z := NewMissing(len(zi.Z))
	for k, v := range zi.Z {
		z[k] = p.round(v)
	}

	spells := RunSpells(z, p)
	warnings = append(warnings, spells.Warnings...)

	res := &Result{
		StartYear:    in.StartYear,
		Window:       w,
		Z:            z[:n:n],
		Spells:       spells.trim(n),
		Coefficients: coef,
		K:            zi.K,
	}
	res.PDSI, res.PHDI, res.PMDI = res.Spells.PDSI, res.Spells.PHDI, res.Spells.PMDI

	if o.selfCalibrate {
		cal, err := SelfCalibrate(z, in.StartYear, w, p)
		if err != nil {
			return nil, err
		}
		cal.Z = cal.Z[:n:n]
		cal.Spells = cal.Spells.trim(n)
		res.Calibration = cal
		res.SCZ = cal.Z
		res.SCPDSI, res.SCPHDI, res.SCPMDI = cal.Spells.PDSI, cal.Spells.PHDI, cal.Spells.PMDI
		warnings = append(warnings, cal.Warnings...)
	}

	if o.waterBalance {
		res.WaterBalance = wb.trim(n)
	}
	res.Warnings = warnings
	return res, nil
}

func (s *Spells) trim(n int) *Spells {
	return &Spells{
		PDSI:        s.PDSI[:n:n],
		PHDI:        s.PHDI[:n:n],
		PMDI:        s.PMDI[:n:n],
		X1:          s.X1[:n:n],
		X2:          s.X2[:n:n],
		X3:          s.X3[:n:n],
		Probability: s.Probability[:n:n],
		Selection:   s.Selection[:n:n],
		State:       s.State[:n:n],
		Warnings:    s.Warnings,
	}
}

func (wb *WaterBalance) trim(n int) *WaterBalance {
	return &WaterBalance{
		AWC:                wb.AWC,
		Precipitation:      wb.Precipitation[:n:n],
		PET:                wb.PET[:n:n],
		ET:                 wb.ET[:n:n],
		PotentialRecharge:  wb.PotentialRecharge[:n:n],
		Recharge:           wb.Recharge[:n:n],
		Runoff:             wb.Runoff[:n:n],
		PotentialRunoff:    wb.PotentialRunoff[:n:n],
		Loss:               wb.Loss[:n:n],
		PotentialLoss:      wb.PotentialLoss[:n:n],
		SurfaceMoisture:    wb.SurfaceMoisture[:n:n],
		UnderlyingMoisture: wb.UnderlyingMoisture[:n:n],
	}
}
