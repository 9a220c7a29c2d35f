package palmer

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers match them with errors.Is;
// the typed errors below unwrap to one of these.
var (
	ErrLengthMismatch     = errors.New("precipitation and PET series differ in length")
	ErrEmptySeries        = errors.New("input series is empty")
	ErrInvalidAWC         = errors.New("available water capacity must be positive and finite")
	ErrInvalidInput       = errors.New("invalid input value")
	ErrInvalidCalibration = errors.New("invalid calibration window")
	ErrNegativeFlux       = errors.New("negative recharge or loss in water balance")
	ErrCalibrationFailed  = errors.New("self-calibration failed")
)

// FluxError reports a month whose water balance produced negative recharge or loss.
type FluxError struct {
	Month    int
	Recharge float64
	Loss     float64
}

func (e *FluxError) Error() string {
	return fmt.Sprintf("month %d: recharge %.6f, loss %.6f: %v", e.Month, e.Recharge, e.Loss, ErrNegativeFlux)
}

func (e *FluxError) Unwrap() error { return ErrNegativeFlux }

// InputError reports an input value the water balance cannot accept.
type InputError struct {
	Series string
	Month  int
	Value  float64
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s[%d] = %g: %v", e.Series, e.Month, e.Value, ErrInvalidInput)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// WindowError describes a calibration window that could not be used.
type WindowError struct {
	Window    Window
	DataStart int
	DataEnd   int
	Reason    string
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("calibration %d-%d against data %d-%d: %s: %v",
		e.Window.Start, e.Window.End, e.DataStart, e.DataEnd, e.Reason, ErrInvalidCalibration)
}

func (e *WindowError) Unwrap() error { return ErrInvalidCalibration }

// IsRetryable reports whether err is a calibration problem that a caller may
// be able to fix by retrying with a different calibration window.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInvalidCalibration) || errors.Is(err, ErrCalibrationFailed)
}

// WarningKind classifies a non-fatal condition recorded during a computation.
type WarningKind string

const (
	// WarningWindowClamped means the calibration window was trimmed to the data range.
	WarningWindowClamped WarningKind = "window_clamped"
	// WarningUnusableMonth means a calendar month's weighting factor could not be computed.
	WarningUnusableMonth WarningKind = "unusable_month"
	// WarningUnusableDurationFactors means a duration factor pair has a zero or non-finite sum.
	WarningUnusableDurationFactors WarningKind = "unusable_duration_factors"
)

// Warning is a numeric edge case handled locally without aborting the run.
// Month is the series index (-1 when not tied to one month) and CalendarMonth
// is 1-12 (0 when not tied to a calendar month).
type Warning struct {
	Kind          WarningKind `json:"kind"`
	Month         int         `json:"month"`
	CalendarMonth int         `json:"calendar_month"`
	Message       string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}
