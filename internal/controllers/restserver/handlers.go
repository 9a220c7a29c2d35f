package restserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chrissnell/pdsi/internal/batch"
	"github.com/chrissnell/pdsi/internal/constants"
	"github.com/chrissnell/pdsi/internal/database"
	"github.com/chrissnell/pdsi/pkg/palmer"
	"github.com/chrissnell/pdsi/pkg/pet"
	"github.com/chrissnell/pdsi/pkg/responseformat"
)

var (
	errStationNotFound = errors.New("station not configured")
	errStorageDisabled = errors.New("no database configured")
	errBadRequest      = errors.New("malformed request")
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// ComputeRequest is the body of POST /compute. Either PET or Temperature
// (degrees Celsius, with Latitude) must be given.
type ComputeRequest struct {
	Precipitation palmer.Series  `json:"precipitation"`
	PET           palmer.Series  `json:"pet,omitempty"`
	Temperature   palmer.Series  `json:"temperature,omitempty"`
	Latitude      float64        `json:"latitude,omitempty"`
	Units         string         `json:"units,omitempty"`
	AWC           float64        `json:"awc"`
	StartYear     int            `json:"start_year"`
	Calibration   *palmer.Window `json:"calibration,omitempty"`
	SelfCalibrate bool           `json:"self_calibrate,omitempty"`
	WaterBalance  bool           `json:"water_balance,omitempty"`
}

// RunResponse is the body returned by POST /stations/{station}/run.
type RunResponse struct {
	Station  string         `json:"station"`
	RunID    uuid.UUID      `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Result   *palmer.Result `json:"result"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Stations  int    `json:"stations"`
	DBEnabled bool   `json:"db_enabled"`
}

// Compute runs the engine on the series in the request body.
func (h *Handlers) Compute(w http.ResponseWriter, req *http.Request) {
	var body ComputeRequest
	if err := h.formatter.DecodeRequest(req, &body); err != nil {
		h.writeError(w, req, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	in, opts, err := body.input()
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	result, err := palmer.Compute(in, opts...)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, result)
}

func (b ComputeRequest) input() (palmer.Input, []palmer.Option, error) {
	petSeries := b.PET
	if len(petSeries) == 0 && len(b.Temperature) > 0 {
		mm, err := pet.Thornthwaite(b.Temperature, b.Latitude, b.StartYear)
		if err != nil {
			return palmer.Input{}, nil, err
		}
		switch b.Units {
		case "", "in":
			petSeries = pet.ToInches(mm)
		case "mm":
			petSeries = mm
		default:
			return palmer.Input{}, nil, fmt.Errorf("%w: unknown units %q", errBadRequest, b.Units)
		}
	}

	in := palmer.Input{
		Precipitation: b.Precipitation,
		PET:           petSeries,
		AWC:           b.AWC,
		StartYear:     b.StartYear,
	}
	if b.Calibration != nil {
		in.Calibration = *b.Calibration
	}

	var opts []palmer.Option
	if b.SelfCalibrate {
		opts = append(opts, palmer.WithSelfCalibration())
	}
	if b.WaterBalance {
		opts = append(opts, palmer.WithWaterBalance())
	}
	return in, opts, nil
}

// ListStations returns the configured stations.
func (h *Handlers) ListStations(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, h.controller.Stations)
}

// GetIndices returns the latest stored run of a station.
func (h *Handlers) GetIndices(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["station"]

	if _, ok := h.controller.station(name); !ok {
		h.writeError(w, req, fmt.Errorf("%w: %s", errStationNotFound, name))
		return
	}
	if !h.controller.DBEnabled {
		h.writeError(w, req, errStorageDisabled)
		return
	}

	series, err := h.controller.deps.Store.LatestSeries(req.Context(), name)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, series)
}

// RunStation recomputes one configured station now.
func (h *Handlers) RunStation(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["station"]

	st, ok := h.controller.station(name)
	if !ok {
		h.writeError(w, req, fmt.Errorf("%w: %s", errStationNotFound, name))
		return
	}

	out := h.controller.deps.Runner.RunStation(req.Context(), st)
	if out.Err != nil {
		h.writeError(w, req, out.Err)
		return
	}

	h.write(w, req, http.StatusOK, RunResponse{
		Station:  out.Station,
		RunID:    out.RunID,
		Started:  out.Started,
		Finished: out.Finished,
		Result:   out.Result,
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   constants.Version,
		Stations:  len(h.controller.Stations),
		DBEnabled: h.controller.DBEnabled,
	})
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("error encoding response for %s: %v", req.URL.Path, err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	if werr := h.formatter.WriteError(w, req, status, kind, err); werr != nil {
		h.controller.logger.Errorf("error encoding error response for %s: %v", req.URL.Path, werr)
	}
}

// classify maps an error to an HTTP status and a machine-readable kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, palmer.ErrEmptySeries), errors.Is(err, pet.ErrEmptySeries):
		return http.StatusBadRequest, "empty_series"
	case errors.Is(err, palmer.ErrLengthMismatch):
		return http.StatusBadRequest, "length_mismatch"
	case errors.Is(err, palmer.ErrInvalidAWC):
		return http.StatusBadRequest, "invalid_awc"
	case errors.Is(err, palmer.ErrInvalidInput), errors.Is(err, pet.ErrInvalidLatitude):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, palmer.ErrInvalidCalibration):
		return http.StatusBadRequest, "invalid_calibration"
	case errors.Is(err, palmer.ErrCalibrationFailed):
		return http.StatusUnprocessableEntity, "calibration_failed"
	case errors.Is(err, errStationNotFound), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errStorageDisabled):
		return http.StatusServiceUnavailable, "storage_disabled"
	case errors.Is(err, batch.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}
