package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/pdsi/internal/batch"
	"github.com/chrissnell/pdsi/internal/constants"
	"github.com/chrissnell/pdsi/internal/database"
	"github.com/chrissnell/pdsi/internal/metrics"
	"github.com/chrissnell/pdsi/pkg/config"
	"github.com/chrissnell/pdsi/pkg/palmer"
	"github.com/chrissnell/pdsi/pkg/responseformat"
)

type fakeStore struct {
	series *database.StoredSeries
	err    error
}

func (f fakeStore) LatestSeries(ctx context.Context, station string) (*database.StoredSeries, error) {
	return f.series, f.err
}

type fakeRunner struct {
	outcome batch.Outcome
}

func (f fakeRunner) RunStation(ctx context.Context, st config.StationData) batch.Outcome {
	out := f.outcome
	out.Station = st.Name
	return out
}

type testServer struct {
	handler http.Handler
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, store SeriesStore, runner StationRunner) testServer {
	t.Helper()
	m := metrics.NewMetrics()
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)

	cfg := &config.ConfigData{Stations: []config.StationData{
		{Name: "boulder", AWC: 6, Latitude: 40, Source: config.SourceData{Type: config.SourceCSV, Path: "b.csv"}},
	}}
	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, cfg, config.RESTServerData{},
		Deps{Store: store, Runner: runner, Metrics: m, Gatherer: reg}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", ctrl.Server.Addr)
	return testServer{handler: ctrl.Server.Handler, metrics: m}
}

func (s testServer) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func computeBody(t *testing.T, req ComputeRequest) io.Reader {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) responseformat.ErrorBody {
	t.Helper()
	var body responseformat.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, fakeRunner{})
	rec := s.do(http.MethodGet, "/healthz", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.ServerName, rec.Header().Get("Server"))
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Stations)
	assert.False(t, body.DBEnabled)
}

func TestComputeJSON(t *testing.T) {
	s := newTestServer(t, nil, fakeRunner{})
	rec := s.do(http.MethodPost, "/compute", computeBody(t, ComputeRequest{
		Precipitation: flat(24, 2),
		PET:           flat(24, 2),
		AWC:           5,
		StartYear:     1950,
	}), "application/json")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		StartYear int       `json:"start_year"`
		PDSI      []float64 `json:"pdsi"`
		Warnings  []any     `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1950, got.StartYear)
	require.Len(t, got.PDSI, 24)
	for _, v := range got.PDSI {
		assert.Zero(t, v)
	}
	assert.NotEmpty(t, got.Warnings, "window outside the record is reported")
}

func TestComputeMissingMonthsEncodeAsNull(t *testing.T) {
	s := newTestServer(t, nil, fakeRunner{})
	doc := fmt.Sprintf(`{"precipitation":[null%s],"pet":[%s],"awc":5,"start_year":1950}`,
		strings.Repeat(",2", 23), strings.TrimSuffix(strings.Repeat("2,", 24), ","))

	rec := s.do(http.MethodPost, "/compute", strings.NewReader(doc), "application/json")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"pdsi":[null,`)
}

func TestComputeMsgPack(t *testing.T) {
	s := newTestServer(t, nil, fakeRunner{})
	body, err := msgpack.Marshal(map[string]any{
		"precipitation": flat(12, 1),
		"pet":           flat(12, 1),
		"awc":           4.0,
		"start_year":    2000,
	})
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/compute?format=msgpack", bytes.NewReader(body), responseformat.ContentTypeMsgPack)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, responseformat.ContentTypeMsgPack, rec.Header().Get("Content-Type"))
	var got map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got["pdsi"], 12)
}

func TestComputeFromTemperature(t *testing.T) {
	s := newTestServer(t, nil, fakeRunner{})
	rec := s.do(http.MethodPost, "/compute", computeBody(t, ComputeRequest{
		Precipitation: flat(12, 1),
		Temperature:   flat(12, 15),
		Latitude:      40,
		AWC:           5,
		StartYear:     2000,
		WaterBalance:  true,
	}), "application/json")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"water_balance"`)
}

func TestComputeErrors(t *testing.T) {
	flatJSON := "[" + strings.TrimSuffix(strings.Repeat("2,", 36), ",") + "]"
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"malformed", `{"precipitation": [1,2`, http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"precip": [1]}`, http.StatusBadRequest, "bad_request"},
		{"empty", `{"precipitation": [], "pet": [], "awc": 5}`, http.StatusBadRequest, "empty_series"},
		{"length mismatch", `{"precipitation": [1,2], "pet": [1], "awc": 5}`, http.StatusBadRequest, "length_mismatch"},
		{"bad awc", `{"precipitation": [1], "pet": [1], "awc": 0}`, http.StatusBadRequest, "invalid_awc"},
		{"negative precipitation", `{"precipitation": [-1], "pet": [1], "awc": 5}`, http.StatusBadRequest, "invalid_input"},
		{"inverted window", `{"precipitation": [1], "pet": [1], "awc": 5, "start_year": 2000, "calibration": {"start": 2001, "end": 2000}}`, http.StatusBadRequest, "invalid_calibration"},
		{"bad latitude", `{"precipitation": [1], "temperature": [10], "latitude": 100, "awc": 5, "start_year": 2000}`, http.StatusBadRequest, "invalid_input"},
		{"bad units", `{"precipitation": [1], "temperature": [10], "latitude": 10, "units": "cubits", "awc": 5, "start_year": 2000}`, http.StatusBadRequest, "bad_request"},
		{"flat record self-calibration", `{"precipitation": ` + flatJSON + `, "pet": ` + flatJSON + `, "awc": 5, "start_year": 2000, "self_calibrate": true}`, http.StatusUnprocessableEntity, "calibration_failed"},
	}

	s := newTestServer(t, nil, fakeRunner{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/compute", strings.NewReader(tt.body), "application/json")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantKind, decodeError(t, rec).Kind)
		})
	}
}

func TestListStations(t *testing.T) {
	s := newTestServer(t, nil, fakeRunner{})
	rec := s.do(http.MethodGet, "/stations", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []config.StationData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "boulder", got[0].Name)
}

func TestGetIndices(t *testing.T) {
	v := 1.5
	stored := &database.StoredSeries{
		Run:    database.PalmerRun{RunID: uuid.New(), StationName: "boulder"},
		Months: []database.PalmerMonth{{Month: database.MonthStart(2000, 0), PDSI: &v}},
	}

	tests := []struct {
		name     string
		store    SeriesStore
		station  string
		wantCode int
	}{
		{"stored run", fakeStore{series: stored}, "boulder", http.StatusOK},
		{"no database", nil, "boulder", http.StatusServiceUnavailable},
		{"unknown station", fakeStore{series: stored}, "denver", http.StatusNotFound},
		{"nothing stored", fakeStore{err: fmt.Errorf("%w: boulder", database.ErrNotFound)}, "boulder", http.StatusNotFound},
		{"database failure", fakeStore{err: errors.New("connection reset")}, "boulder", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.store, fakeRunner{})
			rec := s.do(http.MethodGet, "/stations/"+tt.station+"/indices", nil, "")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"pdsi":1.5`)
			}
		})
	}
}

func TestRunStation(t *testing.T) {
	result := &palmer.Result{StartYear: 2000, PDSI: palmer.Series{0.5}}
	ok := fakeRunner{outcome: batch.Outcome{RunID: uuid.New(), Started: time.Now(), Finished: time.Now(), Result: result}}

	s := newTestServer(t, nil, ok)
	rec := s.do(http.MethodPost, "/stations/boulder/run", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "boulder", got.Station)
	assert.Equal(t, ok.outcome.RunID, got.RunID)
	require.NotNil(t, got.Result)
	assert.Equal(t, 0.5, got.Result.PDSI[0])

	rec = s.do(http.MethodPost, "/stations/denver/run", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/stations/boulder/run", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	timeout := fakeRunner{outcome: batch.Outcome{Err: fmt.Errorf("%w after 1s", batch.ErrTimeout)}}
	s = newTestServer(t, nil, timeout)
	rec = s.do(http.MethodPost, "/stations/boulder/run", nil, "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", decodeError(t, rec).Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, fakeRunner{})
	s.do(http.MethodGet, "/healthz", nil, "")

	rec := s.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pdsi_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestNewControllerNeedsRunner(t *testing.T) {
	_, err := NewController(context.Background(), &sync.WaitGroup{}, &config.ConfigData{}, config.RESTServerData{}, Deps{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
