// Package batch computes drought indices for many stations concurrently.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/pdsi/internal/dataset"
	"github.com/chrissnell/pdsi/internal/metrics"
	"github.com/chrissnell/pdsi/pkg/config"
	"github.com/chrissnell/pdsi/pkg/palmer"
)

// ErrTimeout marks a station that did not finish within the station timeout.
var ErrTimeout = errors.New("station computation timed out")

// Store persists a station result.
type Store interface {
	SaveResult(ctx context.Context, station string, runID uuid.UUID, computedAt time.Time, r *palmer.Result) error
}

// SourceFactory returns the data source for a station.
type SourceFactory func(st config.StationData) (dataset.Source, error)

// Outcome is what happened to one station.
type Outcome struct {
	Station  string         `json:"station"`
	RunID    uuid.UUID      `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Warnings int            `json:"warnings"`
	Error    string         `json:"error,omitempty"`
	Result   *palmer.Result `json:"-"`
	Err      error          `json:"-"`
}

// Report summarizes one pass over the stations.
type Report struct {
	BatchID  uuid.UUID `json:"batch_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Outcomes []Outcome `json:"outcomes"`
	Failed   int       `json:"failed"`
}

// Runner fans station computations out over a bounded pool of workers.
type Runner struct {
	workers  int
	timeout  time.Duration
	failFast bool

	sources SourceFactory
	store   Store
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
	clock   clockwork.Clock
	params  palmer.Params
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore saves every successful result.
func WithStore(s Store) Option { return func(r *Runner) { r.store = s } }

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option { return func(r *Runner) { r.clock = c } }

// WithParams replaces palmer.DefaultParams.
func WithParams(p palmer.Params) Option { return func(r *Runner) { r.params = p } }

// NewRunner creates a Runner using the batch settings bc.
func NewRunner(bc config.BatchData, sources SourceFactory, logger *zap.SugaredLogger, opts ...Option) *Runner {
	r := &Runner{
		workers:  bc.WorkerCount(),
		timeout:  bc.StationTimeoutDuration(),
		failFast: bc.FailFast,
		sources:  sources,
		logger:   logger,
		clock:    clockwork.NewRealClock(),
		params:   palmer.DefaultParams(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run computes every station. Station failures are recorded in the report;
// the returned error is non-nil only when FailFast stopped the batch.
func (r *Runner) Run(ctx context.Context, stations []config.StationData) (*Report, error) {
	report := &Report{
		BatchID:  uuid.New(),
		Started:  r.clock.Now(),
		Outcomes: make([]Outcome, len(stations)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, st := range stations {
		g.Go(func() error {
			out := r.RunStation(gctx, st)
			report.Outcomes[i] = out
			if out.Err != nil && r.failFast {
				return fmt.Errorf("station %s: %w", st.Name, out.Err)
			}
			return nil
		})
	}
	err := g.Wait()

	report.Finished = r.clock.Now()
	for _, out := range report.Outcomes {
		if out.Err != nil {
			report.Failed++
		}
	}

	if r.metrics != nil {
		r.metrics.BatchDuration.Observe(report.Finished.Sub(report.Started).Seconds())
		r.metrics.LastBatch.Set(float64(report.Finished.Unix()))
	}
	r.logger.Infow("batch finished",
		"batch_id", report.BatchID,
		"stations", len(stations),
		"failed", report.Failed,
		"duration", report.Finished.Sub(report.Started))

	return report, err
}

// RunStation loads and computes one station within the station timeout.
func (r *Runner) RunStation(ctx context.Context, st config.StationData) Outcome {
	out := Outcome{
		Station: st.Name,
		RunID:   uuid.New(),
		Started: r.clock.Now(),
	}

	if err := ctx.Err(); err != nil {
		return r.finish(out, fmt.Errorf("skipped: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type computed struct {
		result *palmer.Result
		err    error
	}
	done := make(chan computed, 1)
	go func() {
		res, err := r.compute(ctx, st)
		done <- computed{res, err}
	}()

	// The engine itself is not cancellable; a timed-out computation finishes
	// in the background and its result is dropped.
	select {
	case c := <-done:
		if c.err != nil {
			return r.finish(out, c.err)
		}
		out.Result = c.result
		out.Warnings = len(c.result.Warnings)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return r.finish(out, fmt.Errorf("%w after %s", ErrTimeout, r.timeout))
		}
		return r.finish(out, ctx.Err())
	}

	if r.store != nil {
		if err := r.store.SaveResult(ctx, st.Name, out.RunID, out.Started, out.Result); err != nil {
			return r.finish(out, fmt.Errorf("saving result: %w", err))
		}
	}

	if r.metrics != nil {
		for _, w := range out.Result.Warnings {
			r.metrics.Warnings.WithLabelValues(string(w.Kind)).Inc()
		}
	}
	return r.finish(out, nil)
}

func (r *Runner) compute(ctx context.Context, st config.StationData) (*palmer.Result, error) {
	src, err := r.sources(st)
	if err != nil {
		return nil, err
	}
	m, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading data: %w", err)
	}
	in, err := dataset.Input(m, st)
	if err != nil {
		return nil, err
	}

	opts := []palmer.Option{palmer.WithParams(r.params)}
	if st.SelfCalibrate {
		opts = append(opts, palmer.WithSelfCalibration())
	}
	return palmer.Compute(in, opts...)
}

func (r *Runner) finish(out Outcome, err error) Outcome {
	out.Finished = r.clock.Now()
	out.Err = err

	outcome := "success"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	if err != nil {
		out.Error = err.Error()
		r.logger.Warnw("station failed", "station", out.Station, "run_id", out.RunID, "error", err)
	} else {
		r.logger.Debugw("station computed", "station", out.Station, "run_id", out.RunID, "warnings", out.Warnings)
	}

	if r.metrics != nil {
		r.metrics.StationRuns.WithLabelValues(outcome).Inc()
		r.metrics.StationDuration.Observe(out.Finished.Sub(out.Started).Seconds())
	}
	return out
}

// Loop runs a batch immediately and then every interval until ctx ends.
// stations is called before each batch so configuration changes are seen.
func (r *Runner) Loop(ctx context.Context, interval time.Duration, stations func() ([]config.StationData, error)) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		list, err := stations()
		if err != nil {
			r.logger.Errorw("could not load stations", "error", err)
		} else if _, err := r.Run(ctx, list); err != nil {
			r.logger.Errorw("batch stopped early", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}
