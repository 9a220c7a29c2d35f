package restserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chrissnell/pdsi/internal/batch"
	"github.com/chrissnell/pdsi/internal/constants"
	"github.com/chrissnell/pdsi/internal/database"
	"github.com/chrissnell/pdsi/internal/log"
	"github.com/chrissnell/pdsi/internal/metrics"
	"github.com/chrissnell/pdsi/pkg/config"
)

// SeriesStore reads stored runs.
type SeriesStore interface {
	LatestSeries(ctx context.Context, station string) (*database.StoredSeries, error)
}

// StationRunner computes a single station on demand.
type StationRunner interface {
	RunStation(ctx context.Context, st config.StationData) batch.Outcome
}

// Deps are the collaborators the handlers use. Store may be nil when no
// database is configured.
type Deps struct {
	Store    SeriesStore
	Runner   StationRunner
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	Stations   []config.StationData
	DBEnabled  bool
	deps       Deps
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, cfgData *config.ConfigData, rc config.RESTServerData, deps Deps, logger *zap.SugaredLogger) (*Controller, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("REST server needs a station runner")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		Stations:   cfgData.Stations,
		DBEnabled:  deps.Store != nil,
		deps:       deps,
		logger:     logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if rc.Port == 0 {
		logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}
	ctrl.restConfig = rc

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.Handler()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Handler returns the full HTTP handler: router, logging, compression and
// panic recovery.
func (c *Controller) Handler() http.Handler {
	router := c.setupRouter()
	router.Use(log.HTTPMiddleware(c.logger, routeTemplate, c.observeRequest))

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		serverHeader(handlers.CompressHandler(router)),
	)
}

func serverHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", constants.ServerName)
		next.ServeHTTP(w, r)
	})
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/compute", c.handlers.Compute).Methods(http.MethodPost)
	router.HandleFunc("/stations", c.handlers.ListStations).Methods(http.MethodGet)
	router.HandleFunc("/stations/{station}/indices", c.handlers.GetIndices).Methods(http.MethodGet)
	router.HandleFunc("/stations/{station}/run", c.handlers.RunStation).Methods(http.MethodPost)
	router.HandleFunc("/healthz", c.handlers.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(c.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

// station returns the configured station with the given name
func (c *Controller) station(name string) (config.StationData, bool) {
	for _, st := range c.Stations {
		if st.Name == name {
			return st, true
		}
	}
	return config.StationData{}, false
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (c *Controller) observeRequest(e log.HTTPLogEntry) {
	if c.deps.Metrics == nil {
		return
	}
	c.deps.Metrics.HTTPRequests.WithLabelValues(e.Route, strconv.Itoa(e.Status)).Inc()
	c.deps.Metrics.HTTPDuration.WithLabelValues(e.Route).Observe(e.Duration.Seconds())
}
