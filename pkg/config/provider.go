package config

import (
	"errors"
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetStations() ([]StationData, error)
	GetStorageConfig() (*StorageData, error)
	GetControllers() ([]ControllerData, error)
	GetBatchConfig() (*BatchData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Stations    []StationData    `json:"stations"`
	Storage     StorageData      `json:"storage,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty"`
	Batch       BatchData        `json:"batch,omitempty"`
}

// Source types
const (
	SourceCSV         = "csv"
	SourceSQLite      = "sqlite"
	SourceTimescaleDB = "timescaledb"
)

// StationData is one station whose drought indices are computed.
type StationData struct {
	Name      string  `json:"name"`
	AWC       float64 `json:"awc"`
	Latitude  float64 `json:"latitude"`
	StartYear int     `json:"start_year,omitempty"`

	// Zero values select the default 1931-1990 window.
	CalibrationStart int `json:"calibration_start,omitempty"`
	CalibrationEnd   int `json:"calibration_end,omitempty"`

	SelfCalibrate bool       `json:"self_calibrate,omitempty"`
	Source        SourceData `json:"source"`
}

// SourceData says where a station's monthly series come from.
type SourceData struct {
	Type string `json:"type"`

	// Path is a CSV or SQLite file.
	Path string `json:"path,omitempty"`

	// Table is read by the sqlite source.
	Table string `json:"table,omitempty"`

	// PullFromDevice names the station in the weather tables of the
	// timescaledb source.
	PullFromDevice string `json:"pull_from_device,omitempty"`

	// Units of the raw data: "in" or "mm" for precipitation and PET,
	// "C" or "F" for temperature. Computation is always in inches.
	PrecipitationUnits string `json:"precipitation_units,omitempty"`
	TemperatureUnits   string `json:"temperature_units,omitempty"`
}

// StorageData holds the configuration for the result database
type StorageData struct {
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// ControllerData holds the configuration for various controller backends
type ControllerData struct {
	Type       string          `json:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty"`
}

type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
}

// BatchData controls how stations are processed.
type BatchData struct {
	Workers        int    `json:"workers,omitempty"`
	StationTimeout string `json:"station_timeout,omitempty"`
	Interval       string `json:"interval,omitempty"`
	FailFast       bool   `json:"fail_fast,omitempty"`
}

const (
	DefaultWorkers        = 4
	DefaultStationTimeout = 30 * time.Second
)

// StationTimeoutDuration parses StationTimeout, falling back to the default.
func (b BatchData) StationTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(b.StationTimeout)
	if err != nil || d <= 0 {
		return DefaultStationTimeout
	}
	return d
}

// IntervalDuration parses Interval. Zero means run once.
func (b BatchData) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(b.Interval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// WorkerCount returns Workers or the default.
func (b BatchData) WorkerCount() int {
	if b.Workers <= 0 {
		return DefaultWorkers
	}
	return b.Workers
}

// Station returns the named station.
func (c *ConfigData) Station(name string) (StationData, bool) {
	for _, s := range c.Stations {
		if s.Name == name {
			return s, true
		}
	}
	return StationData{}, false
}

// RESTServer returns the first REST controller, if any.
func (c *ConfigData) RESTServer() *RESTServerData {
	for _, ctrl := range c.Controllers {
		if ctrl.Type == "rest" && ctrl.RESTServer != nil {
			return ctrl.RESTServer
		}
	}
	return nil
}

// Validate reports every problem found in the configuration.
func (c *ConfigData) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	for i, s := range c.Stations {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("station %d: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("station %s: duplicate name", s.Name))
		}
		seen[s.Name] = true
		errs = append(errs, s.validate()...)

		if s.Source.Type == SourceTimescaleDB && (c.Storage.TimescaleDB == nil || c.Storage.TimescaleDB.ConnectionString == "") {
			errs = append(errs, fmt.Errorf("station %s: timescaledb source requires storage.timescaledb", s.Name))
		}
	}

	for _, ctrl := range c.Controllers {
		switch ctrl.Type {
		case "rest":
			if ctrl.RESTServer == nil {
				errs = append(errs, errors.New("rest controller has no configuration"))
			} else if (ctrl.RESTServer.Cert == "") != (ctrl.RESTServer.Key == "") {
				errs = append(errs, errors.New("rest controller: cert and key must be set together"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown controller type %q", ctrl.Type))
		}
	}

	if c.Batch.StationTimeout != "" {
		if _, err := time.ParseDuration(c.Batch.StationTimeout); err != nil {
			errs = append(errs, fmt.Errorf("batch station_timeout: %w", err))
		}
	}
	if c.Batch.Interval != "" {
		if _, err := time.ParseDuration(c.Batch.Interval); err != nil {
			errs = append(errs, fmt.Errorf("batch interval: %w", err))
		}
	}
	if c.Batch.Workers < 0 {
		errs = append(errs, errors.New("batch workers must not be negative"))
	}

	return errors.Join(errs...)
}

func (s StationData) validate() []error {
	var errs []error
	if !(s.AWC > 0) {
		errs = append(errs, fmt.Errorf("station %s: awc must be positive", s.Name))
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		errs = append(errs, fmt.Errorf("station %s: latitude %g out of range", s.Name, s.Latitude))
	}
	if s.CalibrationStart != 0 && s.CalibrationEnd != 0 && s.CalibrationStart > s.CalibrationEnd {
		errs = append(errs, fmt.Errorf("station %s: calibration start %d after end %d", s.Name, s.CalibrationStart, s.CalibrationEnd))
	}

	switch s.Source.Type {
	case SourceCSV:
		if s.Source.Path == "" {
			errs = append(errs, fmt.Errorf("station %s: csv source requires a path", s.Name))
		}
	case SourceSQLite:
		if s.Source.Path == "" || s.Source.Table == "" {
			errs = append(errs, fmt.Errorf("station %s: sqlite source requires path and table", s.Name))
		}
	case SourceTimescaleDB:
		if s.Source.PullFromDevice == "" {
			errs = append(errs, fmt.Errorf("station %s: timescaledb source requires pull_from_device", s.Name))
		}
	default:
		errs = append(errs, fmt.Errorf("station %s: unknown source type %q", s.Name, s.Source.Type))
	}

	switch s.Source.PrecipitationUnits {
	case "", "in", "mm":
	default:
		errs = append(errs, fmt.Errorf("station %s: unknown precipitation units %q", s.Name, s.Source.PrecipitationUnits))
	}
	switch s.Source.TemperatureUnits {
	case "", "C", "F":
	default:
		errs = append(errs, fmt.Errorf("station %s: unknown temperature units %q", s.Name, s.Source.TemperatureUnits))
	}
	return errs
}
