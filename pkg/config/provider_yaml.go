package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// ParseYAML converts a YAML document into ConfigData.
func ParseYAML(data []byte) (*ConfigData, error) {
	var yamlConfig struct {
		Stations    []StationYAML    `yaml:"stations"`
		Storage     StorageYAML      `yaml:"storage,omitempty"`
		Controllers []ControllerYAML `yaml:"controllers,omitempty"`
		Batch       BatchYAML        `yaml:"batch,omitempty"`
	}

	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Stations:    make([]StationData, len(yamlConfig.Stations)),
		Controllers: make([]ControllerData, len(yamlConfig.Controllers)),
		Batch: BatchData{
			Workers:        yamlConfig.Batch.Workers,
			StationTimeout: yamlConfig.Batch.StationTimeout,
			Interval:       yamlConfig.Batch.Interval,
			FailFast:       yamlConfig.Batch.FailFast,
		},
	}

	for i, station := range yamlConfig.Stations {
		config.Stations[i] = StationData{
			Name:             station.Name,
			AWC:              station.AWC,
			Latitude:         station.Latitude,
			StartYear:        station.StartYear,
			CalibrationStart: station.Calibration.Start,
			CalibrationEnd:   station.Calibration.End,
			SelfCalibrate:    station.SelfCalibrate,
			Source: SourceData{
				Type:               station.Source.Type,
				Path:               station.Source.Path,
				Table:              station.Source.Table,
				PullFromDevice:     station.Source.PullFromDevice,
				PrecipitationUnits: station.Source.PrecipitationUnits,
				TemperatureUnits:   station.Source.TemperatureUnits,
			},
		}
	}

	if yamlConfig.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: yamlConfig.Storage.TimescaleDB.ConnectionString,
		}
	}

	for i, controller := range yamlConfig.Controllers {
		config.Controllers[i] = ControllerData{
			Type: controller.Type,
		}
		if controller.RESTServer != nil {
			config.Controllers[i].RESTServer = &RESTServerData{
				Cert:       controller.RESTServer.Cert,
				Key:        controller.RESTServer.Key,
				Port:       controller.RESTServer.Port,
				ListenAddr: controller.RESTServer.ListenAddr,
			}
		}
	}

	return config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config == nil {
		return y.LoadConfig()
	}
	return y.config, nil
}

// GetStations returns station configurations
func (y *YAMLProvider) GetStations() ([]StationData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return c.Stations, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// GetControllers returns controller configurations
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return c.Controllers, nil
}

// GetBatchConfig returns the batch settings
func (y *YAMLProvider) GetBatchConfig() (*BatchData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Batch, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with hyphenated keys
type StationYAML struct {
	Name          string          `yaml:"name"`
	AWC           float64         `yaml:"awc"`
	Latitude      float64         `yaml:"latitude"`
	StartYear     int             `yaml:"start-year,omitempty"`
	Calibration   CalibrationYAML `yaml:"calibration,omitempty"`
	SelfCalibrate bool            `yaml:"self-calibrate,omitempty"`
	Source        SourceYAML      `yaml:"source"`
}

type CalibrationYAML struct {
	Start int `yaml:"start,omitempty"`
	End   int `yaml:"end,omitempty"`
}

type SourceYAML struct {
	Type               string `yaml:"type"`
	Path               string `yaml:"path,omitempty"`
	Table              string `yaml:"table,omitempty"`
	PullFromDevice     string `yaml:"pull-from-device,omitempty"`
	PrecipitationUnits string `yaml:"precipitation-units,omitempty"`
	TemperatureUnits   string `yaml:"temperature-units,omitempty"`
}

type StorageYAML struct {
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type ControllerYAML struct {
	Type       string          `yaml:"type,omitempty"`
	RESTServer *RESTServerYAML `yaml:"rest,omitempty"`
}

type RESTServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
}

type BatchYAML struct {
	Workers        int    `yaml:"workers,omitempty"`
	StationTimeout string `yaml:"station-timeout,omitempty"`
	Interval       string `yaml:"interval,omitempty"`
	FailFast       bool   `yaml:"fail-fast,omitempty"`
}
