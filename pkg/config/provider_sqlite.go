package config

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/pdsi/internal/log"
	"github.com/chrissnell/pdsi/pkg/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Migrate brings the configuration schema up to the latest version.
func (s *SQLiteProvider) Migrate() error {
	return s.migrator().MigrateUp()
}

// SchemaVersion returns the applied schema version, 0 for an empty database.
func (s *SQLiteProvider) SchemaVersion() (int, error) {
	return s.migrator().CurrentVersion()
}

func (s *SQLiteProvider) migrator() *migrate.Migrator {
	provider := migrate.NewFSProvider(migrations, "migrations", "schema_migrations")
	return migrate.NewMigrator(s.db, provider, log.GetSugaredLogger())
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	stations, err := s.GetStations()
	if err != nil {
		return nil, fmt.Errorf("failed to load stations: %w", err)
	}
	config.Stations = stations

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	controllers, err := s.GetControllers()
	if err != nil {
		return nil, fmt.Errorf("failed to load controllers: %w", err)
	}
	config.Controllers = controllers

	batch, err := s.GetBatchConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load batch config: %w", err)
	}
	config.Batch = *batch

	return config, nil
}

// GetStations returns station configurations from the database
func (s *SQLiteProvider) GetStations() ([]StationData, error) {
	query := `
		SELECT name, awc, latitude, start_year, calibration_start, calibration_end,
		       self_calibrate, source_type, source_path, source_table,
		       pull_from_device, precipitation_units, temperature_units
		FROM stations
		ORDER BY name
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []StationData
	for rows.Next() {
		var st StationData
		var startYear, calStart, calEnd sql.NullInt64
		var selfCal int64
		var path, table, device, precipUnits, tempUnits sql.NullString

		err := rows.Scan(
			&st.Name, &st.AWC, &st.Latitude, &startYear, &calStart, &calEnd,
			&selfCal, &st.Source.Type, &path, &table,
			&device, &precipUnits, &tempUnits,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station row: %w", err)
		}

		st.StartYear = int(startYear.Int64)
		st.CalibrationStart = int(calStart.Int64)
		st.CalibrationEnd = int(calEnd.Int64)
		st.SelfCalibrate = selfCal != 0
		st.Source.Path = path.String
		st.Source.Table = table.String
		st.Source.PullFromDevice = device.String
		st.Source.PrecipitationUnits = precipUnits.String
		st.Source.TemperatureUnits = tempUnits.String

		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	storage := &StorageData{}

	var conn string
	err := s.db.QueryRow(
		`SELECT connection_string FROM storage_configs WHERE backend_type = 'timescaledb'`,
	).Scan(&conn)
	switch {
	case err == sql.ErrNoRows:
		return storage, nil
	case err != nil:
		return nil, fmt.Errorf("failed to query storage config: %w", err)
	}

	storage.TimescaleDB = &TimescaleDBData{ConnectionString: conn}
	return storage, nil
}

// GetControllers returns controller configurations from the database
func (s *SQLiteProvider) GetControllers() ([]ControllerData, error) {
	rows, err := s.db.Query(`
		SELECT controller_type, tls_cert, tls_key, port, listen_addr
		FROM controller_configs
		ORDER BY controller_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query controllers: %w", err)
	}
	defer rows.Close()

	var controllers []ControllerData
	for rows.Next() {
		var ctrl ControllerData
		var cert, key, listenAddr sql.NullString
		var port sql.NullInt64

		if err := rows.Scan(&ctrl.Type, &cert, &key, &port, &listenAddr); err != nil {
			return nil, fmt.Errorf("failed to scan controller row: %w", err)
		}

		if ctrl.Type == "rest" {
			ctrl.RESTServer = &RESTServerData{
				Cert:       cert.String,
				Key:        key.String,
				Port:       int(port.Int64),
				ListenAddr: listenAddr.String,
			}
		}
		controllers = append(controllers, ctrl)
	}
	return controllers, rows.Err()
}

// GetBatchConfig returns the batch settings, or zero values if none are stored
func (s *SQLiteProvider) GetBatchConfig() (*BatchData, error) {
	batch := &BatchData{}

	var workers sql.NullInt64
	var timeout, interval sql.NullString
	var failFast int64
	err := s.db.QueryRow(
		`SELECT workers, station_timeout, run_interval, fail_fast FROM batch_configs WHERE id = 1`,
	).Scan(&workers, &timeout, &interval, &failFast)
	switch {
	case err == sql.ErrNoRows:
		return batch, nil
	case err != nil:
		return nil, fmt.Errorf("failed to query batch config: %w", err)
	}

	batch.Workers = int(workers.Int64)
	batch.StationTimeout = timeout.String
	batch.Interval = interval.String
	batch.FailFast = failFast != 0
	return batch, nil
}

// IsReadOnly returns false since SQLite supports read-write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"stations", "storage_configs", "controller_configs", "batch_configs"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, station := range configData.Stations {
		if err := insertStation(tx, &station); err != nil {
			return fmt.Errorf("failed to insert station %s: %w", station.Name, err)
		}
	}

	if ts := configData.Storage.TimescaleDB; ts != nil {
		if _, err := tx.Exec(
			`INSERT INTO storage_configs (backend_type, connection_string) VALUES ('timescaledb', ?)`,
			ts.ConnectionString,
		); err != nil {
			return fmt.Errorf("failed to insert storage config: %w", err)
		}
	}

	for _, ctrl := range configData.Controllers {
		var rest RESTServerData
		if ctrl.RESTServer != nil {
			rest = *ctrl.RESTServer
		}
		if _, err := tx.Exec(
			`INSERT INTO controller_configs (controller_type, tls_cert, tls_key, port, listen_addr) VALUES (?, ?, ?, ?, ?)`,
			ctrl.Type, nullString(rest.Cert), nullString(rest.Key), rest.Port, nullString(rest.ListenAddr),
		); err != nil {
			return fmt.Errorf("failed to insert controller %s: %w", ctrl.Type, err)
		}
	}

	b := configData.Batch
	if _, err := tx.Exec(
		`INSERT INTO batch_configs (id, workers, station_timeout, run_interval, fail_fast) VALUES (1, ?, ?, ?, ?)`,
		b.Workers, nullString(b.StationTimeout), nullString(b.Interval), boolInt(b.FailFast),
	); err != nil {
		return fmt.Errorf("failed to insert batch config: %w", err)
	}

	return tx.Commit()
}

func insertStation(tx *sql.Tx, st *StationData) error {
	_, err := tx.Exec(`
		INSERT INTO stations (
			name, awc, latitude, start_year, calibration_start, calibration_end,
			self_calibrate, source_type, source_path, source_table,
			pull_from_device, precipitation_units, temperature_units
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Name, st.AWC, st.Latitude, nullInt(st.StartYear), nullInt(st.CalibrationStart), nullInt(st.CalibrationEnd),
		boolInt(st.SelfCalibrate), st.Source.Type, nullString(st.Source.Path), nullString(st.Source.Table),
		nullString(st.Source.PullFromDevice), nullString(st.Source.PrecipitationUnits), nullString(st.Source.TemperatureUnits),
	)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
