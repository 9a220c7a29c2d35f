package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/pdsi/internal/log"
	"github.com/chrissnell/pdsi/pkg/palmer"
)

// ErrNotFound is returned when a station has no stored run.
var ErrNotFound = errors.New("no stored run for station")

const monthBatchSize = 500

// Client holds the connection to a TimescaleDB database
type Client struct {
	connectionString string
	DB               *gorm.DB // Exported so it can be accessed from other packages
	logger           *zap.SugaredLogger

	// MaxElapsedTime bounds connection retries.
	MaxElapsedTime time.Duration
}

// NewClient creates a new database client
func NewClient(connectionString string, logger *zap.SugaredLogger) *Client {
	return &Client{
		connectionString: connectionString,
		logger:           logger,
		MaxElapsedTime:   2 * time.Minute,
	}
}

func newGormLogger() logger.Interface {
	return logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)
}

// Connect connects to the TimescaleDB database, retrying with exponential
// backoff until it answers a ping or ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	operation := func() error {
		db, err := gorm.Open(postgres.Open(c.connectionString), &gorm.Config{Logger: newGormLogger()})
		if err != nil {
			c.logger.Warnf("unable to create a TimescaleDB connection: %v", err)
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			c.logger.Warnf("TimescaleDB not answering: %v", err)
			return err
		}
		c.DB = db
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.MaxElapsedTime

	c.logger.Info("connecting to TimescaleDB...")
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("connecting to TimescaleDB: %w", err)
	}
	c.logger.Info("TimescaleDB connection successful")
	return nil
}

// AutoMigrate creates or updates the result tables.
func (c *Client) AutoMigrate() error {
	return c.DB.AutoMigrate(&PalmerRun{}, &PalmerMonth{})
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveResult stores a run and all of its months in one transaction.
func (c *Client) SaveResult(ctx context.Context, station string, runID uuid.UUID, computedAt time.Time, r *palmer.Result) error {
	run, months := NewRecords(station, runID, computedAt, r)

	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("error saving run %s: %w", runID, err)
		}
		if len(months) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(months, monthBatchSize).Error; err != nil {
			return fmt.Errorf("error saving months of run %s: %w", runID, err)
		}
		return nil
	})
}

// LatestSeries returns the most recent run stored for station.
func (c *Client) LatestSeries(ctx context.Context, station string) (*StoredSeries, error) {
	db := c.DB.WithContext(ctx)

	var run PalmerRun
	err := db.Where("station_name = ?", station).Order("computed_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, station)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying runs for %s: %w", station, err)
	}

	var months []PalmerMonth
	if err := db.Where("run_id = ?", run.RunID).Order("month").Find(&months).Error; err != nil {
		return nil, fmt.Errorf("error querying months of run %s: %w", run.RunID, err)
	}

	return &StoredSeries{Run: run, Months: months}, nil
}
