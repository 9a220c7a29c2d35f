package dataset

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// MinDaysPerMonth is the daily coverage below which an aggregated month is
// treated as missing.
const MinDaysPerMonth = 25

// TimescaleSource aggregates a weather station's daily buckets into monthly
// precipitation totals and mean temperatures.
type TimescaleSource struct {
	db      *gorm.DB
	station string
}

// NewTimescaleSource returns a source for the station named stationName in
// the weather tables.
func NewTimescaleSource(db *gorm.DB, stationName string) *TimescaleSource {
	return &TimescaleSource{db: db, station: stationName}
}

// MonthlyAggregate is one row of the monthly rollup query.
type MonthlyAggregate struct {
	Year  int      `gorm:"column:year"`
	Month int      `gorm:"column:month"`
	Rain  *float64 `gorm:"column:rain"`
	Temp  *float64 `gorm:"column:temp"`
	Days  int      `gorm:"column:days"`
}

// Load implements Source.
func (t *TimescaleSource) Load(ctx context.Context) (*Monthly, error) {
	var rows []MonthlyAggregate

	err := t.db.WithContext(ctx).
		Table("weather_1d").
		Select(`EXTRACT(YEAR FROM bucket)::int AS year,
			EXTRACT(MONTH FROM bucket)::int AS month,
			SUM(period_rain) AS rain,
			AVG(outtemp) AS temp,
			COUNT(*) AS days`).
		Where("stationname = ?", t.station).
		Group("year, month").
		Order("year, month").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying monthly aggregates for %s: %w", t.station, err)
	}

	return Assemble(AggregateRecords(rows), KindTemperature)
}

// AggregateRecords turns rollup rows into records, marking thinly covered
// months as missing.
func AggregateRecords(rows []MonthlyAggregate) []Record {
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec := Record{Year: r.Year, Month: r.Month, Precipitation: nan(), PET: nan(), Temperature: nan()}
		if r.Days >= MinDaysPerMonth {
			if r.Rain != nil {
				rec.Precipitation = *r.Rain
			}
			if r.Temp != nil {
				rec.Temperature = *r.Temp
			}
		}
		records = append(records, rec)
	}
	return records
}
