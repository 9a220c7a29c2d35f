package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource reads monthly rows from a table with the same columns as the
// CSV format: year, month, precip and either pet or temp.
type SQLiteSource struct {
	path  string
	table string
}

// NewSQLiteSource returns a source reading table from the SQLite file at path.
func NewSQLiteSource(path, table string) *SQLiteSource {
	return &SQLiteSource{path: path, table: table}
}

// Load implements Source.
func (s *SQLiteSource) Load(ctx context.Context) (*Monthly, error) {
	if !identifier.MatchString(s.table) {
		return nil, fmt.Errorf("invalid table name %q", s.table)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer db.Close()

	kind, second, err := s.secondColumn(ctx, db)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT year, month, precip, %s FROM %s ORDER BY year, month`, second, s.table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var year, month int
		var precip, value sql.NullFloat64
		if err := rows.Scan(&year, &month, &precip, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.table, err)
		}

		rec := Record{Year: year, Month: month, Precipitation: orNaN(precip), PET: nan(), Temperature: nan()}
		if kind == KindPET {
			rec.PET = orNaN(value)
		} else {
			rec.Temperature = orNaN(value)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return Assemble(records, kind)
}

// secondColumn finds whether the table stores pet or temp.
func (s *SQLiteSource) secondColumn(ctx context.Context, db *sql.DB) (Kind, string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info('%s')`, s.table))
	if err != nil {
		return 0, "", fmt.Errorf("failed to inspect %s: %w", s.table, err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, "", err
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return 0, "", err
	}

	switch {
	case len(found) == 0:
		return 0, "", fmt.Errorf("table %s does not exist", s.table)
	case found["pet"]:
		return KindPET, "pet", nil
	case found["temp"]:
		return KindTemperature, "temp", nil
	}
	return 0, "", fmt.Errorf("table %s has neither a pet nor a temp column", s.table)
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return nan()
	}
	return v.Float64
}
