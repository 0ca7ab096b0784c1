package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// ProductionRepository stores the cleaned monthly observation series for
// each reporting unit. Audit outputs are never persisted; every run
// recomputes them from the stored observations.
type ProductionRepository struct {
	pool DatabasePool
}

// NewProductionRepository creates a new production repository instance.
func NewProductionRepository(pool DatabasePool) *ProductionRepository {
	return &ProductionRepository{pool: pool}
}

// UpsertObservations writes a field's monthly series, replacing any months
// already stored for that field.
//
// Parameters:
//   - ctx: Context for the database operation
//   - fieldName: Reporting unit the observations belong to
//   - obs: Monthly observations, one row per report month
//
// Returns:
//   - int64: Number of rows written
//   - error: Any error that occurred during the operation
func (r *ProductionRepository) UpsertObservations(ctx context.Context, fieldName string, obs []models.ProductionObservation) (int64, error) {
	query := `
		INSERT INTO production_observations (field_name, report_month, actual_boe, is_shut_in)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (field_name, report_month)
		DO UPDATE SET
			actual_boe = EXCLUDED.actual_boe,
			is_shut_in = EXCLUDED.is_shut_in,
			updated_at = CURRENT_TIMESTAMP
	`

	var written int64
	for _, o := range obs {
		tag, err := r.pool.Exec(ctx, query, fieldName, o.Period, o.ActualBOE, o.IsShutIn)
		if err != nil {
			return written, fmt.Errorf("failed to upsert observation for %s: %w", o.Period.Format("2006-01"), err)
		}
		written += tag.RowsAffected()
	}

	return written, nil
}

// GetFieldSeries returns a field's observations in chronological order.
// An empty slice with no error means the field has no stored months.
func (r *ProductionRepository) GetFieldSeries(ctx context.Context, fieldName string) ([]models.ProductionObservation, error) {
	query := `
		SELECT report_month, actual_boe, is_shut_in
		FROM production_observations
		WHERE field_name = $1
		ORDER BY report_month ASC
	`

	rows, err := r.pool.Query(ctx, query, fieldName)
	if err != nil {
		return nil, fmt.Errorf("failed to get production series: %w", err)
	}
	defer rows.Close()

	obs := make([]models.ProductionObservation, 0)
	for rows.Next() {
		var o models.ProductionObservation
		if err := rows.Scan(&o.Period, &o.ActualBOE, &o.IsShutIn); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs = append(obs, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return obs, nil
}

// ListFields returns the names of all reporting units present in storage,
// sorted alphabetically.
func (r *ProductionRepository) ListFields(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT field_name
		FROM production_observations
		ORDER BY field_name ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	defer rows.Close()

	fields := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan field name: %w", err)
		}
		fields = append(fields, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating field names: %w", err)
	}

	return fields, nil
}

// CountObservations returns how many report months are stored for a field.
func (r *ProductionRepository) CountObservations(ctx context.Context, fieldName string) (int, error) {
	query := `SELECT COUNT(*) FROM production_observations WHERE field_name = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, fieldName).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}

	return count, nil
}
