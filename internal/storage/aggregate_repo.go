package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// AggregateRepo provides methods for precomputed rollups. Aggregates are
// fully derived; replacing a period wholesale is always safe.
type AggregateRepo struct {
	db *sql.DB
}

// NewAggregateRepo creates a new AggregateRepo.
func NewAggregateRepo(db *sql.DB) *AggregateRepo {
	return &AggregateRepo{db: db}
}

// ReplacePeriod deletes every aggregate for (periodType, periodStartTS) and
// inserts the given rows in one transaction.
func (r *AggregateRepo) ReplacePeriod(ctx context.Context, periodType string, periodStartTS int64, aggs []Aggregate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin aggregate transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM aggregates WHERE period_type = ? AND period_start_ts = ?`,
		periodType, periodStartTS,
	); err != nil {
		return fmt.Errorf("failed to clear aggregates: %w", err)
	}

	for _, a := range aggs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO aggregates (period_type, period_start_ts, period_end_ts, key_type, key, value_num)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.PeriodType, a.PeriodStartTS, a.PeriodEndTS, a.KeyType, a.Key, a.ValueNum,
		); err != nil {
			return fmt.Errorf("failed to insert aggregate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregates: %w", err)
	}
	return nil
}

// ListPeriod returns aggregates for one period, largest values first.
func (r *AggregateRepo) ListPeriod(ctx context.Context, periodType string, periodStartTS int64) ([]Aggregate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT period_type, period_start_ts, period_end_ts, key_type, key, value_num
		 FROM aggregates WHERE period_type = ? AND period_start_ts = ?
		 ORDER BY key_type, value_num DESC, key`,
		periodType, periodStartTS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var aggs []Aggregate
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.PeriodType, &a.PeriodStartTS, &a.PeriodEndTS, &a.KeyType, &a.Key, &a.ValueNum); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}
