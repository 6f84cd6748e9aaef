package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ArthurLewyin12/encore-backend/internal/database"
	"github.com/ArthurLewyin12/encore-backend/internal/logger"
)

// Job aggregates one calendar day (UTC) into the daily metrics tables.
type Job struct {
	db     *database.DB
	logger *logger.Logger
}

func NewJob(db *database.DB, log *logger.Logger) *Job {
	return &Job{db: db, logger: log}
}

// Run recomputes day's metrics. Re-running a day overwrites its rows.
func (j *Job) Run(ctx context.Context, day time.Time) error {
	requestID := logger.GenerateRequestID()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows, err := j.db.Query(ctx, database.DailyOrdersSQL, start, end)
	if err != nil {
		return fmt.Errorf("failed to query daily orders: %w", err)
	}

	acc := NewAccumulator()
	var r Row
	_, err = pgx.ForEachRow(rows, []any{&r.OrderID, &r.RestaurantID, &r.OrderTotal, &r.MenuItemID, &r.Quantity, &r.LineTotal}, func() error {
		acc.Add(r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read daily orders: %w", err)
	}

	results := acc.Results()

	err = j.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rd := range results {
			batch.Queue(database.UpsertDailyRestaurantMetricsSQL,
				rd.RestaurantID, start, rd.Orders, rd.Revenue, rd.AverageOrderValue)
			for _, item := range rd.Items {
				batch.Queue(database.UpsertDailyMenuItemMetricsSQL,
					rd.RestaurantID, item.MenuItemID, start, item.Quantity, item.Revenue)
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to write daily metrics: %w", err)
	}

	j.logger.Info("daily_metrics_written", "Daily metrics aggregated", requestID, map[string]interface{}{
		"day":         start.Format(time.DateOnly),
		"restaurants": len(results),
	})
	return nil
}
