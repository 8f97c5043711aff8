package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/metroware/equip-ledger/internal/metrics"
	"github.com/metroware/equip-ledger/internal/oplog"
	"github.com/robfig/cron/v3"
)

// Run starts the background retention job: at each cron tick, operation-log
// entries older than retentionDays are removed (reversals and reversed
// originals are kept). Blocks until the cron scheduler stops, so call it in
// its own goroutine.
func Run(logs *oplog.Service, cronExpr string, retentionDays int) error {
	c := cron.New()

	_, err := c.AddFunc(cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		deleted, err := logs.Cleanup(ctx, retentionDays)
		if err != nil {
			slog.Error("scheduled log cleanup failed", "err", err)
			return
		}
		metrics.RecordCleanup(deleted)
		slog.Info("scheduled log cleanup", "retention_days", retentionDays, "deleted", deleted)
	})
	if err != nil {
		return err
	}

	c.Run()
	return nil
}
