// Package maintenance runs scheduled background upkeep against the store:
// Pebble range compaction and a disk-usage metrics refresh. It never touches
// domain data.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"ticketchat/pkg/logger"
	"ticketchat/pkg/store"
)

// Start launches the compaction scheduler when a cron expression is
// configured. An empty expression disables the job. Returns a cancel func.
func Start(ctx context.Context, st *store.Store, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		logger.Log.Info("maintenance_disabled")
		return func() {}, nil
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid maintenance cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr)
	logger.Log.Info("maintenance_scheduler_started", zap.String("cron", cronExpr))
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and triggers a run. gronx
// computes exact tick times, so full cron syntax works.
func runScheduler(ctx context.Context, st *store.Store, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("maintenance_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Log.Error("maintenance_nexttick_failed",
				zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			runOnce(st)
		case <-ctx.Done():
			logger.Log.Info("maintenance_scheduler_stopping")
			return
		}
	}
}

// RunImmediate performs one maintenance pass synchronously; used by tests.
func RunImmediate(st *store.Store) { runOnce(st) }

func runOnce(st *store.Store) {
	start := time.Now()
	if err := st.Compact(); err != nil {
		logger.Log.Error("maintenance_compact_failed", zap.Error(err))
		return
	}
	size := st.RefreshDiskUsage()
	logger.Log.Info("maintenance_run_complete",
		zap.Duration("took", time.Since(start)), zap.Uint64("db_bytes", size))
}
