package usercache

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"shipboard/pkg/logger"
)

// StartReconciler starts a cron-driven background pass that re-refreshes
// every cached account from the backing stores. It exists to heal drift
// left behind by lost fire-and-forget refreshes; each pass is just
// RefreshMany over all known ids, so the same last-replace-wins rules
// apply. Returns a cancel func; a disabled reconciler returns a no-op.
func StartReconciler(ctx context.Context, r *Refresher, enabled bool, cronExpr string) (context.CancelFunc, error) {
	if !enabled {
		logger.Info("usercache_reconciler_disabled")
		return func() {}, nil
	}
	if cronExpr == "" {
		// default: hourly
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid reconcile cron expression: %s", cronExpr)
	}
	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("usercache_reconciler_started", "cron", cronExpr)
	go runReconcileLoop(ctx2, r, cronExpr)
	return cancel, nil
}

func runReconcileLoop(ctx context.Context, r *Refresher, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("usercache_reconciler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("usercache_reconciler_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			runReconcileOnce(ctx, r)
		case <-ctx.Done():
			logger.Info("usercache_reconciler_stopping")
			return
		}
	}
}

func runReconcileOnce(ctx context.Context, r *Refresher) {
	ids := r.cache.IDs()
	start := time.Now()
	if err := r.RefreshMany(ctx, ids); err != nil {
		logger.Warn("usercache_reconcile_partial", "accounts", len(ids), "error", err)
		return
	}
	logger.Info("usercache_reconciled", "accounts", len(ids), "elapsed_ms", time.Since(start).Milliseconds())
}
