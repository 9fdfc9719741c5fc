package app

import (
	"context"
	"fmt"

	"shipboard/pkg/auxstore"
	"shipboard/pkg/config"
	"shipboard/pkg/logger"
	"shipboard/pkg/notify"
	"shipboard/pkg/push"
	"shipboard/pkg/store"
	"shipboard/pkg/usercache"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg     *config.Config
	addr    string
	dbPath  string
	auxPath string
	version string

	Refresher  *usercache.Refresher
	Registry   *push.Registry
	Dispatcher *notify.Dispatcher

	stopReconciler context.CancelFunc
}

// New opens both backing stores and bulk-loads the user cache. Any failure
// here is fatal for the caller: the process must not serve traffic with a
// half-populated cache. It does not start the HTTP server; call Run.
func New(ctx context.Context, cfg *config.Config, addr, dbPath, auxPath, version string) (*App, error) {
	if err := store.Open(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open durable store at %s: %w", dbPath, err)
	}
	if err := auxstore.Open(auxPath); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open aux store at %s: %w", auxPath, err)
	}

	cache := usercache.New()
	ref := usercache.NewRefresher(cache, store.AccountReader{}, auxstore.Reader{})
	if err := ref.Warm(ctx); err != nil {
		_ = auxstore.Close()
		_ = store.Close()
		return nil, fmt.Errorf("cache bulk load failed: %w", err)
	}

	push.Configure(cfg.Push.WriteTimeoutMs, cfg.Push.ReadLimitBytes)
	reg := push.NewRegistry()
	a := &App{
		cfg:        cfg,
		addr:       addr,
		dbPath:     dbPath,
		auxPath:    auxPath,
		version:    version,
		Refresher:  ref,
		Registry:   reg,
		Dispatcher: notify.NewDispatcher(cache, reg),
	}
	return a, nil
}

// Run starts the reconciler and the HTTP server, and blocks until ctx is
// canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancel, err := usercache.StartReconciler(ctx, a.Refresher, a.cfg.Cache.ReconcileEnabled, a.cfg.Cache.ReconcileCron)
	if err != nil {
		return err
	}
	a.stopReconciler = cancel

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.stopReconciler != nil {
		a.stopReconciler()
	}
	if err := auxstore.Close(); err != nil {
		logger.Error("aux_close_failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("durable_close_failed", "error", err)
	}
}
