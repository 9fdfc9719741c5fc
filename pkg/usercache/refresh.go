package usercache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"shipboard/pkg/logger"
	"shipboard/pkg/models"
	"shipboard/pkg/telemetry"
)

// AccountSource is the read-only view of the durable store the refresh
// pipeline consumes. This core never writes through it.
type AccountSource interface {
	ReadAccount(id string) (models.Account, error)
	ListAccounts() ([]models.Account, error)
}

// DerivedSource is the read-only view of the auxiliary store holding the
// per-account block/mute/keyword sets.
type DerivedSource interface {
	DerivedSets(id string) (models.DerivedSets, error)
}

// Refresher recomputes snapshots from the two backing stores and installs
// them into the cache. Independent refreshes run fully in parallel; when
// two refreshes for the same id race, the last Replace wins even if it read
// staler source data. Strong consistency is available only by awaiting the
// specific Refresh call a caller cares about - account creation does.
type Refresher struct {
	cache    *Cache
	accounts AccountSource
	derived  DerivedSource
}

// NewRefresher wires a refresher over the cache and the two store views.
func NewRefresher(cache *Cache, accounts AccountSource, derived DerivedSource) *Refresher {
	return &Refresher{cache: cache, accounts: accounts, derived: derived}
}

// Cache returns the cache this refresher installs into.
func (r *Refresher) Cache() *Cache {
	return r.cache
}

// Warm bulk-loads every account and its derived sets into the cache. Any
// failure is returned and must be treated as fatal by the caller: a
// half-populated cache must never be exposed to traffic.
func (r *Refresher) Warm(ctx context.Context) error {
	accounts, err := r.accounts.ListAccounts()
	if err != nil {
		return fmt.Errorf("bulk load: list accounts: %w", err)
	}
	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		ds, err := r.derived.DerivedSets(a.ID)
		if err != nil {
			return fmt.Errorf("bulk load: derived sets for %s: %w", a.ID, err)
		}
		r.cache.Replace(newSnapshot(a, ds))
	}
	logger.Info("usercache_warmed", "accounts", len(accounts))
	return nil
}

// Refresh recomputes one account's snapshot and installs it. On failure the
// prior snapshot stays installed as stale-but-available; callers that need
// the fresh data (account creation) must surface the error to their own
// client as retryable.
func (r *Refresher) Refresh(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := r.accounts.ReadAccount(id)
	if err != nil {
		telemetry.RefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh %s: account row: %w", id, err)
	}
	ds, err := r.derived.DerivedSets(id)
	if err != nil {
		telemetry.RefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh %s: derived sets: %w", id, err)
	}
	r.cache.Replace(newSnapshot(a, ds))
	telemetry.RefreshTotal.WithLabelValues("ok").Inc()
	return nil
}

// RefreshAsync runs Refresh in a new goroutine and only logs failures.
// This is the eventual-consistency path; call sites that can tolerate a
// briefly stale snapshot use it after mutations. Refreshes are not
// cancellable once started.
func (r *Refresher) RefreshAsync(id string) {
	go func() {
		if err := r.Refresh(context.Background(), id); err != nil {
			logger.Warn("usercache_refresh_failed", "id", id, "error", err)
		}
	}()
}

// RefreshMany fans out Refresh over the given ids and joins the results.
func (r *Refresher) RefreshMany(ctx context.Context, ids []string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = r.Refresh(ctx, id)
		}(i, id)
	}
	wg.Wait()
	return errors.Join(errs...)
}
