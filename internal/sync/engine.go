// Package sync implements the per-asset-class synchronization engine. It
// keeps the local directory and bar history at most one freshness window
// behind upstream, pulling only the missing delta on each run. Runs are
// idempotent: the store's upsert keys absorb repeated ingestion, and the
// durable sync markers advance only past points whose writes have committed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"

	"dataengine/internal/model"
	"dataengine/pkg/datasource"
)

const (
	defaultDirectoryMaxAge = 24 * time.Hour
	defaultInactiveAfter   = 30 * 24 * time.Hour
)

// defaultEpoch is the backfill start for symbols with no stored history,
// the opening of the Shanghai exchange.
var defaultEpoch = time.Date(1990, 12, 19, 0, 0, 0, 0, time.UTC)

// Store is the slice of the local store the engine writes through.
type Store interface {
	SyncState(ctx context.Context) (directoryAt, historyThrough time.Time, err error)
	UpsertSymbols(ctx context.Context, metas []datasource.AssetMeta) error
	DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error)
	ActiveSymbols(ctx context.Context) ([]*model.Symbol, error)
	LastBarDate(ctx context.Context, code string) (time.Time, bool, error)
	UpsertBars(ctx context.Context, bars []datasource.Bar) error
	SetDirectorySyncedAt(ctx context.Context, at time.Time) error
	AdvanceHistoryThrough(ctx context.Context, through time.Time) error
}

// Report summarises one engine run.
type Report struct {
	Class         datasource.AssetClass
	Degraded      bool // directory bootstrap fell back to the seed list
	SymbolsSynced int
	BarsUpserted  int
	Through       time.Time
	Failures      map[string]error
}

// Failed reports whether any symbol failed during the run.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// Engine synchronizes one asset class between its upstream source and its
// local store.
type Engine struct {
	class  datasource.AssetClass
	source datasource.DataSource
	store  Store

	// flight serializes runs for this engine's class: concurrent callers of
	// EnsureFresh share one in-flight run instead of stacking sessions.
	flight syncx.SingleFlight

	now             func() time.Time
	epoch           time.Time
	directoryMaxAge time.Duration
	inactiveAfter   time.Duration
	seeds           []datasource.AssetMeta
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEpoch overrides the default backfill epoch.
func WithEpoch(epoch time.Time) Option {
	return func(e *Engine) {
		if !epoch.IsZero() {
			e.epoch = epoch
		}
	}
}

// WithDirectoryMaxAge overrides the directory freshness window.
func WithDirectoryMaxAge(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.directoryMaxAge = d
		}
	}
}

// WithInactiveAfter overrides the delisting threshold.
func WithInactiveAfter(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.inactiveAfter = d
		}
	}
}

// WithSeeds overrides the built-in seed directory.
func WithSeeds(seeds []datasource.AssetMeta) Option {
	return func(e *Engine) {
		e.seeds = seeds
	}
}

// New constructs an engine for one asset class.
func New(source datasource.DataSource, store Store, opts ...Option) *Engine {
	e := &Engine{
		class:           source.Class(),
		source:          source,
		store:           store,
		flight:          syncx.NewSingleFlight(),
		now:             time.Now,
		epoch:           defaultEpoch,
		directoryMaxAge: defaultDirectoryMaxAge,
		inactiveAfter:   defaultInactiveAfter,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.seeds == nil {
		e.seeds = SeedSymbols(e.class)
	}
	return e
}

// Class returns the asset class this engine owns.
func (e *Engine) Class() datasource.AssetClass { return e.class }

func (e *Engine) today() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// withSession brackets fn with the source's session when it has one. Logout
// runs on every exit path, detached from ctx cancellation so a failed batch
// still releases the upstream session.
func (e *Engine) withSession(ctx context.Context, fn func(context.Context) error) error {
	sess, ok := e.source.(datasource.SessionSource)
	if !ok {
		return fn(ctx)
	}
	if err := sess.Login(ctx); err != nil {
		return fmt.Errorf("sync: %s: session login: %w", e.class, err)
	}
	defer func() {
		if err := sess.Logout(context.WithoutCancel(ctx)); err != nil {
			logx.WithContext(ctx).Errorf("sync: %s: session logout: %v", e.class, err)
		}
	}()
	return fn(ctx)
}

// EnsureFresh runs a directory refresh and history backfill when either is
// stale. Concurrent calls for the same engine share a single run.
func (e *Engine) EnsureFresh(ctx context.Context) (*Report, error) {
	v, err := e.flight.Do(string(e.class), func() (any, error) {
		return e.run(ctx)
	})
	if v == nil {
		return nil, err
	}
	return v.(*Report), err
}

func (e *Engine) run(ctx context.Context) (*Report, error) {
	report := &Report{Class: e.class, Failures: map[string]error{}}

	degraded, err := e.refreshDirectory(ctx)
	report.Degraded = degraded
	if err != nil && !degraded {
		return report, err
	}
	if err != nil {
		// Seeded directory is usable; backfill proceeds in degraded mode.
		logx.WithContext(ctx).Errorf("sync: %s: directory bootstrap degraded: %v", e.class, err)
	}

	_, historyThrough, stateErr := e.store.SyncState(ctx)
	if stateErr != nil {
		return report, fmt.Errorf("sync: %s: read sync state: %w", e.class, stateErr)
	}
	if !historyThrough.Before(e.today()) {
		return report, nil
	}
	if err := e.backfill(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// RefreshDirectory forces a directory pass regardless of staleness.
func (e *Engine) RefreshDirectory(ctx context.Context) error {
	_, err := e.pullDirectory(ctx)
	return err
}

// refreshDirectory refreshes the directory when the marker is absent or older
// than the freshness window. Returns degraded=true when a bootstrap pull
// failed and the seed list was installed instead.
func (e *Engine) refreshDirectory(ctx context.Context) (degraded bool, err error) {
	directoryAt, _, err := e.store.SyncState(ctx)
	if err != nil {
		return false, fmt.Errorf("sync: %s: read sync state: %w", e.class, err)
	}
	bootstrap := directoryAt.IsZero()
	if !bootstrap && e.now().Sub(directoryAt) < e.directoryMaxAge {
		return false, nil
	}

	count, pullErr := e.pullDirectory(ctx)
	if pullErr == nil {
		logx.WithContext(ctx).Infof("sync: %s: directory refreshed, %d symbols", e.class, count)
		return false, nil
	}
	if !bootstrap {
		// A stale-but-present directory stays usable; retry next run.
		return false, pullErr
	}
	// Bootstrap failed: install the seed list so the class is not unusable,
	// and surface the failure. The marker stays unset so the next run
	// retries the full pull.
	if len(e.seeds) == 0 {
		return false, pullErr
	}
	if seedErr := e.store.UpsertSymbols(ctx, e.seeds); seedErr != nil {
		return false, errors.Join(pullErr, seedErr)
	}
	return true, fmt.Errorf("sync: %s: directory bootstrap failed, seeded %d symbols: %w", e.class, len(e.seeds), pullErr)
}

// pullDirectory performs one full directory pull and reconciles the store.
// Providers expose no directory deltas, so the pull is always full.
func (e *Engine) pullDirectory(ctx context.Context) (int, error) {
	var metas []datasource.AssetMeta
	err := e.withSession(ctx, func(ctx context.Context) error {
		var err error
		metas, err = e.source.ListSymbols(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sync: %s: directory pull: %w", e.class, err)
	}
	if err := e.store.UpsertSymbols(ctx, metas); err != nil {
		return 0, fmt.Errorf("sync: %s: directory upsert: %w", e.class, err)
	}
	// Anything the pull did not touch and older than the threshold is
	// presumed delisted. Rows are flipped inactive, never deleted, so prior
	// history stays queryable.
	cutoff := e.now().Add(-e.inactiveAfter)
	if n, err := e.store.DeactivateStale(ctx, cutoff); err != nil {
		return 0, fmt.Errorf("sync: %s: deactivate stale: %w", e.class, err)
	} else if n > 0 {
		logx.WithContext(ctx).Infof("sync: %s: deactivated %d stale symbols", e.class, n)
	}
	if err := e.store.SetDirectorySyncedAt(ctx, e.now().UTC()); err != nil {
		return 0, fmt.Errorf("sync: %s: advance directory marker: %w", e.class, err)
	}
	return len(metas), nil
}

// BackfillHistory forces a history pass over all active symbols.
func (e *Engine) BackfillHistory(ctx context.Context) (*Report, error) {
	report := &Report{Class: e.class, Failures: map[string]error{}}
	if err := e.backfill(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Engine) backfill(ctx context.Context, report *Report) error {
	symbols, err := e.store.ActiveSymbols(ctx)
	if err != nil {
		return fmt.Errorf("sync: %s: list active symbols: %w", e.class, err)
	}
	today := e.today()

	// reached tracks, per symbol, the date history is known complete through
	// after this run. The class marker advances to the minimum so it never
	// claims more than what every symbol actually has.
	reached := today

	runErr := e.withSession(ctx, func(ctx context.Context) error {
		for _, sym := range symbols {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			prev, covered, err := e.syncSymbol(ctx, sym, today)
			if err != nil {
				report.Failures[sym.Code] = err
				if prev.Before(reached) {
					reached = prev
				}
				if datasource.IsRateLimit(err) {
					// Backing off further is pointless; stop hammering the
					// provider and leave the rest for the next run.
					logx.WithContext(ctx).Errorf("sync: %s: rate limited at %s, aborting batch", e.class, sym.Code)
					return err
				}
				logx.WithContext(ctx).Errorf("sync: %s: backfill %s: %v", e.class, sym.Code, err)
				continue
			}
			report.SymbolsSynced++
			report.BarsUpserted += covered
		}
		return nil
	})

	// Bars for successful symbols have committed even when the batch ended
	// early, so the marker may still advance to the point actually reached.
	if !reached.IsZero() && len(symbols) > 0 {
		if err := e.store.AdvanceHistoryThrough(ctx, reached); err != nil {
			logx.WithContext(ctx).Errorf("sync: %s: advance history marker: %v", e.class, err)
		} else {
			report.Through = reached
		}
	}
	return runErr
}

// syncSymbol pulls and stores one symbol's missing range. It returns the date
// the symbol was complete through before this run (used to cap the class
// marker on failure) and the number of bars written.
func (e *Engine) syncSymbol(ctx context.Context, sym *model.Symbol, today time.Time) (prev time.Time, bars int, err error) {
	last, ok, err := e.store.LastBarDate(ctx, sym.Code)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("last bar date: %w", err)
	}
	start := e.epoch
	prev = time.Time{}
	if ok {
		prev = last
		start = last.AddDate(0, 0, 1)
	} else if sym.ListingDate.Valid && sym.ListingDate.Time.After(start) {
		start = sym.ListingDate.Time
	}
	if start.After(today) {
		return today, 0, nil
	}

	pulled, err := e.source.DailyBars(ctx, sym.Code, start, today, nil)
	if err != nil {
		return prev, 0, err
	}
	if err := e.store.UpsertBars(ctx, pulled); err != nil {
		return prev, 0, fmt.Errorf("store bars: %w", err)
	}
	return today, len(pulled), nil
}
