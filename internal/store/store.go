// Package store implements the per-asset-class local store: the instrument
// directory, the daily bar history, and the durable sync markers, with a
// write-through Redis layer for hot lookups. Each Store instance owns one
// asset class; rows for different classes never mix.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "dataengine/internal/cache"
	"dataengine/internal/model"
	"dataengine/pkg/datasource"
)

// Store gives one asset class transactional access to its local tables.
type Store struct {
	class   datasource.AssetClass
	conn    sqlx.SqlConn
	symbols model.SymbolsModel
	bars    model.DailyBarsModel
	state   model.SyncStateModel
	cache   gocache.Cache
	ttl     cachekeys.TTLSet
}

// Config enumerates store dependencies. Cache is optional; everything else
// is required.
type Config struct {
	Class datasource.AssetClass
	Conn  sqlx.SqlConn
	Cache gocache.Cache
	TTL   cachekeys.TTLSet
}

// New wires a store for one asset class.
func New(cfg Config) (*Store, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("store: sql connection is required")
	}
	if !cfg.Class.Valid() {
		return nil, fmt.Errorf("store: unknown asset class %q", cfg.Class)
	}
	return &Store{
		class:   cfg.Class,
		conn:    cfg.Conn,
		symbols: model.NewSymbolsModel(cfg.Conn),
		bars:    model.NewDailyBarsModel(cfg.Conn),
		state:   model.NewSyncStateModel(cfg.Conn),
		cache:   cfg.Cache,
		ttl:     cfg.TTL,
	}, nil
}

// Class returns the asset class this store serves.
func (s *Store) Class() datasource.AssetClass { return s.class }

// UpsertSymbols writes a directory batch in one transaction, so a crash
// mid-pull leaves the previous directory intact.
func (s *Store) UpsertSymbols(ctx context.Context, metas []datasource.AssetMeta) error {
	if len(metas) == 0 {
		return nil
	}
	err := s.conn.TransactCtx(ctx, func(ctx context.Context, sess sqlx.Session) error {
		for i := range metas {
			rec := symbolFromMeta(string(s.class), &metas[i])
			if rec.Code == "" {
				continue
			}
			if err := s.symbols.Upsert(ctx, sess, rec); err != nil {
				return fmt.Errorf("upsert symbol %s: %w", rec.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := range metas {
		s.cacheSymbol(ctx, &metas[i])
	}
	return nil
}

// DeactivateStale marks directory rows unseen since cutoff as inactive.
func (s *Store) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.symbols.DeactivateStale(ctx, string(s.class), cutoff)
}

// ActiveSymbols lists the active directory rows.
func (s *Store) ActiveSymbols(ctx context.Context) ([]*model.Symbol, error) {
	return s.symbols.ListActive(ctx, string(s.class))
}

// FindSymbol looks up one directory row by bare code.
func (s *Store) FindSymbol(ctx context.Context, code string) (*model.Symbol, error) {
	return s.symbols.FindOne(ctx, string(s.class), code)
}

// FindByFullCode looks up one directory row by its exchange-qualified code.
func (s *Store) FindByFullCode(ctx context.Context, fullCode string) (*model.Symbol, error) {
	return s.symbols.FindByFullCode(ctx, string(s.class), fullCode)
}

// SearchByName substring-matches display names, first match by code order.
func (s *Store) SearchByName(ctx context.Context, query string, limit int) ([]*model.Symbol, error) {
	return s.symbols.SearchByName(ctx, string(s.class), query, limit)
}

// LastBarDate returns the newest stored bar date for a code.
func (s *Store) LastBarDate(ctx context.Context, code string) (time.Time, bool, error) {
	return s.bars.LastDate(ctx, string(s.class), code)
}

// UpsertBars writes one symbol's bar batch in a single transaction. Re-running
// over the same range overwrites in place via the primary-key conflict target.
func (s *Store) UpsertBars(ctx context.Context, bars []datasource.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.conn.TransactCtx(ctx, func(ctx context.Context, sess sqlx.Session) error {
		for i := range bars {
			rec := barToRow(string(s.class), &bars[i])
			if err := s.bars.Upsert(ctx, sess, rec); err != nil {
				return fmt.Errorf("upsert bar %s@%s: %w", rec.Code, rec.TradeDate.Format("2006-01-02"), err)
			}
		}
		return nil
	})
}

// Bars returns stored bars for the closed range in ascending date order.
func (s *Store) Bars(ctx context.Context, code string, start, end time.Time) ([]datasource.Bar, error) {
	rows, err := s.bars.Range(ctx, string(s.class), code, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]datasource.Bar, len(rows))
	for i, row := range rows {
		out[i] = rowToBar(row)
	}
	return out, nil
}

// SyncState returns the durable markers for this class. A class that has
// never synced yields zero-valued markers rather than an error.
func (s *Store) SyncState(ctx context.Context) (directoryAt, historyThrough time.Time, err error) {
	state, err := s.state.FindOne(ctx, string(s.class))
	if err != nil {
		if err == model.ErrNotFound {
			return time.Time{}, time.Time{}, nil
		}
		return time.Time{}, time.Time{}, err
	}
	if state.DirectorySyncedAt.Valid {
		directoryAt = state.DirectorySyncedAt.Time
	}
	if state.HistorySyncedThrough.Valid {
		historyThrough = state.HistorySyncedThrough.Time
	}
	return directoryAt, historyThrough, nil
}

// SetDirectorySyncedAt records a completed directory refresh.
func (s *Store) SetDirectorySyncedAt(ctx context.Context, at time.Time) error {
	return s.state.SetDirectorySyncedAt(ctx, string(s.class), at)
}

// AdvanceHistoryThrough moves the history marker to the point the batch
// actually reached. Called after the bar writes have committed.
func (s *Store) AdvanceHistoryThrough(ctx context.Context, through time.Time) error {
	return s.state.AdvanceHistoryThrough(ctx, nil, string(s.class), through)
}

// CacheQuote write-throughs the latest standardized quote to Redis.
func (s *Store) CacheQuote(ctx context.Context, quote *datasource.Quote) {
	if s.cache == nil || quote == nil {
		return
	}
	ttl := cachekeys.QuoteTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.QuoteLatestKey(string(s.class), quote.Code)
	if err := s.cache.SetWithExpireCtx(ctx, key, quote, ttl); err != nil {
		logx.WithContext(ctx).Errorf("store: cache quote key=%s err=%v", key, err)
	}
}

// CachedQuote returns a previously cached quote, or nil on miss.
func (s *Store) CachedQuote(ctx context.Context, code string) *datasource.Quote {
	if s.cache == nil {
		return nil
	}
	key := cachekeys.QuoteLatestKey(string(s.class), code)
	var quote datasource.Quote
	if err := s.cache.GetCtx(ctx, key, &quote); err != nil {
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("store: load quote key=%s err=%v", key, err)
		}
		return nil
	}
	return &quote
}

func (s *Store) cacheSymbol(ctx context.Context, meta *datasource.AssetMeta) {
	if s.cache == nil || meta.Code == "" {
		return
	}
	ttl := cachekeys.SymbolMetaTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.SymbolMetaKey(string(s.class), meta.Code)
	if err := s.cache.SetWithExpireCtx(ctx, key, meta, ttl); err != nil {
		logx.WithContext(ctx).Errorf("store: cache symbol key=%s err=%v", key, err)
	}
}

func symbolFromMeta(class string, meta *datasource.AssetMeta) *model.Symbol {
	listing := sql.NullTime{}
	if !meta.ListingDate.IsZero() {
		listing = sql.NullTime{Time: meta.ListingDate, Valid: true}
	}
	return &model.Symbol{
		AssetClass:  class,
		Code:        meta.Code,
		Name:        meta.Name,
		FullCode:    meta.FullCode,
		Exchange:    meta.Exchange,
		AssetType:   string(meta.AssetType),
		ListingDate: listing,
		IsActive:    meta.IsActive,
	}
}

func barToRow(class string, bar *datasource.Bar) *model.DailyBar {
	return &model.DailyBar{
		AssetClass: class,
		Code:       bar.Code,
		Name:       bar.Name,
		AssetType:  string(bar.AssetType),
		TradeDate:  bar.Date,
		Open:       bar.Open,
		High:       bar.High,
		Low:        bar.Low,
		Close:      bar.Close,
		Volume:     bar.Volume,
		Turnover:   bar.Turnover,
		PctChange:  bar.PctChange,
	}
}

func rowToBar(row *model.DailyBar) datasource.Bar {
	return datasource.Bar{
		Code:      row.Code,
		Name:      row.Name,
		AssetType: datasource.AssetType(row.AssetType),
		Date:      row.TradeDate,
		Open:      row.Open,
		High:      row.High,
		Low:       row.Low,
		Close:     row.Close,
		Volume:    row.Volume,
		Turnover:  row.Turnover,
		PctChange: row.PctChange,
	}
}
