// Package router is the unified query front. It maps an externally supplied
// symbol to the asset class that owns it, keeps that class's local store
// fresh through its sync engine, and memoizes recent results so identical
// queries within a process lifetime cost nothing upstream.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/collection"

	"dataengine/internal/model"
	"dataengine/internal/sync"
	"dataengine/pkg/datasource"
)

// Query frequencies.
const (
	FreqDaily    = "daily"
	FreqIntraday = "intraday"
)

const (
	defaultMemoLimit  = 4096
	defaultMemoExpire = 5 * time.Minute
)

// Engine keeps one asset class's local store current.
type Engine interface {
	EnsureFresh(ctx context.Context) (*sync.Report, error)
}

// Store serves queries out of one asset class's local data.
type Store interface {
	Bars(ctx context.Context, code string, start, end time.Time) ([]datasource.Bar, error)
	CachedQuote(ctx context.Context, code string) *datasource.Quote
	CacheQuote(ctx context.Context, quote *datasource.Quote)
}

// Resolver maps lookup keys to canonical directory records.
type Resolver interface {
	Resolve(ctx context.Context, key string) (*model.Symbol, error)
}

// Route bundles everything one asset class needs to answer queries.
type Route struct {
	Source   datasource.DataSource
	Engine   Engine
	Store    Store
	Resolver Resolver
}

// Router dispatches queries by symbol.
type Router struct {
	table  map[string]datasource.AssetClass
	routes map[datasource.AssetClass]*Route
	memo   *collection.Cache
}

// Option configures a Router.
type Option func(*options)

type options struct {
	memoLimit  int
	memoExpire time.Duration
}

// WithMemoLimit caps the number of memoized results held at once.
func WithMemoLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.memoLimit = n
		}
	}
}

// WithMemoExpire bounds how long a memoized result is served.
func WithMemoExpire(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.memoExpire = d
		}
	}
}

// New constructs a router over a symbol routing table and per-class routes.
// Table keys are matched against the normalized symbol and, for qualified
// symbols, against the bare code.
func New(table map[string]datasource.AssetClass, routes map[datasource.AssetClass]*Route, opts ...Option) (*Router, error) {
	o := options{memoLimit: defaultMemoLimit, memoExpire: defaultMemoExpire}
	for _, opt := range opts {
		opt(&o)
	}
	normalized := make(map[string]datasource.AssetClass, len(table))
	for symbol, class := range table {
		if _, ok := routes[class]; !ok {
			return nil, fmt.Errorf("router: symbol %q routes to unconfigured class %q", symbol, class)
		}
		normalized[normalizeSymbol(symbol)] = class
	}
	memo, err := collection.NewCache(o.memoExpire,
		collection.WithLimit(o.memoLimit),
		collection.WithName("router-memo"),
	)
	if err != nil {
		return nil, fmt.Errorf("router: memo cache: %w", err)
	}
	return &Router{table: normalized, routes: routes, memo: memo}, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// route maps a symbol to its asset class's route. Qualified symbols fall
// back to their bare code so "000001.SZ" routes wherever "000001" does.
func (r *Router) route(symbol string) (*Route, error) {
	key := normalizeSymbol(symbol)
	class, ok := r.table[key]
	if !ok {
		if head, _, found := strings.Cut(key, "."); found {
			class, ok = r.table[head]
		}
	}
	if !ok {
		return nil, &datasource.SymbolValidationError{Symbol: symbol, Reason: "no asset class route"}
	}
	return r.routes[class], nil
}

// GetData answers a historical query. Results are memoized on the full
// argument tuple; a repeated identical call is served from memory without
// touching the engine, store, or network.
func (r *Router) GetData(ctx context.Context, symbol string, start, end time.Time, frequency, interval string) ([]datasource.Bar, error) {
	switch frequency {
	case FreqDaily:
		// Interval is meaningless for daily bars; normalize it out of the
		// key so spelling variants share one entry.
		interval = ""
	case FreqIntraday:
		if interval == "" {
			return nil, fmt.Errorf("router: intraday query for %q needs an interval", symbol)
		}
	default:
		return nil, fmt.Errorf("router: unknown frequency %q", frequency)
	}

	route, err := r.route(symbol)
	if err != nil {
		return nil, err
	}

	key := memoKey(symbol, start, end, frequency, interval)
	v, err := r.memo.Take(key, func() (any, error) {
		return r.fetch(ctx, route, symbol, start, end, frequency, interval)
	})
	if err != nil {
		return nil, err
	}
	return v.([]datasource.Bar), nil
}

func (r *Router) fetch(ctx context.Context, route *Route, symbol string, start, end time.Time, frequency, interval string) ([]datasource.Bar, error) {
	sym, err := route.Resolver.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if frequency == FreqIntraday {
		// Intraday data is never persisted locally; pass through to the
		// adapter for the classes that support it.
		return route.Source.IntradayBars(ctx, sym.Code, interval, start, end)
	}
	if _, err := route.Engine.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	return route.Store.Bars(ctx, sym.Code, start, end)
}

// RealtimeQuote answers a live quote, serving from the short-lived quote
// cache when it is warm.
func (r *Router) RealtimeQuote(ctx context.Context, symbol string) (*datasource.Quote, error) {
	route, err := r.route(symbol)
	if err != nil {
		return nil, err
	}
	sym, err := route.Resolver.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if quote := route.Store.CachedQuote(ctx, sym.Code); quote != nil {
		return quote, nil
	}
	quote, err := route.Source.RealtimeQuote(ctx, sym.Code)
	if err != nil {
		return nil, err
	}
	route.Store.CacheQuote(ctx, quote)
	return quote, nil
}

// memoKey folds every argument that can change the result into the cache
// key. Leaving one out would let distinct queries collide.
func memoKey(symbol string, start, end time.Time, frequency, interval string) string {
	return strings.Join([]string{
		normalizeSymbol(symbol),
		start.UTC().Format("2006-01-02T15:04:05"),
		end.UTC().Format("2006-01-02T15:04:05"),
		frequency,
		interval,
	}, "|")
}
