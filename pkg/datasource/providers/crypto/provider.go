// Package crypto adapts a perpetuals exchange info endpoint to the uniform
// data source contract. The exchange is sessionless and serves both daily and
// intraday candles plus live mid prices.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dataengine/pkg/datasource"
	"dataengine/pkg/transport"
)

const defaultBaseURL = "https://api.hyperliquid.xyz/info"

// supportedIntervals maps intraday intervals the exchange serves to their
// candle durations.
var supportedIntervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

func init() {
	datasource.RegisterSource("crypto", func(name string, cfg *datasource.SourceConfig) (datasource.DataSource, error) {
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		tOpts := []transport.Option{}
		if cfg.HTTPTimeout > 0 {
			tOpts = append(tOpts, transport.WithTimeout(cfg.HTTPTimeout))
		}
		if cfg.MaxRetries > 0 {
			tOpts = append(tOpts, transport.WithMaxRetries(cfg.MaxRetries))
		}
		opts = append(opts, WithTransport(transport.New(tOpts...)))
		return NewSource(name, opts...), nil
	})
}

// Source adapts the exchange API to the data source contract.
type Source struct {
	name      string
	baseURL   string
	transport *transport.Client

	dirMu sync.RWMutex
	dir   map[string]universeEntry
}

var _ datasource.DataSource = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithBaseURL overrides the info endpoint URL.
func WithBaseURL(u string) Option {
	return func(s *Source) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithTransport injects a custom retrying transport.
func WithTransport(t *transport.Client) Option {
	return func(s *Source) {
		if t != nil {
			s.transport = t
		}
	}
}

// NewSource constructs the exchange adapter.
func NewSource(name string, opts ...Option) *Source {
	s := &Source{
		name:      name,
		baseURL:   defaultBaseURL,
		transport: transport.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string                 { return s.name }
func (s *Source) Class() datasource.AssetClass { return datasource.ClassCrypto }

func (s *Source) wrap(op string, err error) error {
	if errors.Is(err, transport.ErrRateLimited) {
		return &datasource.RateLimitError{Source: s.name, RetryAfter: transport.RetryAfter(err)}
	}
	return &datasource.RetrievalError{Source: s.name, Op: op, Err: err}
}

func (s *Source) post(ctx context.Context, req infoRequest, out any) error {
	return s.transport.PostJSON(ctx, s.baseURL, req, out)
}

func normalizeSymbol(symbol string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	// Quote-suffixed spellings collapse to the base coin.
	for _, suffix := range []string{"USDT", "USDC", "USD"} {
		if len(trimmed) > len(suffix) && strings.HasSuffix(trimmed, suffix) {
			return trimmed[:len(trimmed)-len(suffix)]
		}
	}
	return trimmed
}

// ListSymbols pulls the exchange universe.
func (s *Source) ListSymbols(ctx context.Context) ([]datasource.AssetMeta, error) {
	var payload universeResponse
	if err := s.post(ctx, infoRequest{Type: "meta"}, &payload); err != nil {
		return nil, s.wrap("list symbols", err)
	}
	metas := make([]datasource.AssetMeta, 0, len(payload.Universe))
	index := make(map[string]universeEntry, len(payload.Universe))
	for _, entry := range payload.Universe {
		coin := strings.TrimSpace(entry.Name)
		if coin == "" {
			continue
		}
		var listed time.Time
		if entry.OnboardMs > 0 {
			listed = time.UnixMilli(entry.OnboardMs).UTC()
		}
		metas = append(metas, datasource.AssetMeta{
			Code:        coin,
			FullCode:    coin + ".PERP",
			Name:        coin,
			Exchange:    "PERP",
			AssetType:   datasource.TypeSpot,
			ListingDate: listed,
			IsActive:    !entry.IsDelisted,
		})
		index[coin] = entry
	}
	s.dirMu.Lock()
	s.dir = index
	s.dirMu.Unlock()
	return metas, nil
}

func (s *Source) lookup(ctx context.Context, symbol string) (universeEntry, error) {
	coin := normalizeSymbol(symbol)
	if coin == "" {
		return universeEntry{}, &datasource.SymbolValidationError{Symbol: symbol, Reason: "empty symbol"}
	}
	s.dirMu.RLock()
	entry, ok := s.dir[coin]
	s.dirMu.RUnlock()
	if ok {
		return entry, nil
	}
	if _, err := s.ListSymbols(ctx); err != nil {
		return universeEntry{}, err
	}
	s.dirMu.RLock()
	entry, ok = s.dir[coin]
	s.dirMu.RUnlock()
	if !ok {
		return universeEntry{}, datasource.ErrSymbolNotFound
	}
	return entry, nil
}

func (s *Source) candles(ctx context.Context, coin, interval string, start, end time.Time) ([]datasource.Bar, error) {
	var payload candleResponse
	req := infoRequest{
		Type: "candleSnapshot",
		Req: candleSnapshotRequest{
			Coin:      coin,
			Interval:  interval,
			StartTime: start.UnixMilli(),
			EndTime:   end.UnixMilli(),
		},
	}
	if err := s.post(ctx, req, &payload); err != nil {
		return nil, s.wrap("candle snapshot", err)
	}
	bars := make([]datasource.Bar, 0, len(payload))
	for _, item := range payload {
		bars = append(bars, datasource.Bar{
			Code:      coin,
			Name:      coin,
			AssetType: datasource.TypeSpot,
			Date:      time.UnixMilli(item.T).UTC(),
			Open:      item.O,
			High:      item.H,
			Low:       item.L,
			Close:     item.C,
			Volume:    item.V,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// DailyBars returns daily candles for the closed range [start, end].
func (s *Source) DailyBars(ctx context.Context, symbol string, start, end time.Time, fields []string) ([]datasource.Bar, error) {
	entry, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	// End of day so the closing candle of `end` is included.
	bars, err := s.candles(ctx, entry.Name, "1d", start, end.Add(24*time.Hour-time.Millisecond))
	if err != nil {
		return nil, err
	}
	return datasource.ProjectFields(bars, fields), nil
}

// IntradayBars returns intraday candles for a supported interval.
func (s *Source) IntradayBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]datasource.Bar, error) {
	if _, ok := supportedIntervals[interval]; !ok {
		if datasource.ValidInterval(interval) {
			return nil, fmt.Errorf("crypto: interval %s: %w", interval, datasource.ErrNotSupported)
		}
		return nil, &datasource.StandardizationError{Source: s.name, Detail: fmt.Sprintf("unknown interval %q", interval)}
	}
	entry, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.candles(ctx, entry.Name, interval, start, end)
}

// RealtimeQuote returns the latest mid price for the symbol.
func (s *Source) RealtimeQuote(ctx context.Context, symbol string) (*datasource.Quote, error) {
	entry, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var mids midsResponse
	if err := s.post(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return nil, s.wrap("realtime quote", err)
	}
	raw, ok := mids[entry.Name]
	if !ok {
		return nil, &datasource.StandardizationError{Source: s.name, Detail: fmt.Sprintf("no mid price for %s", entry.Name)}
	}
	last, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &datasource.StandardizationError{Source: s.name, Detail: fmt.Sprintf("bad mid price %q for %s", raw, entry.Name), Err: err}
	}
	return &datasource.Quote{
		Code:      entry.Name,
		Name:      entry.Name,
		Last:      last,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ValidateSymbol reports whether the exchange universe lists the symbol.
func (s *Source) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	_, err := s.lookup(ctx, symbol)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, datasource.ErrSymbolNotFound) || datasource.IsValidation(err) {
		return false, nil
	}
	return false, err
}

// AssetMetadata returns universe metadata for one symbol.
func (s *Source) AssetMetadata(ctx context.Context, symbol string) (*datasource.AssetMeta, error) {
	entry, err := s.lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, datasource.ErrSymbolNotFound) {
			return nil, &datasource.SymbolValidationError{Symbol: symbol, Reason: "not in exchange universe"}
		}
		return nil, err
	}
	var listed time.Time
	if entry.OnboardMs > 0 {
		listed = time.UnixMilli(entry.OnboardMs).UTC()
	}
	return &datasource.AssetMeta{
		Code:        entry.Name,
		FullCode:    entry.Name + ".PERP",
		Name:        entry.Name,
		Exchange:    "PERP",
		AssetType:   datasource.TypeSpot,
		ListingDate: listed,
		IsActive:    !entry.IsDelisted,
	}, nil
}
