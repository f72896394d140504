package ashare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dataengine/pkg/datasource"
	"dataengine/pkg/transport"
)

func init() {
	datasource.RegisterSource("ashare", func(name string, cfg *datasource.SourceConfig) (datasource.DataSource, error) {
		opts := []ClientOption{WithCredentials(cfg.AppKey, cfg.Secret)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Market != "" {
			if cfg.Market != MarketStock && cfg.Market != MarketBond {
				return nil, fmt.Errorf("ashare: unknown market segment %q", cfg.Market)
			}
			opts = append(opts, WithMarket(cfg.Market))
		}
		tOpts := []transport.Option{}
		if cfg.HTTPTimeout > 0 {
			tOpts = append(tOpts, transport.WithTimeout(cfg.HTTPTimeout))
		}
		if cfg.MaxRetries > 0 {
			tOpts = append(tOpts, transport.WithMaxRetries(cfg.MaxRetries))
		}
		opts = append(opts, WithTransport(transport.New(tOpts...)))
		return NewSource(name, cfg.AssetClass(), opts...), nil
	})
}

// Source adapts the gateway client to the uniform data source contract.
type Source struct {
	name   string
	class  datasource.AssetClass
	client *Client

	dirMu sync.RWMutex
	dir   map[string]listItem
}

var _ datasource.DataSource = (*Source)(nil)
var _ datasource.SessionSource = (*Source)(nil)

// NewSource constructs an adapter over a gateway client.
func NewSource(name string, class datasource.AssetClass, opts ...ClientOption) *Source {
	if !class.Valid() {
		class = datasource.ClassEquity
	}
	return &Source{
		name:   name,
		class:  class,
		client: NewClient(opts...),
	}
}

func (s *Source) Name() string                  { return s.name }
func (s *Source) Class() datasource.AssetClass  { return s.class }
func (s *Source) Login(ctx context.Context) error  { return s.wrap("login", s.client.Login(ctx)) }
func (s *Source) Logout(ctx context.Context) error { return s.wrap("logout", s.client.Logout(ctx)) }

func (s *Source) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrRateLimited) {
		return &datasource.RateLimitError{Source: s.name, RetryAfter: transport.RetryAfter(err)}
	}
	return &datasource.RetrievalError{Source: s.name, Op: op, Err: err}
}

// ListSymbols pulls the directory for the configured market segment.
func (s *Source) ListSymbols(ctx context.Context) ([]datasource.AssetMeta, error) {
	items, err := s.client.ListInstruments(ctx)
	if err != nil {
		return nil, s.wrap("list symbols", err)
	}
	metas := make([]datasource.AssetMeta, 0, len(items))
	index := make(map[string]listItem, len(items))
	for _, item := range items {
		meta, err := s.toMeta(item)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *meta)
		index[item.Code] = item
	}
	s.dirMu.Lock()
	s.dir = index
	s.dirMu.Unlock()
	return metas, nil
}

func (s *Source) toMeta(item listItem) (*datasource.AssetMeta, error) {
	code := strings.TrimSpace(item.Code)
	if code == "" {
		return nil, &datasource.StandardizationError{Source: s.name, Detail: "instrument row missing code"}
	}
	exchange := strings.ToUpper(strings.TrimSpace(item.Exchange))
	var listed time.Time
	if item.ListDate != "" {
		t, err := time.Parse(dateLayout, item.ListDate)
		if err != nil {
			return nil, &datasource.StandardizationError{
				Source: s.name,
				Detail: fmt.Sprintf("instrument %s: bad list_date %q", code, item.ListDate),
				Err:    err,
			}
		}
		listed = t
	}
	return &datasource.AssetMeta{
		Code:        code,
		FullCode:    fmt.Sprintf("%s.%s", code, exchange),
		Name:        strings.TrimSpace(item.Name),
		Exchange:    exchange,
		AssetType:   s.assetType(item.Type),
		ListingDate: listed,
		IsActive:    !item.Delisted,
	}, nil
}

func (s *Source) assetType(raw string) datasource.AssetType {
	if s.client.market == MarketBond {
		return datasource.TypeConvertibleBond
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "stock", "":
		return datasource.TypeStock
	case "index":
		return datasource.TypeIndex
	case "fund", "etf":
		return datasource.TypeFund
	default:
		return datasource.TypeOther
	}
}

// normalizeCode reduces bare and exchange-qualified spellings to the bare code.
func normalizeCode(symbol string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, ".")
	if len(parts) == 2 {
		if isNumeric(parts[0]) {
			return parts[0]
		}
		if isNumeric(parts[1]) {
			return parts[1]
		}
	}
	return trimmed
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Source) lookup(ctx context.Context, symbol string) (listItem, error) {
	code := normalizeCode(symbol)
	if code == "" {
		return listItem{}, &datasource.SymbolValidationError{Symbol: symbol, Reason: "empty symbol"}
	}
	s.dirMu.RLock()
	item, ok := s.dir[code]
	s.dirMu.RUnlock()
	if ok {
		return item, nil
	}
	if _, err := s.ListSymbols(ctx); err != nil {
		return listItem{}, err
	}
	s.dirMu.RLock()
	item, ok = s.dir[code]
	s.dirMu.RUnlock()
	if !ok {
		return listItem{}, datasource.ErrSymbolNotFound
	}
	return item, nil
}

// DailyBars pulls daily history for the closed range [start, end].
func (s *Source) DailyBars(ctx context.Context, symbol string, start, end time.Time, fields []string) ([]datasource.Bar, error) {
	item, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.DailyHistory(ctx, item.Code, start, end)
	if err != nil {
		return nil, s.wrap("daily bars", err)
	}
	bars := make([]datasource.Bar, 0, len(resp.Items))
	assetType := s.assetType(item.Type)
	for _, row := range resp.Items {
		date, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return nil, &datasource.StandardizationError{
				Source: s.name,
				Detail: fmt.Sprintf("bar %s: bad date %q", item.Code, row.Date),
				Err:    err,
			}
		}
		bars = append(bars, datasource.Bar{
			Code:      item.Code,
			Name:      item.Name,
			AssetType: assetType,
			Date:      date,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
			Turnover:  row.Turnover,
			PctChange: row.PctChg,
		})
	}
	return datasource.ProjectFields(bars, fields), nil
}

// IntradayBars is not available on the gateway.
func (s *Source) IntradayBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]datasource.Bar, error) {
	return nil, fmt.Errorf("ashare: intraday bars: %w", datasource.ErrNotSupported)
}

// RealtimeQuote pulls the latest quote for the symbol.
func (s *Source) RealtimeQuote(ctx context.Context, symbol string) (*datasource.Quote, error) {
	item, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Quote(ctx, item.Code)
	if err != nil {
		return nil, s.wrap("realtime quote", err)
	}
	return &datasource.Quote{
		Code:      resp.Code,
		Name:      resp.Name,
		Last:      resp.Last,
		Open:      resp.Open,
		High:      resp.High,
		Low:       resp.Low,
		PrevClose: resp.PrevClose,
		Volume:    resp.Volume,
		Timestamp: time.UnixMilli(resp.TsMs).UTC(),
	}, nil
}

// ValidateSymbol reports whether the gateway directory lists the symbol.
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

// AssetMetadata returns directory metadata for one symbol.
func (s *Source) AssetMetadata(ctx context.Context, symbol string) (*datasource.AssetMeta, error) {
	item, err := s.lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, datasource.ErrSymbolNotFound) {
			return nil, &datasource.SymbolValidationError{Symbol: symbol, Reason: "not listed on gateway"}
		}
		return nil, err
	}
	return s.toMeta(item)
}
