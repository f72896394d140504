// Package fx adapts a daily FX reference-rate feed to the uniform data source
// contract. The feed publishes one fixing per pair per day; intraday bars and
// realtime quotes are declared unsupported.
package fx

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"dataengine/pkg/datasource"
	"dataengine/pkg/transport"
)

const (
	defaultBaseURL = "https://rates.fxref.io"
	dateLayout     = "2006-01-02"
)

func init() {
	datasource.RegisterSource("fx", func(name string, cfg *datasource.SourceConfig) (datasource.DataSource, error) {
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

type pairsResponse struct {
	Pairs []pairEntry `json:"pairs"`
}

type pairEntry struct {
	Pair  string `json:"pair"`
	Name  string `json:"name"`
	Since string `json:"since"`
}

type ratesResponse struct {
	Pair  string      `json:"pair"`
	Rates []rateEntry `json:"rates"`
}

type rateEntry struct {
	Date string  `json:"date"`
	Open float64 `json:"open"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
}

// Source adapts the reference-rate feed.
type Source struct {
	name      string
	baseURL   string
	transport *transport.Client
}

var _ datasource.DataSource = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithBaseURL overrides the feed endpoint.
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

// NewSource constructs the FX adapter.
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
func (s *Source) Class() datasource.AssetClass { return datasource.ClassFX }

func (s *Source) wrap(op string, err error) error {
	if errors.Is(err, transport.ErrRateLimited) {
		return &datasource.RateLimitError{Source: s.name, RetryAfter: transport.RetryAfter(err)}
	}
	return &datasource.RetrievalError{Source: s.name, Op: op, Err: err}
}

func normalizePair(symbol string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	trimmed = strings.ReplaceAll(trimmed, "/", "")
	return trimmed
}

// ListSymbols pulls the published pair directory.
func (s *Source) ListSymbols(ctx context.Context) ([]datasource.AssetMeta, error) {
	var payload pairsResponse
	if err := s.transport.GetJSON(ctx, s.baseURL+"/v1/pairs", nil, &payload); err != nil {
		return nil, s.wrap("list symbols", err)
	}
	metas := make([]datasource.AssetMeta, 0, len(payload.Pairs))
	for _, entry := range payload.Pairs {
		pair := normalizePair(entry.Pair)
		if pair == "" {
			continue
		}
		var since time.Time
		if entry.Since != "" {
			t, err := time.Parse(dateLayout, entry.Since)
			if err != nil {
				return nil, &datasource.StandardizationError{
					Source: s.name,
					Detail: fmt.Sprintf("pair %s: bad since date %q", pair, entry.Since),
					Err:    err,
				}
			}
			since = t
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = pair
		}
		metas = append(metas, datasource.AssetMeta{
			Code:        pair,
			FullCode:    pair + ".FX",
			Name:        name,
			Exchange:    "FX",
			AssetType:   datasource.TypePair,
			ListingDate: since,
			IsActive:    true,
		})
	}
	return metas, nil
}

// DailyBars returns daily fixings for the closed range [start, end]. The mid
// rate doubles as the close; volume and turnover are not published.
func (s *Source) DailyBars(ctx context.Context, symbol string, start, end time.Time, fields []string) ([]datasource.Bar, error) {
	pair := normalizePair(symbol)
	if pair == "" {
		return nil, &datasource.SymbolValidationError{Symbol: symbol, Reason: "empty symbol"}
	}
	q := url.Values{}
	q.Set("pair", pair)
	q.Set("start", start.Format(dateLayout))
	q.Set("end", end.Format(dateLayout))
	var payload ratesResponse
	if err := s.transport.GetJSON(ctx, s.baseURL+"/v1/rates/daily?"+q.Encode(), nil, &payload); err != nil {
		return nil, s.wrap("daily bars", err)
	}
	bars := make([]datasource.Bar, 0, len(payload.Rates))
	for _, row := range payload.Rates {
		date, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return nil, &datasource.StandardizationError{
				Source: s.name,
				Detail: fmt.Sprintf("rate %s: bad date %q", pair, row.Date),
				Err:    err,
			}
		}
		bars = append(bars, datasource.Bar{
			Code:      pair,
			Name:      pair,
			AssetType: datasource.TypePair,
			Date:      date,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Mid,
		})
	}
	return datasource.ProjectFields(bars, fields), nil
}

// IntradayBars is not published by the reference feed.
func (s *Source) IntradayBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]datasource.Bar, error) {
	return nil, fmt.Errorf("fx: intraday bars: %w", datasource.ErrNotSupported)
}

// RealtimeQuote is not published by the reference feed.
func (s *Source) RealtimeQuote(ctx context.Context, symbol string) (*datasource.Quote, error) {
	return nil, fmt.Errorf("fx: realtime quote: %w", datasource.ErrNotSupported)
}

// ValidateSymbol checks the pair against the published directory.
func (s *Source) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	pair := normalizePair(symbol)
	if pair == "" {
		return false, nil
	}
	metas, err := s.ListSymbols(ctx)
	if err != nil {
		return false, err
	}
	for _, meta := range metas {
		if meta.Code == pair {
			return true, nil
		}
	}
	return false, nil
}

// AssetMetadata returns directory metadata for one pair.
func (s *Source) AssetMetadata(ctx context.Context, symbol string) (*datasource.AssetMeta, error) {
	pair := normalizePair(symbol)
	metas, err := s.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	for i := range metas {
		if metas[i].Code == pair {
			return &metas[i], nil
		}
	}
	return nil, &datasource.SymbolValidationError{Symbol: symbol, Reason: "pair not published"}
}
