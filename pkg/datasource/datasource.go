package datasource

import (
	"context"
	"time"
)

// AssetClass identifies a category of instrument served by one upstream source.
type AssetClass string

const (
	ClassEquity AssetClass = "equity"
	ClassBond   AssetClass = "bond"
	ClassCrypto AssetClass = "crypto"
	ClassFX     AssetClass = "fx"
)

// Valid reports whether the class is one of the known values.
func (c AssetClass) Valid() bool {
	switch c {
	case ClassEquity, ClassBond, ClassCrypto, ClassFX:
		return true
	}
	return false
}

// AssetType refines an instrument inside an asset class.
type AssetType string

const (
	TypeStock           AssetType = "stock"
	TypeIndex           AssetType = "index"
	TypeFund            AssetType = "fund"
	TypeConvertibleBond AssetType = "convertible_bond"
	TypeSpot            AssetType = "spot"
	TypePair            AssetType = "pair"
	TypeOther           AssetType = "other"
)

// Bar is one standardized OHLCV row. Daily bars carry a date at midnight UTC;
// intraday bars carry the candle open time.
type Bar struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	AssetType AssetType `json:"asset_type"`
	Date      time.Time `json:"date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Turnover  float64   `json:"turnover"`
	PctChange float64   `json:"pct_change"`
}

// Quote is a single standardized realtime quote.
type Quote struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Last      float64   `json:"last"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	PrevClose float64   `json:"prev_close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// AssetMeta describes one instrument known to an upstream directory.
type AssetMeta struct {
	Code        string    `json:"code"`
	FullCode    string    `json:"full_code"`
	Name        string    `json:"name"`
	Exchange    string    `json:"exchange"`
	AssetType   AssetType `json:"asset_type"`
	ListingDate time.Time `json:"listing_date"`
	IsActive    bool      `json:"is_active"`
}

// BarFields enumerates the projectable columns of a Bar. An empty field list
// on a request means all fields.
var BarFields = []string{"open", "high", "low", "close", "volume", "turnover", "pct_change"}

// Intervals lists the intraday intervals a source may support.
var Intervals = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}

// ValidInterval reports whether interval is one of the declared set.
func ValidInterval(interval string) bool {
	for _, v := range Intervals {
		if v == interval {
			return true
		}
	}
	return false
}

// DataSource is the uniform contract every upstream adapter satisfies.
// Adapters perform network I/O only; persistence belongs to the sync layer
// that wraps them. Operations an upstream cannot serve return ErrNotSupported
// rather than failing unpredictably.
type DataSource interface {
	// Name identifies the configured source instance.
	Name() string
	// Class returns the asset class this source serves.
	Class() AssetClass
	// ListSymbols pulls the full upstream directory.
	ListSymbols(ctx context.Context) ([]AssetMeta, error)
	// DailyBars returns daily bars for the closed range [start, end],
	// restricted to the requested fields (nil means all).
	DailyBars(ctx context.Context, symbol string, start, end time.Time, fields []string) ([]Bar, error)
	// IntradayBars returns intraday bars at the given interval.
	IntradayBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]Bar, error)
	// RealtimeQuote returns the latest quote for the symbol.
	RealtimeQuote(ctx context.Context, symbol string) (*Quote, error)
	// ValidateSymbol reports whether the upstream knows the symbol.
	ValidateSymbol(ctx context.Context, symbol string) (bool, error)
	// AssetMetadata returns directory metadata for one symbol.
	AssetMetadata(ctx context.Context, symbol string) (*AssetMeta, error)
}

// SessionSource is implemented by sources whose upstream requires an explicit
// session. Callers bracket a batch of requests with Login/Logout; Logout must
// be invoked on every exit path.
type SessionSource interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
}
