package crypto

// Wire types for the exchange info endpoint. Requests are typed POST bodies;
// candle rows arrive with single-letter keys.

type infoRequest struct {
	Type string `json:"type"`
	Req  any    `json:"req,omitempty"`
}

type universeResponse struct {
	Universe []universeEntry `json:"universe"`
}

type universeEntry struct {
	Name       string `json:"name"`
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	SzDecimals int    `json:"szDecimals"`
	IsDelisted bool   `json:"isDelisted"`
	OnboardMs  int64  `json:"onboardTime"`
}

type candleSnapshotRequest struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type candleResponse []candleEntry

type candleEntry struct {
	T int64   `json:"t"`
	O float64 `json:"o,string"`
	H float64 `json:"h,string"`
	L float64 `json:"l,string"`
	C float64 `json:"c,string"`
	V float64 `json:"v,string"`
}

type midsResponse map[string]string
