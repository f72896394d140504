package ashare

// Wire types for the A-share data gateway. Column order and field names follow
// the upstream API documentation; mapping to the standard shape happens in the
// adapter, never in callers.

type loginRequest struct {
	AppKey string `json:"app_key"`
	Secret string `json:"secret"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type listResponse struct {
	Items []listItem `json:"items"`
}

type listItem struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"`
	ListDate string `json:"list_date"`
	Delisted bool   `json:"delisted"`
}

type dailyResponse struct {
	Code  string      `json:"code"`
	Name  string      `json:"name"`
	Items []dailyItem `json:"items"`
}

type dailyItem struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	Turnover float64 `json:"turnover"`
	PctChg   float64 `json:"pct_chg"`
}

type quoteResponse struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Last      float64 `json:"last"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	PrevClose float64 `json:"prev_close"`
	Volume    float64 `json:"volume"`
	TsMs      int64   `json:"ts_ms"`
}
