package fx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataengine/pkg/datasource"
	"dataengine/pkg/transport"
)

func newMockFeed(t *testing.T) *Source {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/pairs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pairsResponse{Pairs: []pairEntry{
			{Pair: "EUR/USD", Name: "Euro / US Dollar", Since: "1999-01-04"},
			{Pair: "USDCNY", Name: "US Dollar / Chinese Yuan", Since: "1994-01-03"},
		}})
	})

	mux.HandleFunc("/v1/rates/daily", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ratesResponse{
			Pair: r.URL.Query().Get("pair"),
			Rates: []rateEntry{
				{Date: "2024-01-02", Open: 1.1040, High: 1.1065, Low: 1.1021, Mid: 1.1052},
				{Date: "2024-01-03", Open: 1.1052, High: 1.1079, Low: 1.1038, Mid: 1.1061},
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewSource("fx-test",
		WithBaseURL(server.URL),
		WithTransport(transport.New(transport.WithMaxRetries(1))),
	)
}

func TestListSymbols(t *testing.T) {
	src := newMockFeed(t)

	metas, err := src.ListSymbols(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, "EURUSD", metas[0].Code, "slash spelling is normalized")
	assert.Equal(t, "EURUSD.FX", metas[0].FullCode)
	assert.Equal(t, datasource.TypePair, metas[0].AssetType)
	assert.Equal(t, time.Date(1999, 1, 4, 0, 0, 0, 0, time.UTC), metas[0].ListingDate)
}

func TestDailyBars(t *testing.T) {
	src := newMockFeed(t)

	bars, err := src.DailyBars(context.Background(), "eur/usd",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "EURUSD", bars[0].Code)
	assert.InDelta(t, 1.1052, bars[0].Close, 1e-9, "mid doubles as close")
	assert.Zero(t, bars[0].Volume, "volume is not published")
}

func TestUnsupportedOperations(t *testing.T) {
	src := newMockFeed(t)
	ctx := context.Background()

	_, err := src.IntradayBars(ctx, "EURUSD", "5m", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, datasource.ErrNotSupported))

	_, err = src.RealtimeQuote(ctx, "EURUSD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, datasource.ErrNotSupported))
}

func TestValidateSymbol(t *testing.T) {
	src := newMockFeed(t)
	ctx := context.Background()

	ok, err := src.ValidateSymbol(ctx, "USDCNY")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = src.ValidateSymbol(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssetMetadataUnknownPair(t *testing.T) {
	src := newMockFeed(t)

	_, err := src.AssetMetadata(context.Background(), "XAUUSD")
	require.Error(t, err)
	var verr *datasource.SymbolValidationError
	assert.True(t, errors.As(err, &verr))
}
