package datasource

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name  string
	class AssetClass
}

func (s *stubSource) Name() string      { return s.name }
func (s *stubSource) Class() AssetClass { return s.class }

func (s *stubSource) ListSymbols(ctx context.Context) ([]AssetMeta, error) { return nil, nil }

func (s *stubSource) DailyBars(ctx context.Context, symbol string, start, end time.Time, fields []string) ([]Bar, error) {
	return nil, nil
}

func (s *stubSource) IntradayBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]Bar, error) {
	return nil, ErrNotSupported
}

func (s *stubSource) RealtimeQuote(ctx context.Context, symbol string) (*Quote, error) {
	return nil, ErrNotSupported
}

func (s *stubSource) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return false, nil
}

func (s *stubSource) AssetMetadata(ctx context.Context, symbol string) (*AssetMeta, error) {
	return nil, ErrSymbolNotFound
}

func init() {
	RegisterSource("stub", func(name string, cfg *SourceConfig) (DataSource, error) {
		return &stubSource{name: name, class: cfg.AssetClass()}, nil
	})
}

func TestLoadConfigFromReader(t *testing.T) {
	t.Setenv("STUB_KEY", "expanded-key")
	t.Setenv("STUB_TIMEOUT", "12s")

	yaml := `
default: primary
sources:
  primary:
    type: stub
    class: equity
    app_key: ${STUB_KEY}
    timeout: ${STUB_TIMEOUT}
    http_timeout: 5s
    max_retries: 2
  coins:
    type: stub
    class: crypto
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	primary := cfg.Sources["primary"]
	require.NotNil(t, primary)
	assert.Equal(t, "expanded-key", primary.AppKey)
	assert.Equal(t, 12*time.Second, primary.Timeout)
	assert.Equal(t, 5*time.Second, primary.HTTPTimeout)
	assert.Equal(t, ClassEquity, primary.AssetClass())
}

func TestLoadConfigRejectsBadClass(t *testing.T) {
	yaml := `
default: primary
sources:
  primary:
    type: stub
    class: commodity
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class")
}

func TestLoadConfigRejectsMissingDefault(t *testing.T) {
	yaml := `
default: missing
sources:
  primary:
    type: stub
    class: equity
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.Error(t, err)
}

func TestBuildSources(t *testing.T) {
	yaml := `
default: primary
sources:
  primary:
    type: stub
    class: equity
  coins:
    type: stub
    class: crypto
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	sources, err := cfg.BuildSources()
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, ClassEquity, sources["primary"].Class())

	byClass := cfg.ByClass(sources)
	assert.Equal(t, "primary", byClass[ClassEquity].Name())
	assert.Equal(t, "coins", byClass[ClassCrypto].Name())
}

func TestLoadConfigUnknownType(t *testing.T) {
	yaml := `
default: primary
sources:
  primary:
    type: nonexistent
    class: equity
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}
