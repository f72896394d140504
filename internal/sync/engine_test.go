package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataengine/internal/model"
	"dataengine/pkg/datasource"
)

type rangeReq struct {
	symbol string
	start  time.Time
	end    time.Time
}

// fakeSource is a session-based upstream with scriptable directory and
// history responses.
type fakeSource struct {
	mu       gosync.Mutex
	class    datasource.AssetClass
	listFn   func() ([]datasource.AssetMeta, error)
	dailyFn  func(symbol string, start, end time.Time) ([]datasource.Bar, error)
	requests []rangeReq
	logins   int
	logouts  int
	loginErr error
}

func (f *fakeSource) Name() string                 { return "fake" }
func (f *fakeSource) Class() datasource.AssetClass { return f.class }

func (f *fakeSource) Login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return f.loginErr
}

func (f *fakeSource) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeSource) ListSymbols(ctx context.Context) ([]datasource.AssetMeta, error) {
	return f.listFn()
}

func (f *fakeSource) DailyBars(ctx context.Context, symbol string, start, end time.Time, fields []string) ([]datasource.Bar, error) {
	f.mu.Lock()
	f.requests = append(f.requests, rangeReq{symbol: symbol, start: start, end: end})
	f.mu.Unlock()
	return f.dailyFn(symbol, start, end)
}

func (f *fakeSource) IntradayBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]datasource.Bar, error) {
	return nil, datasource.ErrNotSupported
}

func (f *fakeSource) RealtimeQuote(ctx context.Context, symbol string) (*datasource.Quote, error) {
	return nil, datasource.ErrNotSupported
}

func (f *fakeSource) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return true, nil
}

func (f *fakeSource) AssetMetadata(ctx context.Context, symbol string) (*datasource.AssetMeta, error) {
	return nil, datasource.ErrSymbolNotFound
}

func (f *fakeSource) requestsFor(symbol string) []rangeReq {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rangeReq
	for _, req := range f.requests {
		if req.symbol == symbol {
			out = append(out, req)
		}
	}
	return out
}

// fakeStore is an in-memory stand-in for the local store.
type fakeStore struct {
	mu             gosync.Mutex
	symbols        map[string]*model.Symbol
	bars           map[string]map[string]datasource.Bar
	directoryAt    time.Time
	historyThrough time.Time
	upsertBarsErr  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		symbols: map[string]*model.Symbol{},
		bars:    map[string]map[string]datasource.Bar{},
	}
}

func (s *fakeStore) SyncState(ctx context.Context) (time.Time, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directoryAt, s.historyThrough, nil
}

func (s *fakeStore) UpsertSymbols(ctx context.Context, metas []datasource.AssetMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, meta := range metas {
		listing := sql.NullTime{}
		if !meta.ListingDate.IsZero() {
			listing = sql.NullTime{Time: meta.ListingDate, Valid: true}
		}
		s.symbols[meta.Code] = &model.Symbol{
			Code:        meta.Code,
			Name:        meta.Name,
			FullCode:    meta.FullCode,
			Exchange:    meta.Exchange,
			AssetType:   string(meta.AssetType),
			ListingDate: listing,
			IsActive:    meta.IsActive,
			LastUpdated: now,
		}
	}
	return nil
}

func (s *fakeStore) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sym := range s.symbols {
		if sym.IsActive && sym.LastUpdated.Before(cutoff) {
			sym.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ActiveSymbols(ctx context.Context) ([]*model.Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Symbol
	for _, sym := range s.symbols {
		if sym.IsActive {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *fakeStore) LastBarDate(ctx context.Context, code string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dates := s.bars[code]
	if len(dates) == 0 {
		return time.Time{}, false, nil
	}
	var last time.Time
	for _, bar := range dates {
		if bar.Date.After(last) {
			last = bar.Date
		}
	}
	return last, true, nil
}

func (s *fakeStore) UpsertBars(ctx context.Context, bars []datasource.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bar := range bars {
		if err := s.upsertBarsErr[bar.Code]; err != nil {
			return err
		}
		if s.bars[bar.Code] == nil {
			s.bars[bar.Code] = map[string]datasource.Bar{}
		}
		s.bars[bar.Code][bar.Date.Format("2006-01-02")] = bar
	}
	return nil
}

func (s *fakeStore) SetDirectorySyncedAt(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directoryAt = at
	return nil
}

func (s *fakeStore) AdvanceHistoryThrough(ctx context.Context, through time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if through.After(s.historyThrough) {
		s.historyThrough = through
	}
	return nil
}

func (s *fakeStore) barCount(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bars[code])
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// tradingDays generates one bar per weekday in [start, end].
func tradingDays(code string, start, end time.Time) []datasource.Bar {
	var bars []datasource.Bar
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		bars = append(bars, datasource.Bar{
			Code:  code,
			Date:  d,
			Open:  10,
			High:  11,
			Low:   9,
			Close: 10.5,
		})
	}
	return bars
}

func fixedClock(s string) func() time.Time {
	at := day(s).Add(15 * time.Hour)
	return func() time.Time { return at }
}

func meta(code, name, exchange string, listed time.Time) datasource.AssetMeta {
	return datasource.AssetMeta{
		Code:        code,
		FullCode:    code + "." + exchange,
		Name:        name,
		Exchange:    exchange,
		AssetType:   datasource.TypeStock,
		ListingDate: listed,
		IsActive:    true,
	}
}

func TestBootstrapAndBackfill(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{meta("000001", "Ping An Bank", "SZ", day("1991-04-03"))}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	engine := New(src, st,
		WithClock(fixedClock("2024-01-05")),
		WithEpoch(day("2024-01-01")),
	)

	report, err := engine.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.False(t, report.Failed())
	assert.Equal(t, 1, report.SymbolsSynced)
	// 2024-01-01 .. 2024-01-05 is five weekdays.
	assert.Equal(t, 5, st.barCount("000001"))
	assert.Equal(t, day("2024-01-05"), report.Through)

	// Backfill starts at the listing date when it postdates the epoch.
	reqs := src.requestsFor("000001")
	require.Len(t, reqs, 1)
	assert.Equal(t, day("2024-01-01"), reqs[0].start)
	assert.Equal(t, day("2024-01-05"), reqs[0].end)
}

func TestEnsureFreshIsIncremental(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{meta("000001", "Ping An Bank", "SZ", day("1991-04-03"))}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	engine := New(src, st, WithClock(fixedClock("2024-01-03")), WithEpoch(day("2024-01-01")))

	_, err := engine.EnsureFresh(context.Background())
	require.NoError(t, err)
	firstCount := st.barCount("000001")

	// Same day again: markers are current, nothing is pulled.
	_, err = engine.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, src.requestsFor("000001"), 1)

	// Two days later only the delta after the last stored bar is requested.
	later := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-01")))
	_, err = later.EnsureFresh(context.Background())
	require.NoError(t, err)
	reqs := src.requestsFor("000001")
	require.Len(t, reqs, 2)
	assert.Equal(t, day("2024-01-04"), reqs[1].start, "second pull must start after last stored bar")
	assert.GreaterOrEqual(t, st.barCount("000001"), firstCount)
}

func TestBackfillIsIdempotent(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{meta("000001", "Ping An Bank", "SZ", day("1991-04-03"))}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	engine := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-01")))

	require.NoError(t, engine.RefreshDirectory(context.Background()))
	first, err := engine.BackfillHistory(context.Background())
	require.NoError(t, err)
	second, err := engine.BackfillHistory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, st.barCount("000001"), "re-running must not duplicate rows")
	assert.Equal(t, first.Through, second.Through)
	st.mu.Lock()
	bar := st.bars["000001"]["2024-01-03"]
	st.mu.Unlock()
	assert.Equal(t, 10.5, bar.Close, "overwrite must be stable")
}

func TestDirectoryBootstrapFallsBackToSeeds(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return nil, &datasource.RetrievalError{Source: "fake", Op: "list", Err: errors.New("down")}
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	engine := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-03")))

	report, err := engine.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Degraded)

	active, err := st.ActiveSymbols(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, active, "seed list must leave the directory usable")
	// The directory marker stays unset so the next run retries the pull.
	dirAt, _, err := st.SyncState(context.Background())
	require.NoError(t, err)
	assert.True(t, dirAt.IsZero())
	// Seeded symbols still backfill.
	assert.Greater(t, st.barCount("000001"), 0)
}

func TestDirectoryStalenessDeactivatesUnseen(t *testing.T) {
	listings := []datasource.AssetMeta{meta("000001", "Ping An Bank", "SZ", day("1991-04-03"))}
	src := &fakeSource{
		class:  datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) { return listings, nil },
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	// A record last refreshed 40 days ago that the pull no longer returns.
	st.symbols["999999"] = &model.Symbol{
		Code:        "999999",
		Name:        "Ghost Corp",
		IsActive:    true,
		LastUpdated: day("2024-01-05").AddDate(0, 0, -40),
	}
	st.bars["999999"] = map[string]datasource.Bar{
		"2023-11-01": {Code: "999999", Date: day("2023-11-01"), Close: 3.21},
	}

	engine := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-01")))
	require.NoError(t, engine.RefreshDirectory(context.Background()))

	st.mu.Lock()
	ghost := st.symbols["999999"]
	st.mu.Unlock()
	require.NotNil(t, ghost, "stale records are deactivated, never deleted")
	assert.False(t, ghost.IsActive)
	assert.Equal(t, 1, st.barCount("999999"), "history for inactive symbols stays queryable")
}

func TestPartialFailureIsolation(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{
				meta("000001", "Alpha", "SZ", day("2020-01-01")),
				meta("000002", "Bravo", "SZ", day("2020-01-01")),
				meta("000003", "Charlie", "SZ", day("2020-01-01")),
			}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			if symbol == "000002" {
				return nil, &datasource.RetrievalError{Source: "fake", Op: "daily", Err: errors.New("boom")}
			}
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	engine := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-02")))

	require.NoError(t, engine.RefreshDirectory(context.Background()))
	report, err := engine.BackfillHistory(context.Background())
	require.NoError(t, err, "one symbol's failure must not fail the batch")

	assert.Equal(t, 2, report.SymbolsSynced)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures, "000002")
	assert.Greater(t, st.barCount("000001"), 0)
	assert.Greater(t, st.barCount("000003"), 0)
	assert.Zero(t, st.barCount("000002"))
	// The failed symbol has no coverage at all, so the class marker must
	// not advance.
	_, through, err := st.SyncState(context.Background())
	require.NoError(t, err)
	assert.True(t, through.IsZero())
}

func TestFailureAfterPartialCoverageCapsMarker(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{
				meta("000001", "Alpha", "SZ", day("2020-01-01")),
				meta("000002", "Bravo", "SZ", day("2020-01-01")),
			}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			if symbol == "000002" {
				return nil, &datasource.RetrievalError{Source: "fake", Op: "daily", Err: errors.New("boom")}
			}
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	// Bravo already has history through Jan 3.
	st.bars["000002"] = map[string]datasource.Bar{
		"2024-01-03": {Code: "000002", Date: day("2024-01-03"), Close: 8},
	}
	engine := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-02")))

	require.NoError(t, engine.RefreshDirectory(context.Background()))
	report, err := engine.BackfillHistory(context.Background())
	require.NoError(t, err)

	// Alpha reached Jan 5, Bravo stayed at Jan 3: the marker may only claim
	// what every symbol actually has.
	assert.Equal(t, day("2024-01-03"), report.Through)
	_, through, err := st.SyncState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-03"), through)
}

func TestRateLimitAbortsBatch(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{
				meta("000001", "Alpha", "SZ", day("2020-01-01")),
				meta("000002", "Bravo", "SZ", day("2020-01-01")),
				meta("000003", "Charlie", "SZ", day("2020-01-01")),
			}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			if symbol == "000002" {
				return nil, &datasource.RateLimitError{Source: "fake"}
			}
			return tradingDays(symbol, start, end), nil
		},
	}
	st := newFakeStore()
	engine := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-02")))

	require.NoError(t, engine.RefreshDirectory(context.Background()))
	_, err := engine.BackfillHistory(context.Background())
	require.Error(t, err)
	assert.True(t, datasource.IsRateLimit(err))
	// Charlie comes after Bravo in code order and must not have been pulled.
	assert.Empty(t, src.requestsFor("000003"))
	// Alpha's committed bars survive the abort.
	assert.Greater(t, st.barCount("000001"), 0)
}

func TestSessionLogoutOnEveryExitPath(t *testing.T) {
	src := &fakeSource{
		class: datasource.ClassEquity,
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{meta("000001", "Alpha", "SZ", day("2020-01-01"))}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			return nil, &datasource.RateLimitError{Source: "fake"}
		},
	}
	st := newFakeStore()
	engine := New(src, st, WithClock(fixedClock("2024-01-05")), WithEpoch(day("2024-01-02")))

	require.NoError(t, engine.RefreshDirectory(context.Background()))
	_, err := engine.BackfillHistory(context.Background())
	require.Error(t, err)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, src.logins, src.logouts, "every login must be paired with a logout")
	assert.Greater(t, src.logouts, 0)
}

func TestLoginFailureSurfacesRetrievalError(t *testing.T) {
	src := &fakeSource{
		class:    datasource.ClassEquity,
		loginErr: fmt.Errorf("bad credentials"),
		listFn: func() ([]datasource.AssetMeta, error) {
			return []datasource.AssetMeta{meta("000001", "Alpha", "SZ", day("2020-01-01"))}, nil
		},
		dailyFn: func(symbol string, start, end time.Time) ([]datasource.Bar, error) {
			return nil, nil
		},
	}
	st := newFakeStore()
	engine := New(src, st, WithClock(fixedClock("2024-01-05")))

	err := engine.RefreshDirectory(context.Background())
	require.Error(t, err)
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 0, src.logouts, "no logout without a successful login")
}
