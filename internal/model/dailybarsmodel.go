package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// DailyBar is one row of the historical bar table, keyed by
// (asset_class, code, trade_date) so re-ingesting a date overwrites in place.
type DailyBar struct {
	AssetClass string    `db:"asset_class"`
	Code       string    `db:"code"`
	Name       string    `db:"name"`
	AssetType  string    `db:"asset_type"`
	TradeDate  time.Time `db:"trade_date"`
	Open       float64   `db:"open"`
	High       float64   `db:"high"`
	Low        float64   `db:"low"`
	Close      float64   `db:"close"`
	Volume     float64   `db:"volume"`
	Turnover   float64   `db:"turnover"`
	PctChange  float64   `db:"pct_change"`
}

// DailyBarsModel is the bar history table access layer.
type DailyBarsModel interface {
	Upsert(ctx context.Context, sess sqlx.Session, bar *DailyBar) error
	LastDate(ctx context.Context, class, code string) (time.Time, bool, error)
	Range(ctx context.Context, class, code string, start, end time.Time) ([]*DailyBar, error)
	CountForCode(ctx context.Context, class, code string) (int64, error)
}

type defaultDailyBarsModel struct {
	conn sqlx.SqlConn
}

// NewDailyBarsModel returns a model for the daily_bars table.
func NewDailyBarsModel(conn sqlx.SqlConn) DailyBarsModel {
	return &defaultDailyBarsModel{conn: conn}
}

const dailyBarRows = "asset_class, code, name, asset_type, trade_date, open, high, low, close, volume, turnover, pct_change"

// Upsert writes one bar inside the supplied session. The conflict target is
// the (asset_class, code, trade_date) primary key, making repeated ingestion
// idempotent.
func (m *defaultDailyBarsModel) Upsert(ctx context.Context, sess sqlx.Session, bar *DailyBar) error {
	const stmt = `
INSERT INTO daily_bars (asset_class, code, name, asset_type, trade_date, open, high, low, close, volume, turnover, pct_change)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (asset_class, code, trade_date) DO UPDATE SET
    name = EXCLUDED.name,
    asset_type = EXCLUDED.asset_type,
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume,
    turnover = EXCLUDED.turnover,
    pct_change = EXCLUDED.pct_change;`
	exec := m.conn.ExecCtx
	if sess != nil {
		exec = sess.ExecCtx
	}
	_, err := exec(ctx, stmt,
		bar.AssetClass, bar.Code, bar.Name, bar.AssetType, bar.TradeDate,
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Turnover, bar.PctChange)
	return err
}

// LastDate returns the most recent stored trade date for a code. The second
// return value is false when no bars are stored.
func (m *defaultDailyBarsModel) LastDate(ctx context.Context, class, code string) (time.Time, bool, error) {
	const query = `SELECT MAX(trade_date) FROM daily_bars WHERE asset_class = $1 AND code = $2`
	var last sql.NullTime
	err := m.conn.QueryRowCtx(ctx, &last, query, class, code)
	if err != nil && !errors.Is(err, sqlx.ErrNotFound) {
		return time.Time{}, false, err
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time, true, nil
}

// Range returns bars in the closed range [start, end] in ascending date order.
func (m *defaultDailyBarsModel) Range(ctx context.Context, class, code string, start, end time.Time) ([]*DailyBar, error) {
	query := `SELECT ` + dailyBarRows + ` FROM daily_bars
WHERE asset_class = $1 AND code = $2 AND trade_date BETWEEN $3 AND $4
ORDER BY trade_date`
	var resp []*DailyBar
	if err := m.conn.QueryRowsCtx(ctx, &resp, query, class, code, start, end); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *defaultDailyBarsModel) CountForCode(ctx context.Context, class, code string) (int64, error) {
	const query = `SELECT COUNT(*) FROM daily_bars WHERE asset_class = $1 AND code = $2`
	var count int64
	if err := m.conn.QueryRowCtx(ctx, &count, query, class, code); err != nil {
		return 0, err
	}
	return count, nil
}
