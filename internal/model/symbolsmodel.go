package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Symbol is one row of the per-asset-class instrument directory. Rows are
// deactivated when they fall out of the directory pull, never deleted.
type Symbol struct {
	AssetClass  string       `db:"asset_class"`
	Code        string       `db:"code"`
	Name        string       `db:"name"`
	FullCode    string       `db:"full_code"`
	Exchange    string       `db:"exchange"`
	AssetType   string       `db:"asset_type"`
	ListingDate sql.NullTime `db:"listing_date"`
	IsActive    bool         `db:"is_active"`
	LastUpdated time.Time    `db:"last_updated"`
}

// SymbolsModel is the directory table access layer.
type SymbolsModel interface {
	Upsert(ctx context.Context, sess sqlx.Session, s *Symbol) error
	FindOne(ctx context.Context, class, code string) (*Symbol, error)
	FindByFullCode(ctx context.Context, class, fullCode string) (*Symbol, error)
	SearchByName(ctx context.Context, class, query string, limit int) ([]*Symbol, error)
	ListActive(ctx context.Context, class string) ([]*Symbol, error)
	DeactivateStale(ctx context.Context, class string, cutoff time.Time) (int64, error)
}

type defaultSymbolsModel struct {
	conn sqlx.SqlConn
}

// NewSymbolsModel returns a model for the symbols table.
func NewSymbolsModel(conn sqlx.SqlConn) SymbolsModel {
	return &defaultSymbolsModel{conn: conn}
}

const symbolRows = "asset_class, code, name, full_code, exchange, asset_type, listing_date, is_active, last_updated"

// Upsert writes one directory row inside the supplied session. Passing a nil
// session falls back to the bare connection.
func (m *defaultSymbolsModel) Upsert(ctx context.Context, sess sqlx.Session, s *Symbol) error {
	const stmt = `
INSERT INTO symbols (asset_class, code, name, full_code, exchange, asset_type, listing_date, is_active, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (asset_class, code) DO UPDATE SET
    name = EXCLUDED.name,
    full_code = EXCLUDED.full_code,
    exchange = EXCLUDED.exchange,
    asset_type = EXCLUDED.asset_type,
    listing_date = EXCLUDED.listing_date,
    is_active = EXCLUDED.is_active,
    last_updated = NOW();`
	exec := m.conn.ExecCtx
	if sess != nil {
		exec = sess.ExecCtx
	}
	_, err := exec(ctx, stmt,
		s.AssetClass, s.Code, s.Name, s.FullCode, s.Exchange, s.AssetType, s.ListingDate, s.IsActive)
	return err
}

func (m *defaultSymbolsModel) FindOne(ctx context.Context, class, code string) (*Symbol, error) {
	query := `SELECT ` + symbolRows + ` FROM symbols WHERE asset_class = $1 AND code = $2 LIMIT 1`
	var resp Symbol
	err := m.conn.QueryRowCtx(ctx, &resp, query, class, code)
	switch {
	case err == nil:
		return &resp, nil
	case errors.Is(err, sqlx.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *defaultSymbolsModel) FindByFullCode(ctx context.Context, class, fullCode string) (*Symbol, error) {
	query := `SELECT ` + symbolRows + ` FROM symbols WHERE asset_class = $1 AND full_code = $2 LIMIT 1`
	var resp Symbol
	err := m.conn.QueryRowCtx(ctx, &resp, query, class, fullCode)
	switch {
	case err == nil:
		return &resp, nil
	case errors.Is(err, sqlx.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

// SearchByName performs a case-insensitive substring match ordered by code,
// the table's natural ordering.
func (m *defaultSymbolsModel) SearchByName(ctx context.Context, class, query string, limit int) ([]*Symbol, error) {
	if limit <= 0 {
		limit = 10
	}
	stmt := `SELECT ` + symbolRows + ` FROM symbols
WHERE asset_class = $1 AND name ILIKE '%' || $2 || '%'
ORDER BY code LIMIT $3`
	var resp []*Symbol
	if err := m.conn.QueryRowsCtx(ctx, &resp, stmt, class, query, limit); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *defaultSymbolsModel) ListActive(ctx context.Context, class string) ([]*Symbol, error) {
	query := `SELECT ` + symbolRows + ` FROM symbols WHERE asset_class = $1 AND is_active ORDER BY code`
	var resp []*Symbol
	if err := m.conn.QueryRowsCtx(ctx, &resp, query, class); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeactivateStale flips is_active off for rows last refreshed before cutoff.
func (m *defaultSymbolsModel) DeactivateStale(ctx context.Context, class string, cutoff time.Time) (int64, error) {
	const stmt = `UPDATE symbols SET is_active = FALSE
WHERE asset_class = $1 AND is_active AND last_updated < $2`
	res, err := m.conn.ExecCtx(ctx, stmt, class, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
