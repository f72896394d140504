package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// SyncState is the durable per-asset-class synchronization marker. It only
// advances after the writes it describes are committed; GREATEST guards in
// the update statements keep it monotone.
type SyncState struct {
	AssetClass           string       `db:"asset_class"`
	DirectorySyncedAt    sql.NullTime `db:"directory_synced_at"`
	HistorySyncedThrough sql.NullTime `db:"history_synced_through"`
	UpdatedAt            time.Time    `db:"updated_at"`
}

// SyncStateModel is the sync_state table access layer.
type SyncStateModel interface {
	FindOne(ctx context.Context, class string) (*SyncState, error)
	SetDirectorySyncedAt(ctx context.Context, class string, at time.Time) error
	AdvanceHistoryThrough(ctx context.Context, sess sqlx.Session, class string, through time.Time) error
}

type defaultSyncStateModel struct {
	conn sqlx.SqlConn
}

// NewSyncStateModel returns a model for the sync_state table.
func NewSyncStateModel(conn sqlx.SqlConn) SyncStateModel {
	return &defaultSyncStateModel{conn: conn}
}

func (m *defaultSyncStateModel) FindOne(ctx context.Context, class string) (*SyncState, error) {
	const query = `SELECT asset_class, directory_synced_at, history_synced_through, updated_at
FROM sync_state WHERE asset_class = $1 LIMIT 1`
	var resp SyncState
	err := m.conn.QueryRowCtx(ctx, &resp, query, class)
	switch {
	case err == nil:
		return &resp, nil
	case errors.Is(err, sqlx.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *defaultSyncStateModel) SetDirectorySyncedAt(ctx context.Context, class string, at time.Time) error {
	const stmt = `
INSERT INTO sync_state (asset_class, directory_synced_at, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (asset_class) DO UPDATE SET
    directory_synced_at = GREATEST(COALESCE(sync_state.directory_synced_at, EXCLUDED.directory_synced_at), EXCLUDED.directory_synced_at),
    updated_at = NOW();`
	_, err := m.conn.ExecCtx(ctx, stmt, class, at)
	return err
}

// AdvanceHistoryThrough moves the history marker forward, never backward.
// Runs inside the caller's transaction when a session is supplied so the
// marker commits together with the bars it covers.
func (m *defaultSyncStateModel) AdvanceHistoryThrough(ctx context.Context, sess sqlx.Session, class string, through time.Time) error {
	const stmt = `
INSERT INTO sync_state (asset_class, history_synced_through, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (asset_class) DO UPDATE SET
    history_synced_through = GREATEST(COALESCE(sync_state.history_synced_through, EXCLUDED.history_synced_through), EXCLUDED.history_synced_through),
    updated_at = NOW();`
	exec := m.conn.ExecCtx
	if sess != nil {
		exec = sess.ExecCtx
	}
	_, err := exec(ctx, stmt, class, through)
	return err
}
