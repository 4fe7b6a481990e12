package runs

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS campaign_runs (
	id TEXT PRIMARY KEY,
	chat_id INTEGER NOT NULL,
	keywords TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	succeeded INTEGER NOT NULL DEFAULT 0,
	attempted INTEGER NOT NULL DEFAULT 0,
	remaining INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_campaign_runs_chat_started ON campaign_runs(chat_id, started_at);
`

// sqliteTime is fixed width so text order matches time order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepo stores runs next to the settings table in the same file.
type SQLiteRepo struct{ db *sql.DB }

func NewSQLiteRepo(ctx context.Context, d *sql.DB) (*SQLiteRepo, error) {
	if _, err := d.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("creating campaign_runs: %w", err)
	}
	return &SQLiteRepo{db: d}, nil
}

func (r *SQLiteRepo) Record(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO campaign_runs(id,chat_id,keywords,outcome,succeeded,attempted,remaining,last_error,started_at,finished_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO NOTHING`,
		run.ID, run.ChatID, run.Keywords, run.Outcome, run.Succeeded, run.Attempted, run.Remaining, run.LastError,
		run.StartedAt.UTC().Format(sqliteTime), run.FinishedAt.UTC().Format(sqliteTime))
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) ListByChat(ctx context.Context, chatID int64, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,chat_id,keywords,outcome,succeeded,attempted,remaining,last_error,started_at,finished_at
FROM campaign_runs
WHERE chat_id=?
ORDER BY started_at DESC
LIMIT ?`, chatID, normLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run               Run
			lastErr           sql.NullString
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.ChatID, &run.Keywords, &run.Outcome, &run.Succeeded, &run.Attempted, &run.Remaining, &lastErr, &started, &finished); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		if lastErr.Valid {
			run.LastError = &lastErr.String
		}
		if run.StartedAt, err = time.Parse(sqliteTime, started); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if run.FinishedAt, err = time.Parse(sqliteTime, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
