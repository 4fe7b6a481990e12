package runs

import (
	"context"

	"github.com/example/hhbot/internal/db"
)

type PostgresRepo struct{ db *db.DB }

func NewPostgresRepo(d *db.DB) *PostgresRepo { return &PostgresRepo{db: d} }

func (r *PostgresRepo) Record(ctx context.Context, run Run) error {
	return r.db.Exec(ctx, `
INSERT INTO campaign_runs(id,chat_id,keywords,outcome,succeeded,attempted,remaining,last_error,started_at,finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING`,
		run.ID, run.ChatID, run.Keywords, run.Outcome, run.Succeeded, run.Attempted, run.Remaining, run.LastError, run.StartedAt, run.FinishedAt,
	)
}

func (r *PostgresRepo) ListByChat(ctx context.Context, chatID int64, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,chat_id,keywords,outcome,succeeded,attempted,remaining,last_error,started_at,finished_at
FROM campaign_runs
WHERE chat_id=$1
ORDER BY started_at DESC
LIMIT $2`, chatID, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.ChatID, &run.Keywords, &run.Outcome, &run.Succeeded, &run.Attempted, &run.Remaining, &run.LastError, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
