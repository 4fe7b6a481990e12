package settings

import (
	"context"
	"time"

	"github.com/example/hhbot/internal/db"
)

type PostgresRepo struct{ db *db.DB }

func NewPostgresRepo(d *db.DB) *PostgresRepo { return &PostgresRepo{db: d} }

func (r *PostgresRepo) Get(ctx context.Context, chatID int64) (Settings, error) {
	var s Settings
	err := r.db.QueryRow(ctx, `
SELECT chat_id,resume_id,keywords,cover_letter_template,auth_token,subscription_level,updated_at
FROM user_settings
WHERE chat_id=$1`, chatID).
		Scan(&s.ChatID, &s.ResumeID, &s.Keywords, &s.CoverLetterTemplate, &s.AuthToken, &s.SubscriptionLevel, &s.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return Settings{}, ErrNotFound
		}
		return Settings{}, db.WrapNotFound(err)
	}
	return s, nil
}

func (r *PostgresRepo) Save(ctx context.Context, s Settings) error {
	return r.db.Exec(ctx, `
INSERT INTO user_settings(chat_id,resume_id,keywords,cover_letter_template,auth_token,subscription_level,updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (chat_id) DO UPDATE SET
	resume_id=EXCLUDED.resume_id,
	keywords=EXCLUDED.keywords,
	cover_letter_template=EXCLUDED.cover_letter_template,
	auth_token=EXCLUDED.auth_token,
	subscription_level=EXCLUDED.subscription_level,
	updated_at=EXCLUDED.updated_at`,
		s.ChatID, s.ResumeID, s.Keywords, s.CoverLetterTemplate, s.AuthToken, s.SubscriptionLevel, time.Now().UTC(),
	)
}

func (r *PostgresRepo) FindResumeOwner(ctx context.Context, resumeID string) (int64, error) {
	var chatID int64
	err := r.db.QueryRow(ctx, `SELECT chat_id FROM user_settings WHERE resume_id=$1 AND resume_id<>'' LIMIT 1`, resumeID).Scan(&chatID)
	if err != nil {
		if db.IsNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, db.WrapNotFound(err)
	}
	return chatID, nil
}
