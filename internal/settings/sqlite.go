package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_settings (
	chat_id INTEGER PRIMARY KEY,
	resume_id TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '',
	cover_letter_template TEXT NOT NULL DEFAULT '',
	auth_token TEXT NOT NULL DEFAULT '',
	subscription_level TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_settings_resume_id ON user_settings(resume_id);
`

// SQLiteRepo keeps settings in a single SQLite file. Pass ":memory:" for an
// in-memory database.
type SQLiteRepo struct{ db *sql.DB }

func OpenSQLite(path string) (*SQLiteRepo, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// one connection so ":memory:" stays a single database
	d.SetMaxOpenConns(1)
	if _, err := d.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		d.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := d.Exec(sqliteSchema); err != nil {
		d.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteRepo{db: d}, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

func (r *SQLiteRepo) Get(ctx context.Context, chatID int64) (Settings, error) {
	var s Settings
	var updatedAt string
	err := r.db.QueryRowContext(ctx, `
SELECT chat_id,resume_id,keywords,cover_letter_template,auth_token,subscription_level,updated_at
FROM user_settings WHERE chat_id=?`, chatID).
		Scan(&s.ChatID, &s.ResumeID, &s.Keywords, &s.CoverLetterTemplate, &s.AuthToken, &s.SubscriptionLevel, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("sqlite: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Settings{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepo) Save(ctx context.Context, s Settings) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO user_settings(chat_id,resume_id,keywords,cover_letter_template,auth_token,subscription_level,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(chat_id) DO UPDATE SET
	resume_id=excluded.resume_id,
	keywords=excluded.keywords,
	cover_letter_template=excluded.cover_letter_template,
	auth_token=excluded.auth_token,
	subscription_level=excluded.subscription_level,
	updated_at=excluded.updated_at`,
		s.ChatID, s.ResumeID, s.Keywords, s.CoverLetterTemplate, s.AuthToken, s.SubscriptionLevel, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) FindResumeOwner(ctx context.Context, resumeID string) (int64, error) {
	var chatID int64
	err := r.db.QueryRowContext(ctx, `SELECT chat_id FROM user_settings WHERE resume_id=? AND resume_id<>'' LIMIT 1`, resumeID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: %w", err)
	}
	return chatID, nil
}

// DB exposes the underlying handle so other tables can share the file.
func (r *SQLiteRepo) DB() *sql.DB { return r.db }
