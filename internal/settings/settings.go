// Package settings persists per-chat bot settings: the selected resume,
// search keywords, cover letter template and the sealed hh token.
package settings

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("settings: not found")

// Settings is one chat's record. Empty strings mean "not set".
type Settings struct {
	ChatID              int64     `json:"chat_id"`
	ResumeID            string    `json:"resume_id,omitempty"`
	Keywords            string    `json:"keywords,omitempty"`
	CoverLetterTemplate string    `json:"cover_letter_template,omitempty"`
	AuthToken           string    `json:"auth_token,omitempty"` // sealed
	SubscriptionLevel   string    `json:"subscription_level,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (s Settings) Authorized() bool { return s.AuthToken != "" }

// Repository is the durable backend behind Store.
type Repository interface {
	Get(ctx context.Context, chatID int64) (Settings, error)
	Save(ctx context.Context, s Settings) error
	FindResumeOwner(ctx context.Context, resumeID string) (int64, error)
}
