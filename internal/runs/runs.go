// Package runs keeps a history of finished campaign runs per chat.
package runs

import (
	"context"
	"time"

	"github.com/example/hhbot/internal/campaign"
)

// DefaultLimit bounds List when the caller passes a non-positive limit.
const DefaultLimit = 20

type Run struct {
	ID        string
	ChatID    int64
	Keywords  string
	Outcome   string
	Succeeded int
	Attempted int
	Remaining int
	LastError *string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// FromResult turns a finished campaign result into a history row.
func FromResult(chatID int64, res campaign.Result) Run {
	r := Run{
		ID:         res.RunID,
		ChatID:     chatID,
		Keywords:   res.Keywords,
		Outcome:    res.Outcome.String(),
		Succeeded:  res.Succeeded,
		Attempted:  res.Attempted,
		Remaining:  res.Remaining,
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
	}
	if res.Err != nil {
		msg := res.Err.Error()
		r.LastError = &msg
	}
	return r
}

// Repository stores finished runs.
type Repository interface {
	Record(ctx context.Context, r Run) error
	ListByChat(ctx context.Context, chatID int64, limit int) ([]Run, error)
}

func normLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
