package bot

import (
	"context"

	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/headhunter"
	"github.com/example/hhbot/internal/runs"
	"github.com/example/hhbot/internal/scheduler"
	"github.com/example/hhbot/internal/settings"
)

// Button is an inline keyboard button. Exactly one of Data and URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

type Message struct {
	Text           string
	Keyboard       [][]Button
	Markdown       bool
	DisablePreview bool
}

// Event is one incoming update: a command, a button press or free text.
type Event struct {
	ChatID     int64
	MessageID  int
	CallbackID string
	Data       string
	Text       string
	Command    string
}

// Messenger is the chat transport.
type Messenger interface {
	Send(ctx context.Context, chatID int64, m Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, m Message) error
	Answer(ctx context.Context, callbackID, text string) error
}

type SettingsStore interface {
	Get(ctx context.Context, chatID int64) (settings.Settings, error)
	Reload(ctx context.Context, chatID int64) (settings.Settings, error)
	Update(ctx context.Context, chatID int64, fn func(*settings.Settings)) (settings.Settings, error)
}

type Campaigns interface {
	Start(parent context.Context, chatID int64, task scheduler.Task) error
	Cancel(chatID int64) bool
}

// History records finished campaign runs.
type History interface {
	Record(ctx context.Context, r runs.Run) error
}

type TokenOpener interface {
	Open(sealed string) (string, error)
}

// HH is what the bot needs from the job board for one user.
type HH interface {
	campaign.API
	Resumes(ctx context.Context) ([]headhunter.Resume, error)
}

// ClientFactory builds an API client for a decrypted access token.
type ClientFactory func(accessToken string) HH

// AuthLinker returns the authorization URL for a chat.
type AuthLinker func(chatID int64) (string, error)
