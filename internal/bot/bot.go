// Package bot implements the chat dialog: menus, settings entry,
// authorization and background vacancy campaigns. It talks to users through
// a Messenger and knows nothing about the concrete chat platform.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/hhbot/internal/cache"
	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/runs"
	"github.com/example/hhbot/internal/scheduler"
	"github.com/example/hhbot/internal/settings"
)

// DialogState is what the bot expects the next free-text message to be.
type DialogState int

const (
	StateIdle DialogState = iota
	StateKeywords
	StateCoverLetter
)

// finalTimeout bounds the last message of a campaign, which is sent even
// after the campaign was cancelled.
const finalTimeout = 10 * time.Second

type Config struct {
	Messenger Messenger
	Settings  SettingsStore
	Campaigns Campaigns
	Tokens    TokenOpener
	NewClient ClientFactory
	AuthLink  AuthLinker
	Dialogs   cache.Cache[DialogState]
	History   History // optional
	Campaign  campaign.Options
	Location  *time.Location
	Logger    *zap.Logger
}

type Bot struct {
	msg       Messenger
	settings  SettingsStore
	campaigns Campaigns
	tokens    TokenOpener
	newClient ClientFactory
	authLink  AuthLinker
	dialogs   cache.Cache[DialogState]
	history   History
	opts      campaign.Options
	loc       *time.Location
	log       *zap.Logger
}

func New(cfg Config) *Bot {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Bot{
		msg:       cfg.Messenger,
		settings:  cfg.Settings,
		campaigns: cfg.Campaigns,
		tokens:    cfg.Tokens,
		newClient: cfg.NewClient,
		authLink:  cfg.AuthLink,
		dialogs:   cfg.Dialogs,
		history:   cfg.History,
		opts:      cfg.Campaign,
		loc:       cfg.Location,
		log:       cfg.Logger.Named("bot"),
	}
}

// Handle processes one update. Errors are logged, reported to the user and
// returned.
func (b *Bot) Handle(ctx context.Context, ev Event) error {
	var err error
	switch {
	case ev.CallbackID != "":
		err = b.handleCallback(ctx, ev)
	case ev.Command == "start":
		err = b.handleStart(ctx, ev)
	case ev.Command != "":
		_, err = b.msg.Send(ctx, ev.ChatID, Message{Text: textUseButtons})
	default:
		err = b.handleText(ctx, ev)
	}
	if err != nil {
		b.log.Error("update failed",
			zap.Int64("chat_id", ev.ChatID),
			zap.String("data", ev.Data),
			zap.String("command", ev.Command),
			zap.Error(err))
		if _, sendErr := b.msg.Send(ctx, ev.ChatID, Message{Text: textFailure, Keyboard: [][]Button{backToMainMenu}}); sendErr != nil {
			b.log.Warn("failure notice not sent", zap.Int64("chat_id", ev.ChatID), zap.Error(sendErr))
		}
	}
	return err
}

func (b *Bot) handleStart(ctx context.Context, ev Event) error {
	s, err := b.settings.Get(ctx, ev.ChatID)
	if err != nil {
		return err
	}
	b.dialogs.Delete(ctx, dialogKey(ev.ChatID))

	m := Message{Text: textWelcome, Keyboard: mainMenu(false), Markdown: true}
	if s.Authorized() {
		m = Message{Text: textWelcomeAuthorized, Keyboard: mainMenu(true)}
	}
	_, err = b.msg.Send(ctx, ev.ChatID, m)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, ev Event) error {
	answer, err := b.dispatch(ctx, ev)
	if aerr := b.msg.Answer(ctx, ev.CallbackID, answer); aerr != nil {
		b.log.Debug("callback answer failed", zap.String("callback_id", ev.CallbackID), zap.Error(aerr))
	}
	return err
}

// dispatch routes a button press and returns the text of the callback
// notification, if any.
func (b *Bot) dispatch(ctx context.Context, ev Event) (string, error) {
	s, err := b.settings.Get(ctx, ev.ChatID)
	if err != nil {
		return "", err
	}
	// any button press abandons a pending text prompt
	b.dialogs.Delete(ctx, dialogKey(ev.ChatID))

	switch data := ev.Data; {
	case data == cbAboutUs:
		return "", b.edit(ctx, ev, Message{Text: textAbout, Keyboard: [][]Button{backToMainMenu}, Markdown: true, DisablePreview: true})
	case data == cbAuthorize:
		return "", b.promptAuthorization(ctx, ev, textAuthorize)
	case data == cbCheckAuth:
		return b.checkAuthorization(ctx, ev, s)
	case data == cbStartCampaign:
		return b.startCampaign(ctx, ev, s)
	case data == cbStopCampaign:
		if b.campaigns.Cancel(ev.ChatID) {
			return textStopping, nil
		}
		return textNothingToStop, nil
	case data == cbViewSettings:
		return "", b.edit(ctx, ev, settingsView(s))
	case data == cbSettings:
		return "", b.edit(ctx, ev, Message{Text: textSettings, Keyboard: settingsMenu()})
	case data == cbSelectResume:
		return "", b.listResumes(ctx, ev, s)
	case strings.HasPrefix(data, cbResumePrefix):
		return "", b.selectResume(ctx, ev, strings.TrimPrefix(data, cbResumePrefix))
	case data == cbSetKeywords:
		b.dialogs.Set(ctx, dialogKey(ev.ChatID), StateKeywords)
		return "", b.edit(ctx, ev, Message{Text: textAskKeywords, Keyboard: [][]Button{backToSettings}, Markdown: true, DisablePreview: true})
	case data == cbSetCoverLetter:
		b.dialogs.Set(ctx, dialogKey(ev.ChatID), StateCoverLetter)
		return "", b.edit(ctx, ev, Message{Text: textAskCoverLetter, Keyboard: [][]Button{backToSettings}})
	case data == cbMainMenu:
		return "", b.edit(ctx, ev, Message{Text: textMainMenu, Keyboard: mainMenu(s.Authorized())})
	default:
		b.log.Debug("unknown callback", zap.Int64("chat_id", ev.ChatID), zap.String("data", data))
		return "", nil
	}
}

func (b *Bot) handleText(ctx context.Context, ev Event) error {
	key := dialogKey(ev.ChatID)
	state, _ := b.dialogs.Get(ctx, key)

	switch state {
	case StateKeywords:
		keywords := strings.TrimSpace(ev.Text)
		if keywords == "" {
			_, err := b.msg.Send(ctx, ev.ChatID, Message{Text: textAskKeywords, Keyboard: [][]Button{backToSettings}, Markdown: true, DisablePreview: true})
			return err
		}
		if _, err := b.settings.Update(ctx, ev.ChatID, func(s *settings.Settings) { s.Keywords = keywords }); err != nil {
			return fmt.Errorf("save keywords: %w", err)
		}
		b.dialogs.Delete(ctx, key)
		_, err := b.msg.Send(ctx, ev.ChatID, Message{Text: textKeywordsSaved, Keyboard: settingsMenu()})
		return err

	case StateCoverLetter:
		if err := campaign.ValidateTemplate(ev.Text); err != nil || strings.TrimSpace(ev.Text) == "" {
			text := "⚠️ Письмо не может быть пустым. Введите текст письма ещё раз."
			if err != nil {
				text = "⚠️ В письме ошибка: " + err.Error() +
					"\n\nДопустимые шаблоны: {company_name}, {vacancy_name}. Для фигурных скобок используйте {{ и }}. Введите текст письма ещё раз."
			}
			_, err := b.msg.Send(ctx, ev.ChatID, Message{Text: text, Keyboard: [][]Button{backToSettings}})
			return err
		}
		if _, err := b.settings.Update(ctx, ev.ChatID, func(s *settings.Settings) { s.CoverLetterTemplate = ev.Text }); err != nil {
			return fmt.Errorf("save cover letter: %w", err)
		}
		b.dialogs.Delete(ctx, key)
		_, err := b.msg.Send(ctx, ev.ChatID, Message{Text: textLetterSaved, Keyboard: settingsMenu()})
		return err
	}

	_, err := b.msg.Send(ctx, ev.ChatID, Message{Text: textUseButtons})
	return err
}

func (b *Bot) promptAuthorization(ctx context.Context, ev Event, text string) error {
	link, err := b.authLink(ev.ChatID)
	if err != nil {
		return fmt.Errorf("authorization link: %w", err)
	}
	return b.edit(ctx, ev, authorizeMessage(text, link))
}

func (b *Bot) checkAuthorization(ctx context.Context, ev Event, s settings.Settings) (string, error) {
	if !s.Authorized() {
		var err error
		if s, err = b.settings.Reload(ctx, ev.ChatID); err != nil {
			return "", err
		}
	}
	if !s.Authorized() {
		return "", b.promptAuthorization(ctx, ev, textNotAuthorized)
	}
	return textAuthorized, b.edit(ctx, ev, Message{Text: textWelcomeAuthorized, Keyboard: mainMenu(true)})
}

func (b *Bot) listResumes(ctx context.Context, ev Event, s settings.Settings) error {
	if !s.Authorized() {
		return b.edit(ctx, ev, Message{Text: textWelcome, Keyboard: mainMenu(false), Markdown: true})
	}
	token, err := b.tokens.Open(s.AuthToken)
	if err != nil {
		return fmt.Errorf("open token: %w", err)
	}
	resumes, err := b.newClient(token).Resumes(ctx)
	if err != nil {
		return fmt.Errorf("list resumes: %w", err)
	}
	if len(resumes) == 0 {
		return b.edit(ctx, ev, Message{Text: textNoResumes, Keyboard: [][]Button{backToSettings}})
	}
	return b.edit(ctx, ev, resumeList(resumes))
}

func (b *Bot) selectResume(ctx context.Context, ev Event, resumeID string) error {
	if resumeID == "" {
		return b.edit(ctx, ev, Message{Text: textSettings, Keyboard: settingsMenu()})
	}
	if _, err := b.settings.Update(ctx, ev.ChatID, func(s *settings.Settings) { s.ResumeID = resumeID }); err != nil {
		return fmt.Errorf("save resume: %w", err)
	}
	return b.edit(ctx, ev, Message{Text: textResumeSelected, Keyboard: settingsMenu()})
}

func (b *Bot) startCampaign(ctx context.Context, ev Event, s settings.Settings) (string, error) {
	if !s.Authorized() {
		return "", b.edit(ctx, ev, Message{Text: textWelcome, Keyboard: mainMenu(false), Markdown: true})
	}
	chatID, messageID := ev.ChatID, ev.MessageID
	err := b.campaigns.Start(ctx, chatID, func(ctx context.Context) {
		b.runCampaign(ctx, chatID, messageID)
	})
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		return "", b.edit(ctx, ev, Message{Text: textAlreadyRunning, Keyboard: [][]Button{stopButton, backToMainMenu}})
	}
	return "", err
}

// runCampaign is the body of a background campaign. It reports progress by
// editing messageID and always finishes with the outcome message.
func (b *Bot) runCampaign(ctx context.Context, chatID int64, messageID int) {
	log := b.log.With(zap.Int64("chat_id", chatID))
	res := b.execute(ctx, chatID, messageID, log)

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalTimeout)
	defer cancel()
	if err := b.msg.Edit(finalCtx, chatID, messageID, resultMessage(res, b.loc)); err != nil {
		log.Warn("campaign result not delivered", zap.Stringer("outcome", res.Outcome), zap.Error(err))
	}
	if b.history != nil && res.RunID != "" {
		if err := b.history.Record(finalCtx, runs.FromResult(chatID, res)); err != nil {
			log.Warn("campaign run not recorded", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
}

func (b *Bot) execute(ctx context.Context, chatID int64, messageID int, log *zap.Logger) campaign.Result {
	s, err := b.settings.Get(ctx, chatID)
	if err != nil {
		log.Error("campaign settings unavailable", zap.Error(err))
		return campaign.Result{Outcome: campaign.OutcomeFailed, Err: err}
	}
	token, err := b.tokens.Open(s.AuthToken)
	if err != nil {
		log.Error("campaign token unreadable", zap.Error(err))
		return campaign.Result{Outcome: campaign.OutcomeFailed, Err: err}
	}

	reporter := campaign.NewAsyncReporter(ctx, func(ctx context.Context, p campaign.Progress) error {
		return b.msg.Edit(ctx, chatID, messageID, progressMessage(p))
	}, log)
	// the final message must not race a late progress edit
	defer reporter.Close()

	opts := b.opts
	opts.Logger = log.Named("campaign")
	params := campaign.Params{
		ResumeID:            s.ResumeID,
		Keywords:            s.Keywords,
		CoverLetterTemplate: s.CoverLetterTemplate,
	}
	return campaign.New(b.newClient(token), reporter, opts).Run(ctx, params)
}

func (b *Bot) edit(ctx context.Context, ev Event, m Message) error {
	return b.msg.Edit(ctx, ev.ChatID, ev.MessageID, m)
}

func dialogKey(chatID int64) string { return "dialog:" + strconv.FormatInt(chatID, 10) }
