package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/example/hhbot/internal/cache"
	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/headhunter"
	"github.com/example/hhbot/internal/runs"
	"github.com/example/hhbot/internal/scheduler"
	"github.com/example/hhbot/internal/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const chat = int64(1001)

type sent struct {
	MessageID int
	Message
}

type fakeMessenger struct {
	mu      sync.Mutex
	sends   []Message
	edits   []sent
	answers []string
}

func (f *fakeMessenger) Send(_ context.Context, _ int64, m Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, m)
	return len(f.sends), nil
}

func (f *fakeMessenger) Edit(_ context.Context, _ int64, messageID int, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{MessageID: messageID, Message: m})
	return nil
}

func (f *fakeMessenger) Answer(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeMessenger) lastSend(t *testing.T) Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sends)
	return f.sends[len(f.sends)-1]
}

func (f *fakeMessenger) lastEdit(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.edits)
	return f.edits[len(f.edits)-1]
}

func (f *fakeMessenger) editTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.edits))
	for i, e := range f.edits {
		out[i] = e.Text
	}
	return out
}

type memStore struct {
	mu      sync.Mutex
	cached  map[int64]settings.Settings
	durable map[int64]settings.Settings
	getErr  error
}

func newMemStore(s settings.Settings) *memStore {
	return &memStore{
		cached:  map[int64]settings.Settings{s.ChatID: s},
		durable: map[int64]settings.Settings{s.ChatID: s},
	}
}

func (m *memStore) Get(_ context.Context, chatID int64) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return settings.Settings{}, m.getErr
	}
	if s, ok := m.cached[chatID]; ok {
		return s, nil
	}
	return settings.Settings{ChatID: chatID}, nil
}

func (m *memStore) Reload(_ context.Context, chatID int64) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.durable[chatID]
	m.cached[chatID] = s
	return s, nil
}

func (m *memStore) Update(_ context.Context, chatID int64, fn func(*settings.Settings)) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.durable[chatID]
	s.ChatID = chatID
	fn(&s)
	m.durable[chatID] = s
	m.cached[chatID] = s
	return s, nil
}

func (m *memStore) get(chatID int64) settings.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durable[chatID]
}

type plainTokens struct{}

func (plainTokens) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("malformed")
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

type fakeHH struct {
	token     string
	resumes   []headhunter.Resume
	pages     [][]headhunter.Vacancy
	block     chan struct{}
	responded int
	mu        sync.Mutex
}

func (f *fakeHH) SearchVacancies(ctx context.Context, _ string, page int) ([]headhunter.Vacancy, error) {
	if f.block != nil {
		close(f.block)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if page >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page], nil
}

func (f *fakeHH) Respond(context.Context, string, string, string) (headhunter.ResponseStatus, error) {
	f.mu.Lock()
	f.responded++
	f.mu.Unlock()
	return headhunter.StatusSuccess, nil
}

func (f *fakeHH) Blacklist(context.Context, string) error { return nil }

func (f *fakeHH) RecentNegotiations(context.Context, int) ([]headhunter.Negotiation, error) {
	return nil, nil
}

func (f *fakeHH) Resumes(context.Context) ([]headhunter.Resume, error) { return f.resumes, nil }

type memHistory struct {
	mu   sync.Mutex
	runs []runs.Run
}

func (m *memHistory) Record(_ context.Context, r runs.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *memHistory) recorded() []runs.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]runs.Run(nil), m.runs...)
}

type harness struct {
	bot     *Bot
	msg     *fakeMessenger
	store   *memStore
	sched   *scheduler.Scheduler
	hh      *fakeHH
	history *memHistory
}

var ready = settings.Settings{
	ChatID:              chat,
	ResumeID:            "r1",
	Keywords:            "golang",
	CoverLetterTemplate: "Hi {company_name}",
	AuthToken:           "sealed:tok",
}

func newHarness(t *testing.T, s settings.Settings) *harness {
	t.Helper()
	h := &harness{
		msg:     &fakeMessenger{},
		store:   newMemStore(s),
		sched:   scheduler.New(nil),
		hh:      &fakeHH{},
		history: &memHistory{},
	}
	dialogs := cache.NewMemory[DialogState](time.Hour)
	t.Cleanup(func() {
		h.sched.Wait()
		_ = dialogs.Close()
	})
	h.bot = New(Config{
		Messenger: h.msg,
		Settings:  h.store,
		Campaigns: h.sched,
		Tokens:    plainTokens{},
		NewClient: func(token string) HH {
			h.hh.token = token
			return h.hh
		},
		AuthLink: func(chatID int64) (string, error) {
			return "https://hh.example/oauth?state=abc", nil
		},
		Dialogs:  dialogs,
		History:  h.history,
		Campaign: campaign.Options{PageBackoff: time.Millisecond},
	})
	return h
}

func press(data string) Event {
	return Event{ChatID: chat, MessageID: 77, CallbackID: "cb-" + data, Data: data}
}

func say(text string) Event { return Event{ChatID: chat, Text: text} }

func buttons(m Message) []Button {
	var out []Button
	for _, row := range m.Keyboard {
		out = append(out, row...)
	}
	return out
}

func hasData(m Message, data string) bool {
	for _, b := range buttons(m) {
		if b.Data == data {
			return true
		}
	}
	return false
}

func TestStart_Unauthorized(t *testing.T) {
	h := newHarness(t, settings.Settings{ChatID: chat})
	require.NoError(t, h.bot.Handle(context.Background(), Event{ChatID: chat, Command: "start"}))

	m := h.msg.lastSend(t)
	assert.Equal(t, textWelcome, m.Text)
	assert.True(t, hasData(m, cbAuthorize))
	assert.False(t, hasData(m, cbStartCampaign))
}

func TestStart_Authorized(t *testing.T) {
	h := newHarness(t, ready)
	require.NoError(t, h.bot.Handle(context.Background(), Event{ChatID: chat, Command: "start"}))

	m := h.msg.lastSend(t)
	assert.True(t, hasData(m, cbStartCampaign))
	assert.True(t, hasData(m, cbSettings))
}

func TestCallbacksAreAnswered(t *testing.T) {
	h := newHarness(t, ready)
	for _, data := range []string{cbAboutUs, cbSettings, cbViewSettings, cbMainMenu, "no_such_button"} {
		require.NoError(t, h.bot.Handle(context.Background(), press(data)))
	}
	assert.Len(t, h.msg.answers, 5)
	assert.Len(t, h.msg.edits, 4)

	view := h.msg.edits[2]
	assert.Equal(t, 77, view.MessageID)
	assert.Contains(t, view.Text, "r1")
	assert.Contains(t, view.Text, "✅ Установлено")
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t, settings.Settings{ChatID: chat})
	require.NoError(t, h.bot.Handle(context.Background(), press(cbAuthorize)))

	m := h.msg.lastEdit(t)
	assert.Equal(t, textAuthorize, m.Text)
	assert.Equal(t, "https://hh.example/oauth?state=abc", buttons(m.Message)[0].URL)
	assert.True(t, hasData(m.Message, cbCheckAuth))
}

func TestCheckAuthorization(t *testing.T) {
	h := newHarness(t, settings.Settings{ChatID: chat})

	require.NoError(t, h.bot.Handle(context.Background(), press(cbCheckAuth)))
	assert.Equal(t, textNotAuthorized, h.msg.lastEdit(t).Text)

	// the web callback stored a token behind the cache's back
	h.store.mu.Lock()
	h.store.durable[chat] = settings.Settings{ChatID: chat, AuthToken: "sealed:tok"}
	h.store.mu.Unlock()

	require.NoError(t, h.bot.Handle(context.Background(), press(cbCheckAuth)))
	assert.Equal(t, textWelcomeAuthorized, h.msg.lastEdit(t).Text)
	assert.Equal(t, textAuthorized, h.msg.answers[len(h.msg.answers)-1])
}

func TestKeywordsDialog(t *testing.T) {
	h := newHarness(t, ready)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, press(cbSetKeywords)))
	require.NoError(t, h.bot.Handle(ctx, say("  Go разработчик  ")))
	assert.Equal(t, "Go разработчик", h.store.get(chat).Keywords)
	assert.Equal(t, textKeywordsSaved, h.msg.lastSend(t).Text)

	require.NoError(t, h.bot.Handle(ctx, say("more text")))
	assert.Equal(t, textUseButtons, h.msg.lastSend(t).Text)
	assert.Equal(t, "Go разработчик", h.store.get(chat).Keywords)
}

func TestCoverLetterDialog(t *testing.T) {
	h := newHarness(t, ready)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, press(cbSetCoverLetter)))
	require.NoError(t, h.bot.Handle(ctx, say("Hello {name}")))
	assert.Contains(t, h.msg.lastSend(t).Text, "{name}")
	assert.Equal(t, ready.CoverLetterTemplate, h.store.get(chat).CoverLetterTemplate)

	require.NoError(t, h.bot.Handle(ctx, say(`Hello {company_name}!\nRe: {vacancy_name}`)))
	assert.Equal(t, `Hello {company_name}!\nRe: {vacancy_name}`, h.store.get(chat).CoverLetterTemplate)
	assert.Equal(t, textLetterSaved, h.msg.lastSend(t).Text)
}

func TestButtonPressAbandonsPrompt(t *testing.T) {
	h := newHarness(t, ready)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, press(cbSetKeywords)))
	require.NoError(t, h.bot.Handle(ctx, press(cbMainMenu)))
	require.NoError(t, h.bot.Handle(ctx, say("rust")))
	assert.Equal(t, "golang", h.store.get(chat).Keywords)
}

func TestResumeSelection(t *testing.T) {
	h := newHarness(t, ready)
	h.hh.resumes = []headhunter.Resume{{ID: "r7", Title: "Go [senior]"}, {ID: "r8", Title: "SRE"}}
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, press(cbSelectResume)))
	m := h.msg.lastEdit(t)
	assert.Equal(t, "tok", h.hh.token)
	assert.Contains(t, m.Text, "1. [Go (senior)](https://hh.kz/resume/r7)")
	assert.True(t, hasData(m.Message, "select_resume_r8"))

	require.NoError(t, h.bot.Handle(ctx, press("select_resume_r8")))
	assert.Equal(t, "r8", h.store.get(chat).ResumeID)
	assert.Equal(t, textResumeSelected, h.msg.lastEdit(t).Text)
}

func TestResumeSelection_Empty(t *testing.T) {
	h := newHarness(t, ready)
	require.NoError(t, h.bot.Handle(context.Background(), press(cbSelectResume)))
	assert.Equal(t, textNoResumes, h.msg.lastEdit(t).Text)
}

func TestCampaign_Completed(t *testing.T) {
	h := newHarness(t, ready)
	h.hh.pages = [][]headhunter.Vacancy{{
		{ID: "v1", Name: "Go", Employer: headhunter.Employer{Name: "Acme"}},
		{ID: "v2", Name: "Go", Employer: headhunter.Employer{Name: "Acme"}},
	}}

	require.NoError(t, h.bot.Handle(context.Background(), press(cbStartCampaign)))
	h.sched.Wait()

	last := h.msg.lastEdit(t)
	assert.Equal(t, 77, last.MessageID)
	assert.Contains(t, last.Text, "откликов из 200")
	assert.Contains(t, last.Text, "2")
	assert.True(t, hasData(last.Message, cbMainMenu))
	assert.Equal(t, 2, h.hh.responded)

	recorded := h.history.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, chat, recorded[0].ChatID)
	assert.Equal(t, "completed", recorded[0].Outcome)
	assert.Equal(t, 2, recorded[0].Succeeded)
	assert.Equal(t, "golang", recorded[0].Keywords)
}

func TestCampaign_MissingParameters(t *testing.T) {
	s := ready
	s.Keywords = ""
	h := newHarness(t, s)

	require.NoError(t, h.bot.Handle(context.Background(), press(cbStartCampaign)))
	h.sched.Wait()

	last := h.msg.lastEdit(t)
	assert.Contains(t, last.Text, "⚠️ Для начала откликов")
	assert.True(t, hasData(last.Message, cbSetKeywords))
	assert.False(t, hasData(last.Message, cbSelectResume))
	assert.Zero(t, h.hh.responded)
}

func TestCampaign_UnreadableToken(t *testing.T) {
	s := ready
	s.AuthToken = "garbage"
	h := newHarness(t, s)

	require.NoError(t, h.bot.Handle(context.Background(), press(cbStartCampaign)))
	h.sched.Wait()
	assert.Equal(t, textFailure, h.msg.lastEdit(t).Text)
	assert.Empty(t, h.history.recorded())
}

func TestCampaign_RejectsSecondStartAndStops(t *testing.T) {
	h := newHarness(t, ready)
	h.hh.block = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, press(cbStartCampaign)))
	<-h.hh.block

	require.NoError(t, h.bot.Handle(ctx, press(cbStartCampaign)))
	assert.Contains(t, h.msg.editTexts(), textAlreadyRunning)

	require.NoError(t, h.bot.Handle(ctx, press(cbStopCampaign)))
	h.sched.Wait()

	assert.Contains(t, h.msg.lastEdit(t).Text, "⏹ Отклики остановлены")
	assert.Contains(t, h.msg.answers, textStopping)

	require.NoError(t, h.bot.Handle(ctx, press(cbStopCampaign)))
	assert.Equal(t, textNothingToStop, h.msg.answers[len(h.msg.answers)-1])
}

func TestHandle_StoreFailure(t *testing.T) {
	h := newHarness(t, ready)
	h.store.getErr = errors.New("db down")

	err := h.bot.Handle(context.Background(), press(cbSettings))
	assert.Error(t, err)
	assert.Equal(t, textFailure, h.msg.lastSend(t).Text)
	assert.Len(t, h.msg.answers, 1)
}
