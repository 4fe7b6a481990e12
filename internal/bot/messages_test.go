package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/settings"
)

func TestResultMessage(t *testing.T) {
	next := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		res  campaign.Result
		want string
	}{
		{
			name: "completed",
			res:  campaign.Result{Outcome: campaign.OutcomeCompleted, Succeeded: 7, Remaining: 50},
			want: "✅ Успешно отправлено 7 откликов из 50.",
		},
		{
			name: "completed exhausted",
			res:  campaign.Result{Outcome: campaign.OutcomeCompleted, Succeeded: 3, Remaining: 50, VacanciesExhausted: true, Keywords: "go_lang"},
			want: "🔍❌ Упс... Вакансии по ключевым словам: *go\\_lang* закончились. Попробуйте изменить ключевые слова или повторить попытку позже.\n\n✅ Однако удалось успешно отправить 3 откликов из 50.",
		},
		{
			name: "no vacancies",
			res:  campaign.Result{Outcome: campaign.OutcomeNoVacancies, Keywords: "go"},
			want: "🔍❌ Упс... Вакансии по ключевым словам: *go* закончились, или ничего не нашлось. Попробуйте изменить ключевые слова или повторить попытку позже.",
		},
		{
			name: "daily limit",
			res:  campaign.Result{Outcome: campaign.OutcomeDailyLimitReached, NextAvailableAt: next},
			want: "⛔ На сегодня вы достигли лимита откликов 🙁\n\nСледующий отклик станет доступен: 02.05.2024 09:30 (UTC).",
		},
		{
			name: "cancelled",
			res:  campaign.Result{Outcome: campaign.OutcomeCancelled, Succeeded: 2, Remaining: 200},
			want: "⏹ Отклики остановлены.\n\nОтправлено 2 откликов из 200.",
		},
		{
			name: "failed",
			res:  campaign.Result{Outcome: campaign.OutcomeFailed, Err: errors.New("x")},
			want: textFailure,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := resultMessage(tc.res, time.UTC)
			assert.Equal(t, tc.want, m.Text)
			assert.True(t, hasData(m, cbMainMenu))
		})
	}
}

func TestMissingMessage(t *testing.T) {
	m := resultMessage(campaign.Result{
		Outcome: campaign.OutcomeMissingParameters,
		Missing: []campaign.Param{campaign.ParamResume, campaign.ParamCoverLetter},
	}, time.UTC)

	assert.Contains(t, m.Text, "📄 Установить резюме\n✉️ Обновить сопроводительное письмо")
	assert.NotContains(t, m.Text, "ключевые слова")
	assert.Equal(t, []string{cbSelectResume, cbSetCoverLetter, cbMainMenu}, []string{
		buttons(m)[0].Data, buttons(m)[1].Data, buttons(m)[2].Data,
	})

	tmplErr := campaign.ValidateTemplate("{x}")
	m = resultMessage(campaign.Result{
		Outcome: campaign.OutcomeMissingParameters,
		Missing: []campaign.Param{campaign.ParamCoverLetter},
		Err:     tmplErr,
	}, time.UTC)
	assert.Contains(t, m.Text, "{x}")
	assert.True(t, hasData(m, cbSetCoverLetter))
}

func TestProgressMessage(t *testing.T) {
	m := progressMessage(campaign.Progress{Stage: campaign.StageResponding, Succeeded: 4, Remaining: 46})
	assert.Equal(t, "⏳ Обработка вакансий...\nОткликов: 4 / 50", m.Text)
	assert.True(t, hasData(m, cbStopCampaign))

	m = progressMessage(campaign.Progress{Stage: campaign.StageStarted, Remaining: 50})
	assert.Equal(t, "⏳ Доступно 50 откликов. Начинаем откликаться...", m.Text)
}

func TestSettingsView(t *testing.T) {
	m := settingsView(settings.Settings{Keywords: "c++ *senior*"})
	assert.Contains(t, m.Text, "📄 *ID резюме*: ❌ Не установлено")
	assert.Contains(t, m.Text, "c++ \\*senior\\*")
	assert.Contains(t, m.Text, "💌 *Сопроводительное письмо*: ❌ Не установлено")
	assert.True(t, m.Markdown)
}
