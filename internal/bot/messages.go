package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/headhunter"
	"github.com/example/hhbot/internal/settings"
)

// Callback data values.
const (
	cbAboutUs        = "about_us"
	cbAuthorize      = "authorize"
	cbCheckAuth      = "check_authorization"
	cbStartCampaign  = "start_vacancy_responses"
	cbStopCampaign   = "stop_vacancy_responses"
	cbViewSettings   = "view_settings"
	cbSettings       = "settings"
	cbSelectResume   = "select_resume"
	cbResumePrefix   = "select_resume_"
	cbSetKeywords    = "set_keywords"
	cbSetCoverLetter = "set_cover_letter"
	cbMainMenu       = "main_menu"
)

const resumeURL = "https://hh.kz/resume/"

const (
	textWelcome = "🏠 Добро пожаловать в главное меню!\n\n" +
		"Для использования всех функций бота вам нужно авторизоваться на HH. " +
		"Пожалуйста, нажмите кнопку *🔑 Авторизоваться* ниже, чтобы получить доступ к вакансиям и начать отклики."
	textWelcomeAuthorized = "🏠 Добро пожаловать в главное меню! Используйте кнопки ниже для работы с ботом."
	textMainMenu          = "🏠 Главное меню! Используйте кнопки ниже для работы с ботом."
	textSettings          = "⚙️ Настройка отклика:"
	textUseButtons        = "Пожалуйста, используйте кнопки для взаимодействия с ботом."
	textFailure           = "❌ Извините, что-то пошло не так. Повторите попытку позже"
	textAuthorize         = "🔐 Для продолжения, пожалуйста, нажмите кнопку ниже, чтобы авторизоваться и вернитесь обратно."
	textNotAuthorized     = "❌ Вы еще не авторизованы. Пожалуйста, перейдите по ссылке и авторизуйтесь."
	textAuthorized        = "✅ Вы успешно авторизовались!"
	textNoResumes         = "Резюме не найдены."
	textResumeSelected    = "✅ Резюме успешно установлено для откликов.\n\n" + textSettings
	textKeywordsSaved     = "✅ Ключевые слова обновлены.\n\n" + textSettings
	textLetterSaved       = "✅ Сопроводительное письмо обновлено.\n\n" + textSettings
	textAlreadyRunning    = "⏳ Отклики уже отправляются. Дождитесь окончания или остановите рассылку."
	textStopping          = "⏹ Останавливаем отклики..."
	textNothingToStop     = "Нет активной рассылки."

	textAskKeywords = "🔍 Введите ключевые слова для поиска вакансий, на которые хотите откликаться (например, 'Python разработчик Казахстан').\n\n" +
		"📖 [Описание языка поисковых запросов](https://hh.kz/article/1175)"
	textAskCoverLetter = "Введите текст письма.\n\n" +
		"Используйте следующие шаблоны:\n" +
		"{company_name} — название компании\n" +
		"{vacancy_name} — название вакансии\n\n" +
		"Пример:\n" +
		"Ввод: 'Здравствуйте, {company_name}! Я заинтересован в вашей вакансии {vacancy_name}.'\n" +
		"Вывод: 'Здравствуйте, Google! Я заинтересован в вашей вакансии Разработчик.'"

	textAbout = "👋 Добро пожаловать в ANVHH!\n\n" +
		"Мы – бот, который помогает вам легко и быстро откликаться на вакансии в HeadHunter. " +
		"Воспользуйтесь нашими услугами для автоматизации процесса подачи откликов, экономьте ваше время и сосредоточьтесь на важных задачах!\n\n" +
		"🎯 *Основные преимущества:*\n" +
		"— 📄 Автоматический отклик на вакансии\n" +
		"— 🔍 Возможность задать ключевые слова для поиска вакансий\n" +
		"— 💌 Генерация персонализированных сопроводительных писем\n" +
		"— 🗓 Контроль лимита откликов и времени следующей возможности подать отклик\n" +
		"— 🔄 Автоматизация рутинных процессов и повышение шансов на трудоустройство\n\n" +
		"Мы ценим вашу конфиденциальность и сохраняем ваши данные исключительно для работы бота. " +
		"Мы не передаем ваши данные третьим лицам и не используем их в других целях.\n\n" +
		"Если у вас возникли вопросы или предложения, свяжитесь с нами через контакт: @scrscrq."
)

var (
	backToMainMenu = []Button{{Text: "🔙 Назад в главное меню", Data: cbMainMenu}}
	backToSettings = []Button{{Text: "🔙 Назад", Data: cbSettings}}
	stopButton     = []Button{{Text: "⏹ Остановить отклики", Data: cbStopCampaign}}
	missingButtons = map[campaign.Param]Button{
		campaign.ParamResume:      {Text: "📄 Установить резюме", Data: cbSelectResume},
		campaign.ParamKeywords:    {Text: "🔍 Обновить ключевые слова для поиска", Data: cbSetKeywords},
		campaign.ParamCoverLetter: {Text: "✉️ Обновить сопроводительное письмо", Data: cbSetCoverLetter},
	}
)

func mainMenu(authorized bool) [][]Button {
	if authorized {
		return [][]Button{
			{{Text: "🚀 Начать отклики на вакансии", Data: cbStartCampaign}},
			{{Text: "⚙️ Настройка отклика", Data: cbSettings}},
			{{Text: "ℹ️ О нас", Data: cbAboutUs}},
		}
	}
	return [][]Button{
		{{Text: "🔑 Авторизоваться", Data: cbAuthorize}},
		{{Text: "ℹ️ О нас", Data: cbAboutUs}},
	}
}

func settingsMenu() [][]Button {
	return [][]Button{
		{{Text: "📝 Выбрать резюме для откликов", Data: cbSelectResume}},
		{{Text: "🔍 Обновить ключевые слова для поиска вакансий", Data: cbSetKeywords}},
		{{Text: "💌 Обновить сопроводительное письмо", Data: cbSetCoverLetter}},
		{{Text: "🔧 Текущие настройки", Data: cbViewSettings}},
		backToMainMenu,
	}
}

func authorizeMessage(text, link string) Message {
	return Message{
		Text: text,
		Keyboard: [][]Button{
			{{Text: "🔗 Перейти к авторизации", URL: link}},
			{{Text: "✅ Авторизировались?", Data: cbCheckAuth}},
		},
	}
}

func settingsView(s settings.Settings) Message {
	resume := "❌ Не установлено"
	if s.ResumeID != "" {
		resume = escapeMarkdown(s.ResumeID)
	}
	keywords := "❌ Не установлены"
	if s.Keywords != "" {
		keywords = escapeMarkdown(s.Keywords)
	}
	letter := "❌ Не установлено"
	if s.CoverLetterTemplate != "" {
		letter = "✅ Установлено"
	}
	var b strings.Builder
	b.WriteString("🔧 *Текущие настройки для отклика*:\n\n")
	fmt.Fprintf(&b, "📄 *ID резюме*: %s\n", resume)
	fmt.Fprintf(&b, "🔍 *Ключевые слова*: %s\n", keywords)
	fmt.Fprintf(&b, "💌 *Сопроводительное письмо*: %s\n", letter)
	return Message{Text: b.String(), Keyboard: [][]Button{backToSettings}, Markdown: true}
}

func resumeList(resumes []headhunter.Resume) Message {
	var b strings.Builder
	b.WriteString("Ваши резюме:\n\n")
	kb := make([][]Button, 0, len(resumes)+1)
	for i, r := range resumes {
		fmt.Fprintf(&b, "%d. [%s](%s%s)\n", i+1, escapeLinkText(r.Title), resumeURL, r.ID)
		kb = append(kb, []Button{{Text: fmt.Sprintf("Выбрать резюме %d", i+1), Data: cbResumePrefix + r.ID}})
	}
	kb = append(kb, backToSettings)
	return Message{Text: b.String(), Keyboard: kb, Markdown: true, DisablePreview: true}
}

func progressMessage(p campaign.Progress) Message {
	switch p.Stage {
	case campaign.StageFetchingQuota:
		return Message{Text: "🔄 Получаем вакансии...", Keyboard: [][]Button{stopButton}}
	case campaign.StageStarted:
		return Message{
			Text:     fmt.Sprintf("⏳ Доступно %d откликов. Начинаем откликаться...", p.Remaining),
			Keyboard: [][]Button{stopButton},
		}
	default:
		return Message{
			Text:     fmt.Sprintf("⏳ Обработка вакансий...\nОткликов: %d / %d", p.Succeeded, p.Succeeded+p.Remaining),
			Keyboard: [][]Button{stopButton},
		}
	}
}

// resultMessage renders the final state of a run.
func resultMessage(res campaign.Result, loc *time.Location) Message {
	back := [][]Button{backToMainMenu}
	switch res.Outcome {
	case campaign.OutcomeMissingParameters:
		return missingMessage(res)
	case campaign.OutcomeDailyLimitReached:
		next := campaign.Quota{NextAvailableAt: res.NextAvailableAt}.Display(loc)
		return Message{
			Text:     fmt.Sprintf("⛔ На сегодня вы достигли лимита откликов 🙁\n\nСледующий отклик станет доступен: %s.", next),
			Keyboard: back,
		}
	case campaign.OutcomeCompleted:
		if res.VacanciesExhausted {
			return Message{
				Text: fmt.Sprintf("🔍❌ Упс... Вакансии по ключевым словам: *%s* закончились. "+
					"Попробуйте изменить ключевые слова или повторить попытку позже.\n\n"+
					"✅ Однако удалось успешно отправить %d откликов из %d.",
					escapeMarkdown(res.Keywords), res.Succeeded, res.Remaining),
				Keyboard: back,
				Markdown: true,
			}
		}
		return Message{
			Text:     fmt.Sprintf("✅ Успешно отправлено %d откликов из %d.", res.Succeeded, res.Remaining),
			Keyboard: back,
		}
	case campaign.OutcomeNoVacancies:
		return Message{
			Text: fmt.Sprintf("🔍❌ Упс... Вакансии по ключевым словам: *%s* закончились, или ничего не нашлось. "+
				"Попробуйте изменить ключевые слова или повторить попытку позже.", escapeMarkdown(res.Keywords)),
			Keyboard: back,
			Markdown: true,
		}
	case campaign.OutcomeCancelled:
		return Message{
			Text:     fmt.Sprintf("⏹ Отклики остановлены.\n\nОтправлено %d откликов из %d.", res.Succeeded, res.Remaining),
			Keyboard: back,
		}
	}
	return Message{Text: textFailure, Keyboard: back}
}

func missingMessage(res campaign.Result) Message {
	var lines []string
	var kb [][]Button
	for _, p := range res.Missing {
		btn := missingButtons[p]
		lines = append(lines, btn.Text)
		kb = append(kb, []Button{btn})
	}
	kb = append(kb, []Button{{Text: "🔙 Назад", Data: cbMainMenu}})

	var te *campaign.TemplateError
	if errors.As(res.Err, &te) {
		return Message{
			Text: "⚠️ В сопроводительном письме ошибка: " + te.Error() +
				"\n\nДопустимые шаблоны: {company_name}, {vacancy_name}. Для фигурных скобок используйте {{ и }}.",
			Keyboard: kb,
		}
	}
	return Message{
		Text: "⚠️ Для начала откликов необходимо задать все обязательные параметры:\n" +
			strings.Join(lines, "\n") +
			"\n\nПожалуйста, установите недостающие параметры с помощью кнопок ниже:",
		Keyboard: kb,
	}
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown escapes user text for Telegram's legacy Markdown mode.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

func escapeLinkText(s string) string {
	return escapeMarkdown(strings.NewReplacer("[", "(", "]", ")").Replace(s))
}

// AuthorizedMessage is sent to a chat once its hh account is linked.
func AuthorizedMessage() Message {
	return Message{Text: textAuthorized + "\n\n" + textMainMenu, Keyboard: mainMenu(true)}
}
