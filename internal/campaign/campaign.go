// Package campaign runs one batch of vacancy applications for a user: it
// estimates the daily budget, pages through search results, filters them
// and submits personalised responses until a stop condition is reached.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/hhbot/internal/headhunter"
)

// API is the slice of the recruiting platform a campaign needs.
type API interface {
	SearchVacancies(ctx context.Context, keywords string, page int) ([]headhunter.Vacancy, error)
	Respond(ctx context.Context, vacancyID, resumeID, message string) (headhunter.ResponseStatus, error)
	Blacklist(ctx context.Context, vacancyID string) error
	RecentNegotiations(ctx context.Context, limit int) ([]headhunter.Negotiation, error)
}

type Outcome int

const (
	OutcomeMissingParameters Outcome = iota + 1
	OutcomeDailyLimitReached
	OutcomeCompleted
	OutcomeNoVacancies
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMissingParameters:
		return "missing_parameters"
	case OutcomeDailyLimitReached:
		return "daily_limit_reached"
	case OutcomeCompleted:
		return "completed"
	case OutcomeNoVacancies:
		return "no_vacancies"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes how a run ended.
type Result struct {
	RunID    string
	Outcome  Outcome
	Keywords string

	Succeeded int
	Attempted int
	// Remaining is the budget estimated at the start of the run.
	Remaining       int
	NextAvailableAt time.Time
	// VacanciesExhausted is set when search results ran out before the
	// budget did.
	VacanciesExhausted bool

	// Missing is set for OutcomeMissingParameters.
	Missing []Param
	Err     error

	StartedAt  time.Time
	FinishedAt time.Time
}

// ErrPagesUnavailable is reported when a results page could not be fetched
// after all retries.
var ErrPagesUnavailable = errors.New("campaign: search results unavailable")

type Options struct {
	// PageRetries is how many times a failed page fetch is retried.
	PageRetries int
	PageBackoff time.Duration
	MaxBackoff  time.Duration
	// ReportEvery successful responses trigger a progress update.
	ReportEvery int
	Logger      *zap.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) setDefaults() {
	if o.PageRetries < 0 {
		o.PageRetries = 0
	}
	if o.PageBackoff <= 0 {
		o.PageBackoff = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.ReportEvery <= 0 {
		o.ReportEvery = 4
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
}

type Campaign struct {
	api      API
	reporter Reporter
	opts     Options
}

func New(api API, reporter Reporter, opts Options) *Campaign {
	opts.setDefaults()
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Campaign{api: api, reporter: reporter, opts: opts}
}

// run holds the transient state of one execution.
type run struct {
	params Params
	log    *zap.Logger

	budget      int
	page        int
	succeeded   int
	attempted   int
	sinceReport int

	exhausted   bool
	limitHit    bool
	pagesFailed bool

	blacklisted map[string]struct{}
}

func (r *run) finished(ctx context.Context) bool {
	return r.exhausted || r.limitHit || r.pagesFailed ||
		r.succeeded >= r.budget || ctx.Err() != nil
}

// Run executes the campaign until the budget is spent, results run out, the
// platform reports the daily limit, or ctx is cancelled. It never panics.
func (c *Campaign) Run(ctx context.Context, p Params) (res Result) {
	res = Result{RunID: uuid.NewString(), Keywords: p.Keywords, StartedAt: c.opts.Now()}
	log := c.opts.Logger.With(zap.String("run_id", res.RunID))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("campaign aborted", zap.Any("panic", rec), zap.Stack("stack"))
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("campaign: panic: %v", rec)
		}
		res.FinishedAt = c.opts.Now()
	}()

	if err := p.Validate(); err != nil {
		res.Outcome = OutcomeMissingParameters
		res.Err = err
		var mp *MissingParamsError
		if errors.As(err, &mp) {
			res.Missing = mp.Missing
		} else {
			res.Missing = []Param{ParamCoverLetter}
		}
		log.Info("campaign not started", zap.Error(err))
		return res
	}

	c.reporter.Report(Progress{Stage: StageFetchingQuota})
	q := c.quota(ctx, log)
	res.Remaining = q.Remaining
	res.NextAvailableAt = q.NextAvailableAt
	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeCancelled
		res.Err = err
		log.Info("campaign cancelled before start")
		return res
	}
	if q.Remaining == 0 {
		res.Outcome = OutcomeDailyLimitReached
		log.Info("daily limit reached before start", zap.Time("next_available_at", q.NextAvailableAt))
		return res
	}

	log.Info("campaign started",
		zap.Int("budget", q.Remaining),
		zap.String("keywords", p.Keywords),
		zap.String("resume_id", p.ResumeID))
	c.reporter.Report(Progress{Stage: StageStarted, Remaining: q.Remaining})

	r := &run{
		params:      p,
		log:         log,
		budget:      q.Remaining,
		blacklisted: make(map[string]struct{}),
	}
	for !r.finished(ctx) {
		vacancies, ok := c.fetchPage(ctx, r)
		if !ok {
			r.pagesFailed = ctx.Err() == nil
			break
		}
		if len(vacancies) == 0 {
			r.exhausted = true
			break
		}
		for _, v := range vacancies {
			c.process(ctx, r, v)
			if r.finished(ctx) {
				break
			}
		}
		r.page++
	}

	res.Succeeded = r.succeeded
	res.Attempted = r.attempted
	res.VacanciesExhausted = r.exhausted

	switch {
	case ctx.Err() != nil:
		res.Outcome = OutcomeCancelled
		res.Err = ctx.Err()
	case r.succeeded > 0:
		res.Outcome = OutcomeCompleted
	case r.exhausted:
		res.Outcome = OutcomeNoVacancies
	case r.limitHit:
		res.Outcome = OutcomeDailyLimitReached
		next := c.quota(ctx, log)
		res.NextAvailableAt = next.NextAvailableAt
	default:
		res.Outcome = OutcomeFailed
		res.Err = ErrPagesUnavailable
	}

	log.Info("campaign finished",
		zap.Stringer("outcome", res.Outcome),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("attempted", res.Attempted),
		zap.Int("pages", r.page))
	return res
}

// quota treats a failed history fetch as an exhausted budget.
func (c *Campaign) quota(ctx context.Context, log *zap.Logger) Quota {
	now := c.opts.Now()
	history, err := c.api.RecentNegotiations(ctx, headhunter.MaxNegotiations)
	if err != nil {
		log.Warn("response history unavailable", zap.Error(err))
		return Quota{Remaining: 0, NextAvailableAt: now.UTC()}
	}
	return EstimateQuota(history, now)
}

func (c *Campaign) fetchPage(ctx context.Context, r *run) ([]headhunter.Vacancy, bool) {
	backoff := c.opts.PageBackoff
	for attempt := 0; ; attempt++ {
		vacancies, err := c.search(ctx, r.params.Keywords, r.page)
		if err == nil {
			return vacancies, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		r.log.Warn("search page failed",
			zap.Int("page", r.page),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt >= c.opts.PageRetries {
			return nil, false
		}
		if err := c.opts.Sleep(ctx, backoff); err != nil {
			return nil, false
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

func (c *Campaign) search(ctx context.Context, keywords string, page int) (vs []headhunter.Vacancy, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("search panic: %v", rec)
		}
	}()
	return c.api.SearchVacancies(ctx, keywords, page)
}

// process handles one search result. Failures are logged and never end the
// run.
func (c *Campaign) process(ctx context.Context, r *run, v headhunter.Vacancy) {
	log := r.log.With(zap.String("vacancy_id", v.ID))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("vacancy skipped after panic", zap.Any("panic", rec))
		}
	}()

	switch Classify(v) {
	case RejectTest:
		if _, done := r.blacklisted[v.ID]; done {
			return
		}
		r.blacklisted[v.ID] = struct{}{}
		if err := c.api.Blacklist(ctx, v.ID); err != nil {
			log.Warn("blacklist failed", zap.Error(err))
		}
		return
	case RejectRelated:
		return
	}

	r.attempted++
	letter, err := RenderLetter(r.params.CoverLetterTemplate, v.Employer.Name, v.Name)
	if err != nil {
		log.Warn("cover letter not rendered", zap.Error(err))
		return
	}

	status, err := c.api.Respond(ctx, v.ID, r.params.ResumeID, letter)
	if err != nil {
		log.Warn("response failed", zap.Error(err))
		return
	}
	switch status {
	case headhunter.StatusSuccess:
		r.succeeded++
		r.sinceReport++
	case headhunter.StatusTodayLimit:
		r.limitHit = true
		log.Info("platform reported daily limit", zap.Int("succeeded", r.succeeded))
	default:
		log.Debug("response not accepted", zap.String("status", string(status)))
	}

	if r.sinceReport >= c.opts.ReportEvery {
		r.sinceReport = 0
		c.reporter.Report(Progress{
			Stage:     StageResponding,
			Succeeded: r.succeeded,
			Attempted: r.attempted,
			Remaining: r.budget - r.succeeded,
		})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
