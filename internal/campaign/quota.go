package campaign

import (
	"sort"
	"time"

	"github.com/example/hhbot/internal/headhunter"
)

// MaxDailyResponses is the platform's rolling 24-hour application limit.
const MaxDailyResponses = 200

const quotaWindow = 24 * time.Hour

// Quota is the response budget left for the current 24-hour window.
type Quota struct {
	Remaining       int
	NextAvailableAt time.Time
}

// EstimateQuota counts the applications created within 24 hours before now.
// With the budget spent, NextAvailableAt is the moment the oldest counted
// application leaves the window; otherwise it is now.
func EstimateQuota(history []headhunter.Negotiation, now time.Time) Quota {
	now = now.UTC()
	from := now.Add(-quotaWindow)

	var recent []time.Time
	for _, n := range history {
		t := n.CreatedAt.Time
		if t.Before(from) || t.After(now) {
			continue
		}
		recent = append(recent, t)
	}

	q := Quota{Remaining: max(0, MaxDailyResponses-len(recent)), NextAvailableAt: now}
	if q.Remaining == 0 {
		sort.Slice(recent, func(i, j int) bool { return recent[i].After(recent[j]) })
		q.NextAvailableAt = recent[MaxDailyResponses-1].Add(quotaWindow)
	}
	return q
}

// Display formats NextAvailableAt for users, e.g. "01.05.2024 17:00 (+05)".
func (q Quota) Display(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return q.NextAvailableAt.In(loc).Format("02.01.2006 15:04 (MST)")
}
