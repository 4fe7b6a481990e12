package campaign

import "github.com/example/hhbot/internal/headhunter"

// Verdict is the filter decision for one search result.
type Verdict int

const (
	Accept Verdict = iota
	// RejectTest vacancies require a questionnaire; they get blacklisted.
	RejectTest
	// RejectRelated vacancies were already interacted with.
	RejectRelated
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case RejectTest:
		return "reject_test"
	case RejectRelated:
		return "reject_related"
	}
	return "unknown"
}

func Classify(v headhunter.Vacancy) Verdict {
	if v.HasTest {
		return RejectTest
	}
	if len(v.Relations) > 0 {
		return RejectRelated
	}
	return Accept
}
