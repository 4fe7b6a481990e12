package headhunter

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PageSize is the fixed number of vacancies requested per search page.
	PageSize = 50
	// MaxNegotiations is the largest negotiation history requested at once.
	MaxNegotiations = 200
)

type Employer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Vacancy is one search result. Relations is non-empty when the user has
// already interacted with the vacancy (applied, got an invitation, ...).
type Vacancy struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Employer  Employer `json:"employer"`
	HasTest   bool     `json:"has_test"`
	Relations []string `json:"relations"`
	URL       string   `json:"alternate_url,omitempty"`
}

// Negotiation is an application record; only its creation time is used.
type Negotiation struct {
	ID        string    `json:"id"`
	CreatedAt Timestamp `json:"created_at"`
}

type Resume struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ResponseStatus is the outcome of submitting an application.
type ResponseStatus string

const (
	StatusSuccess        ResponseStatus = "success"
	StatusTodayLimit     ResponseStatus = "today_limit"
	StatusTestRequired   ResponseStatus = "test_required"
	StatusAlreadyApplied ResponseStatus = "already_applied"
	StatusForbidden      ResponseStatus = "forbidden"
	StatusError          ResponseStatus = "error"
)

// Token is the OAuth token pair returned by the token endpoint.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Timestamp accepts hh's "2006-01-02T15:04:05-0700" as well as RFC 3339.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("headhunter: unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Time.Format("2006-01-02T15:04:05-0700") + `"`), nil
}
