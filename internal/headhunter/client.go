// Package headhunter is a small client for the hh.ru job-board API: vacancy
// search, applications (negotiations), blacklisting and resumes.
package headhunter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the API on behalf of one user's bearer token.
type Client struct {
	hc        *http.Client
	baseURL   string
	token     string
	userAgent string
	log       *zap.Logger
}

type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Logger    *zap.Logger
}

func New(token string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		hc:        &http.Client{Timeout: opts.Timeout},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     token,
		userAgent: opts.UserAgent,
		log:       opts.Logger.Named("headhunter"),
	}
}

// SearchVacancies returns one page of search results. A non-200 answer is
// logged and reported as an empty page; only transport failures are errors.
func (c *Client) SearchVacancies(ctx context.Context, keywords string, page int) ([]Vacancy, error) {
	q := url.Values{
		"text":     {keywords},
		"per_page": {strconv.Itoa(PageSize)},
		"page":     {strconv.Itoa(page)},
	}
	status, body, err := c.do(ctx, http.MethodGet, "/vacancies", q, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		c.log.Warn("vacancy search failed", zap.Int("status", status), zap.Int("page", page))
		return nil, nil
	}
	var res struct {
		Items []Vacancy `json:"items"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode vacancies: %w", err)
	}
	return res.Items, nil
}

// Respond submits an application. Transport failures come back as
// StatusError together with the error.
func (c *Client) Respond(ctx context.Context, vacancyID, resumeID, message string) (ResponseStatus, error) {
	form := url.Values{
		"message":    {message},
		"resume_id":  {resumeID},
		"vacancy_id": {vacancyID},
	}
	status, body, err := c.do(ctx, http.MethodPost, "/negotiations", nil,
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return StatusError, err
	}
	switch status {
	case http.StatusCreated:
		return StatusSuccess, nil
	case http.StatusBadRequest:
		return StatusTodayLimit, nil
	case http.StatusForbidden:
		switch {
		case hasErrorValue(body, "test_required"):
			return StatusTestRequired, nil
		case hasErrorValue(body, "already_applied"):
			return StatusAlreadyApplied, nil
		}
		return StatusForbidden, nil
	default:
		c.log.Warn("respond failed", zap.String("vacancy_id", vacancyID), zap.Int("status", status))
		return StatusError, nil
	}
}

// Blacklist hides a vacancy from future searches.
func (c *Client) Blacklist(ctx context.Context, vacancyID string) error {
	status, _, err := c.do(ctx, http.MethodPut, "/vacancies/blacklisted/"+url.PathEscape(vacancyID), nil, "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("blacklist vacancy %s (status=%d)", vacancyID, status)
	}
	return nil
}

// RecentNegotiations returns up to limit applications, newest first.
func (c *Client) RecentNegotiations(ctx context.Context, limit int) ([]Negotiation, error) {
	q := url.Values{
		"per_page": {strconv.Itoa(limit)},
		"order_by": {"created_at"},
		"order":    {"desc"},
	}
	status, body, err := c.do(ctx, http.MethodGet, "/negotiations", q, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list negotiations (status=%d)", status)
	}
	var res struct {
		Items []Negotiation `json:"items"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode negotiations: %w", err)
	}
	return res.Items, nil
}

// Resumes lists the user's own resumes. A non-200 answer is logged and
// reported as an empty list.
func (c *Client) Resumes(ctx context.Context) ([]Resume, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/resumes/mine", nil, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		c.log.Warn("list resumes failed", zap.Int("status", status))
		return nil, nil
	}
	var res struct {
		Items []Resume `json:"items"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode resumes: %w", err)
	}
	return res.Items, nil
}

func hasErrorValue(body []byte, value string) bool {
	var r struct {
		Errors []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return false
	}
	for _, e := range r.Errors {
		if e.Value == value {
			return true
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.userAgent != "" {
		// hh rejects requests without a descriptive HH-User-Agent
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("HH-User-Agent", c.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	return res.StatusCode, b, nil
}
