package headhunter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OAuth builds authorization links and exchanges authorization codes for
// user tokens.
type OAuth struct {
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	UserAgent    string

	HTTPClient *http.Client
}

// AuthorizeURL returns the link a user follows to grant access. state is
// echoed back to the redirect URI untouched.
func (o *OAuth) AuthorizeURL(state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {o.ClientID},
		"state":         {state},
	}
	if o.RedirectURI != "" {
		q.Set("redirect_uri", o.RedirectURI)
	}
	sep := "?"
	if strings.Contains(o.AuthURL, "?") {
		sep = "&"
	}
	return o.AuthURL + sep + q.Encode()
}

func (o *OAuth) ExchangeCode(ctx context.Context, code string) (Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {o.ClientID},
		"client_secret": {o.ClientSecret},
		"code":          {code},
	}
	if o.RedirectURI != "" {
		form.Set("redirect_uri", o.RedirectURI)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}

	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Token{}, fmt.Errorf("token exchange: read body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		var e struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &e)
		if e.Error != "" {
			return Token{}, fmt.Errorf("token exchange failed: %s: %s (status=%d)", e.Error, e.Description, res.StatusCode)
		}
		return Token{}, fmt.Errorf("token exchange failed (status=%d)", res.StatusCode)
	}
	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("token exchange: empty access_token")
	}
	return tok, nil
}
