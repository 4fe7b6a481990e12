// Package auth signs and encrypts the OAuth "state" parameter so the
// callback can tell which chat started the authorization.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/securecookie"
)

const stateName = "hh_oauth_state"

// DefaultStateTTL bounds how long an authorization link stays usable.
const DefaultStateTTL = time.Hour

var ErrInvalidState = errors.New("auth: invalid or expired state")

type state struct {
	ChatID int64 `json:"cid"`
	V      int   `json:"v"`
}

type StateCodec struct {
	sc *securecookie.SecureCookie
}

// NewStateCodec takes a 32 or 64 byte hash key and a 16/24/32 byte block
// key, the same pair securecookie uses for cookies.
func NewStateCodec(hashKey, blockKey []byte, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(ttl.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &StateCodec{sc: sc}
}

func (c *StateCodec) Encode(chatID int64) (string, error) {
	if chatID == 0 {
		return "", fmt.Errorf("auth: empty chat id")
	}
	s, err := c.sc.Encode(stateName, state{ChatID: chatID, V: 1})
	if err != nil {
		return "", fmt.Errorf("auth: encode state: %w", err)
	}
	return s, nil
}

func (c *StateCodec) Decode(value string) (int64, error) {
	var s state
	if err := c.sc.Decode(stateName, value, &s); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if s.ChatID == 0 || s.V != 1 {
		return 0, ErrInvalidState
	}
	return s.ChatID, nil
}
