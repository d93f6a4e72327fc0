package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	DefaultTokenPrefix = "ASG"
	tokenBodyLen       = 8
)

var ErrNoSecret = errors.New("token secret is required")

// TokenIssuer derives the rotating gate code.  The code deters casual
// replay at a physical kiosk; it is not an authentication boundary.
type TokenIssuer struct {
	slots  *SlotResolver
	hours  OperatingWindow
	secret []byte
	prefix string
}

func NewTokenIssuer(slots *SlotResolver, hours OperatingWindow, secret, prefix string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if prefix == "" {
		prefix = DefaultTokenPrefix
	}
	return &TokenIssuer{slots: slots, hours: hours, secret: []byte(secret), prefix: prefix}, nil
}

// TokenFor is pure: the same slot always yields the same token.  Hour and
// slot index stay readable in the token to ease support at the front desk.
func (i *TokenIssuer) TokenFor(s TimeSlot) string {
	mac := hmac.New(sha256.New, i.secret)
	fmt.Fprintf(mac, "%s%02dS%02d", s.Date, s.Hour, s.Index)
	body := base58.Encode(mac.Sum(nil))
	return fmt.Sprintf("%s%02d%02d%s", i.prefix, s.Hour, s.Index, body[:tokenBodyLen])
}

// IsValid accepts the current slot's token and the one just before it.
// Anything older is rejected.
func (i *TokenIssuer) IsValid(presented string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	cur := i.slots.Current()
	for _, s := range [...]TimeSlot{cur, i.slots.Previous(cur)} {
		if hmac.Equal([]byte(presented), []byte(i.TokenFor(s))) {
			return true
		}
	}
	return false
}

// CurrentToken returns "" outside operating hours.
func (i *TokenIssuer) CurrentToken() string {
	now := i.slots.clock.Now()
	if !i.hours.StatusAt(now).IsOpen {
		return ""
	}
	return i.TokenFor(i.slots.SlotOf(now))
}

// GateURL links the kiosk QR to the gate page with the current token
// attached.  Returns "" when the gym is closed.
func (i *TokenIssuer) GateURL(base string) string {
	tok := i.CurrentToken()
	if tok == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/#/gate?token=" + url.QueryEscape(tok)
}
