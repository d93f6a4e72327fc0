package httpapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/americansport/gymgate/internal/gate/service"
)

const ticketIssuer = "gymgate"

// ticketTTL matches how long a scanned gate token stays acceptable: its own
// slot plus the grace slot.  Each step issues a fresh ticket.
const ticketTTL = 2 * service.RotationIntervalMinutes * time.Minute

var errBadTicket = errors.New("flow ticket is invalid")

// flowClaims carries a non-terminal Flow between HTTP calls.  The server
// keeps no flow state; every step re-reads the ledger, so a replayed
// ticket cannot write an event the ledger no longer allows, and the
// expiry bounds how long a replay is possible at all.
type flowClaims struct {
	Flow service.Flow `json:"flow"`
	jwt.RegisteredClaims
}

type ticketSigner struct {
	key []byte
}

func (t ticketSigner) issue(f service.Flow, now time.Time) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, flowClaims{
		Flow: f,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ticketIssuer,
			Subject:   f.MemberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ticketTTL)),
		},
	})
	signed, err := tok.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign flow ticket: %w", err)
	}
	return signed, nil
}

// parse verifies raw against the server clock now.
func (t ticketSigner) parse(raw string, now time.Time) (service.Flow, error) {
	var claims flowClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ticketIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return service.Flow{}, fmt.Errorf("%w: %v", errBadTicket, err)
	}
	if claims.Flow.MemberID == "" || claims.Subject != claims.Flow.MemberID {
		return service.Flow{}, errBadTicket
	}
	return claims.Flow, nil
}
