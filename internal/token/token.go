// Package token implements the bearer tokens that Basic Station sends as
// tc.key / cups.key when no client certificate is used.
package token

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
)

// Errors.
var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrInvalidToken    = errors.New("invalid bearer token")
	ErrSubjectMismatch = errors.New("token subject does not match router")
)

// Claims defines the token claims. The subject holds the router ID.
type Claims struct {
	jwt.RegisteredClaims
}

// New returns a HS256 signed token for the given router. A zero ttl issues
// a token without expiration.
func New(secret string, router structs.EUI64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  router.ID6(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token error")
	}
	return s, nil
}

// HeaderLine returns the token as HTTP header line, which is the format
// expected in the tc.key and cups.key files.
func HeaderLine(tok string) string {
	return fmt.Sprintf("Authorization: Bearer %s", tok)
}

// Authenticate validates the bearer token of the request and returns the
// claims.
func Authenticate(secret string, r *http.Request) (*Claims, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return nil, ErrMissingToken
	}

	parts := strings.SplitN(strings.TrimSpace(h), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	return &claims, nil
}

// Check validates that the subject, when set, matches the given router.
func (c *Claims) Check(router structs.EUI64) error {
	if c == nil || c.Subject == "" {
		return nil
	}

	var sub structs.EUI64
	if err := sub.UnmarshalText([]byte(c.Subject)); err != nil || sub != router {
		return errors.Wrapf(ErrSubjectMismatch, "subject %s, router %s", c.Subject, router)
	}
	return nil
}
