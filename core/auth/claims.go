// Package auth holds the claims of the id tokens issued by the identity provider.
package auth

import (
	"sort"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
)

const (
	SigningMethod = "HS256"
	Audience      = "eclass"

	// PublicSessionID is sent to the backend for anonymous requests.
	PublicSessionID = "public"
)

var nowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	SessionID string   `json:"sid,omitempty"`
	Username  string   `json:"username,omitempty"`
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Locale    string   `json:"locale,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// NewClaims returns the claims of a token valid for ttl.
func NewClaims(issuer, subject string, ttl time.Duration) *Claims {
	now := nowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  Audience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
	}
}

// HasAnyRole reports whether the claims carry one of roles. No roles means any.
func (c Claims) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	owned := append([]string(nil), c.Roles...)
	sort.Strings(owned)
	for _, role := range roles {
		if i := sort.SearchStrings(owned, role); i < len(owned) && owned[i] == role {
			return true
		}
	}
	return false
}

// ExpiresIn returns the time left before the token expires.
func (c Claims) ExpiresIn() time.Duration {
	if c.ExpiresAt == 0 {
		return 0
	}
	return time.Unix(c.ExpiresAt, 0).Sub(nowFunc())
}

// Person returns the log identity of the claims.
func (c Claims) Person() core.Person {
	return core.Person{ID: c.Subject, Username: c.Username, Email: c.Email}
}

// SessionOrPublic returns the session ID sent to the backend.
func (c Claims) SessionOrPublic() string {
	if c.SessionID == "" {
		return PublicSessionID
	}
	return c.SessionID
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(SigningMethod), claims)
	ss, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// ParseToken verifies a signed token and returns its claims.
func ParseToken(tokenStr string, key []byte) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethod {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing token")
	}
	return claims, nil
}
