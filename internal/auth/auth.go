// Package auth verifies the signed identity tokens voters present and
// answers the admin question.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/games"
)

// Identity is the verified subject of a request.
type Identity struct {
	Email string
	Name  string
	Admin bool
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens and classifies admins by email.
type Verifier struct {
	secret []byte
	admins map[string]struct{}
}

// NewVerifier builds a verifier from the shared secret and the admin
// email list.
func NewVerifier(secret string, adminEmails []string) *Verifier {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		admins[games.NormalizeEmail(email)] = struct{}{}
	}
	return &Verifier{secret: []byte(secret), admins: admins}
}

// Verify parses and validates a bearer token. A missing token maps to
// fault.ErrAuthRequired, anything unverifiable to fault.ErrAuthInvalid.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, fault.ErrAuthRequired
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, errors.Wrap(fault.ErrAuthInvalid, err.Error())
	}

	email := games.NormalizeEmail(parsed.Email)
	if email == "" {
		return Identity{}, errors.Wrap(fault.ErrAuthInvalid, "token carries no email")
	}
	_, admin := v.admins[email]
	return Identity{Email: email, Name: parsed.Name, Admin: admin}, nil
}

// IsAdmin reports whether the email belongs to an administrator.
func (v *Verifier) IsAdmin(email string) bool {
	_, ok := v.admins[games.NormalizeEmail(email)]
	return ok
}
