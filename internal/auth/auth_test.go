package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gamebattle/arena/internal/fault"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, email, name string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"name":  name,
		"exp":   expires.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	v := NewVerifier(testSecret, []string{"Admin@Example.com"})
	token := signToken(t, testSecret, "Voter@Example.com", "Voter", time.Now().Add(time.Hour))

	identity, err := v.Verify("Bearer " + token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if identity.Email != "voter@example.com" || identity.Name != "Voter" || identity.Admin {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestVerifyClassifiesAdmins(t *testing.T) {
	v := NewVerifier(testSecret, []string{"admin@example.com"})
	token := signToken(t, testSecret, "admin@example.com", "Admin", time.Now().Add(time.Hour))

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !identity.Admin {
		t.Fatalf("admin not recognised: %+v", identity)
	}
}

func TestVerifyRejectsMissingToken(t *testing.T) {
	v := NewVerifier(testSecret, nil)
	if _, err := v.Verify(""); !errors.Is(err, fault.ErrAuthRequired) {
		t.Fatalf("expected auth-required, got %v", err)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewVerifier(testSecret, nil)

	wrongKey := signToken(t, "other-secret", "voter@example.com", "Voter", time.Now().Add(time.Hour))
	expired := signToken(t, testSecret, "voter@example.com", "Voter", time.Now().Add(-time.Hour))
	noEmail := signToken(t, testSecret, "", "Voter", time.Now().Add(time.Hour))

	for name, token := range map[string]string{
		"wrong key": wrongKey,
		"expired":   expired,
		"no email":  noEmail,
		"garbage":   "not.a.token",
	} {
		if _, err := v.Verify(token); !errors.Is(err, fault.ErrAuthInvalid) {
			t.Fatalf("%s: expected auth-invalid, got %v", name, err)
		}
	}
}
