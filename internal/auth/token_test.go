package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "u-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "u-42" {
		t.Fatalf("user id: %s", userID)
	}
}

func TestVerifySubjectFallback(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	userID, err := v.Verify(token)
	if err != nil || userID != "u-7" {
		t.Fatalf("got %q, %v", userID, err)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": signToken(t, "other-secret", jwt.MapClaims{"user_id": "u-1"}),
		"expired": signToken(t, testSecret, jwt.MapClaims{
			"user_id": "u-1",
			"exp":     time.Now().Add(-time.Hour).Unix(),
		}),
		"no user id": signToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}),
	}
	for name, token := range cases {
		if _, err := v.Verify(token); !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("%s: got %v, want ErrAuthenticationFailed", name, err)
		}
	}
}
