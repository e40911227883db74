package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

func TestAdapter_RoundTrip(t *testing.T) {
	adapter := NewAdapter("test-secret")
	now := time.Now()

	token, err := adapter.GenerateToken(&domain.TokenClaims{
		Subject:   "platform",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Subject != "platform" {
		t.Errorf("expected subject platform, got %q", claims.Subject)
	}
	if claims.ExpiresAt != now.Add(time.Hour).Unix() {
		t.Errorf("unexpected expiry %d", claims.ExpiresAt)
	}
}

func TestAdapter_GenerateRequiresSubject(t *testing.T) {
	_, err := NewAdapter("s").GenerateToken(&domain.TokenClaims{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAdapter_ParseExpired(t *testing.T) {
	adapter := NewAdapter("test-secret")
	past := time.Now().Add(-2 * time.Hour)

	token, _ := adapter.GenerateToken(&domain.TokenClaims{
		Subject:   "platform",
		IssuedAt:  past.Unix(),
		ExpiresAt: past.Add(time.Hour).Unix(),
	})

	if _, err := adapter.ParseToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAdapter_ParseRejects(t *testing.T) {
	adapter := NewAdapter("test-secret")
	good, _ := adapter.GenerateToken(&domain.TokenClaims{Subject: "platform", IssuedAt: time.Now().Unix()})

	otherSecret, _ := NewAdapter("other-secret").GenerateToken(&domain.TokenClaims{Subject: "platform", IssuedAt: time.Now().Unix()})

	foreignIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "platform",
		Issuer:  "someone-else",
	}).SignedString([]byte("test-secret"))

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: "sercha-extractor",
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", otherSecret},
		{"foreign issuer", foreignIssuer},
		{"missing subject", noSubject},
		{"truncated", good[:len(good)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := adapter.ParseToken(tt.token); !errors.Is(err, domain.ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}
