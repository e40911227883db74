package driven

import "github.com/custodia-labs/sercha-extractor/internal/core/domain"

// AuthAdapter handles token cryptographic operations for the ingest API.
type AuthAdapter interface {
	// GenerateToken signs claims into a bearer token.
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken validates a bearer token and returns its claims.
	ParseToken(token string) (*domain.TokenClaims, error)
}
