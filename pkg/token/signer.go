package token

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/apierr"
)

const issuer = "luna-hub"

// Signer issues and validates HS256 access tokens shared by parent sessions
// and delegated specialist tokens.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer. The secret must be at least 32 bytes.
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Signer{key: []byte(secret)}, nil
}

// Issue signs a new access token for claims, valid for ttl, returning the
// serialized JWT and its registered fields.
func (s *Signer) Issue(claims Claims, ttl time.Duration) (IssuedToken, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now().UTC()
	expiry := now.Add(ttl)
	jti := uuid.New().String()

	registered := jwt.Claims{
		Subject:   claims.Subject,
		Issuer:    issuer,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(expiry),
		NotBefore: jwt.NewNumericDate(now),
	}

	raw, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("signing token: %w", err)
	}

	return IssuedToken{Raw: raw, JTI: jti, IssuedAt: now, ExpiresAt: expiry}, nil
}

// Validate verifies signature, algorithm, and expiry, returning the custom
// claims and the registered jti/exp. Any failure collapses to
// InvalidToken without leaking the underlying reason, except expiry which is
// reported distinctly as ExpiredToken so clients know to refresh.
func (s *Signer) Validate(raw string) (Claims, jwt.Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, jwt.Claims{}, apierr.New(apierr.CodeInvalidToken, "invalid token")
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(s.key, &registered, &custom); err != nil {
		return Claims{}, jwt.Claims{}, apierr.New(apierr.CodeInvalidToken, "invalid token")
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{Issuer: issuer}, time.Second); err != nil {
		if err == jwt.ErrExpired {
			return Claims{}, jwt.Claims{}, apierr.New(apierr.CodeExpiredToken, "token expired")
		}
		return Claims{}, jwt.Claims{}, apierr.New(apierr.CodeInvalidToken, "invalid token")
	}

	return custom, registered, nil
}
