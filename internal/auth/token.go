// Package auth implements token-based authentication for the tmserver API.
//
// Tokens are HS256 JSON Web Tokens signed with the configured secret key.
// The original client sends them with the "JWT" authorization scheme, so
// the middleware accepts both "JWT <token>" and "Bearer <token>".
package auth

import (
	"fmt"
	"strconv"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// TokenIssuer creates and verifies access tokens.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewTokenIssuer creates a TokenIssuer signing with secret; issued tokens
// expire after expiration.
func NewTokenIssuer(secret string, expiration time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}
}

// Issue creates a signed token for the given user id.
func (ti *TokenIssuer) Issue(userID int64) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: ti.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := ti.now()
	claims := jwt.Claims{
		Subject:  strconv.FormatInt(userID, 10),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ti.expiration)),
		ID:       uuid.NewString(),
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry and returns the user id the token
// was issued for.
func (ti *TokenIssuer) Verify(token string) (int64, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return 0, fmt.Errorf("malformed token: %w", err)
	}
	var claims jwt.Claims
	if err := parsed.Claims(ti.secret, &claims); err != nil {
		return 0, fmt.Errorf("invalid token signature: %w", err)
	}
	if err := claims.Validate(jwt.Expected{Time: ti.now()}); err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject %q: %w", claims.Subject, err)
	}
	return userID, nil
}
