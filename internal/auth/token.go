// Package auth verifies the bearer tokens minted by the campus identity
// service and turns them into actors.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/apperr"
	"github.com/kirinyoku/campusgo/internal/domain"
)

var ErrInvalidToken = apperr.E(apperr.Unauthorized, "invalid or expired token")

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify parses token and returns the actor it names.
//
// Returns:
//   - ErrInvalidToken if the signature, expiry, subject or role is bad.
func (v *Verifier) Verify(token string) (domain.Actor, error) {
	const op = "auth.Verifier.Verify"

	var c claims
	if _, err := v.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return domain.Actor{}, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return domain.Actor{}, fmt.Errorf("%s: %w: bad subject", op, ErrInvalidToken)
	}

	role, ok := domain.ParseRole(c.Role)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%s: %w: bad role %q", op, ErrInvalidToken, c.Role)
	}

	return domain.Actor{ID: id, Role: role}, nil
}

// Issuer signs tokens. The identity service owns login; this exists for
// local runs and tests.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(actor domain.Actor) (string, error) {
	if actor.ID == uuid.Nil {
		return "", errors.New("auth.Issuer.Issue: empty subject")
	}

	now := i.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: string(actor.Role),
	})

	s, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth.Issuer.Issue: %w", err)
	}

	return s, nil
}
