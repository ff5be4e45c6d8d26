// Package auth turns bearer tokens into principals. Tokens are HS256 JWTs
// carrying the user id, role and department of the caller.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"opsreport/pkg/domain"
)

const (
	defaultIssuer = "opsreport"
	defaultTTL    = 12 * time.Hour
)

// Claims represents JWT claims.
type Claims struct {
	UserID         int64       `json:"user_id"`
	Role           domain.Role `json:"role"`
	DepartmentID   *int64      `json:"department_id,omitempty"`
	DepartmentName string      `json:"department_name,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims into the engine's actor.
func (c *Claims) Principal() domain.Principal {
	return domain.Principal{
		ID:             c.UserID,
		Role:           c.Role,
		DepartmentID:   c.DepartmentID,
		DepartmentName: c.DepartmentName,
	}
}

// Authenticator issues and validates tokens with a shared secret.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithIssuer overrides the iss claim written and required.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) { a.issuer = issuer }
}

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithNow overrides the clock used for issuing and validating.
func WithNow(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator returns an authenticator for secret, which must be set.
func NewAuthenticator(secret string, opts ...Option) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	a := &Authenticator{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// IssueToken signs a token for p.
func (a *Authenticator) IssueToken(p domain.Principal) (string, error) {
	if !p.Role.Valid() {
		return "", fmt.Errorf("unknown role %q", p.Role)
	}
	now := a.now()
	claims := &Claims{
		UserID:         p.ID,
		Role:           p.Role,
		DepartmentID:   p.DepartmentID,
		DepartmentName: p.DepartmentName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   fmt.Sprintf("%d", p.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates token and returns its principal. Every failure
// matches domain.ErrUnauthenticated.
func (a *Authenticator) ParseToken(token string) (domain.Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return domain.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if !claims.Role.Valid() {
		return domain.Principal{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthenticated, claims.Role)
	}
	return claims.Principal(), nil
}

// Authenticate reads the bearer token of r.
func (a *Authenticator) Authenticate(r *http.Request) (domain.Principal, error) {
	token, err := ExtractToken(r.Header.Get("Authorization"))
	if err != nil {
		return domain.Principal{}, err
	}
	return a.ParseToken(token)
}

// ExtractToken extracts the token from an Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func ExtractToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", domain.ErrUnauthenticated)
	}
	parts := strings.Fields(header)
	switch {
	case len(parts) == 2 && strings.EqualFold(parts[0], "bearer"):
		return parts[1], nil
	case len(parts) == 1:
		return parts[0], nil
	}
	return "", fmt.Errorf("%w: invalid authorization header format", domain.ErrUnauthenticated)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}
