package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"history-ranking-service/internal/domain"
)

// DefaultCookieName is the cookie the web client stores its session token in.
const DefaultCookieName = "auth-token"

var (
	errMissingAccount = errors.New("token carries no account id")
	// ErrNoSecret is returned by Verify when the verifier has no signing key configured.
	ErrNoSecret = errors.New("no token secret configured")
)

// Claims is the payload of a session token issued by the web client.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Handle string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 session tokens and extracts the account they belong to.
type Verifier struct {
	secret     []byte
	cookieName string
}

func NewVerifier(secret, cookieName string) *Verifier {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Verifier{secret: []byte(secret), cookieName: cookieName}
}

// Verify parses token and returns the account id in its claims.
// Without a secret every token is rejected.
func (v *Verifier) Verify(token string) (domain.AccountID, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("parse token: %w", jwt.ErrTokenInvalidClaims)
	}
	if claims.UserID == "" {
		return "", errMissingAccount
	}
	return domain.AccountID(claims.UserID), nil
}

// Enabled reports whether tokens can be verified at all.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// TokenFromRequest reads the session token from the cookie, then from a bearer header.
func (v *Verifier) TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(v.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

type contextKey struct{}

// WithViewer stores the caller's account id in ctx.
func WithViewer(ctx context.Context, id domain.AccountID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ViewerFrom returns the caller's account id, or nil for anonymous requests.
func ViewerFrom(ctx context.Context) *domain.AccountID {
	id, ok := ctx.Value(contextKey{}).(domain.AccountID)
	if !ok || id == "" {
		return nil
	}
	return &id
}
