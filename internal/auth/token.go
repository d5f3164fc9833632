package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"schoolhub/internal/rbac"
)

var ErrUnauthorized = errors.New("unauthorized")

// Principal is the caller behind a verified bearer token.
type Principal struct {
	Name string
	Role rbac.Role
}

type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
}

type contextKey string

const principalKey contextKey = "schoolhub-principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

type tokenEntry struct {
	digest    [sha256.Size]byte
	principal Principal
}

// TokenAuthenticator matches the Authorization bearer token against a fixed
// set of configured tokens. Empty tokens are never accepted.
type TokenAuthenticator struct {
	entries []tokenEntry
}

func NewTokenAuthenticator(adminToken, operatorToken string) *TokenAuthenticator {
	a := &TokenAuthenticator{}
	a.add(adminToken, Principal{Name: "admin", Role: rbac.RoleAdmin})
	a.add(operatorToken, Principal{Name: "operator", Role: rbac.RoleOperator})
	return a
}

func (a *TokenAuthenticator) add(token string, p Principal) {
	if token == "" {
		return
	}
	a.entries = append(a.entries, tokenEntry{digest: sha256.Sum256([]byte(token)), principal: p})
}

// Enabled reports whether any token is configured.
func (a *TokenAuthenticator) Enabled() bool { return len(a.entries) > 0 }

func (a *TokenAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}
	digest := sha256.Sum256([]byte(strings.TrimSpace(token)))

	var match *Principal
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 {
			match = &a.entries[i].principal
		}
	}
	if match == nil {
		return nil, ErrUnauthorized
	}
	p := *match
	return &p, nil
}
