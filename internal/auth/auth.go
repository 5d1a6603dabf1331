// Package auth resolves API tokens to users. Mutating operations on tracking
// data require a signed-in, non-anonymous user; reads fall back to an
// anonymous guest when no token is presented.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidToken = errors.New("invalid API token")

// User is the resolved caller identity.
type User struct {
	ID        string
	Anonymous bool
}

// CanWrite reports whether this user may mutate tracking data.
func (u User) CanWrite() bool {
	return u.ID != "" && !u.Anonymous
}

// Guest is the anonymous read-only identity.
func Guest() User {
	return User{ID: "guest", Anonymous: true}
}

// Provider resolves a bearer token to a user.
type Provider interface {
	Authenticate(token string) (User, error)
}

// StaticProvider resolves tokens from a fixed user:token map, loaded from
// configuration at startup.
type StaticProvider struct {
	tokens map[string]string // token -> user ID
}

// NewStaticProvider parses a "user:token,user:token" spec.
func NewStaticProvider(spec string) (*StaticProvider, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid user spec entry %q, want user:token", pair)
		}
		tokens[parts[1]] = parts[0]
	}
	return &StaticProvider{tokens: tokens}, nil
}

// Authenticate resolves a token with constant-time comparison.
func (p *StaticProvider) Authenticate(token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrInvalidToken
	}
	for candidate, userID := range p.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return User{ID: userID}, nil
		}
	}
	return User{}, ErrInvalidToken
}

// UserCount reports how many users are configured.
func (p *StaticProvider) UserCount() int {
	users := make(map[string]struct{}, len(p.tokens))
	for _, id := range p.tokens {
		users[id] = struct{}{}
	}
	return len(users)
}
