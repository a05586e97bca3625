// Package session holds the decoded identity derived from a bearer token.
// Decoding reads the token payload without verifying its signature; signature
// verification belongs to the HTTP middleware and the issuing service.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role names issued by the auth service.
const (
	RoleAdmin    = "ADMIN"
	RoleAnalista = "ANALISTA"
	RoleCliente  = "CLIENTE"
)

// ErrMalformedToken is returned when a token is not a three-segment structure
// with a decodable JSON payload. Callers treat it identically to "no identity".
var ErrMalformedToken = errors.New("malformed token")

// Identity is the decoded view of a bearer token. It is an immutable value:
// any update produces a new Identity that replaces the cached one wholesale.
type Identity struct {
	Username   string
	Email      string
	Roles      []string
	CustomerID *int64 // nil until the user completes a customer profile
	UserID     *int64
	ExpiresAt  int64 // epoch seconds from the token's exp claim
}

// Decode parses the payload segment of a bearer token. A token with anything
// other than three segments, an undecodable payload or a missing expiry fails
// with ErrMalformedToken.
func Decode(token string) (Identity, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Identity{}, ErrMalformedToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrMalformedToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Identity{}, ErrMalformedToken
	}

	id := Identity{ExpiresAt: exp.Unix()}
	if sub, ok := claims["sub"].(string); ok {
		id.Username = sub
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if name, ok := r.(string); ok {
				id.Roles = append(id.Roles, normalizeRole(name))
			}
		}
	}
	id.CustomerID = claimInt64(claims, "customerId")
	id.UserID = claimInt64(claims, "userId")

	return id, nil
}

// normalizeRole strips the issuer's optional ROLE_ prefix.
func normalizeRole(name string) string {
	return strings.TrimPrefix(name, "ROLE_")
}

func claimInt64(claims jwt.MapClaims, key string) *int64 {
	if raw, ok := claims[key].(float64); ok {
		v := int64(raw)
		return &v
	}
	return nil
}

// IsExpired reports whether the identity's expiry has passed. The token
// carries epoch seconds; the comparison happens in milliseconds.
func (id Identity) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= id.ExpiresAt*1000
}

// HasAnyRole reports whether the identity holds at least one of the
// candidate roles.
func (id Identity) HasAnyRole(candidates ...string) bool {
	for _, want := range candidates {
		for _, have := range id.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Cache owns at most one Identity. The value is replaced atomically on login
// and cleared on logout or detected expiry; no partially updated identity is
// ever observable.
type Cache struct {
	mu  sync.RWMutex
	id  *Identity
	now func() time.Time
}

// NewCache returns an empty cache using the wall clock.
func NewCache() *Cache {
	return &Cache{now: time.Now}
}

// NewCacheAt returns an empty cache with an injected clock, for tests.
func NewCacheAt(now func() time.Time) *Cache {
	return &Cache{now: now}
}

// SetToken decodes a token and installs its identity. A malformed token or a
// token that is already expired leaves the cache empty: no operation may ever
// observe an expired identity as valid. The decode error is surfaced so
// callers can report it, but the cache state is the same as "no identity".
func (c *Cache) SetToken(token string) error {
	id, err := Decode(token)
	if err != nil {
		c.Clear()
		return err
	}
	if id.IsExpired(c.now()) {
		c.Clear()
		return nil
	}

	c.mu.Lock()
	c.id = &id
	c.mu.Unlock()
	return nil
}

// Current returns the cached identity, if any. An identity that expired since
// it was installed is cleared and not returned.
func (c *Cache) Current() (Identity, bool) {
	c.mu.RLock()
	id := c.id
	c.mu.RUnlock()

	if id == nil {
		return Identity{}, false
	}
	if id.IsExpired(c.now()) {
		c.Clear()
		return Identity{}, false
	}
	return *id, true
}

// Clear discards the cached identity.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.id = nil
	c.mu.Unlock()
}
