// Package identity resolves client tokens to user ids.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
)

var ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrInvalid)

type Claims struct {
	UserID domain.UserID `json:"id"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens. Valid tokens are cached until they
// expire or the cache TTL passes, whichever is first.
type JWTResolver struct {
	secret []byte
	ttl    time.Duration
	cache  *cache.Cache
	now    func() time.Time
}

func NewJWTResolver(secret string, cacheTTL time.Duration) *JWTResolver {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &JWTResolver{
		secret: []byte(secret),
		ttl:    cacheTTL,
		cache:  cache.New(cacheTTL, cacheTTL*2),
		now:    time.Now,
	}
}

var _ core.IdentityResolver = (*JWTResolver)(nil)

func (r *JWTResolver) Sign(uid domain.UserID, ttl time.Duration) (string, error) {
	now := r.now()
	claims := Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *JWTResolver) ResolveToken(_ context.Context, token string) (domain.UserID, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	if v, ok := r.cache.Get(token); ok {
		return v.(domain.UserID), nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return r.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	ttl := r.ttl
	if left := claims.ExpiresAt.Time.Sub(r.now()); left < ttl {
		ttl = left
	}
	if ttl > 0 {
		r.cache.Set(token, claims.UserID, ttl)
	}
	return claims.UserID, nil
}

// Forget drops a cached token, e.g. after the user is deleted.
func (r *JWTResolver) Forget(token string) {
	r.cache.Delete(token)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
