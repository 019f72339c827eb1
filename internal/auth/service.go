// Package auth verifies the credentials of the demo host: HTTP Basic
// against a static credential map or a user store, and bearer tokens
// for clients that prefer a login flow.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rutexd/minidav/internal/authstore"
	"github.com/rutexd/minidav/internal/cache"
)

// Error definitions.
var (
	ErrInvalidCredentials = Error("invalid username or password")
	ErrInvalidToken       = Error("invalid or expired token")
	ErrNoSecret           = Error("jwt secret not configured")
)

type Error string

func (e Error) Error() string {
	return string(e)
}

// Claims is the bearer token payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service validates users and issues tokens. Users come from the
// static map first, the store second; either may be absent.
type Service struct {
	users     map[string]string
	store     *authstore.Store
	creds     *cache.CredentialCache
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService builds a Service. staticUsers maps usernames to bcrypt
// hashes; store and creds may be nil.
func NewService(staticUsers map[string]string, store *authstore.Store, creds *cache.CredentialCache, jwtSecret string) *Service {
	return &Service{
		users:     staticUsers,
		store:     store,
		creds:     creds,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  24 * time.Hour,
	}
}

// ValidateBasic checks a username/password pair. Verified pairs are
// remembered in the credential cache so WebDAV clients hammering
// Basic auth on every request don't pay bcrypt every time.
func (s *Service) ValidateBasic(ctx context.Context, username, password string) error {
	if s.creds != nil && s.creds.Check(ctx, username, password) {
		return nil
	}

	hash, ok := s.users[username]
	if !ok && s.store != nil {
		user, err := s.store.GetByUsername(ctx, username)
		if err != nil {
			return ErrInvalidCredentials
		}
		hash = user.PasswordHash
		ok = true
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	if s.creds != nil {
		s.creds.Remember(ctx, username, password)
	}
	return nil
}

// GenerateToken issues a signed bearer token for username.
func (s *Service) GenerateToken(username string) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", ErrNoSecret
	}
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifies a bearer token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
