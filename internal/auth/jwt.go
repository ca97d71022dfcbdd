package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenMissing     = errors.New("token not provided")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenBlacklisted = errors.New("token blacklisted")
)

type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	LoginTime int64  `json:"login_time"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret    []byte
	ttl       time.Duration
	blacklist Blacklist
	now       func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(secret string, ttl time.Duration, blacklist Blacklist, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}

	m := &Manager{
		secret:    []byte(secret),
		ttl:       ttl,
		blacklist: blacklist,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Issue signs a token carrying the user id, email and login time.
func (m *Manager) Issue(userID, email string) (string, error) {
	now := m.now().UTC()

	claims := Claims{
		UserID:    userID,
		Email:     email,
		LoginTime: now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseAndValidate checks signature and expiry only. Blacklist status is
// checked by Verify.
func (m *Manager) ParseAndValidate(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256

		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid || claims.ID == "" || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Verify validates the token and rejects it if it has been invalidated.
func (m *Manager) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := m.ParseAndValidate(tokenStr)
	if err != nil {
		return nil, err
	}

	if m.blacklist == nil {
		return claims, nil
	}

	listed, err := m.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check blacklist: %w", err)
	}

	if listed {
		return nil, ErrTokenBlacklisted
	}

	return claims, nil
}

// Invalidate blacklists the token's jti until the token would have expired.
// Invalidating an expired or already blacklisted token is a no-op.
func (m *Manager) Invalidate(ctx context.Context, tokenStr string) error {
	claims, err := m.ParseAndValidate(tokenStr)

	if errors.Is(err, ErrTokenExpired) {
		return nil
	}

	if err != nil {
		return err
	}

	if m.blacklist == nil {
		return errors.New("token blacklist not configured")
	}

	ttl := claims.ExpiresAt.Time.Sub(m.now())
	if ttl <= 0 {
		return nil
	}

	return m.blacklist.Add(ctx, claims.ID, ttl)
}
