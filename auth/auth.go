/*
Package auth provides registration, login and token-based identity.

PURPOSE:
  The storefront core only consumes "current authenticated identity"; this
  package produces it. Passwords are hashed with bcrypt, identity travels
  as a signed HS256 token, and staff/customer is a claim on that token.

SEE ALSO:
  - api/middleware.go: extracts the identity on each request
  - shop/types.go: Account entity
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/storefront/shop"
)

var (
	// ErrUsernameTaken is returned when registering with an existing username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned for a bad username/password pair.
	// Deliberately the same error for both cases.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for missing, malformed or expired tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Service handles registration, login and token verification.
type Service struct {
	store          shop.Store
	secret         []byte
	tokenTTL       time.Duration
	startingWallet decimal.Decimal
	clock          shop.Clock
}

// NewService creates an auth service. startingWallet is the wallet grant
// every new account receives.
func NewService(store shop.Store, secret string, tokenTTL time.Duration, startingWallet decimal.Decimal) *Service {
	return &Service{
		store:          store,
		secret:         []byte(secret),
		tokenTTL:       tokenTTL,
		startingWallet: startingWallet,
		clock:          time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(clock shop.Clock) *Service {
	s.clock = clock
	return s
}

// Register creates a new account with the starting wallet grant.
func (s *Service) Register(ctx context.Context, username, displayName, password string) (*shop.Account, error) {
	if _, err := s.store.GetAccountByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !shop.IsNotFound(err) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if displayName == "" {
		displayName = username
	}

	account := &shop.Account{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Wallet:       s.startingWallet,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.store.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Login verifies the credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *shop.Account, error) {
	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if shop.IsNotFound(err) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(account)
	if err != nil {
		return "", nil, err
	}
	return token, account, nil
}

// Claims is the token payload: who, and whether they are staff.
type Claims struct {
	Staff bool `json:"staff"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the account.
func (s *Service) IssueToken(account *shop.Account) (string, error) {
	now := s.clock()
	claims := Claims{
		Staff: account.Staff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token, returning its claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.clock() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
