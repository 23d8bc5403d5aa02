// Package auth issues and verifies the bearer tokens protecting the
// consultation endpoints. Accounts live in memory; the consult pipeline
// itself stays stateless.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/farmlean/agkaizen/internal/models"
)

var (
	ErrSecretRequired     = errors.New("auth: jwt secret required")
	ErrAccountExists      = errors.New("auth: account already exists")
	ErrEmailExists        = errors.New("auth: email already registered")
	ErrUsernameRequired   = errors.New("auth: username is required")
	ErrPasswordTooWeak    = errors.New("auth: password must be at least 6 characters")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

type RegisterInput struct {
	Username string
	Email    string
	FarmName string
	Password string
}

type LoginInput struct {
	Identifier string
	Password   string
}

type Result struct {
	Token     string
	ExpiresAt time.Time
	Account   models.Account
}

type Service struct {
	secret []byte
	ttl    time.Duration

	mu              sync.RWMutex
	accountsByName  map[string]*models.Account
	accountsByEmail map[string]*models.Account
}

func NewService(secret string, ttl time.Duration) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Service{
		secret:          []byte(secret),
		ttl:             ttl,
		accountsByName:  make(map[string]*models.Account),
		accountsByEmail: make(map[string]*models.Account),
	}, nil
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*Result, error) {
	_ = ctx

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if len(strings.TrimSpace(input.Password)) < 6 {
		return nil, ErrPasswordTooWeak
	}

	emailKey := normalizeEmail(input.Email)
	usernameKey := strings.ToLower(username)

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(input.Email),
		FarmName:     strings.TrimSpace(input.FarmName),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accountsByName[usernameKey]; exists {
		return nil, ErrAccountExists
	}
	if emailKey != "" {
		if _, exists := s.accountsByEmail[emailKey]; exists {
			return nil, ErrEmailExists
		}
	}

	s.accountsByName[usernameKey] = account
	if emailKey != "" {
		s.accountsByEmail[emailKey] = account
	}

	token, expiresAt, err := s.generateToken(account)
	if err != nil {
		return nil, err
	}

	return &Result{Token: token, ExpiresAt: expiresAt, Account: account.Sanitize()}, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*Result, error) {
	_ = ctx

	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || strings.TrimSpace(input.Password) == "" {
		return nil, ErrInvalidCredentials
	}

	s.mu.RLock()
	account := s.lookupAccountLocked(identifier)
	s.mu.RUnlock()

	if account == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	account.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	token, expiresAt, err := s.generateToken(account)
	if err != nil {
		return nil, err
	}

	return &Result{Token: token, ExpiresAt: expiresAt, Account: account.Sanitize()}, nil
}

func (s *Service) VerifyToken(token string) (*jwt.RegisteredClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) generateToken(account *models.Account) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   account.ID,
		IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func (s *Service) lookupAccountLocked(identifier string) *models.Account {
	key := strings.ToLower(identifier)
	if account, ok := s.accountsByName[key]; ok {
		return account
	}
	if account, ok := s.accountsByEmail[normalizeEmail(identifier)]; ok {
		return account
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
