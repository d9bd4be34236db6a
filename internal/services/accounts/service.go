package accounts

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
)

// Validation limits for registration input
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

// Errors
var (
	ErrUsernameEmpty    = errors.New("username cannot be empty")
	ErrUsernameTooShort = fmt.Errorf("username must be at least %d characters long", MinUsernameLength)
	ErrUsernameTooLong  = fmt.Errorf("username must be at most %d characters long", MaxUsernameLength)
	ErrUsernameInvalid  = errors.New("username contains invalid characters")
	ErrPasswordEmpty    = errors.New("password cannot be empty")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d characters long", MaxPasswordLength)
	ErrUsernameExists   = errors.New("username already exists")
)

// Account is one registered user. The password is stored as a bcrypt hash.
type Account struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Service manages user accounts in memory for the process lifetime.
// Usernames are case-insensitive.
type Service struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	accounts map[string]*Account
}

// New creates a new account service
func New(clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		clock:    clk,
		logger:   logger.With(slog.String("component", "accounts")),
		accounts: make(map[string]*Account),
	}
}

// Register validates the input and creates a new account
func (s *Service) Register(username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	key := strings.ToLower(username)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[key]; exists {
		return ErrUsernameExists
	}
	s.accounts[key] = &Account{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	s.logger.Info("user registered",
		slog.String("username", username),
		slog.Int("total_accounts", len(s.accounts)))
	return nil
}

// ValidateCredentials reports whether the username/password pair matches a
// registered account
func (s *Service) ValidateCredentials(username, password string) bool {
	if strings.TrimSpace(username) == "" || password == "" {
		return false
	}

	s.mu.RLock()
	account, ok := s.accounts[strings.ToLower(username)]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
}

// UserExists reports whether an account exists for the username
func (s *Service) UserExists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[strings.ToLower(username)]
	return ok
}

// Count returns the number of registered accounts
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

func validateUsername(username string) error {
	switch {
	case strings.TrimSpace(username) == "":
		return ErrUsernameEmpty
	case len(username) < MinUsernameLength:
		return ErrUsernameTooShort
	case len(username) > MaxUsernameLength:
		return ErrUsernameTooLong
	}
	for _, r := range username {
		if unicode.IsControl(r) {
			return ErrUsernameInvalid
		}
	}
	return nil
}

func validatePassword(password string) error {
	switch {
	case strings.TrimSpace(password) == "":
		return ErrPasswordEmpty
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}
