package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Service struct {
	repo   Repository
	tokens *Tokens
	cost   int
	logger zerolog.Logger

	// compared against when the username is unknown so both paths cost a
	// bcrypt round
	dummyHash []byte
}

type Option func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(repo Repository, tokens *Tokens, logger zerolog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		repo:   repo,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		logger: logger.With().Str("component", "accounts").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

func (s *Service) Register(ctx context.Context, in Registration) (*Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" {
		return nil, &ValidationError{Field: "username", Message: "is required"}
	}
	if !emailPattern.MatchString(in.Email) {
		return nil, &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if len(in.Password) < minPasswordLength {
		return nil, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.Create(ctx, Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("account_id", created.ID).Str("username", created.Username).Msg("account registered")
	return created, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	acc, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrAccountNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("username", acc.Username).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(*acc)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, Account: *acc}, nil
}

// Authenticate validates a bearer token.
func (s *Service) Authenticate(raw string) (*Claims, error) {
	return s.tokens.Verify(raw)
}
