// Package users manages the accounts that receive weather notifications.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adeilh/go-rakh-weather/logging"
)

var (
	ErrUserNotFound  = errors.New("users: user not found")
	ErrUserNameTaken = errors.New("users: user name already taken")
	ErrEmailTaken    = errors.New("users: email already in use")
	ErrInvalidUser   = errors.New("users: invalid user input")
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User models the data persisted inside the user store.
type User struct {
	ID           uuid.UUID `json:"id"`
	UserName     string    `json:"user_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash []byte    `json:"-"`
	Roles        []string  `json:"roles"`
	// SentimentAnalysis opts the user into the periodic notification mail.
	SentimentAnalysis bool      `json:"sentiment_analysis"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Repository abstracts persistence so the service can run against Postgres
// or the in-memory implementation.
type Repository interface {
	Create(ctx context.Context, user User) error
	Update(ctx context.Context, user User) error
	FindByUserName(ctx context.Context, userName string) (User, error)
	List(ctx context.Context) ([]User, error)
	DeleteByUserName(ctx context.Context, userName string) error
}

// Hasher turns a plaintext password into a storable hash.
type Hasher interface {
	Hash(plain []byte) ([]byte, error)
}

// Registration is the input accepted by Register.
type Registration struct {
	UserName          string `json:"user_name"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	SentimentAnalysis bool   `json:"sentiment_analysis"`
}

type ServiceConfig struct {
	Repository Repository
	Hasher     Hasher
	Now        func() time.Time
	Logger     zerolog.Logger
}

type Service struct {
	repo   Repository
	hasher Hasher
	now    func() time.Time
	log    zerolog.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil || cfg.Hasher == nil {
		return nil, fmt.Errorf("%w: repository and hasher are required", ErrInvalidUser)
	}
	svc := &Service{
		repo:   cfg.Repository,
		hasher: cfg.Hasher,
		now:    cfg.Now,
		log:    logging.Component(cfg.Logger, "users"),
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

// Register hashes the password, assigns the default role and stores the user.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.UserName = strings.TrimSpace(reg.UserName)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := validateRegistration(reg); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash([]byte(reg.Password))
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	now := s.now()
	user := User{
		ID:                uuid.New(),
		UserName:          reg.UserName,
		Email:             reg.Email,
		PasswordHash:      hash,
		Roles:             []string{RoleUser},
		SentimentAnalysis: reg.SentimentAnalysis,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserNameTaken) || errors.Is(err, ErrEmailTaken) {
			s.log.Info().Str("user_name", user.UserName).Err(err).Msg("registration rejected")
		}
		return User{}, err
	}
	s.log.Info().Str("user_name", user.UserName).Stringer("id", user.ID).Msg("user registered")
	return user, nil
}

// PromoteAdmin grants the admin role on top of the default one.
func (s *Service) PromoteAdmin(ctx context.Context, userName string) (User, error) {
	user, err := s.repo.FindByUserName(ctx, userName)
	if err != nil {
		return User{}, err
	}
	if user.HasRole(RoleAdmin) {
		return user, nil
	}
	user.Roles = []string{RoleUser, RoleAdmin}
	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	s.log.Info().Str("user_name", userName).Msg("user promoted to admin")
	return user, nil
}

func (s *Service) FindByUserName(ctx context.Context, userName string) (User, error) {
	if strings.TrimSpace(userName) == "" {
		return User{}, ErrInvalidUser
	}
	return s.repo.FindByUserName(ctx, userName)
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, userName string) error {
	if strings.TrimSpace(userName) == "" {
		return ErrInvalidUser
	}
	return s.repo.DeleteByUserName(ctx, userName)
}

func validateRegistration(reg Registration) error {
	if reg.UserName == "" {
		return fmt.Errorf("%w: user name is required", ErrInvalidUser)
	}
	if reg.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidUser)
	}
	if reg.Email != "" {
		if _, err := mail.ParseAddress(reg.Email); err != nil {
			return fmt.Errorf("%w: email: %v", ErrInvalidUser, err)
		}
	}
	return nil
}
