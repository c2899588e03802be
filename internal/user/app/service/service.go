package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notifly-go/internal/domain"
	"github.com/notifly-go/internal/domain/user"
	"github.com/notifly-go/internal/user/ports"
	"github.com/notifly-go/pkg/database"
	"github.com/notifly-go/pkg/events"
	"github.com/notifly-go/pkg/logger"
)

var ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", domain.ErrUnauthenticated)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	GenerateToken(userID, email string) (string, time.Time, error)
}

type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

type UserService struct {
	repo     ports.UserRepository
	tokens   TokenIssuer
	eventBus events.EventBus
	logger   logger.Logger
}

func NewUserService(
	repo ports.UserRepository,
	tokens TokenIssuer,
	eventBus events.EventBus,
	logger logger.Logger,
) *UserService {
	return &UserService{
		repo:     repo,
		tokens:   tokens,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Create registers a new user. Email and username must both be unused.
func (s *UserService) Create(ctx context.Context, in user.CreateInput) (*user.User, error) {
	u, err := user.NewUser(in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, u.Email, u.Username, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User created", "userId", u.ID, "username", u.Username)
	s.publish(ctx, events.NewEventBuilder(events.UserCreated).
		WithAggregateID(u.ID).
		WithAggregateType("user").
		WithUserID(u.ID).
		WithPayload("email", u.Email).
		WithPayload("username", u.Username).
		Build())

	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*user.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := domain.ValidateVar("email", user.NormalizeEmail(email), "required,email"); err != nil {
		return nil, err
	}
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) List(ctx context.Context, filter user.Filter, page, limit int) (*domain.Page[*user.User], error) {
	p := database.NewPagination(page, limit)
	users, err := s.repo.List(ctx, filter, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return domain.NewPage(users, p), nil
}

// Update changes a user's profile. Only the user themself may do so.
func (s *UserService) Update(ctx context.Context, actorID, id string, in user.UpdateInput) (*user.User, error) {
	if err := domain.Authorize(actorID, id); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.Apply(in); err != nil {
		return nil, err
	}
	if in.Email != nil || in.Username != nil {
		if err := s.ensureUnique(ctx, u.Email, u.Username, u.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.publish(ctx, events.NewEventBuilder(events.UserUpdated).
		WithAggregateID(u.ID).
		WithAggregateType("user").
		WithUserID(actorID).
		Build())

	return u, nil
}

// Delete removes a user and every notification group they own.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if err := domain.Authorize(actorID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("User deleted", "userId", id)
	s.publish(ctx, events.NewEventBuilder(events.UserDeleted).
		WithAggregateID(id).
		WithAggregateType("user").
		WithUserID(actorID).
		Build())

	return nil
}

// Login verifies credentials, records the login time and issues an access token.
// Unknown emails, wrong passwords and deactivated accounts all fail the same way.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive || !u.CheckPassword(password) {
		s.logger.Warn("Failed login attempt", "userId", u.ID)
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	u.LastLoginAt = &now
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	token, expiresAt, err := s.tokens.GenerateToken(u.ID, u.Email)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEventBuilder(events.UserLoggedIn).
		WithAggregateID(u.ID).
		WithAggregateType("user").
		WithUserID(u.ID).
		Build())

	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

func (s *UserService) ensureUnique(ctx context.Context, email, username, excludeID string) error {
	taken, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return domain.Conflict("email %s is already registered", email)
	}

	taken, err = s.repo.ExistsByUsername(ctx, username, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return domain.Conflict("username %s is already taken", username)
	}
	return nil
}

func (s *UserService) publish(ctx context.Context, event events.Event) {
	events.PublishAsync(ctx, s.eventBus, s.logger, event)
}
