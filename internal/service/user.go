package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

// UserService looks up and seeds accounts. Credentials are issued
// elsewhere; this service only knows users by id.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
	}
}

// GetByID returns the user for the given internal ID.
//
// Used by the /api/me handler once the auth middleware has resolved the
// caller's id from their token.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthenticated()
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create registers a new account. A username may not contain "@" so it can
// never be confused with an email address; duplicates of either are a
// Conflict.
func (s *UserService) Create(ctx context.Context, username, email string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	switch {
	case len(username) < MinUsernameLength:
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	case len(username) > MaxUsernameLength:
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	case strings.Contains(username, "@"):
		return nil, apperror.ValidationFailed("username", "username cannot contain @")
	case !strings.Contains(email, "@"):
		return nil, apperror.ValidationFailed("email", "invalid email")
	}

	user := &model.User{Username: username, Email: email}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if isConflict(err) {
			return nil, err
		}
		s.logger.Error("failed to create user",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created",
		slog.String("id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}
