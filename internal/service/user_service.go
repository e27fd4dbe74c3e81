package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	apperr "natours/internal/errors"
	"natours/internal/model"
	"natours/internal/repository"
)

var errNoUserWithID = &apperr.AppError{
	Kind:    apperr.KindNotFound,
	Reason:  apperr.ErrUserNotFound.Reason,
	Message: "No user found with that ID",
}

// UpdateMeInput is a self-service profile edit. Password fields are only
// present to reject them.
type UpdateMeInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

// UserService exposes profile operations on authenticated users.
type UserService interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateMe(ctx context.Context, current *model.User, in UpdateMeInput) (*model.User, error)
	// DeleteMe deactivates the account; its tokens stop resolving at once.
	DeleteMe(ctx context.Context, current *model.User) error
}

type userService struct {
	repo   repository.UserRepository
	logger *slog.Logger
}

// NewUserService builds a UserService with repository.
func NewUserService(repo repository.UserRepository, logger *slog.Logger) UserService {
	return &userService{repo: repo, logger: logger}
}

func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.FindActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errNoUserWithID
		}
		return nil, apperr.Dependency(fmt.Errorf("find user: %w", err))
	}
	return user, nil
}

func (s *userService) UpdateMe(ctx context.Context, current *model.User, in UpdateMeInput) (*model.User, error) {
	if current == nil {
		return nil, apperr.ErrNoIdentity
	}
	if in.Password != "" || in.PasswordConfirm != "" {
		return nil, apperr.Validation("This route is not for password updates. Please use /updateMyPassword.")
	}

	profile := model.Profile{Name: current.Name, Email: current.Email}
	if name := strings.TrimSpace(in.Name); name != "" {
		profile.Name = name
	}
	if email := normalizeEmail(in.Email); email != "" {
		profile.Email = email
	}

	user, err := s.repo.UpdateProfile(ctx, current.ID, profile)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, apperr.ErrEmailTaken
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Dependency(fmt.Errorf("update profile: %w", err))
	}
	return user, nil
}

func (s *userService) DeleteMe(ctx context.Context, current *model.User) error {
	if current == nil {
		return apperr.ErrNoIdentity
	}
	if err := s.repo.Deactivate(ctx, current.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrUnauthenticated
		}
		return apperr.Dependency(fmt.Errorf("deactivate user: %w", err))
	}
	s.logger.InfoContext(ctx, "user deactivated", "user_id", current.ID)
	return nil
}
