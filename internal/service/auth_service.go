package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"natours/internal/auth"
	apperr "natours/internal/errors"
	"natours/internal/mailer"
	"natours/internal/model"
	"natours/internal/password"
	"natours/internal/repository"
)

const resetThrottlePrefix = "reset_request:"

// AuthConfig holds the policy knobs of the auth flows.
type AuthConfig struct {
	ResetWindow             time.Duration
	ResetRequestLimit       int
	RevealUnknownResetEmail bool
	PasswordChangeSkew      time.Duration
	PasswordMinLength       int
	SignupRoles             []model.Role
	// Now defaults to time.Now.
	Now func() time.Time
}

// Limiter counts events in fixed windows. *cache.Client satisfies it.
type Limiter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Session is a freshly issued session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// SignupInput is a self-service registration.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	Role            string
}

// AuthService handles authentication operations.
type AuthService interface {
	Signup(ctx context.Context, in SignupInput, welcomeURL string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	// Authenticate resolves a session token to its active user.
	Authenticate(ctx context.Context, token string) (*model.User, error)
	// ForgotPassword starts a reset for email. resetURL builds the link that
	// carries the plaintext secret.
	ForgotPassword(ctx context.Context, email string, resetURL func(secret string) string) error
	ResetPassword(ctx context.Context, secret, password, passwordConfirm string) (*Session, error)
	UpdatePassword(ctx context.Context, user *model.User, current, password, passwordConfirm string) (*Session, error)
	IssueSession(user *model.User) (*Session, error)
}

type authService struct {
	users   repository.UserRepository
	tokens  *auth.JWTService
	hasher  *password.Hasher
	mail    mailer.Mailer
	limiter Limiter
	cfg     AuthConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewAuthService creates a new authentication service. limiter may be nil,
// which disables reset request throttling.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.JWTService,
	hasher *password.Hasher,
	mail mailer.Mailer,
	limiter Limiter,
	cfg AuthConfig,
	logger *slog.Logger,
) AuthService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if len(cfg.SignupRoles) == 0 {
		cfg.SignupRoles = []model.Role{model.RoleUser}
	}
	return &authService{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		mail:    mail,
		limiter: limiter,
		cfg:     cfg,
		now:     now,
		logger:  logger,
	}
}

// Signup creates an account and signs it in.
func (s *authService) Signup(ctx context.Context, in SignupInput, welcomeURL string) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("Please tell us your name!")
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperr.Validation("Please provide your email")
	}

	role, err := model.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation("Role is either: user, guide, lead-guide, admin")
	}
	if !role.In(s.cfg.SignupRoles...) {
		return nil, apperr.Validation(fmt.Sprintf("Role %q cannot be chosen at signup", role))
	}

	change, err := s.preparePassword(ctx, in.Password, in.PasswordConfirm, false)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:              name,
		Email:             email,
		Role:              role,
		PasswordHash:      change.Hash,
		PasswordChangedAt: change.ChangedAt,
		Active:            true,
	}

	// The hash is done; finish the write even if the client went away.
	if err := s.users.Create(context.WithoutCancel(ctx), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.ErrEmailTaken
		}
		return nil, apperr.Dependency(fmt.Errorf("create user: %w", err))
	}

	session, err := s.IssueSession(user)
	if err != nil {
		return nil, err
	}

	if err := s.mail.SendWelcome(ctx, user, welcomeURL); err != nil {
		s.logger.WarnContext(ctx, "welcome email not sent", "user_id", user.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID, "role", user.Role)
	return session, nil
}

// Login verifies credentials. Every failure looks the same to the caller.
func (s *authService) Login(ctx context.Context, email, plaintext string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		return nil, apperr.Validation("Please provide email and password!")
	}

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Dependency(fmt.Errorf("find user: %w", err))
		}
		s.hasher.Dummy(ctx, plaintext)
		return nil, apperr.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, plaintext, user.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("verify password: %w", err))
	}
	if !ok {
		return nil, apperr.ErrInvalidCredentials
	}

	return s.IssueSession(user)
}

// Authenticate validates the token and loads its subject. Failures are
// ErrInvalidToken, ErrTokenExpired, ErrUnauthenticated or ErrStalePassword.
func (s *authService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperr.ErrUnauthenticated
	}

	claims, err := s.tokens.Validate(token, s.now())
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperr.ErrInvalidToken.Wrap(err)
	}

	user, err := s.users.FindActiveByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Dependency(fmt.Errorf("find user: %w", err))
	}

	if user.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return nil, apperr.ErrStalePassword
	}
	return user, nil
}

// ForgotPassword stores a pending reset and mails its secret. If delivery
// fails the reset is withdrawn before ErrDelivery is returned.
func (s *authService) ForgotPassword(ctx context.Context, email string, resetURL func(secret string) string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("Please provide your email")
	}

	if err := s.throttleReset(ctx, email); err != nil {
		return err
	}

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.unknownResetEmail()
		}
		return apperr.Dependency(fmt.Errorf("find user: %w", err))
	}

	plain, hash, err := auth.NewResetSecret()
	if err != nil {
		return apperr.Internal(err)
	}
	reset := model.PendingReset{
		TokenHash: hash,
		ExpiresAt: s.now().Add(s.cfg.ResetWindow).UTC(),
	}
	if err := s.users.SetPendingReset(ctx, user.ID, reset); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.unknownResetEmail()
		}
		return apperr.Dependency(fmt.Errorf("set pending reset: %w", err))
	}

	if err := s.mail.SendPasswordReset(ctx, user, resetURL(plain)); err != nil {
		s.rollbackReset(ctx, user, hash)
		return apperr.ErrDelivery.Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID)
	return nil
}

// rollbackReset clears the reset identified by hash. A newer reset stored
// by a concurrent request is left in place.
func (s *authService) rollbackReset(ctx context.Context, user *model.User, hash string) {
	err := s.users.ClearPendingReset(context.WithoutCancel(ctx), user.ID, hash)
	switch {
	case err == nil:
		s.logger.WarnContext(ctx, "reset email failed, pending reset withdrawn", "user_id", user.ID)
	case errors.Is(err, repository.ErrConflict):
		s.logger.WarnContext(ctx, "reset email failed, pending reset already superseded", "user_id", user.ID)
	default:
		s.logger.ErrorContext(ctx, "reset email failed and pending reset could not be withdrawn", "user_id", user.ID, "error", err)
	}
}

func (s *authService) unknownResetEmail() error {
	if s.cfg.RevealUnknownResetEmail {
		return apperr.ErrUserNotFound
	}
	return nil
}

func (s *authService) throttleReset(ctx context.Context, email string) error {
	if s.limiter == nil || s.cfg.ResetRequestLimit <= 0 {
		return nil
	}
	n, err := s.limiter.Incr(ctx, resetThrottlePrefix+email, s.cfg.ResetWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "reset throttle unavailable", "error", err)
		return nil
	}
	if n > int64(s.cfg.ResetRequestLimit) {
		return apperr.ErrTooManyResetRequests
	}
	return nil
}

// ResetPassword consumes a pending reset. Wrong or expired secrets leave the
// pending reset untouched so the user may retry within the window.
func (s *authService) ResetPassword(ctx context.Context, secret, plaintext, confirm string) (*Session, error) {
	if secret == "" {
		return nil, apperr.ErrInvalidOrExpiredReset
	}
	hash := auth.HashResetSecret(secret)

	user, err := s.users.FindActiveByResetHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrInvalidOrExpiredReset
		}
		return nil, apperr.Dependency(fmt.Errorf("find reset: %w", err))
	}
	if user.Reset == nil || !user.Reset.Matches(hash) || user.Reset.Expired(s.now()) {
		return nil, apperr.ErrInvalidOrExpiredReset
	}

	change, err := s.preparePassword(ctx, plaintext, confirm, true)
	if err != nil {
		return nil, err
	}

	// Conditional on the reset still pending, so a secret is consumed once.
	err = s.users.UpdatePassword(context.WithoutCancel(ctx), user.ID, change, hash)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrInvalidOrExpiredReset
		}
		return nil, apperr.Dependency(fmt.Errorf("update password: %w", err))
	}
	applyPasswordChange(user, change)

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID)
	return s.IssueSession(user)
}

// UpdatePassword changes the password of an authenticated user after
// checking the current one. Every previously issued token becomes stale.
func (s *authService) UpdatePassword(ctx context.Context, current *model.User, currentPassword, plaintext, confirm string) (*Session, error) {
	if current == nil {
		return nil, apperr.ErrNoIdentity
	}

	user, err := s.users.FindActiveByID(ctx, current.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Dependency(fmt.Errorf("find user: %w", err))
	}

	ok, err := s.hasher.Verify(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("verify password: %w", err))
	}
	if !ok {
		return nil, apperr.ErrWrongCurrentPassword
	}

	change, err := s.preparePassword(ctx, plaintext, confirm, true)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdatePassword(context.WithoutCancel(ctx), user.ID, change, ""); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Dependency(fmt.Errorf("update password: %w", err))
	}
	applyPasswordChange(user, change)

	s.logger.InfoContext(ctx, "password updated", "user_id", user.ID)
	return s.IssueSession(user)
}

// IssueSession signs a new token for user as of now.
func (s *authService) IssueSession(user *model.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(user.ID, s.now())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// Authorize reports whether user holds one of roles. A nil user means the
// role check ran without authentication, which is a wiring bug.
func Authorize(user *model.User, roles ...model.Role) error {
	if user == nil {
		return apperr.ErrNoIdentity
	}
	if !user.Role.In(roles...) {
		return apperr.ErrForbidden
	}
	return nil
}

func applyPasswordChange(user *model.User, change model.PasswordChange) {
	user.PasswordHash = change.Hash
	user.PasswordChangedAt = change.ChangedAt
	user.Reset = nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
