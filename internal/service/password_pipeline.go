package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	apperr "natours/internal/errors"
	"natours/internal/model"
)

// passwordDraft carries a password through the write pipeline. Only change
// leaves the pipeline.
type passwordDraft struct {
	plaintext string
	confirm   string
	change    model.PasswordChange
}

type passwordStep func(ctx context.Context, d *passwordDraft) error

// passwordSteps returns the ordered write pipeline. Every path that sets a
// password hash runs it; stamp is false only for a brand new account.
func (s *authService) passwordSteps(stamp bool) []passwordStep {
	steps := []passwordStep{
		s.validatePassword,
		s.hashPassword,
		dropPlaintext,
	}
	if stamp {
		steps = append(steps, s.stampChangedAt)
	}
	return steps
}

func (s *authService) preparePassword(ctx context.Context, plaintext, confirm string, stamp bool) (model.PasswordChange, error) {
	d := &passwordDraft{plaintext: plaintext, confirm: confirm}
	for _, step := range s.passwordSteps(stamp) {
		if err := step(ctx, d); err != nil {
			return model.PasswordChange{}, err
		}
	}
	return d.change, nil
}

func (s *authService) validatePassword(_ context.Context, d *passwordDraft) error {
	if d.plaintext == "" {
		return apperr.Validation("Please provide a password")
	}
	if utf8.RuneCountInString(d.plaintext) < s.cfg.PasswordMinLength {
		return apperr.Validation(fmt.Sprintf("Password must have at least %d characters", s.cfg.PasswordMinLength))
	}
	if limit := s.hasher.MaxLength(); limit > 0 && len(d.plaintext) > limit {
		return apperr.Validation(fmt.Sprintf("Password must not be longer than %d bytes", limit))
	}
	if d.confirm != d.plaintext {
		return apperr.Validation("Passwords are not the same!")
	}
	return nil
}

func (s *authService) hashPassword(ctx context.Context, d *passwordDraft) error {
	hash, err := s.hasher.Hash(ctx, d.plaintext)
	if err != nil {
		return apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	d.change.Hash = hash
	return nil
}

func dropPlaintext(_ context.Context, d *passwordDraft) error {
	d.plaintext = ""
	d.confirm = ""
	return nil
}

// stampChangedAt backdates the stamp by the configured skew so a token
// issued in the same second as the change is still accepted.
func (s *authService) stampChangedAt(_ context.Context, d *passwordDraft) error {
	changedAt := s.now().Add(-s.cfg.PasswordChangeSkew).UTC()
	d.change.ChangedAt = &changedAt
	return nil
}
