package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"natours/internal/model"
)

var (
	// ErrNotFound is returned when no active user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrConflict is returned when a conditional update found the record in a
	// different state than expected.
	ErrConflict = errors.New("user record changed concurrently")
)

// UserRepository is the credential store. Every lookup only ever returns
// active users; there is no way to reach a deactivated account through it.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindActiveByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindActiveByEmail(ctx context.Context, email string) (*model.User, error)
	FindActiveByResetHash(ctx context.Context, tokenHash string) (*model.User, error)
	// SetPendingReset replaces any pending reset of an active user.
	SetPendingReset(ctx context.Context, id uuid.UUID, reset model.PendingReset) error
	// ClearPendingReset clears the pending reset only while it still holds
	// tokenHash; a newer reset is left alone and ErrConflict is returned.
	ClearPendingReset(ctx context.Context, id uuid.UUID, tokenHash string) error
	// UpdatePassword writes the new hash and changed-at stamp and clears any
	// pending reset in one update. A non-empty resetHash makes the update
	// conditional on that reset still being pending.
	UpdatePassword(ctx context.Context, id uuid.UUID, change model.PasswordChange, resetHash string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, profile model.Profile) (*model.User, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// AutoMigrate creates or updates the users table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&userRecord{})
}

// DropUsers removes the users table. Used by the seed command.
func DropUsers(db *gorm.DB) error {
	return db.Migrator().DropTable(&userRecord{})
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	rec := toRecord(user)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	user.CreatedAt = rec.CreatedAt
	user.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r *userRepository) FindActiveByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *userRepository) FindActiveByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *userRepository) FindActiveByResetHash(ctx context.Context, tokenHash string) (*model.User, error) {
	return r.first(ctx, "password_reset_token_hash = ?", tokenHash)
}

func (r *userRepository) first(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var rec userRecord
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Where("active = ?", true).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec.toModel(), nil
}

func (r *userRepository) SetPendingReset(ctx context.Context, id uuid.UUID, reset model.PendingReset) error {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"password_reset_token_hash": reset.TokenHash,
			"password_reset_expires_at": reset.ExpiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) ClearPendingReset(ctx context.Context, id uuid.UUID, tokenHash string) error {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ? AND password_reset_token_hash = ?", id, tokenHash).
		Updates(map[string]interface{}{
			"password_reset_token_hash": nil,
			"password_reset_expires_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, change model.PasswordChange, resetHash string) error {
	q := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ? AND active = ?", id, true)
	if resetHash != "" {
		q = q.Where("password_reset_token_hash = ?", resetHash)
	}

	res := q.Updates(map[string]interface{}{
		"password_hash":             change.Hash,
		"password_changed_at":       change.ChangedAt,
		"password_reset_token_hash": nil,
		"password_reset_expires_at": nil,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if resetHash != "" {
			return ErrConflict
		}
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, profile model.Profile) (*model.User, error) {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"name":  profile.Name,
			"email": profile.Email,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, res.Error
	}
	return r.FindActiveByID(ctx, id)
}

func (r *userRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
