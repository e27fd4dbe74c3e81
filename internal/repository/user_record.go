package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"natours/internal/model"
)

const defaultPhoto = "default.jpg"

// userRecord is the users table row. The reset pair is flattened into two
// nullable columns and only ever written together.
type userRecord struct {
	ID                     uuid.UUID  `gorm:"type:char(36);primaryKey"`
	Name                   string     `gorm:"size:255;not null"`
	Email                  string     `gorm:"uniqueIndex;size:255;not null"`
	Photo                  string     `gorm:"size:255;not null"`
	Role                   string     `gorm:"size:20;not null;index"`
	PasswordHash           string     `gorm:"size:255;not null"`
	PasswordChangedAt      *time.Time ``
	PasswordResetTokenHash *string    `gorm:"size:64;index"`
	PasswordResetExpiresAt *time.Time ``
	Active                 bool       `gorm:"not null;index"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (userRecord) TableName() string {
	return "users"
}

// BeforeCreate sets UUID before creating the record.
func (u *userRecord) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func toRecord(u *model.User) *userRecord {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Photo == "" {
		u.Photo = defaultPhoto
	}
	rec := &userRecord{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Photo:             u.Photo,
		Role:              string(u.Role),
		PasswordHash:      u.PasswordHash,
		PasswordChangedAt: u.PasswordChangedAt,
		Active:            u.Active,
	}
	if u.Reset != nil {
		hash := u.Reset.TokenHash
		expires := u.Reset.ExpiresAt
		rec.PasswordResetTokenHash = &hash
		rec.PasswordResetExpiresAt = &expires
	}
	return rec
}

func (u *userRecord) toModel() *model.User {
	user := &model.User{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Photo:             u.Photo,
		Role:              model.Role(u.Role),
		PasswordHash:      u.PasswordHash,
		PasswordChangedAt: u.PasswordChangedAt,
		Active:            u.Active,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	// A half-written pair is treated as no pending reset.
	if u.PasswordResetTokenHash != nil && u.PasswordResetExpiresAt != nil {
		user.Reset = &model.PendingReset{
			TokenHash: *u.PasswordResetTokenHash,
			ExpiresAt: *u.PasswordResetExpiresAt,
		}
	}
	return user
}
