package model

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is a fixed RBAC role.
type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}
}

// ParseRole returns the role named by s. An empty string yields RoleUser.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleUser, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// In reports whether r is contained in roles.
func (r Role) In(roles ...Role) bool {
	for _, allowed := range roles {
		if r == allowed {
			return true
		}
	}
	return false
}

// PendingReset is an outstanding password reset. Only the hash of the
// emailed secret is kept.
type PendingReset struct {
	TokenHash string
	ExpiresAt time.Time
}

// Expired reports whether the reset window has closed at now.
func (p *PendingReset) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Matches compares hash against the stored hash in constant time.
func (p *PendingReset) Matches(hash string) bool {
	return subtle.ConstantTimeCompare([]byte(p.TokenHash), []byte(hash)) == 1
}

// User is an account known to the credential store.
type User struct {
	ID                uuid.UUID     `json:"id"`
	Name              string        `json:"name"`
	Email             string        `json:"email"`
	Photo             string        `json:"photo"`
	Role              Role          `json:"role"`
	PasswordHash      string        `json:"-"` // Never expose in JSON
	PasswordChangedAt *time.Time    `json:"-"`
	Reset             *PendingReset `json:"-"`
	Active            bool          `json:"-"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at issuedAt. Comparison is at second granularity, matching the
// precision of token timestamps.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}

// PasswordChange is the complete set of columns written whenever the
// password hash changes. ChangedAt is nil only for a brand new account.
type PasswordChange struct {
	Hash      string
	ChangedAt *time.Time
}

// Profile holds the self-service fields a user may edit.
type Profile struct {
	Name  string
	Email string
}
