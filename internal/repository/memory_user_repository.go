package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"natours/internal/model"
)

// memoryUserRepository keeps users in process. It backs DB_DRIVER=memory and
// the test suites, and honours the same conditional update rules as the SQL
// repository.
type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*model.User
	now   func() time.Time
}

// NewMemoryUserRepository returns an empty in-process repository.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		users: make(map[uuid.UUID]*model.User),
		now:   time.Now,
	}
}

func (r *memoryUserRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailInUse(user.Email, uuid.Nil) {
		return ErrDuplicateEmail
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Photo == "" {
		user.Photo = defaultPhoto
	}
	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = clone(user)
	return nil
}

func (r *memoryUserRepository) FindActiveByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok || !u.Active {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (r *memoryUserRepository) FindActiveByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *memoryUserRepository) FindActiveByResetHash(ctx context.Context, tokenHash string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return u.Reset != nil && u.Reset.TokenHash == tokenHash
	})
}

func (r *memoryUserRepository) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Active && match(u) {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepository) SetPendingReset(ctx context.Context, id uuid.UUID, reset model.PendingReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !u.Active {
		return ErrNotFound
	}
	u.Reset = &reset
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *memoryUserRepository) ClearPendingReset(ctx context.Context, id uuid.UUID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.Reset == nil || u.Reset.TokenHash != tokenHash {
		return ErrConflict
	}
	u.Reset = nil
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *memoryUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, change model.PasswordChange, resetHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !u.Active {
		if resetHash != "" {
			return ErrConflict
		}
		return ErrNotFound
	}
	if resetHash != "" && (u.Reset == nil || u.Reset.TokenHash != resetHash) {
		return ErrConflict
	}

	u.PasswordHash = change.Hash
	u.PasswordChangedAt = copyTime(change.ChangedAt)
	u.Reset = nil
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *memoryUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, profile model.Profile) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !u.Active {
		return nil, ErrNotFound
	}
	if r.emailInUse(profile.Email, id) {
		return nil, ErrDuplicateEmail
	}
	u.Name = profile.Name
	u.Email = profile.Email
	u.UpdatedAt = r.now().UTC()
	return clone(u), nil
}

func (r *memoryUserRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !u.Active {
		return ErrNotFound
	}
	u.Active = false
	u.UpdatedAt = r.now().UTC()
	return nil
}

// emailInUse must be called with mu held. Deactivated accounts keep their
// email reserved, as the unique index does in SQL.
func (r *memoryUserRepository) emailInUse(email string, except uuid.UUID) bool {
	for id, u := range r.users {
		if id != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func clone(u *model.User) *model.User {
	cp := *u
	cp.PasswordChangedAt = copyTime(u.PasswordChangedAt)
	if u.Reset != nil {
		reset := *u.Reset
		cp.Reset = &reset
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
