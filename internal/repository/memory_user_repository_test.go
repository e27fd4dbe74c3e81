package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natours/internal/model"
)

func seedUser(t *testing.T, repo UserRepository, email string) *model.User {
	t.Helper()
	u := &model.User{
		Name:         "Test User",
		Email:        email,
		Role:         model.RoleUser,
		PasswordHash: "$2a$04$hash",
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestMemoryUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	u := seedUser(t, repo, "a@example.com")
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, defaultPhoto, u.Photo)

	byID, err := repo.FindActiveByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", byID.Email)

	byEmail, err := repo.FindActiveByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.FindActiveByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewMemoryUserRepository()
	seedUser(t, repo, "dup@example.com")

	err := repo.Create(context.Background(), &model.User{Email: "dup@example.com", Active: true})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemoryUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := seedUser(t, repo, "copy@example.com")

	got, err := repo.FindActiveByID(ctx, u.ID)
	require.NoError(t, err)
	got.PasswordHash = "tampered"

	again, err := repo.FindActiveByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$hash", again.PasswordHash)
}

func TestMemoryUserRepository_DeactivatedUsersAreInvisible(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := seedUser(t, repo, "gone@example.com")
	require.NoError(t, repo.SetPendingReset(ctx, u.ID, model.PendingReset{TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}))

	require.NoError(t, repo.Deactivate(ctx, u.ID))

	_, err := repo.FindActiveByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindActiveByEmail(ctx, "gone@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindActiveByResetHash(ctx, "h")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Deactivate(ctx, u.ID), ErrNotFound)
	assert.ErrorIs(t, seedErr(repo, "gone@example.com"), ErrDuplicateEmail)
}

func seedErr(repo UserRepository, email string) error {
	return repo.Create(context.Background(), &model.User{Email: email, Active: true})
}

func TestMemoryUserRepository_PendingReset(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := seedUser(t, repo, "reset@example.com")
	expires := time.Now().Add(10 * time.Minute)

	require.NoError(t, repo.SetPendingReset(ctx, u.ID, model.PendingReset{TokenHash: "first", ExpiresAt: expires}))
	require.NoError(t, repo.SetPendingReset(ctx, u.ID, model.PendingReset{TokenHash: "second", ExpiresAt: expires}))

	_, err := repo.FindActiveByResetHash(ctx, "first")
	assert.ErrorIs(t, err, ErrNotFound, "a newer reset replaces the old one")

	found, err := repo.FindActiveByResetHash(ctx, "second")
	require.NoError(t, err)
	require.NotNil(t, found.Reset)
	assert.True(t, expires.Equal(found.Reset.ExpiresAt))

	assert.ErrorIs(t, repo.ClearPendingReset(ctx, u.ID, "first"), ErrConflict)
	found, err = repo.FindActiveByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, found.Reset, "stale clear must not touch the newer reset")

	require.NoError(t, repo.ClearPendingReset(ctx, u.ID, "second"))
	found, err = repo.FindActiveByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, found.Reset)
}

func TestMemoryUserRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	changedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		pending   string
		resetHash string
		wantErr   error
	}{
		{name: "unconditional", pending: "", resetHash: "", wantErr: nil},
		{name: "unconditional clears pending reset", pending: "h1", resetHash: "", wantErr: nil},
		{name: "matching reset", pending: "h1", resetHash: "h1", wantErr: nil},
		{name: "reset superseded", pending: "h2", resetHash: "h1", wantErr: ErrConflict},
		{name: "reset already consumed", pending: "", resetHash: "h1", wantErr: ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryUserRepository()
			u := seedUser(t, repo, "pw@example.com")
			if tt.pending != "" {
				require.NoError(t, repo.SetPendingReset(ctx, u.ID, model.PendingReset{TokenHash: tt.pending, ExpiresAt: changedAt.Add(time.Hour)}))
			}

			err := repo.UpdatePassword(ctx, u.ID, model.PasswordChange{Hash: "new-hash", ChangedAt: &changedAt}, tt.resetHash)
			got, findErr := repo.FindActiveByID(ctx, u.ID)
			require.NoError(t, findErr)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, "$2a$04$hash", got.PasswordHash)
				assert.Nil(t, got.PasswordChangedAt)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "new-hash", got.PasswordHash)
			require.NotNil(t, got.PasswordChangedAt)
			assert.True(t, changedAt.Equal(*got.PasswordChangedAt))
			assert.Nil(t, got.Reset)
		})
	}
}

func TestMemoryUserRepository_ConcurrentResetConsumption(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := seedUser(t, repo, "race@example.com")
	require.NoError(t, repo.SetPendingReset(ctx, u.ID, model.PendingReset{TokenHash: "once", ExpiresAt: time.Now().Add(time.Hour)}))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now()
			if err := repo.UpdatePassword(ctx, u.ID, model.PasswordChange{Hash: "x", ChangedAt: &now}, "once"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestMemoryUserRepository_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := seedUser(t, repo, "me@example.com")
	seedUser(t, repo, "taken@example.com")

	updated, err := repo.UpdateProfile(ctx, u.ID, model.Profile{Name: "New Name", Email: "me2@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, "me2@example.com", updated.Email)

	_, err = repo.UpdateProfile(ctx, u.ID, model.Profile{Name: "x", Email: "taken@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = repo.UpdateProfile(ctx, uuid.New(), model.Profile{Name: "x", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}
