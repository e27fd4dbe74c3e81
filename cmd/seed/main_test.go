package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"natours/internal/auth"
	"natours/internal/logging"
	"natours/internal/mailer"
	"natours/internal/model"
	"natours/internal/password"
	"natours/internal/repository"
	"natours/internal/service"
)

const seedJSON = `[
	{"name": "Jonas Admin", "email": "admin@natours.io", "password": "test1234", "role": "admin"},
	{"name": "Lea Guide", "email": "lea@natours.io", "password": "test1234", "role": "lead-guide"},
	{"name": "Dup", "email": "ADMIN@natours.io", "password": "test1234"},
	{"name": "Short", "email": "short@natours.io", "password": "123"}
]`

func TestLoadUsers_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))

	users, err := loadUsers(path)
	require.NoError(t, err)
	require.Len(t, users, 4)
	assert.Equal(t, "admin", users[0].Role)
}

func TestLoadUsers_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(seedJSON))
	}))
	defer srv.Close()

	users, err := loadUsers(srv.URL + "/users.json")
	require.NoError(t, err)
	assert.Len(t, users, 4)

	_, err = loadUsers(srv.URL + "/missing.json")
	assert.ErrorContains(t, err, "404")
}

func TestLoadUsers_Invalid(t *testing.T) {
	_, err := loadUsers(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = loadUsers(path)
	assert.ErrorContains(t, err, "parse JSON")
}

func TestSeedUsers(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	tokens, err := auth.NewJWTService(auth.TokenConfig{Secret: []byte("seed-secret"), TTL: time.Hour})
	require.NoError(t, err)
	hasher, err := password.NewHasher(password.Config{Algorithm: password.AlgorithmBcrypt, BcryptCost: bcrypt.MinCost, Workers: 2})
	require.NoError(t, err)

	svc := service.NewAuthService(repo, tokens, hasher, mailer.NewLogMailer(logging.Discard(), time.Minute), nil, service.AuthConfig{
		PasswordMinLength: 8,
		SignupRoles:       model.Roles(),
	}, logging.Discard())

	users := []SeedUser{
		{Name: "Jonas Admin", Email: "admin@natours.io", Password: "test1234", Role: "admin"},
		{Name: "Lea Guide", Email: "lea@natours.io", Password: "test1234", Role: "lead-guide"},
		{Name: "Dup", Email: "ADMIN@natours.io", Password: "test1234"},
		{Name: "Short", Email: "short@natours.io", Password: "123"},
	}

	created, skipped, err := seedUsers(context.Background(), svc, users, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, skipped)

	admin, err := repo.FindActiveByEmail(context.Background(), "admin@natours.io")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.NotEqual(t, "test1234", admin.PasswordHash)
}
