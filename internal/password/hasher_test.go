package password

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastArgon2() Argon2Params {
	return Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newTestHasher(t *testing.T, algorithm string, workers int) *Hasher {
	t.Helper()
	h, err := NewHasher(Config{
		Algorithm:  algorithm,
		BcryptCost: bcrypt.MinCost,
		Argon2:     fastArgon2(),
		Workers:    workers,
	})
	require.NoError(t, err)
	return h
}

func TestHasher_RoundTrip(t *testing.T) {
	for _, alg := range []string{AlgorithmBcrypt, AlgorithmArgon2id} {
		t.Run(alg, func(t *testing.T) {
			h := newTestHasher(t, alg, 2)
			ctx := context.Background()

			hash, err := h.Hash(ctx, "secret123")
			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, "secret123", hash)

			ok, err := h.Verify(ctx, "secret123", hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify(ctx, "secret124", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasher_SaltedPerCall(t *testing.T) {
	for _, alg := range []string{AlgorithmBcrypt, AlgorithmArgon2id} {
		t.Run(alg, func(t *testing.T) {
			h := newTestHasher(t, alg, 1)
			ctx := context.Background()

			first, err := h.Hash(ctx, "same-password")
			require.NoError(t, err)
			second, err := h.Hash(ctx, "same-password")
			require.NoError(t, err)

			assert.NotEqual(t, first, second)
		})
	}
}

func TestHasher_VerifiesAcrossAlgorithms(t *testing.T) {
	ctx := context.Background()
	legacy := newTestHasher(t, AlgorithmBcrypt, 1)
	current := newTestHasher(t, AlgorithmArgon2id, 1)

	hash, err := legacy.Hash(ctx, "hunter2hunter2")
	require.NoError(t, err)

	ok, err := current.Verify(ctx, "hunter2hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_MalformedHashIsNoMatch(t *testing.T) {
	h := newTestHasher(t, AlgorithmArgon2id, 1)
	ctx := context.Background()

	malformed := []string{
		"",
		"plaintext",
		"$2a$04$short",
		"$argon2id$v=19$m=abc,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdA$a2V5",
	}
	for _, m := range malformed {
		ok, err := h.Verify(ctx, "whatever", m)
		assert.NoError(t, err, m)
		assert.False(t, ok, m)
	}
}

func TestHasher_WaitingHonoursContext(t *testing.T) {
	h := newTestHasher(t, AlgorithmBcrypt, 1)

	// Occupy the only slot.
	require.NoError(t, h.slots.Acquire(context.Background(), 1))
	defer h.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Hash(ctx, "secret123")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = h.Verify(ctx, "secret123", "$2a$04$x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewHasher_RejectsBadConfig(t *testing.T) {
	_, err := NewHasher(Config{Algorithm: "md5", Workers: 1})
	assert.Error(t, err)

	_, err = NewHasher(Config{Algorithm: AlgorithmBcrypt, Workers: 0})
	assert.Error(t, err)
}

func TestHasher_MaxLength(t *testing.T) {
	ctx := context.Background()

	bc := newTestHasher(t, AlgorithmBcrypt, 1)
	assert.Equal(t, 72, bc.MaxLength())
	_, err := bc.Hash(ctx, strings.Repeat("a", bc.MaxLength()))
	require.NoError(t, err)
	_, err = bc.Hash(ctx, strings.Repeat("a", bc.MaxLength()+1))
	assert.ErrorIs(t, err, bcrypt.ErrPasswordTooLong)

	ar := newTestHasher(t, AlgorithmArgon2id, 1)
	assert.Zero(t, ar.MaxLength())
	_, err = ar.Hash(ctx, strings.Repeat("a", 200))
	require.NoError(t, err)
}
