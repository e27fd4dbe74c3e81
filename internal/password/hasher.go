// Package password hashes and verifies account passwords.
//
// Hashing is deliberately slow, so every call goes through a bounded pool.
// Callers that give up while waiting for a slot get ctx.Err(); work that has
// already started always runs to completion.
package password

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// dummyPlaintext is hashed once at startup so unknown-account logins spend
// the same time as real ones.
const dummyPlaintext = "natours-timing-equaliser"

// Algorithm is a single password hashing scheme.
type Algorithm interface {
	Hash(plaintext string) (string, error)
	// Verify returns false for mismatches and for malformed encoded hashes.
	Verify(plaintext, encoded string) bool
	// Recognizes reports whether encoded was produced by this scheme.
	Recognizes(encoded string) bool
	// MaxLength is the longest plaintext in bytes the scheme accepts, 0 if unbounded.
	MaxLength() int
}

// Config selects the algorithm and bounds concurrency.
type Config struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Params
	Workers    int
}

// Hasher hashes with the configured algorithm and verifies against any
// supported one, so switching algorithms does not lock existing users out.
type Hasher struct {
	primary Algorithm
	known   []Algorithm
	slots   *semaphore.Weighted
	dummy   string
}

// NewHasher builds a Hasher from cfg.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Workers < 1 {
		return nil, errors.New("password: workers must be at least 1")
	}

	bc := NewBcrypt(cfg.BcryptCost)
	ar := NewArgon2id(cfg.Argon2)

	var primary Algorithm
	switch cfg.Algorithm {
	case AlgorithmBcrypt, "":
		primary = bc
	case AlgorithmArgon2id:
		primary = ar
	default:
		return nil, fmt.Errorf("password: unsupported algorithm %q", cfg.Algorithm)
	}

	dummy, err := primary.Hash(dummyPlaintext)
	if err != nil {
		return nil, fmt.Errorf("password: precompute dummy hash: %w", err)
	}

	return &Hasher{
		primary: primary,
		known:   []Algorithm{bc, ar},
		slots:   semaphore.NewWeighted(int64(cfg.Workers)),
		dummy:   dummy,
	}, nil
}

// Hash returns a salted hash of plaintext.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	return h.primary.Hash(plaintext)
}

// MaxLength is the longest plaintext in bytes that Hash accepts, 0 if unbounded.
func (h *Hasher) MaxLength() int {
	return h.primary.MaxLength()
}

// Verify reports whether plaintext matches encoded. The error is non-nil
// only when ctx ended before a worker slot was available.
func (h *Hasher) Verify(ctx context.Context, plaintext, encoded string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	for _, alg := range h.known {
		if alg.Recognizes(encoded) {
			return alg.Verify(plaintext, encoded), nil
		}
	}
	return false, nil
}

// Dummy burns one verification so callers can hide whether an account exists.
func (h *Hasher) Dummy(ctx context.Context, plaintext string) {
	_, _ = h.Verify(ctx, plaintext, h.dummy)
}
