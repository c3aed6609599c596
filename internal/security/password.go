package security

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Runner executes CPU-bound work, usually a *workpool.Pool.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

// Hasher hashes and checks passwords with bcrypt. The encoded hash carries
// its own salt and cost, so nothing else needs storing.
type Hasher struct {
	cost int
	pool Runner
}

func NewHasher(cost int, pool Runner) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &Hasher{cost: cost, pool: pool}
}

// Hash password hashes a plain text password with bcrypt.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	var hash []byte

	err := h.run(ctx, func() error {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(plain), h.cost)
		return err
	})

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify reports whether plain matches hash. A mismatch is (false, nil);
// only a malformed hash or a cancelled context returns an error.
func (h *Hasher) Verify(ctx context.Context, plain, hash string) (bool, error) {
	var cmpErr error

	err := h.run(ctx, func() error {
		cmpErr = bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
		return nil
	})

	if err != nil {
		return false, err
	}

	if cmpErr == nil {
		return true, nil
	}

	if errors.Is(cmpErr, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	return false, cmpErr
}

func (h *Hasher) run(ctx context.Context, fn func() error) error {
	if h.pool == nil {
		return fn()
	}
	return h.pool.Do(ctx, fn)
}
