package github

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	errs  []error
	calls int
}

func (s *scriptedSource) Repos(context.Context, string) ([]Repo, error) {
	err := s.errs[s.calls%len(s.errs)]
	s.calls++
	return nil, err
}

func TestBreaker_OpensAfterThresholdAndRecovers(t *testing.T) {
	upstream := errors.New("502")
	src := &scriptedSource{errs: []error{upstream}}

	b := NewBreaker(src, BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	ctx := context.Background()

	_, err := b.Repos(ctx, "u")
	assert.ErrorIs(t, err, upstream)
	_, err = b.Repos(ctx, "u")
	assert.ErrorIs(t, err, upstream)

	_, err = b.Repos(ctx, "u")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, src.calls)

	// after the cooldown one trial call goes through and closes the circuit
	now = now.Add(2 * time.Minute)
	src.errs = []error{nil}

	_, err = b.Repos(ctx, "u")
	require.NoError(t, err)
	_, err = b.Repos(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 4, src.calls)
}

func TestBreaker_UnknownUserIsNotAFailure(t *testing.T) {
	src := &scriptedSource{errs: []error{ErrNotFound}}
	b := NewBreaker(src, BreakerConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		_, err := b.Repos(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 3, src.calls)
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	upstream := errors.New("timeout")
	src := &scriptedSource{errs: []error{upstream}}

	b := NewBreaker(src, BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	now := time.Now()
	b.now = func() time.Time { return now }

	_, _ = b.Repos(context.Background(), "u")
	now = now.Add(2 * time.Second)
	_, err := b.Repos(context.Background(), "u")
	assert.ErrorIs(t, err, upstream)

	_, err = b.Repos(context.Background(), "u")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
