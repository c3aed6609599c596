package github

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("github circuit breaker open")

type BreakerConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

type state int

const (
	closed state = iota
	open
	halfOpen
)

// RepoSource is anything that can list a user's repositories; *Client is one.
type RepoSource interface {
	Repos(ctx context.Context, username string) ([]Repo, error)
}

// Breaker stops calling GitHub after repeated upstream failures so a slow
// or rate-limited API does not tie up request goroutines. An unknown user is
// an answer, not a failure.
type Breaker struct {
	inner RepoSource
	cfg   BreakerConfig
	now   func() time.Time

	mu                  sync.Mutex
	state               state
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewBreaker(inner RepoSource, cfg BreakerConfig) *Breaker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Breaker{inner: inner, cfg: cfg, now: time.Now}
}

func (b *Breaker) Repos(ctx context.Context, username string) ([]Repo, error) {
	if !b.allowRequest() {
		return nil, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	repos, err := b.inner.Repos(callCtx, username)

	b.afterRequest(err)

	return repos, err
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = halfOpen
		b.halfOpenInFlight = 1
		return true
	case halfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == halfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if err == nil || errors.Is(err, ErrNotFound) {
		b.consecutiveFailures = 0
		b.state = closed
		return
	}

	b.consecutiveFailures++

	// a failed trial call reopens immediately
	if b.state == halfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = open
		b.openedAt = b.now()
	}
}
