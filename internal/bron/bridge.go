// Package bron fronts the BRON link-building API. The bridge converts
// one upstream login into a short-lived local token so browser clients
// never hold BRON credentials, and the client proxies allowlisted
// actions with the service key attached.
package bron

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

// Clock supplies the current time, injectable for tests.
type Clock interface {
	Now() time.Time
}

// TokenValidator reports whether an upstream token still authenticates
// against BRON. The Client implements it with a cheap read call.
type TokenValidator interface {
	ValidateToken(ctx context.Context, upstreamToken string) (bool, error)
}

// Session is one bridged login.
type Session struct {
	Token         string    `json:"token"`
	UpstreamToken string    `json:"-"`
	Email         string    `json:"email"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Bridge maps local tokens to upstream sessions with a fixed TTL.
// Expired entries are removed lazily on lookup and on the sweep that
// precedes each insert.
type Bridge struct {
	mu        sync.RWMutex
	ttl       time.Duration
	clock     Clock
	validator TokenValidator
	logger    *zap.Logger
	sessions  map[string]Session
}

// NewBridge builds an empty bridge. A nil validator disables upstream
// revalidation (tests, offline development).
func NewBridge(ttl time.Duration, clock Clock, validator TokenValidator, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		ttl:       ttl,
		clock:     clock,
		validator: validator,
		logger:    logger.Named("bron.bridge"),
		sessions:  make(map[string]Session),
	}
}

// Create mints a local token for an upstream session.
func (b *Bridge) Create(upstreamToken, email string) (Session, error) {
	token, err := randomToken()
	if err != nil {
		return Session{}, fmt.Errorf("mint session token: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.sweepLocked(now)

	s := Session{
		Token:         token,
		UpstreamToken: upstreamToken,
		Email:         email,
		CreatedAt:     now,
		ExpiresAt:     now.Add(b.ttl),
	}
	b.sessions[token] = s
	metrics.SetBronSessionsActive(len(b.sessions))
	b.logger.Debug("session created", zap.String("email", email))
	return s, nil
}

// Lookup resolves a local token. Expired sessions are deleted on the
// way out and reported as absent.
func (b *Bridge) Lookup(token string) (Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[token]
	if !ok {
		return Session{}, false
	}
	if !b.clock.Now().Before(s.ExpiresAt) {
		delete(b.sessions, token)
		metrics.SetBronSessionsActive(len(b.sessions))
		return Session{}, false
	}
	return s, true
}

// Refresh slides a live session's expiry forward by the TTL.
func (b *Bridge) Refresh(token string) (Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[token]
	if !ok {
		return Session{}, false
	}
	now := b.clock.Now()
	if !now.Before(s.ExpiresAt) {
		delete(b.sessions, token)
		metrics.SetBronSessionsActive(len(b.sessions))
		return Session{}, false
	}
	s.ExpiresAt = now.Add(b.ttl)
	b.sessions[token] = s
	return s, true
}

// RefreshAll sweeps expired sessions, revalidates every survivor's
// upstream token, drops the ones BRON no longer accepts, and slides
// the rest forward by the TTL. The health monitor calls this as the
// token_refresh remedy. Validation errors (network, 5xx) keep the
// session; only a definitive rejection drops it.
func (b *Bridge) RefreshAll(ctx context.Context) int {
	b.mu.Lock()
	now := b.clock.Now()
	b.sweepLocked(now)
	live := make([]Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		live = append(live, s)
	}
	b.mu.Unlock()

	dead := make([]string, 0)
	if b.validator != nil {
		for _, s := range live {
			ok, err := b.validator.ValidateToken(ctx, s.UpstreamToken)
			if err != nil {
				b.logger.Warn("upstream validation inconclusive",
					zap.String("email", s.Email), zap.Error(err))
				continue
			}
			if !ok {
				dead = append(dead, s.Token)
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, token := range dead {
		delete(b.sessions, token)
	}
	for token, s := range b.sessions {
		s.ExpiresAt = now.Add(b.ttl)
		b.sessions[token] = s
	}
	metrics.SetBronSessionsActive(len(b.sessions))
	b.logger.Info("refreshed all sessions",
		zap.Int("count", len(b.sessions)),
		zap.Int("dropped_dead", len(dead)))
	return len(b.sessions)
}

// Revoke drops a session, reporting whether it existed.
func (b *Bridge) Revoke(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[token]; !ok {
		return false
	}
	delete(b.sessions, token)
	metrics.SetBronSessionsActive(len(b.sessions))
	return true
}

// Sweep removes expired sessions and reports how many were dropped.
func (b *Bridge) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sweepLocked(b.clock.Now())
}

// Len reports live session count. Expired-but-unswept entries count
// until the next lookup or sweep touches them.
func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

func (b *Bridge) sweepLocked(now time.Time) int {
	dropped := 0
	for token, s := range b.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(b.sessions, token)
			dropped++
		}
	}
	if dropped > 0 {
		metrics.SetBronSessionsActive(len(b.sessions))
		b.logger.Debug("swept expired sessions", zap.Int("dropped", dropped))
	}
	return dropped
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
