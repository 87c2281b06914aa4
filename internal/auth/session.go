package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoChallenge  = errors.New("no pending challenge")
	ErrExpired      = errors.New("expired")
	ErrInvalidToken = errors.New("invalid session token")
)

const (
	ChallengeTTL      = 5 * time.Minute
	DefaultSessionTTL = 24 * time.Hour
)

// Challenge is the message a wallet signs to log in
type Challenge struct {
	Address   common.Address `json:"address"`
	Nonce     string         `json:"nonce"`
	Message   string         `json:"message"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Session is an authenticated wallet
type Session struct {
	Token     string         `json:"token"`
	Address   common.Address `json:"address"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// SessionManager runs challenge/response login and tracks bearer tokens
type SessionManager struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	challenges map[common.Address]Challenge
	sessions   map[string]Session
}

// NewSessionManager creates a manager issuing tokens valid for ttl
func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		ttl:        ttl,
		now:        time.Now,
		challenges: make(map[common.Address]Challenge),
		sessions:   make(map[string]Session),
	}
}

// ChallengeMessage is the text signed for a nonce
func ChallengeMessage(addr common.Address, nonce string) string {
	return fmt.Sprintf("Sign in to HackMarket\n\nAddress: %s\nNonce: %s", addr.Hex(), nonce)
}

// Challenge issues a fresh challenge for addr, replacing any pending one
func (m *SessionManager) Challenge(addr common.Address) Challenge {
	nonce := uuid.NewString()
	c := Challenge{
		Address:   addr,
		Nonce:     nonce,
		Message:   ChallengeMessage(addr, nonce),
		ExpiresAt: m.now().Add(ChallengeTTL),
	}

	m.mu.Lock()
	m.challenges[addr] = c
	m.mu.Unlock()
	return c
}

// Verify checks the signature over the pending challenge and opens a session.
// A challenge can be answered once, right or wrong.
func (m *SessionManager) Verify(addr common.Address, signature string) (Session, error) {
	m.mu.Lock()
	c, ok := m.challenges[addr]
	delete(m.challenges, addr)
	m.mu.Unlock()

	if !ok {
		return Session{}, ErrNoChallenge
	}
	if m.now().After(c.ExpiresAt) {
		return Session{}, fmt.Errorf("challenge %w", ErrExpired)
	}

	valid, err := VerifySignature([]byte(c.Message), signature, addr)
	if err != nil {
		return Session{}, err
	}
	if !valid {
		return Session{}, fmt.Errorf("%w: signer is not %s", ErrBadSignature, addr.Hex())
	}

	s := Session{
		Token:     uuid.NewString(),
		Address:   addr,
		ExpiresAt: m.now().Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()

	log.Info().Str("account", addr.Hex()).Time("expires_at", s.ExpiresAt).Msg("session opened")
	return s, nil
}

// Resolve returns the account behind a bearer token
func (m *SessionManager) Resolve(token string) (common.Address, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return common.Address{}, ErrInvalidToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return common.Address{}, ErrInvalidToken
	}
	if m.now().After(s.ExpiresAt) {
		delete(m.sessions, token)
		return common.Address{}, fmt.Errorf("session %w", ErrExpired)
	}
	return s.Address, nil
}

// Revoke ends a session
func (m *SessionManager) Revoke(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// Sweep drops expired challenges and sessions
func (m *SessionManager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for addr, c := range m.challenges {
		if now.After(c.ExpiresAt) {
			delete(m.challenges, addr)
			removed++
		}
	}
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("expired sessions swept")
			}
		}
	}
}
