package acme

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

var ErrBadNonce = errors.New("acme: invalid, consumed or expired nonce")

// NonceStore issues single-use anti-replay tokens and validates them
// at most once. Expired nonces are rejected lazily on Consume and
// reclaimed by a periodic sweeper to bound memory.
type NonceStore struct {
	nonces map[string]time.Time
	mu     sync.Mutex
	size   int
	ttl    time.Duration
	done   chan struct{}
	once   sync.Once
}

// NewNonceStore initializes a NonceStore issuing nonces of the given
// byte length with the specified TTL, and starts the sweeper.
func NewNonceStore(size int, ttl time.Duration) *NonceStore {
	store := &NonceStore{
		nonces: make(map[string]time.Time),
		size:   size,
		ttl:    ttl,
		done:   make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.sweep()
			case <-store.done:
				return
			}
		}
	}()

	return store
}

// Issue generates a fresh unpredictable nonce and registers it as
// outstanding.
func (s *NonceStore) Issue() (string, error) {
	nonce, err := GenerateNonce(s.size)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = time.Now()
	return nonce, nil
}

// Consume atomically checks membership of the outstanding set and
// removes the nonce. A second Consume with the same token, or a token
// past its TTL, fails with ErrBadNonce.
func (s *NonceStore) Consume(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, exists := s.nonces[nonce]
	if !exists {
		return ErrBadNonce
	}
	delete(s.nonces, nonce)
	if time.Since(ts) > s.ttl {
		return ErrBadNonce
	}
	return nil
}

// Close stops the sweeper goroutine.
func (s *NonceStore) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// sweep removes expired nonces from the store
func (s *NonceStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for nonce, ts := range s.nonces {
		if now.Sub(ts) > s.ttl {
			delete(s.nonces, nonce)
		}
	}
}

// GenerateNonce creates a new secure random token encoded as URL-safe
// base64 without padding, as ACME nonces require.
func GenerateNonce(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
