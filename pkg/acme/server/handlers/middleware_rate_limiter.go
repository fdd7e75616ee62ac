package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme/server"
)

// RateLimiter is a token bucket keyed per client, refilled over the
// configured interval.
type RateLimiter struct {
	MaxRequests int
	Interval    time.Duration
	Tokens      map[string]int
	LastRequest map[string]time.Time
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		MaxRequests: maxRequests,
		Interval:    interval,
		Tokens:      make(map[string]int),
		LastRequest: make(map[string]time.Time),
	}
}

// MiddlewareFunc generates a rate-limiting middleware using the
// provided key function to bucket requests per client.
func (rl *RateLimiter) MiddlewareFunc(resourceKeyFunc func(r *http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl.mu.Lock()

			resourceKey := resourceKeyFunc(r)

			now := time.Now()
			last, seen := rl.LastRequest[resourceKey]
			if !seen {
				rl.Tokens[resourceKey] = rl.MaxRequests
			} else {
				// Refill proportionally to the time elapsed
				refillPeriod := rl.Interval / time.Duration(rl.MaxRequests)
				if refillPeriod > 0 {
					tokensToAdd := int(now.Sub(last) / refillPeriod)
					rl.Tokens[resourceKey] = min(rl.MaxRequests, rl.Tokens[resourceKey]+tokensToAdd)
				}
			}
			rl.LastRequest[resourceKey] = now

			if rl.Tokens[resourceKey] > 0 {
				rl.Tokens[resourceKey]--
				rl.mu.Unlock()
				next.ServeHTTP(w, r)
				return
			}
			rl.mu.Unlock()

			w.Header().Set("Retry-After", rl.Interval.String())
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"type":"urn:ietf:params:acme:error:rateLimited","detail":"Rate limit exceeded"}`))
		})
	}
}

// ClientID buckets a request by its JWS KID, falling back to the
// client's IP address for unauthenticated endpoints.
func ClientID(r *http.Request) string {

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return remoteIP(r)
	}
	defer r.Body.Close()

	// Restore the body so it can be read again by the handler
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	jwsString := strings.TrimSpace(string(body))
	jws, err := jose.ParseSigned(jwsString, server.AllowedJOSEAlgorithms)
	if err != nil {
		return remoteIP(r)
	}
	if len(jws.Signatures) == 0 {
		return remoteIP(r)
	}

	protectedHeader := jws.Signatures[0].Header
	if protectedHeader.KeyID == "" {
		return remoteIP(r)
	}
	return protectedHeader.KeyID
}

func remoteIP(r *http.Request) string {
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx > 0 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
