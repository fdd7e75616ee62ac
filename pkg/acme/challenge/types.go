package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/mdobak/go-xerrors"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
)

const tokenBytes = 32

var (
	ErrQueueFull          = errors.New("challenge: validation queue full")
	ErrEngineClosed       = errors.New("challenge: engine closed")
	ErrKeyAuthMismatch    = errors.New("challenge: key authorization mismatch")
	ErrUnexpectedIdentity = errors.New("challenge: certificate identity mismatch")
)

// Verifier performs a single validation attempt for one challenge
// type against the identifier's host.
type Verifier interface {
	Type() acme.ChallengeType
	Verify(ctx context.Context, domain, token, keyAuthorization string) error
}

// Job is one queued validation attempt. The key authorization is
// computed by the caller from the account key before dispatch.
type Job struct {
	AccountID        uint64
	AuthorizationID  uint64
	ChallengeID      uint64
	KeyAuthorization string
}

// Offer builds the challenge set for a new authorization. Wildcard
// identifiers are only offered dns-01; everything else gets the full
// enabled set.
func Offer(enabled []acme.ChallengeType, wildcard bool) ([]entities.ACMEChallenge, error) {
	types := enabled
	if wildcard {
		types = intersect(enabled, acme.WildcardChallengeTypes)
	}
	challenges := make([]entities.ACMEChallenge, 0, len(types))
	for _, challengeType := range types {
		token, err := NewToken()
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, entities.ACMEChallenge{
			Type:   challengeType.String(),
			Status: acme.StatusPending,
			Token:  token,
		})
	}
	return challenges, nil
}

// NewToken returns a fresh base64url challenge token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", xerrors.New(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func intersect(enabled, allowed []acme.ChallengeType) []acme.ChallengeType {
	result := make([]acme.ChallengeType, 0, len(allowed))
	for _, challengeType := range enabled {
		for _, allowedType := range allowed {
			if challengeType == allowedType {
				result = append(result, challengeType)
			}
		}
	}
	return result
}
