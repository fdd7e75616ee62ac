package acme

import (
	"crypto"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// ACME status values of Account, Order, Authorization and Challenge objects.
// See https://tools.ietf.org/html/rfc8555#section-7.1.6 for details.
const (
	StatusValid       = "valid"       // Entity is valid (account, order, authorization, certificate)
	StatusPending     = "pending"     // Entity is pending (order, authorization, challenge)
	StatusProcessing  = "processing"  // Entity is processing (order, challenge)
	StatusInvalid     = "invalid"     // Entity is invalid (order, authorization, challenge)
	StatusDeactivated = "deactivated" // Entity is deactivated (account)
	StatusExpired     = "expired"     // Entity is expired (authorization, certificate)
	StatusRevoked     = "revoked"     // Entity is revoked (account, authorization, certificate)
	StatusReady       = "ready"       // Entity is ready (order)

	AuthzTypeDNS AuthzType = "dns"

	ChallengeTypeHTTP01    ChallengeType = "http-01"
	ChallengeTypeDNS01     ChallengeType = "dns-01"
	ChallengeTypeTLSALPN01 ChallengeType = "tls-alpn-01"
)

var (
	ErrInvalidAuthzType     = errors.New("acme: invalid authorization type")
	ErrInvalidChallengeType = errors.New("acme: invalid challenge type")
	ErrAccountAlreadyExists = errors.New("acme: account already exists")
	ErrAccountNotFound      = errors.New("acme: account not found")
	ErrInvalidCertRequest   = errors.New("acme: invalid certificate request")
	ErrChallengeNotFound    = errors.New("acme: challenge not found")

	AuthzMap = map[string]AuthzType{
		AuthzTypeDNS.String(): AuthzTypeDNS,
	}

	// Challenge types offered for a standard dns identifier. Wildcard
	// identifiers are restricted to WildcardChallengeTypes because
	// control over *.example.com can't be proven over HTTP or TLS.
	DNSChallengeTypes = []ChallengeType{
		ChallengeTypeHTTP01,
		ChallengeTypeDNS01,
		ChallengeTypeTLSALPN01,
	}

	WildcardChallengeTypes = []ChallengeType{
		ChallengeTypeDNS01,
	}
)

// Directory provides the ACME server's directory endpoints as per RFC 8555.
type Directory struct {
	NewNonce   string `json:"newNonce"`
	NewAccount string `json:"newAccount"`
	NewOrder   string `json:"newOrder"`
	RevokeCert string `json:"revokeCert"`
	KeyChange  string `json:"keyChange"`
	Meta       Meta   `json:"meta"`
}

// Meta provides additional information about the ACME server.
type Meta struct {
	TermsOfService     string   `json:"termsOfService,omitempty"`
	Website            string   `json:"website,omitempty"`
	CAAIdentities      []string `json:"caaIdentities,omitempty"`
	ExternalAccountReq bool     `json:"externalAccountRequired,omitempty"`
}

type AuthzType string

func (authzType AuthzType) String() string {
	return string(authzType)
}

type ChallengeType string

func (challengeType ChallengeType) String() string {
	return string(challengeType)
}

func ParseChallengeType(challengeType string) (ChallengeType, error) {
	switch challengeType {
	case ChallengeTypeHTTP01.String():
		return ChallengeTypeHTTP01, nil
	case ChallengeTypeDNS01.String():
		return ChallengeTypeDNS01, nil
	case ChallengeTypeTLSALPN01.String():
		return ChallengeTypeTLSALPN01, nil
	default:
		return "", ErrInvalidChallengeType
	}
}

// JWKThumbprint returns the base64url encoded RFC 7638 SHA-256
// thumbprint of the provided public key.
func JWKThumbprint(pubKey crypto.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pubKey}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// KeyAuthorization concatenates a challenge token with the account
// key's JWK thumbprint, as per RFC 8555 Section 8.1.
func KeyAuthorization(token string, accountKey crypto.PublicKey) (string, error) {
	thumbprint, err := JWKThumbprint(accountKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", token, thumbprint), nil
}

// GenerateID returns a random 64-bit object identifier for orders,
// authorizations and challenges.
func GenerateID() (uint64, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// GenerateAccountID derives a stable account ID from the account
// public key's RFC 7638 thumbprint, keying account registration by
// public key identity.
func GenerateAccountID(pubKey crypto.PublicKey) (uint64, error) {
	jwk := jose.JSONWebKey{Key: pubKey}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(thumbprint[:8]), nil
}
