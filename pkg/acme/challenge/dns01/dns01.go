// Package dns01 validates dns-01 challenges by querying the
// _acme-challenge TXT record for the SHA-256 digest of the key
// authorization, as per RFC 8555 Section 8.4.
package dns01

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/mdobak/go-xerrors"
	"github.com/miekg/dns"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
)

const ChallengeLabel = "_acme-challenge"

type Verifier struct {
	resolver string
	client   *dns.Client
}

// NewVerifier creates a dns-01 verifier that queries the given
// resolver ("host:port").
func NewVerifier(resolver string) *Verifier {
	return &Verifier{
		resolver: resolver,
		client:   new(dns.Client),
	}
}

func (v *Verifier) Type() acme.ChallengeType {
	return acme.ChallengeTypeDNS01
}

// ExpectedValue returns the TXT record value that proves control of
// the domain: the base64url encoded SHA-256 digest of the key
// authorization.
func ExpectedValue(keyAuthorization string) string {
	digest := sha256.Sum256([]byte(keyAuthorization))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

func (v *Verifier) Verify(ctx context.Context, domain, token, keyAuthorization string) error {
	fqdn := dns.Fqdn(fmt.Sprintf("%s.%s", ChallengeLabel, domain))
	message := new(dns.Msg)
	message.SetQuestion(fqdn, dns.TypeTXT)
	message.RecursionDesired = true

	response, _, err := v.client.ExchangeContext(ctx, message, v.resolver)
	if err != nil {
		return xerrors.New(err)
	}
	if response.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("dns-01: query for %s returned %s",
			fqdn, dns.RcodeToString[response.Rcode])
	}

	expected := ExpectedValue(keyAuthorization)
	for _, answer := range response.Answer {
		txt, ok := answer.(*dns.TXT)
		if !ok {
			continue
		}
		for _, value := range txt.Txt {
			if value == expected {
				return nil
			}
		}
	}
	return challenge.ErrKeyAuthMismatch
}
