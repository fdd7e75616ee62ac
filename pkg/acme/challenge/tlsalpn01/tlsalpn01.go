// Package tlsalpn01 validates tls-alpn-01 challenges by negotiating
// the acme-tls/1 ALPN protocol and checking the returned validation
// certificate, as per RFC 8737.
package tlsalpn01

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"net"
	"strings"

	"github.com/mdobak/go-xerrors"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
)

const (
	// ALPN protocol ID reserved for validation handshakes
	ACMETLSProtocol = "acme-tls/1"

	DefaultPort = 443
)

// id-pe-acmeIdentifier, the extension carrying the key authorization
// digest in the validation certificate.
var IDPeAcmeIdentifier = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

type Verifier struct {
	port int
}

func NewVerifier(port int) *Verifier {
	if port <= 0 {
		port = DefaultPort
	}
	return &Verifier{port: port}
}

func (v *Verifier) Type() acme.ChallengeType {
	return acme.ChallengeTypeTLSALPN01
}

func (v *Verifier) Verify(ctx context.Context, domain, token, keyAuthorization string) error {
	dialer := &tls.Dialer{
		Config: &tls.Config{
			NextProtos:         []string{ACMETLSProtocol},
			ServerName:         domain,
			InsecureSkipVerify: true,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp",
		net.JoinHostPort(domain, fmt.Sprintf("%d", v.port)))
	if err != nil {
		return xerrors.New(err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if state.NegotiatedProtocol != ACMETLSProtocol {
		return fmt.Errorf("tls-alpn-01: negotiated %q, want %q",
			state.NegotiatedProtocol, ACMETLSProtocol)
	}
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("tls-alpn-01: no validation certificate presented")
	}
	return checkValidationCert(state.PeerCertificates[0], domain, keyAuthorization)
}

// checkValidationCert enforces RFC 8737 Section 3: exactly one dNSName
// SAN matching the identifier and a critical acmeIdentifier extension
// containing the SHA-256 digest of the key authorization.
func checkValidationCert(cert *x509.Certificate, domain, keyAuthorization string) error {
	if len(cert.DNSNames) != 1 || !strings.EqualFold(cert.DNSNames[0], domain) {
		return challenge.ErrUnexpectedIdentity
	}
	for _, extension := range cert.Extensions {
		if !extension.Id.Equal(IDPeAcmeIdentifier) {
			continue
		}
		if !extension.Critical {
			return fmt.Errorf("tls-alpn-01: acmeIdentifier extension not critical")
		}
		var digest []byte
		if _, err := asn1.Unmarshal(extension.Value, &digest); err != nil {
			return xerrors.New(err)
		}
		expected := sha256.Sum256([]byte(keyAuthorization))
		if !bytes.Equal(digest, expected[:]) {
			return challenge.ErrKeyAuthMismatch
		}
		return nil
	}
	return fmt.Errorf("tls-alpn-01: validation certificate missing acmeIdentifier extension")
}
