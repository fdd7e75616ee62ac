package ca

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

var (
	ErrNotInitialized        = errors.New("ca: certificate authority not initialized")
	ErrCertificateNotFound   = errors.New("ca: certificate not found")
	ErrInvalidSignature      = errors.New("ca: invalid CSR signature")
	ErrUnauthorizedSubject   = errors.New("ca: CSR subject broader than authorized identifiers")
	ErrAlreadyRevoked        = errors.New("ca: certificate already revoked")
	ErrSigningKeyUnavailable = errors.New("ca: signing key unavailable")
)

// Config is the certificate-authority section of the platform
// configuration file.
type Config struct {
	CommonName   string `yaml:"common-name" json:"common_name" mapstructure:"common-name"`
	Organization string `yaml:"organization" json:"organization" mapstructure:"organization"`
	Country      string `yaml:"country" json:"country" mapstructure:"country"`
	Home         string `yaml:"home" json:"home" mapstructure:"home"`
	// Leaf certificate validity in days
	ValidDays int `yaml:"valid-days" json:"valid_days" mapstructure:"valid-days"`
}

var DefaultConfig = Config{
	CommonName:   "ACME Private CA",
	Organization: "Example Org",
	Country:      "US",
	Home:         "ca",
	ValidDays:    90,
}

// CertificateAuthority signs certificates from validated ACME orders
// using a root / intermediate signing hierarchy.
type CertificateAuthority interface {
	// CABundle returns the PEM encoded intermediate + root chain.
	CABundle() ([]byte, error)

	// CRL returns a DER encoded certificate revocation list signed by
	// the intermediate.
	CRL() ([]byte, error)

	// Identity returns the issuing (intermediate) certificate.
	Identity() (*x509.Certificate, error)

	// Revoke marks the certificate with the given serial revoked.
	// Returns ErrAlreadyRevoked on a second revocation.
	Revoke(serialNumber uint64) error

	// SignCSR validates the certificate request's signature, verifies
	// its identifier set is no broader than the authorized set, and
	// returns the signed leaf plus the PEM encoded chain.
	SignCSR(csr *x509.CertificateRequest, authorized []string,
		validity time.Duration) (*x509.Certificate, []byte, error)

	// TLSCertificate issues a server certificate for the web service
	// listener, signed by the intermediate.
	TLSCertificate(cn string, dnsNames []string) (tls.Certificate, error)

	// Verify checks the certificate chains to this CA and has not
	// been revoked.
	Verify(certificate *x509.Certificate) error
}
