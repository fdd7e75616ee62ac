package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"
	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

const (
	rootKeyFile          = "root.key.pem"
	rootCertFile         = "root.crt.pem"
	intermediateKeyFile  = "intermediate.key.pem"
	intermediateCertFile = "intermediate.crt.pem"
	revokedDir           = "revoked"

	pemTypeECPrivateKey = "EC PRIVATE KEY"
	pemTypeCertificate  = "CERTIFICATE"

	rootValidYears         = 10
	intermediateValidYears = 5
)

// Params contains the certificate authority dependencies.
type Params struct {
	Config *Config
	Fs     afero.Fs
	Logger *logging.Logger
}

// CA is an afero backed certificate authority with an in-memory key
// hierarchy loaded at startup. Revoked serial numbers are persisted
// one file per serial so the revocation survives restarts.
type CA struct {
	params          Params
	rootCert        *x509.Certificate
	rootKey         *ecdsa.PrivateKey
	intermediate    *x509.Certificate
	intermediateKey *ecdsa.PrivateKey
	pool            *x509.CertPool
	mutex           sync.Mutex
	CertificateAuthority
}

// NewCA loads the signing hierarchy from the configured home
// directory, generating a new ECDSA P-256 root and intermediate on
// first use.
func NewCA(params Params) (CertificateAuthority, error) {
	if params.Config == nil {
		cfg := DefaultConfig
		params.Config = &cfg
	}
	if params.Fs == nil {
		params.Fs = afero.NewOsFs()
	}
	if params.Logger == nil {
		params.Logger = logging.DefaultLogger()
	}
	ca := &CA{params: params}
	if err := ca.open(); err != nil {
		return nil, err
	}
	return ca, nil
}

func (ca *CA) open() error {
	fs := ca.params.Fs
	home := ca.params.Config.Home
	if err := fs.MkdirAll(filepath.Join(home, revokedDir), 0700); err != nil {
		return xerrors.New(err)
	}
	exists, err := afero.Exists(fs, filepath.Join(home, rootCertFile))
	if err != nil {
		return xerrors.New(err)
	}
	if !exists {
		if err := ca.initialize(); err != nil {
			return err
		}
	}
	return ca.load()
}

// initialize creates the root and intermediate key pairs and
// certificates and persists them PEM encoded.
func (ca *CA) initialize() error {
	ca.params.Logger.Info("ca: initializing new signing hierarchy",
		"home", ca.params.Config.Home,
		"cn", ca.params.Config.CommonName)

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return xerrors.New(err)
	}
	rootSerial, err := newSerialNumber()
	if err != nil {
		return err
	}
	rootTemplate := &x509.Certificate{
		SerialNumber: rootSerial,
		Subject: pkix.Name{
			CommonName:   ca.params.Config.CommonName + " Root",
			Organization: []string{ca.params.Config.Organization},
			Country:      []string{ca.params.Config.Country},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(rootValidYears, 0, 0),
		IsCA:                  true,
		MaxPathLen:            1,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	rootDER, err := x509.CreateCertificate(
		rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		return xerrors.New(err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return xerrors.New(err)
	}

	intermediateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return xerrors.New(err)
	}
	intermediateSerial, err := newSerialNumber()
	if err != nil {
		return err
	}
	intermediateTemplate := &x509.Certificate{
		SerialNumber: intermediateSerial,
		Subject: pkix.Name{
			CommonName:   ca.params.Config.CommonName + " Intermediate",
			Organization: []string{ca.params.Config.Organization},
			Country:      []string{ca.params.Config.Country},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(intermediateValidYears, 0, 0),
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	intermediateDER, err := x509.CreateCertificate(
		rand.Reader, intermediateTemplate, rootCert, &intermediateKey.PublicKey, rootKey)
	if err != nil {
		return xerrors.New(err)
	}

	if err := ca.writeKey(rootKeyFile, rootKey); err != nil {
		return err
	}
	if err := ca.writePEM(rootCertFile, pemTypeCertificate, rootDER); err != nil {
		return err
	}
	if err := ca.writeKey(intermediateKeyFile, intermediateKey); err != nil {
		return err
	}
	return ca.writePEM(intermediateCertFile, pemTypeCertificate, intermediateDER)
}

func (ca *CA) load() error {
	var err error
	if ca.rootCert, err = ca.readCert(rootCertFile); err != nil {
		return err
	}
	if ca.rootKey, err = ca.readKey(rootKeyFile); err != nil {
		return err
	}
	if ca.intermediate, err = ca.readCert(intermediateCertFile); err != nil {
		return err
	}
	if ca.intermediateKey, err = ca.readKey(intermediateKeyFile); err != nil {
		return err
	}
	ca.pool = x509.NewCertPool()
	ca.pool.AddCert(ca.rootCert)
	return nil
}

func (ca *CA) Identity() (*x509.Certificate, error) {
	if ca.intermediate == nil {
		return nil, ErrNotInitialized
	}
	return ca.intermediate, nil
}

// CABundle returns the intermediate and root certificates PEM encoded,
// issuing certificate first.
func (ca *CA) CABundle() ([]byte, error) {
	if ca.intermediate == nil || ca.rootCert == nil {
		return nil, ErrNotInitialized
	}
	bundle := encodeCertPEM(ca.intermediate.Raw)
	bundle = append(bundle, encodeCertPEM(ca.rootCert.Raw)...)
	return bundle, nil
}

// SignCSR signs a validated certificate request. The request's
// identifier set (subject common name plus DNS SANs) must be a subset
// of the authorized identifiers; a request for any name outside that
// set is rejected without issuing.
func (ca *CA) SignCSR(csr *x509.CertificateRequest, authorized []string,
	validity time.Duration) (*x509.Certificate, []byte, error) {

	if ca.intermediateKey == nil {
		return nil, nil, ErrSigningKeyUnavailable
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, nil, ErrInvalidSignature
	}

	names := csrNames(csr)
	if len(names) == 0 {
		return nil, nil, ErrUnauthorizedSubject
	}
	allowed := make(map[string]bool, len(authorized))
	for _, identifier := range authorized {
		allowed[identifier] = true
	}
	for _, name := range names {
		if !allowed[name] {
			ca.params.Logger.Security(logging.SecurityLogEntry{
				Timestamp:   time.Now(),
				Severity:    logging.SeverityHigh,
				Category:    logging.CategoryIssuance,
				Description: "csr requested unauthorized identifier",
				Details:     fmt.Sprintf("identifier=%s", name),
			})
			return nil, nil, ErrUnauthorizedSubject
		}
	}

	serial, err := newSerialNumber()
	if err != nil {
		return nil, nil, err
	}
	if validity <= 0 {
		validity = time.Duration(ca.params.Config.ValidDays) * 24 * time.Hour
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: names[0]},
		DNSNames:              names,
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	ca.mutex.Lock()
	defer ca.mutex.Unlock()

	der, err := x509.CreateCertificate(
		rand.Reader, template, ca.intermediate, csr.PublicKey, ca.intermediateKey)
	if err != nil {
		return nil, nil, xerrors.New(err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, xerrors.New(err)
	}

	chain := encodeCertPEM(der)
	chain = append(chain, encodeCertPEM(ca.intermediate.Raw)...)
	chain = append(chain, encodeCertPEM(ca.rootCert.Raw)...)

	ca.params.Logger.Info("ca: signed certificate",
		"serial", leaf.SerialNumber.String(),
		"names", names,
		"not_after", leaf.NotAfter)

	return leaf, chain, nil
}

// Revoke records the serial number as revoked. The second revocation
// of the same serial returns ErrAlreadyRevoked.
func (ca *CA) Revoke(serialNumber uint64) error {
	ca.mutex.Lock()
	defer ca.mutex.Unlock()

	path := ca.revokedPath(serialNumber)
	exists, err := afero.Exists(ca.params.Fs, path)
	if err != nil {
		return xerrors.New(err)
	}
	if exists {
		return ErrAlreadyRevoked
	}
	entry := fmt.Sprintf("%d\n", time.Now().Unix())
	if err := afero.WriteFile(ca.params.Fs, path, []byte(entry), 0600); err != nil {
		return xerrors.New(err)
	}
	ca.params.Logger.Security(logging.SecurityLogEntry{
		Timestamp:   time.Now(),
		Severity:    logging.SeverityMedium,
		Category:    logging.CategoryRevocation,
		Description: "certificate revoked",
		Details:     fmt.Sprintf("serial=%d", serialNumber),
	})
	return nil
}

// CRL builds a revocation list from the persisted revoked serials,
// signed by the intermediate.
func (ca *CA) CRL() ([]byte, error) {
	if ca.intermediateKey == nil {
		return nil, ErrNotInitialized
	}
	ca.mutex.Lock()
	defer ca.mutex.Unlock()

	entries, err := ca.revokedEntries()
	if err != nil {
		return nil, err
	}
	template := &x509.RevocationList{
		Number:                    big.NewInt(time.Now().Unix()),
		ThisUpdate:                time.Now(),
		NextUpdate:                time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}
	der, err := x509.CreateRevocationList(
		rand.Reader, template, ca.intermediate, ca.intermediateKey)
	if err != nil {
		return nil, xerrors.New(err)
	}
	return der, nil
}

// Verify checks the certificate chains to this CA's root and its
// serial has not been revoked.
func (ca *CA) Verify(certificate *x509.Certificate) error {
	if ca.pool == nil {
		return ErrNotInitialized
	}
	intermediates := x509.NewCertPool()
	intermediates.AddCert(ca.intermediate)
	_, err := certificate.Verify(x509.VerifyOptions{
		Roots:         ca.pool,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return xerrors.New(err)
	}
	revoked, err := ca.isRevoked(certificate.SerialNumber.Uint64())
	if err != nil {
		return err
	}
	if revoked {
		return ErrAlreadyRevoked
	}
	return nil
}

// TLSCertificate issues the web service's own listener certificate.
func (ca *CA) TLSCertificate(cn string, dnsNames []string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, xerrors.New(err)
	}
	serial, err := newSerialNumber()
	if err != nil {
		return tls.Certificate{}, err
	}
	if len(dnsNames) == 0 {
		dnsNames = []string{cn}
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     dnsNames,
		NotBefore:    time.Now().Add(-5 * time.Minute),
		NotAfter:     time.Now().AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(
		rand.Reader, template, ca.intermediate, &key.PublicKey, ca.intermediateKey)
	if err != nil {
		return tls.Certificate{}, xerrors.New(err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der, ca.intermediate.Raw},
		PrivateKey:  key,
	}, nil
}

func (ca *CA) isRevoked(serialNumber uint64) (bool, error) {
	exists, err := afero.Exists(ca.params.Fs, ca.revokedPath(serialNumber))
	if err != nil {
		return false, xerrors.New(err)
	}
	return exists, nil
}

func (ca *CA) revokedPath(serialNumber uint64) string {
	return filepath.Join(ca.params.Config.Home, revokedDir,
		fmt.Sprintf("%d", serialNumber))
}

func (ca *CA) revokedEntries() ([]x509.RevocationListEntry, error) {
	dir := filepath.Join(ca.params.Config.Home, revokedDir)
	infos, err := afero.ReadDir(ca.params.Fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.New(err)
	}
	entries := make([]x509.RevocationListEntry, 0, len(infos))
	for _, info := range infos {
		serial, ok := new(big.Int).SetString(info.Name(), 10)
		if !ok {
			continue
		}
		data, err := afero.ReadFile(ca.params.Fs, filepath.Join(dir, info.Name()))
		if err != nil {
			return nil, xerrors.New(err)
		}
		var unix int64
		fmt.Sscanf(string(data), "%d", &unix)
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   serial,
			RevocationTime: time.Unix(unix, 0),
		})
	}
	return entries, nil
}

func (ca *CA) writeKey(name string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return xerrors.New(err)
	}
	return ca.writePEM(name, pemTypeECPrivateKey, der)
}

func (ca *CA) writePEM(name, pemType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})
	path := filepath.Join(ca.params.Config.Home, name)
	if err := afero.WriteFile(ca.params.Fs, path, data, 0600); err != nil {
		return xerrors.New(err)
	}
	return nil
}

func (ca *CA) readCert(name string) (*x509.Certificate, error) {
	block, err := ca.readPEM(name)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, xerrors.New(err)
	}
	return cert, nil
}

func (ca *CA) readKey(name string) (*ecdsa.PrivateKey, error) {
	block, err := ca.readPEM(name)
	if err != nil {
		return nil, err
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, xerrors.New(err)
	}
	return key, nil
}

func (ca *CA) readPEM(name string) (*pem.Block, error) {
	data, err := afero.ReadFile(ca.params.Fs,
		filepath.Join(ca.params.Config.Home, name))
	if err != nil {
		return nil, xerrors.New(err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, xerrors.New(fmt.Errorf("ca: invalid PEM in %s", name))
	}
	return block, nil
}

// csrNames returns the request's identifier set: the subject common
// name, when present, plus all DNS SANs, deduplicated with the common
// name first.
func csrNames(csr *x509.CertificateRequest) []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(csr.DNSNames)+1)
	if csr.Subject.CommonName != "" {
		seen[csr.Subject.CommonName] = true
		names = append(names, csr.Subject.CommonName)
	}
	for _, name := range csr.DNSNames {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func newSerialNumber() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 63)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, xerrors.New(err)
	}
	return serial, nil
}

// encodeCertPEM PEM encodes a DER certificate.
func encodeCertPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: der})
}
