package tlsalpn01

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/letsencrypt/challtestsrv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
)

const testPort = 5001

func startChallSrv(t *testing.T) *challtestsrv.ChallSrv {
	srv, err := challtestsrv.New(challtestsrv.Config{
		TLSALPNOneAddrs: []string{"127.0.0.1:5001"},
	})
	require.NoError(t, err)
	go srv.Run()
	t.Cleanup(func() { srv.Shutdown() })
	time.Sleep(100 * time.Millisecond)
	return srv
}

func TestVerify(t *testing.T) {
	srv := startChallSrv(t)

	token, err := challenge.NewToken()
	require.NoError(t, err)
	keyAuth := token + ".thumbprint"
	srv.AddTLSALPNChallenge("localhost", keyAuth)
	defer srv.DeleteTLSALPNChallenge("localhost")

	verifier := NewVerifier(testPort)
	assert.Equal(t, acme.ChallengeTypeTLSALPN01, verifier.Type())
	assert.NoError(t, verifier.Verify(context.Background(), "localhost", token, keyAuth))
}

func TestVerifyWrongKeyAuthorization(t *testing.T) {
	srv := startChallSrv(t)

	token, err := challenge.NewToken()
	require.NoError(t, err)
	srv.AddTLSALPNChallenge("localhost", token+".thumbprint")
	defer srv.DeleteTLSALPNChallenge("localhost")

	verifier := NewVerifier(testPort)
	err = verifier.Verify(context.Background(), "localhost", token, token+".other")
	assert.ErrorIs(t, err, challenge.ErrKeyAuthMismatch)
}

func validationCert(t *testing.T, sans []string, keyAuth string, critical bool) *x509.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte(keyAuth))
	extValue, err := asn1.Marshal(digest[:])
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: sans[0]},
		DNSNames:     sans,
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		ExtraExtensions: []pkix.Extension{{
			Id:       IDPeAcmeIdentifier,
			Critical: critical,
			Value:    extValue,
		}},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestCheckValidationCert(t *testing.T) {
	keyAuth := "token.thumbprint"

	cert := validationCert(t, []string{"www.example.org"}, keyAuth, true)
	assert.NoError(t, checkValidationCert(cert, "www.example.org", keyAuth))

	// Multiple SANs are forbidden
	cert = validationCert(t, []string{"www.example.org", "example.org"}, keyAuth, true)
	assert.ErrorIs(t, checkValidationCert(cert, "www.example.org", keyAuth),
		challenge.ErrUnexpectedIdentity)

	// Extension must be critical
	cert = validationCert(t, []string{"www.example.org"}, keyAuth, false)
	assert.Error(t, checkValidationCert(cert, "www.example.org", keyAuth))
}
