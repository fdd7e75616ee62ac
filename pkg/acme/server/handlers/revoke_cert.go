package handlers

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/ca"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

type RevokeCertRequest struct {
	Certificate string `yaml:"certificate" json:"certificate"`
	Reason      int    `yaml:"reason" json:"reason,omitempty"`
}

// CRLReasonCodes accepted on revocation requests, per RFC 5280
// Section 5.3.1. Code 7 is unused by the standard.
var validRevocationReasons = map[int]bool{
	0: true, 1: true, 2: true, 3: true, 4: true,
	5: true, 6: true, 8: true, 9: true, 10: true,
}

// RevokeCertHandler revokes a certificate. The request must be signed
// either by the account that ordered the certificate or by the
// certificate's own key.
func (s *RestService) RevokeCertHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("RevokeCertHandler", "method", r.Method, "url", r.URL)

	jws, problem := s.readJWS(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}
	header := jws.Signatures[0].Header

	if err := s.nonceStore.Consume(header.Nonce); err != nil {
		s.writeError(w, acme.BadNonce("Invalid or missing Replay-Nonce"))
		return
	}

	// Authenticate: kid means account key, jwk means certificate key
	var accountID uint64
	var payload []byte
	var certKeyAuth bool

	switch {
	case header.KeyID != "" && header.JSONWebKey == nil:
		id, err := parseTrailingID(header.KeyID)
		if err != nil {
			s.writeError(w, acme.MalformedError("Invalid account KID", nil))
			return
		}
		accountDAO, err := s.params.DAOFactory.ACMEAccountDAO()
		if err != nil {
			s.writeError(w, acme.ServerInternal("Failed to create account DAO"))
			return
		}
		account, err := accountDAO.Get(id, s.consistencyLevel)
		if err != nil {
			s.writeError(w, acme.AccountDoesNotExist("Account does not exist"))
			return
		}
		publicKey, err := deserializeAccountKey(account.Key)
		if err != nil {
			s.writeError(w, acme.ServerInternal("Failed to decode account public key"))
			return
		}
		payload, err = jws.Verify(publicKey)
		if err != nil {
			s.writeError(w, acme.Unauthorized("Invalid JWS signature"))
			return
		}
		if problem := requireValidAccount(account); problem != nil {
			s.writeError(w, problem)
			return
		}
		accountID = account.ID

	case header.JSONWebKey != nil && header.KeyID == "":
		var err error
		payload, err = jws.Verify(header.JSONWebKey.Key)
		if err != nil {
			s.writeError(w, acme.Unauthorized("Invalid JWS signature"))
			return
		}
		certKeyAuth = true

	default:
		s.writeError(w, acme.MalformedError(ErrKIDAndJWKNotAllowed.Error(), nil))
		return
	}

	var req RevokeCertRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeError(w, acme.MalformedError("Invalid JSON payload", nil))
		return
	}

	if !validRevocationReasons[req.Reason] {
		s.writeError(w, acme.BadRevocationReason("Unsupported revocation reason code"))
		return
	}

	certDER, err := base64.RawURLEncoding.DecodeString(req.Certificate)
	if err != nil {
		s.writeError(w, acme.MalformedError("Certificate is not valid base64url", nil))
		return
	}
	certificate, err := x509.ParseCertificate(certDER)
	if err != nil {
		s.writeError(w, acme.MalformedError("Failed to parse certificate", nil))
		return
	}

	certificateDAO, err := s.params.DAOFactory.ACMECertificateDAO()
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create certificate DAO"))
		return
	}
	serial := certificate.SerialNumber.Uint64()
	certEntity, err := certificateDAO.Get(serial, s.consistencyLevel)
	if err != nil {
		s.writeError(w, acme.MalformedError("Certificate was not issued by this CA", nil))
		return
	}

	// Ownership check
	if certKeyAuth {
		// The JWS key must be the certificate's own public key
		jwkDER, err := x509.MarshalPKIXPublicKey(jws.Signatures[0].Header.JSONWebKey.Key)
		if err != nil {
			s.writeError(w, acme.BadPublicKey("Unsupported JWS public key"))
			return
		}
		certPubDER, err := x509.MarshalPKIXPublicKey(certificate.PublicKey)
		if err != nil {
			s.writeError(w, acme.ServerInternal("Failed to encode certificate public key"))
			return
		}
		if !bytes.Equal(jwkDER, certPubDER) {
			s.writeError(w, acme.Unauthorized("JWS key does not match certificate key"))
			return
		}
	} else if certEntity.AccountID != accountID {
		s.writeError(w, acme.Unauthorized("Certificate belongs to another account"))
		return
	}

	if err := s.ca.Revoke(serial); err != nil {
		if errors.Is(err, ca.ErrAlreadyRevoked) {
			s.writeError(w, acme.AlreadyRevoked("Certificate has already been revoked"))
			return
		}
		s.writeError(w, acme.ServerInternal("Failed to revoke certificate"))
		return
	}

	certEntity.Status = acme.StatusRevoked
	if err := certificateDAO.Save(certEntity); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save certificate"))
		return
	}

	s.logger.Security(logging.SecurityLogEntry{
		Timestamp:   time.Now(),
		Severity:    logging.SeverityMedium,
		Category:    logging.CategoryRevocation,
		Description: "certificate revoked",
		Details:     fmt.Sprintf("serial=%d reason=%d", serial, req.Reason),
	})

	s.replayNonce(w)
	w.WriteHeader(http.StatusOK)
}
