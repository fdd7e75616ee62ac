package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/server"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

type KeyChangeRequest struct {
	Account string          `yaml:"account" json:"account"`
	OldKey  json.RawMessage `yaml:"oldKey" json:"oldKey"`
}

// KeyChangeHandler rolls an account over to a new key, per RFC 8555
// Section 7.3.5. The outer JWS is signed with the current account key
// and the inner JWS with the replacement key; both must agree on the
// account and the key being replaced.
func (s *RestService) KeyChangeHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("KeyChangeHandler", "method", r.Method, "url", r.URL)

	account, payload, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}
	if problem := requireValidAccount(account); problem != nil {
		s.writeError(w, problem)
		return
	}

	// Inner JWS, signed by the new key with an embedded jwk and no nonce
	innerJWS, err := jose.ParseSigned(string(payload), server.AllowedJOSEAlgorithms)
	if err != nil {
		s.writeError(w, acme.MalformedError("Failed to parse inner JWS", nil))
		return
	}
	if len(innerJWS.Signatures) == 0 {
		s.writeError(w, acme.MalformedError("No signatures found in inner JWS", nil))
		return
	}
	innerHeader := innerJWS.Signatures[0].Header

	if innerHeader.JSONWebKey == nil {
		s.writeError(w, acme.MalformedError("Inner JWS must embed the new key as jwk", nil))
		return
	}
	if innerHeader.Nonce != "" {
		s.writeError(w, acme.MalformedError("Inner JWS must not carry a nonce", nil))
		return
	}
	if err := checkURLHeader(innerHeader, r); err != nil {
		s.writeError(w, acme.MalformedError("Inner and outer JWS url members must match", nil))
		return
	}

	newKey := innerHeader.JSONWebKey.Key
	innerPayload, err := innerJWS.Verify(newKey)
	if err != nil {
		s.logger.Security(logging.SecurityLogEntry{
			Timestamp:   time.Now(),
			Severity:    logging.SeverityHigh,
			Category:    logging.CategoryKeyRollover,
			Description: "inner JWS signature verification failed",
			Details:     fmt.Sprintf("account=%d", account.ID),
		})
		s.writeError(w, acme.MalformedError("Invalid inner JWS signature", nil))
		return
	}

	var req KeyChangeRequest
	if err := json.Unmarshal(innerPayload, &req); err != nil {
		s.writeError(w, acme.MalformedError("Invalid inner JWS payload", nil))
		return
	}

	// The inner payload must name the account being rolled over
	if req.Account != s.accountURL(account) {
		s.writeError(w, acme.MalformedError("Inner payload account does not match outer JWS account", nil))
		return
	}

	// And prove knowledge of the key being replaced
	var oldJWK jose.JSONWebKey
	if err := oldJWK.UnmarshalJSON(req.OldKey); err != nil {
		s.writeError(w, acme.MalformedError("Invalid oldKey in inner payload", nil))
		return
	}
	currentKey, err := deserializeAccountKey(account.Key)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to decode account public key"))
		return
	}
	oldThumbprint, err := acme.JWKThumbprint(oldJWK.Key)
	if err != nil {
		s.writeError(w, acme.BadPublicKey("Unsupported oldKey"))
		return
	}
	currentThumbprint, err := acme.JWKThumbprint(currentKey)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to compute account key thumbprint"))
		return
	}
	if oldThumbprint != currentThumbprint {
		s.writeError(w, acme.MalformedError("oldKey does not match current account key", nil))
		return
	}

	// The replacement key must not already belong to an account
	newKeyID, err := acme.GenerateAccountID(newKey)
	if err != nil {
		s.writeError(w, acme.BadPublicKey("Unsupported replacement key"))
		return
	}
	accountDAO, err := s.params.DAOFactory.ACMEAccountDAO()
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create account DAO"))
		return
	}
	accountKeyDAO, err := s.params.DAOFactory.ACMEAccountKeyDAO()
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create account key DAO"))
		return
	}
	if index, err := accountKeyDAO.Get(newKeyID, s.consistencyLevel); err == nil {
		if existing, err := accountDAO.Get(index.AccountID, s.consistencyLevel); err == nil {
			s.writeError(w, acme.AccountExistsError(
				"Replacement key already belongs to an account", s.accountURL(existing)))
			return
		}
		s.writeError(w, acme.ServerInternal("Failed to load account"))
		return
	}

	serializedKey, err := serializeAccountKey(newKey)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to serialize replacement key"))
		return
	}
	account.Key = serializedKey
	if err := accountDAO.Save(account); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save account"))
		return
	}

	// Re-point the key index: the account keeps its identity and URL,
	// the new key resolves to it, the retired key resolves to nothing
	currentKeyID, err := acme.GenerateAccountID(currentKey)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to compute account key ID"))
		return
	}
	index := &entities.ACMEAccountKey{ID: newKeyID, AccountID: account.ID}
	if err := accountKeyDAO.Save(index); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save account key index"))
		return
	}
	if currentKeyID != newKeyID {
		s.logger.MaybeError(accountKeyDAO.Delete(
			&entities.ACMEAccountKey{ID: currentKeyID}))
	}

	s.logger.Security(logging.SecurityLogEntry{
		Timestamp:   time.Now(),
		Severity:    logging.SeverityMedium,
		Category:    logging.CategoryKeyRollover,
		Description: "account key rolled over",
		Details:     fmt.Sprintf("account=%d", account.ID),
	})

	s.respondWithAccount(w, account, http.StatusOK)
}
