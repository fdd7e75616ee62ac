package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
)

type NewAccountRequest struct {
	Contact                []string    `yaml:"contact" json:"contact,omitempty"`
	TermsOfServiceAgreed   bool        `yaml:"termsOfServiceAgreed" json:"termsOfServiceAgreed,omitempty"`
	OnlyReturnExisting     bool        `yaml:"onlyReturnExisting" json:"onlyReturnExisting,omitempty"`
	ExternalAccountBinding interface{} `yaml:"externalAccountBinding" json:"externalAccountBinding,omitempty"`
}

// NewAccountHandler registers an account keyed by its public key. The
// same key always maps to the same account, so a duplicate
// registration returns the existing account's location.
func (s *RestService) NewAccountHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("NewAccountHandler", "method", r.Method, "url", r.URL)

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

	publicKey, payload, problem := s.parseJWS(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}

	var req NewAccountRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeError(w, acme.MalformedError("Invalid JSON payload", nil))
		return
	}

	if problem := validateContactURLs(req.Contact); problem != nil {
		s.writeError(w, problem)
		return
	}

	keyID, err := acme.GenerateAccountID(publicKey)
	if err != nil {
		s.writeError(w, acme.BadPublicKey("Unsupported account key"))
		return
	}

	// The key index maps the thumbprint to its account; key rollover
	// re-points it, so the lookup never goes through a retired key
	if index, err := accountKeyDAO.Get(keyID, s.consistencyLevel); err == nil {
		account, err := accountDAO.Get(index.AccountID, s.consistencyLevel)
		if err != nil {
			s.writeError(w, acme.ServerInternal("Failed to load account"))
			return
		}
		if account.Status == acme.StatusDeactivated {
			s.writeError(w, acme.Unauthorized("Account has been deactivated"))
			return
		}
		s.respondWithAccount(w, account, http.StatusOK)
		return
	}
	if req.OnlyReturnExisting {
		s.writeError(w, acme.AccountDoesNotExist("Account does not exist"))
		return
	}

	if externalAccountRequired && req.ExternalAccountBinding == nil {
		s.writeError(w, acme.MalformedError("External account binding is required", nil))
		return
	}

	serializedKey, err := serializeAccountKey(publicKey)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to serialize account key"))
		return
	}

	account := &entities.ACMEAccount{
		ID:                   keyID,
		Status:               acme.StatusValid,
		Contact:              req.Contact,
		TermsOfServiceAgreed: req.TermsOfServiceAgreed,
		Orders:               fmt.Sprintf("%s/acme/orders", s.baseRESTURI),
		Key:                  serializedKey,
		CreatedAt:            time.Now(),
	}
	account.URL = s.accountURL(account)

	if err := accountDAO.Save(account); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save account"))
		return
	}
	index := &entities.ACMEAccountKey{ID: keyID, AccountID: account.ID}
	if err := accountKeyDAO.Save(index); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save account key index"))
		return
	}

	s.logger.Info("account registered", "account", account.ID)
	s.respondWithAccount(w, account, http.StatusCreated)
}
