package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
)

type UpdateAccountRequest struct {
	Contact []string `yaml:"contact" json:"contact,omitempty"`
	Status  string   `yaml:"status" json:"status,omitempty"`
}

// AccountHandler serves POST-as-GET account retrieval, contact
// updates, and deactivation. Deactivation is terminal: any attempt to
// move a deactivated account back to valid is a conflict.
func (s *RestService) AccountHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("AccountHandler", "method", r.Method, "url", r.URL)

	account, payload, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}

	pathID, err := parsePathID(r, mux.Vars(r))
	if err != nil || pathID != account.ID {
		s.writeError(w, acme.Unauthorized("Account URL does not match JWS key"))
		return
	}

	// POST-as-GET
	if len(payload) == 0 {
		s.respondWithAccount(w, account, http.StatusOK)
		return
	}

	var req UpdateAccountRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeError(w, acme.MalformedError("Invalid JSON payload", nil))
		return
	}

	if account.Status == acme.StatusDeactivated {
		// Deactivation is terminal
		s.writeError(w, acme.Conflict("Account has been deactivated"))
		return
	}

	if req.Status != "" && req.Status != acme.StatusDeactivated {
		if req.Status == acme.StatusValid && account.Status == acme.StatusValid {
			// No-op transition
			s.respondWithAccount(w, account, http.StatusOK)
			return
		}
		s.writeError(w, acme.Conflict("Illegal account status transition"))
		return
	}

	if req.Contact != nil {
		if problem := validateContactURLs(req.Contact); problem != nil {
			s.writeError(w, problem)
			return
		}
		account.Contact = req.Contact
	}

	if req.Status == acme.StatusDeactivated {
		account.Status = acme.StatusDeactivated
		s.logger.Info("account deactivated", "account", account.ID)
	}

	accountDAO, err := s.params.DAOFactory.ACMEAccountDAO()
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create account DAO"))
		return
	}
	if err := accountDAO.Save(account); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save account"))
		return
	}

	s.respondWithAccount(w, account, http.StatusOK)
}
