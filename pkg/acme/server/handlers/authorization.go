package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
)

type UpdateAuthorizationRequest struct {
	Status string `yaml:"status" json:"status,omitempty"`
}

// AuthorizationHandler serves POST-as-GET authorization retrieval and
// client-requested deactivation. A stale authorization is transitioned
// to expired before it is returned.
func (s *RestService) AuthorizationHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("AuthorizationHandler", "method", r.Method, "url", r.URL)

	account, payload, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}
	if problem := requireValidAccount(account); problem != nil {
		s.writeError(w, problem)
		return
	}

	authzID, err := parsePathID(r, mux.Vars(r))
	if err != nil {
		s.writeError(w, acme.MalformedError("Invalid authorization ID", nil))
		return
	}

	authorizationDAO, err := s.params.DAOFactory.ACMEAuthorizationDAO(account.ID)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create authorization DAO"))
		return
	}
	authz, err := authorizationDAO.Get(authzID, s.consistencyLevel)
	if err != nil {
		s.writeError(w, acme.MalformedError("Authorization not found", nil))
		return
	}

	s.expireAuthorization(authorizationDAO, authz)

	if len(payload) > 0 {
		var req UpdateAuthorizationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			s.writeError(w, acme.MalformedError("Invalid JSON payload", nil))
			return
		}
		if req.Status != "" {
			if req.Status != acme.StatusDeactivated {
				s.writeError(w, acme.MalformedError("Unsupported authorization status", nil))
				return
			}
			if authz.Status != acme.StatusPending && authz.Status != acme.StatusValid {
				s.writeError(w, acme.Conflict("Authorization can no longer be deactivated"))
				return
			}
			authz.Status = acme.StatusDeactivated
			if err := authorizationDAO.Save(authz); err != nil {
				s.writeError(w, acme.ServerInternal("Failed to save authorization"))
				return
			}
		}
	}

	s.authorizationResponse(w, authz)
}

func (s *RestService) authorizationResponse(
	w http.ResponseWriter, authz *entities.ACMEAuthorization) {

	s.replayNonce(w)
	w.Header().Set("Content-Type", "application/json")

	type clientChallenge struct {
		Type      string          `json:"type"`
		URL       string          `json:"url"`
		Status    string          `json:"status"`
		Token     string          `json:"token"`
		Validated string          `json:"validated,omitempty"`
		Error     *entities.Error `json:"error,omitempty"`
	}

	challenges := make([]clientChallenge, len(authz.Challenges))
	for i, ch := range authz.Challenges {
		challenges[i] = clientChallenge{
			Type:      ch.Type,
			URL:       ch.URL,
			Status:    ch.Status,
			Token:     ch.Token,
			Validated: ch.Validated,
			Error:     ch.Error,
		}
	}

	clientAuthz := struct {
		Identifier entities.ACMEIdentifier `json:"identifier"`
		Status     string                  `json:"status"`
		Expires    string                  `json:"expires,omitempty"`
		Challenges []clientChallenge       `json:"challenges"`
		Wildcard   bool                    `json:"wildcard,omitempty"`
	}{
		Identifier: authz.Identifier,
		Status:     authz.Status,
		Expires:    authz.Expires,
		Challenges: challenges,
		Wildcard:   authz.Wildcard,
	}

	json.NewEncoder(w).Encode(clientAuthz)
}
