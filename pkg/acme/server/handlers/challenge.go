package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
)

// ChallengeHandler accepts the client's readiness signal for a
// challenge and queues asynchronous validation. The response returns
// immediately with the challenge in the processing state; the client
// polls the authorization or order for the outcome.
func (s *RestService) ChallengeHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("ChallengeHandler", "method", r.Method, "url", r.URL)

	account, _, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}
	if problem := requireValidAccount(account); problem != nil {
		s.writeError(w, problem)
		return
	}

	challengeID, err := parsePathID(r, mux.Vars(r))
	if err != nil {
		s.writeError(w, acme.MalformedError("Invalid challenge ID", nil))
		return
	}

	authorizationDAO, err := s.params.DAOFactory.ACMEAuthorizationDAO(account.ID)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create authorization DAO"))
		return
	}

	authz, acmeChallenge := s.findChallenge(authorizationDAO, challengeID)
	if acmeChallenge == nil {
		s.writeError(w, acme.MalformedError("Challenge not found", nil))
		return
	}

	if s.expireAuthorization(authorizationDAO, authz) {
		s.writeError(w, acme.MalformedError("Authorization has expired", nil))
		return
	}

	switch acmeChallenge.Status {
	case acme.StatusPending:
		// Fall through to dispatch
	case acme.StatusProcessing, acme.StatusValid:
		// Idempotent re-POST while processing or after success
		s.challengeResponse(w, acmeChallenge, authz.URL)
		return
	default:
		s.writeError(w, acme.MalformedError("Challenge is no longer pending", nil))
		return
	}

	publicKey, err := deserializeAccountKey(account.Key)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to decode account public key"))
		return
	}
	keyAuthorization, err := acme.KeyAuthorization(acmeChallenge.Token, publicKey)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to compute key authorization"))
		return
	}

	acmeChallenge.Status = acme.StatusProcessing
	if err := authorizationDAO.Save(authz); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save challenge"))
		return
	}

	err = s.engine.Dispatch(challenge.Job{
		AccountID:        account.ID,
		AuthorizationID:  authz.ID,
		ChallengeID:      acmeChallenge.ID,
		KeyAuthorization: keyAuthorization,
	})
	if err != nil {
		// Roll back so the client can retry
		acmeChallenge.Status = acme.StatusPending
		s.logger.MaybeError(authorizationDAO.Save(authz))
		s.writeError(w, acme.RateLimited("Validation queue is full, retry later"))
		return
	}

	s.challengeResponse(w, acmeChallenge, authz.URL)
}

// findChallenge locates a challenge and its parent authorization by
// challenge ID within the account's partition.
func (s *RestService) findChallenge(
	authorizationDAO dao.ACMEAuthorizationDAO,
	challengeID uint64) (*entities.ACMEAuthorization, *entities.ACMEChallenge) {

	var foundAuthz *entities.ACMEAuthorization
	var foundChallenge *entities.ACMEChallenge

	err := authorizationDAO.ForEachPage(datastore.NewPageQuery(),
		func(page []*entities.ACMEAuthorization) error {
			for _, authz := range page {
				for i := range authz.Challenges {
					if authz.Challenges[i].ID == challengeID {
						foundAuthz = authz
						foundChallenge = &authz.Challenges[i]
						return nil
					}
				}
			}
			return nil
		}, s.consistencyLevel)
	if err != nil {
		s.logger.MaybeError(err)
		return nil, nil
	}
	return foundAuthz, foundChallenge
}
