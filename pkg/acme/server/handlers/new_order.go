package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
)

type NewOrderRequest struct {
	Identifiers []entities.ACMEIdentifier `yaml:"identifiers" json:"identifiers"`
	NotBefore   string                    `yaml:"not-before" json:"notBefore,omitempty"`
	NotAfter    string                    `yaml:"not-after" json:"notAfter,omitempty"`
}

// NewOrderHandler creates an order with one authorization per
// identifier. A still-valid authorization from a previous order for
// the same identifier is reused instead of forcing the client to
// revalidate.
func (s *RestService) NewOrderHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("NewOrderHandler", "method", r.Method, "url", r.URL)

	account, payload, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}
	if problem := requireValidAccount(account); problem != nil {
		s.writeError(w, problem)
		return
	}

	var req NewOrderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeError(w, acme.MalformedError("Invalid JSON payload", nil))
		return
	}
	if len(req.Identifiers) == 0 {
		s.writeError(w, acme.MalformedError("Order must contain at least one identifier", nil))
		return
	}

	authorizationDAO, err := s.params.DAOFactory.ACMEAuthorizationDAO(account.ID)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create authorization DAO"))
		return
	}
	orderDAO, err := s.params.DAOFactory.ACMEOrderDAO(account.ID)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create order DAO"))
		return
	}

	orderID, err := acme.GenerateID()
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to generate order ID"))
		return
	}
	orderURL := s.orderURL(orderID)
	finalizeURL := fmt.Sprintf("%s/finalize", orderURL)

	enabledChallenges, err := acme.ParseChallenges(s.acmeConfig.Challenges)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Invalid challenge configuration"))
		return
	}

	authzURLs := []string{}
	for _, id := range req.Identifiers {

		if _, ok := acme.AuthzMap[id.Type]; !ok {
			s.writeError(w, acme.UnsupportedIdentifier(
				fmt.Sprintf("Unsupported identifier type %q", id.Type)))
			return
		}

		domain := id.Value
		isWildcard := strings.HasPrefix(domain, "*.")
		if isWildcard {
			domain = strings.TrimPrefix(domain, "*.")
		}
		if strings.Contains(domain, "*") || !isValidDomainName(domain) {
			s.writeError(w, acme.RejectedIdentifier(
				fmt.Sprintf("Invalid domain name %q", id.Value)))
			return
		}

		// Authorizations carry the base domain; the wildcard flag
		// records the original form (RFC 8555 Section 7.1.4)
		authzIdentifier := entities.ACMEIdentifier{Type: id.Type, Value: domain}

		// Reuse a valid authorization for the same identifier
		if reused := s.reusableAuthorization(authorizationDAO, authzIdentifier, isWildcard); reused != nil {
			authzURLs = append(authzURLs, reused.URL)
			continue
		}

		authzID, err := acme.GenerateID()
		if err != nil {
			s.writeError(w, acme.ServerInternal("Failed to generate authorization ID"))
			return
		}
		authzURL := fmt.Sprintf("%s/acme/authz/%d", s.baseRESTURI, authzID)

		challenges, err := challenge.Offer(enabledChallenges, isWildcard)
		if err != nil {
			s.writeError(w, acme.ServerInternal("Failed to create authorization challenges"))
			return
		}
		for i := range challenges {
			challengeID, err := acme.GenerateID()
			if err != nil {
				s.writeError(w, acme.ServerInternal("Failed to generate challenge ID"))
				return
			}
			challenges[i].ID = challengeID
			challenges[i].URL = fmt.Sprintf("%s/acme/challenge/%d", s.baseRESTURI, challengeID)
			challenges[i].AccountID = account.ID
			challenges[i].AuthorizationID = authzID
		}

		pendingTTL := time.Duration(orDefault(
			s.acmeConfig.AuthzPendingTTL, acme.DefaultAuthzPendingTTLHours)) * time.Hour

		authorization := &entities.ACMEAuthorization{
			ID:         authzID,
			OrderID:    orderID,
			AccountID:  account.ID,
			Status:     acme.StatusPending,
			Expires:    time.Now().Add(pendingTTL).Format(time.RFC3339),
			Identifier: authzIdentifier,
			Challenges: challenges,
			Wildcard:   isWildcard,
			URL:        authzURL,
		}
		if err := authorizationDAO.Save(authorization); err != nil {
			s.writeError(w, acme.ServerInternal("Failed to save authorization"))
			return
		}

		authzURLs = append(authzURLs, authzURL)
	}

	orderTTL := time.Duration(orDefault(
		s.acmeConfig.OrderTTL, acme.DefaultOrderTTLHours)) * time.Hour

	order := &entities.ACMEOrder{
		ID:             orderID,
		AccountID:      account.ID,
		Status:         acme.StatusPending,
		Expires:        time.Now().Add(orderTTL).Format(time.RFC3339),
		Identifiers:    req.Identifiers,
		NotBefore:      req.NotBefore,
		NotAfter:       req.NotAfter,
		Authorizations: authzURLs,
		Finalize:       finalizeURL,
		URL:            orderURL,
	}

	if err := orderDAO.Save(order); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save order"))
		return
	}

	account.OrderCount++
	if accountDAO, err := s.params.DAOFactory.ACMEAccountDAO(); err == nil {
		s.logger.MaybeError(accountDAO.Save(account))
	}

	// An order whose authorizations are all satisfied up front is
	// immediately ready for finalization.
	if s.allAuthorizationsValid(authorizationDAO, order) {
		order.Status = acme.StatusReady
		s.logger.MaybeError(orderDAO.Save(order))
	}

	s.logger.Info("order created",
		"order", orderID, "account", account.ID, "identifiers", len(req.Identifiers))
	s.orderResponse(w, order, http.StatusCreated)
}

// reusableAuthorization returns an existing valid, unexpired
// authorization for the identifier, or nil.
func (s *RestService) reusableAuthorization(
	authorizationDAO dao.ACMEAuthorizationDAO,
	identifier entities.ACMEIdentifier, wildcard bool) *entities.ACMEAuthorization {

	var match *entities.ACMEAuthorization
	err := authorizationDAO.ForEachPage(datastore.NewPageQuery(),
		func(page []*entities.ACMEAuthorization) error {
			for _, authz := range page {
				if authz.Status != acme.StatusValid {
					continue
				}
				if !authz.Identifier.Equals(identifier) || authz.Wildcard != wildcard {
					continue
				}
				if s.expireAuthorization(authorizationDAO, authz) {
					continue
				}
				match = authz
			}
			return nil
		}, s.consistencyLevel)
	if err != nil {
		s.logger.MaybeError(err)
		return nil
	}
	return match
}

func (s *RestService) allAuthorizationsValid(
	authorizationDAO dao.ACMEAuthorizationDAO, order *entities.ACMEOrder) bool {

	for _, authzURL := range order.Authorizations {
		authzID, err := parseTrailingID(authzURL)
		if err != nil {
			return false
		}
		authz, err := authorizationDAO.Get(authzID, s.consistencyLevel)
		if err != nil || authz.Status != acme.StatusValid {
			return false
		}
	}
	return true
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
