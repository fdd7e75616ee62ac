package handlers

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

type FinalizeRequest struct {
	CSR string `yaml:"csr" json:"csr"`
}

// OrderFinalizeHandler accepts a CSR for a ready order, transitions it
// to processing, and issues the certificate asynchronously. A repeat
// POST with the same CSR while processing is answered idempotently
// instead of failing the order.
func (s *RestService) OrderFinalizeHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("OrderFinalizeHandler", "method", r.Method, "url", r.URL)

	account, payload, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}
	if problem := requireValidAccount(account); problem != nil {
		s.writeError(w, problem)
		return
	}

	orderID, err := parsePathID(r, mux.Vars(r))
	if err != nil {
		s.writeError(w, acme.MalformedError("Invalid order ID", nil))
		return
	}

	orderDAO, err := s.params.DAOFactory.ACMEOrderDAO(account.ID)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create order DAO"))
		return
	}
	order, err := orderDAO.Get(orderID, s.consistencyLevel)
	if err != nil {
		s.writeError(w, acme.MalformedError("Order not found", nil))
		return
	}

	s.expireOrder(orderDAO, order)

	var req FinalizeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeError(w, acme.MalformedError("Invalid JSON payload", nil))
		return
	}

	csrDER, err := base64.RawURLEncoding.DecodeString(req.CSR)
	if err != nil {
		s.writeError(w, acme.BadCSR("CSR is not valid base64url"))
		return
	}
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		s.writeError(w, acme.BadCSR("Failed to parse CSR"))
		return
	}

	csrDigest := csrFingerprint(csrDER)

	switch order.Status {
	case acme.StatusReady:
		// Fall through to issuance
	case acme.StatusProcessing:
		if order.CSRDigest == csrDigest {
			// Idempotent retry of the same finalize request
			s.orderResponse(w, order, http.StatusOK)
			return
		}
		s.writeError(w, acme.OrderNotReady("Order is already processing a different CSR"))
		return
	case acme.StatusValid:
		if order.CSRDigest != csrDigest {
			s.writeError(w, acme.BadCSR("CSR does not match the finalized order"))
			return
		}
		s.orderResponse(w, order, http.StatusOK)
		return
	default:
		s.writeError(w, acme.OrderNotReady(
			fmt.Sprintf("Order status is %q, want ready", order.Status)))
		return
	}

	if problem := matchCSRToOrder(csr, order); problem != nil {
		s.writeError(w, problem)
		return
	}

	order.Status = acme.StatusProcessing
	order.CSRDigest = csrDigest
	if err := orderDAO.Save(order); err != nil {
		s.writeError(w, acme.ServerInternal("Failed to save order"))
		return
	}

	// Respond from a snapshot: the issuance goroutine mutates the
	// order concurrently with the response being written
	snapshot := *order
	go s.issueCertificate(account.ID, order, csr)

	s.orderResponse(w, &snapshot, http.StatusOK)
}

// matchCSRToOrder enforces RFC 8555 Section 7.4: the CSR's identifier
// set must equal the order's, no more and no less.
func matchCSRToOrder(csr *x509.CertificateRequest, order *entities.ACMEOrder) *entities.Error {

	csrNames := make(map[string]bool)
	if csr.Subject.CommonName != "" {
		csrNames[strings.ToLower(csr.Subject.CommonName)] = true
	}
	for _, name := range csr.DNSNames {
		csrNames[strings.ToLower(name)] = true
	}

	orderNames := make(map[string]bool, len(order.Identifiers))
	for _, identifier := range order.Identifiers {
		orderNames[strings.ToLower(identifier.Value)] = true
	}

	if len(csrNames) != len(orderNames) {
		return acme.BadCSR("CSR identifiers do not match order identifiers")
	}
	for name := range csrNames {
		if !orderNames[name] {
			return acme.BadCSR(fmt.Sprintf("CSR requests identifier %q not in order", name))
		}
	}
	return nil
}

// issueCertificate runs on its own goroutine after finalize returns.
// Authorizations are re-checked immediately before signing so a
// deactivation or expiry that raced the finalize can't slip a
// certificate through.
func (s *RestService) issueCertificate(
	accountID uint64, order *entities.ACMEOrder, csr *x509.CertificateRequest) {

	orderDAO, err := s.params.DAOFactory.ACMEOrderDAO(accountID)
	if err != nil {
		s.logger.MaybeError(err)
		return
	}

	authorized, problem := s.recheckAuthorizations(accountID, order)
	if problem != nil {
		s.failOrder(orderDAO, order, problem)
		return
	}

	validity := certificateValidity(order)
	certificate, chainPEM, err := s.ca.SignCSR(csr, authorized, validity)
	if err != nil {
		s.logger.Security(logging.SecurityLogEntry{
			Timestamp:   time.Now(),
			Severity:    logging.SeverityHigh,
			Category:    logging.CategoryIssuance,
			Description: "certificate issuance refused",
			Details:     fmt.Sprintf("order=%d error=%s", order.ID, err),
		})
		s.failOrder(orderDAO, order, acme.BadCSR(err.Error()))
		return
	}

	certificateDAO, err := s.params.DAOFactory.ACMECertificateDAO()
	if err != nil {
		s.failOrder(orderDAO, order, acme.ServerInternal("Failed to create certificate DAO"))
		return
	}

	certEntity := &entities.ACMECertificate{
		ID:          certificate.SerialNumber.Uint64(),
		AccountID:   accountID,
		OrderID:     order.ID,
		Identifiers: order.Identifiers,
		PEM:         string(chainPEM),
		Status:      acme.StatusValid,
		IssuedAt:    time.Now(),
		ExpiresAt:   certificate.NotAfter,
	}
	certEntity.CertURL = fmt.Sprintf("%s/acme/cert/%d", s.baseRESTURI, certEntity.ID)
	if err := certificateDAO.Save(certEntity); err != nil {
		s.failOrder(orderDAO, order, acme.ServerInternal("Failed to save certificate"))
		return
	}

	order.Status = acme.StatusValid
	order.Certificate = certEntity.CertURL
	if err := orderDAO.Save(order); err != nil {
		s.logger.MaybeError(err)
		return
	}

	s.logger.Info("certificate issued",
		"order", order.ID,
		"account", accountID,
		"serial", certificate.SerialNumber.String())
}

// recheckAuthorizations returns the order's authorized identifier
// values (base domains plus wildcard forms) or a problem when any
// authorization is no longer valid.
func (s *RestService) recheckAuthorizations(
	accountID uint64, order *entities.ACMEOrder) ([]string, *entities.Error) {

	authorizationDAO, err := s.params.DAOFactory.ACMEAuthorizationDAO(accountID)
	if err != nil {
		return nil, acme.ServerInternal("Failed to create authorization DAO")
	}

	authorized := make([]string, 0, len(order.Authorizations))
	for _, authzURL := range order.Authorizations {
		authzID, err := parseTrailingID(authzURL)
		if err != nil {
			return nil, acme.ServerInternal("Malformed authorization URL")
		}
		authz, err := authorizationDAO.Get(authzID, s.consistencyLevel)
		if err != nil {
			return nil, acme.ServerInternal("Authorization not found")
		}
		if s.expireAuthorization(authorizationDAO, authz) || authz.Status != acme.StatusValid {
			return nil, acme.Unauthorized(fmt.Sprintf(
				"Authorization for %q is %s", authz.Identifier.Value, authz.Status))
		}
		if authz.Wildcard {
			authorized = append(authorized, "*."+authz.Identifier.Value)
		} else {
			authorized = append(authorized, authz.Identifier.Value)
		}
	}
	return authorized, nil
}

func (s *RestService) failOrder(
	orderDAO dao.ACMEOrderDAO, order *entities.ACMEOrder, problem *entities.Error) {

	order.Status = acme.StatusInvalid
	order.Error = problem
	s.logger.MaybeError(orderDAO.Save(order))
	s.logger.Error(problem, "order", order.ID)
}

// certificateValidity honors the order's notBefore/notAfter window
// when present, falling back to the CA's configured leaf lifetime.
func certificateValidity(order *entities.ACMEOrder) time.Duration {
	if order.NotAfter == "" {
		return 0
	}
	notAfter, err := time.Parse(time.RFC3339, order.NotAfter)
	if err != nil {
		return 0
	}
	validity := time.Until(notAfter)
	if validity <= 0 {
		return 0
	}
	return validity
}

func csrFingerprint(csrDER []byte) string {
	digest := sha256.Sum256(csrDER)
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
