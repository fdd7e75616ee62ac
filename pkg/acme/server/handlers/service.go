package handlers

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/peterhellberg/link"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/server"
	"github.com/jeremyhahn/go-acme-ca/pkg/ca"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

var (
	ErrKIDAndJWKNotAllowed = errors.New("both kid and jwk not allowed in JWS header")
	ErrMissingURLHeader    = errors.New("missing or mismatched url in JWS protected header")
)

type RestServicer interface {
	AccountHandler(w http.ResponseWriter, r *http.Request)
	AuthorizationHandler(w http.ResponseWriter, r *http.Request)
	CertificateHandler(w http.ResponseWriter, r *http.Request)
	ChallengeHandler(w http.ResponseWriter, r *http.Request)
	DirectoryHandler(w http.ResponseWriter, r *http.Request)
	NewAccountHandler(w http.ResponseWriter, r *http.Request)
	NewNonceHandler(w http.ResponseWriter, r *http.Request)
	NewOrderHandler(w http.ResponseWriter, r *http.Request)
	OrderHandler(w http.ResponseWriter, r *http.Request)
	OrdersListHandler(w http.ResponseWriter, r *http.Request)
	OrderFinalizeHandler(w http.ResponseWriter, r *http.Request)
	RevokeCertHandler(w http.ResponseWriter, r *http.Request)
	KeyChangeHandler(w http.ResponseWriter, r *http.Request)

	// Non-RFC 8555 compliant handlers
	CABundleHandler(w http.ResponseWriter, r *http.Request)
	CRLHandler(w http.ResponseWriter, r *http.Request)
}

const (
	externalAccountRequired = false
	nonceSize               = 16
	ordersPageSize          = 25
)

type Params struct {
	ACMEConfig *acme.Config
	CA         ca.CertificateAuthority
	DAOFactory dao.Factory
	Engine     *challenge.Engine
	Logger     *logging.Logger
	NonceStore *acme.NonceStore
}

type RestService struct {
	acmeConfig       *acme.ServerConfig
	baseRESTURI      string
	ca               ca.CertificateAuthority
	consistencyLevel datastore.ConsistencyLevel
	engine           *challenge.Engine
	logger           *logging.Logger
	nonceStore       *acme.NonceStore
	params           *Params
	RestServicer
}

func NewRestService(params *Params) (RestServicer, error) {

	if params.ACMEConfig == nil || params.ACMEConfig.Server == nil {
		params.Logger.Info("ACME server disabled")
		return nil, nil
	}

	baseRESTURI := strings.ReplaceAll(
		params.ACMEConfig.Server.DirectoryURL, "/acme/directory", "")

	nonceStore := params.NonceStore
	if nonceStore == nil {
		ttl := params.ACMEConfig.Server.NonceTTL
		if ttl <= 0 {
			ttl = acme.DefaultNonceTTLHours
		}
		nonceStore = acme.NewNonceStore(nonceSize, time.Duration(ttl)*time.Hour)
	}

	return &RestService{
		acmeConfig:       params.ACMEConfig.Server,
		baseRESTURI:      baseRESTURI,
		ca:               params.CA,
		consistencyLevel: params.DAOFactory.ConsistencyLevel(),
		engine:           params.Engine,
		logger:           params.Logger,
		nonceStore:       nonceStore,
		params:           params,
	}, nil
}

// replayNonce issues a fresh nonce and stamps it on the response,
// along with the directory index link. Every response carries one so
// clients never need an extra new-nonce round trip.
func (s *RestService) replayNonce(w http.ResponseWriter) {
	nonce, err := s.nonceStore.Issue()
	if err != nil {
		s.logger.MaybeError(err)
		return
	}
	w.Header().Set("Replay-Nonce", nonce)
	w.Header().Set("Link", fmt.Sprintf("<%s/acme/directory>;rel=\"index\"", s.baseRESTURI))
}

func (s *RestService) writeError(w http.ResponseWriter, err *entities.Error) {
	s.replayNonce(w)
	w.Header().Set("Content-Type", "application/problem+json")
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(err)
}

// Reusable responses
func (s *RestService) respondWithAccount(
	w http.ResponseWriter, account *entities.ACMEAccount, statusCode int) {

	s.replayNonce(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", s.accountURL(account))
	w.WriteHeader(statusCode)

	clientAccount := struct {
		Status  string   `json:"status"`
		Contact []string `json:"contact,omitempty"`
		Orders  string   `json:"orders"`
	}{
		Status:  account.Status,
		Contact: account.Contact,
		Orders:  account.Orders,
	}

	json.NewEncoder(w).Encode(clientAccount)
}

func (s *RestService) orderResponse(
	w http.ResponseWriter, order *entities.ACMEOrder, statusCode int) {

	s.replayNonce(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", order.URL)
	w.WriteHeader(statusCode)

	clientOrder := struct {
		Status         string                    `json:"status"`
		Expires        string                    `json:"expires,omitempty"`
		Identifiers    []entities.ACMEIdentifier `json:"identifiers"`
		NotBefore      string                    `json:"notBefore,omitempty"`
		NotAfter       string                    `json:"notAfter,omitempty"`
		Error          *entities.Error           `json:"error,omitempty"`
		Authorizations []string                  `json:"authorizations"`
		Finalize       string                    `json:"finalize"`
		Certificate    string                    `json:"certificate,omitempty"`
	}{
		Status:         order.Status,
		Expires:        order.Expires,
		Identifiers:    order.Identifiers,
		NotBefore:      order.NotBefore,
		NotAfter:       order.NotAfter,
		Error:          order.Error,
		Authorizations: order.Authorizations,
		Finalize:       order.Finalize,
		Certificate:    order.Certificate,
	}

	json.NewEncoder(w).Encode(clientOrder)
}

func (s *RestService) challengeResponse(
	w http.ResponseWriter, challenge *entities.ACMEChallenge, authzURL string) {

	s.replayNonce(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Link", fmt.Sprintf("<%s>;rel=\"up\"", authzURL))

	clientChallenge := struct {
		Type      string          `json:"type"`
		URL       string          `json:"url"`
		Status    string          `json:"status"`
		Token     string          `json:"token"`
		Validated string          `json:"validated,omitempty"`
		Error     *entities.Error `json:"error,omitempty"`
	}{
		Type:      challenge.Type,
		URL:       challenge.URL,
		Status:    challenge.Status,
		Token:     challenge.Token,
		Validated: challenge.Validated,
		Error:     challenge.Error,
	}

	json.NewEncoder(w).Encode(clientChallenge)
}

func (s *RestService) accountURL(account *entities.ACMEAccount) string {
	return fmt.Sprintf("%s/acme/account/%d", s.baseRESTURI, account.ID)
}

func (s *RestService) orderURL(orderID uint64) string {
	return fmt.Sprintf("%s/acme/orders/%d", s.baseRESTURI, orderID)
}

// parseJWS extracts the embedded public key and payload from a JWS
// signed with the jwk header. Only new-account and revocation by
// certificate key use this form.
func (s *RestService) parseJWS(r *http.Request) (crypto.PublicKey, []byte, *entities.Error) {

	jws, problem := s.readJWS(r)
	if problem != nil {
		return nil, nil, problem
	}

	protectedHeader := jws.Signatures[0].Header

	if protectedHeader.JSONWebKey != nil && protectedHeader.KeyID != "" {
		return nil, nil, acme.MalformedError(ErrKIDAndJWKNotAllowed.Error(), nil)
	}
	if protectedHeader.JSONWebKey == nil {
		return nil, nil, acme.MalformedError("JWK not found in JWS header", nil)
	}

	if err := s.nonceStore.Consume(protectedHeader.Nonce); err != nil {
		s.logger.Security(logging.SecurityLogEntry{
			Timestamp:       time.Now(),
			Severity:        logging.SeverityMedium,
			Category:        logging.CategoryNonceReplay,
			Description:     "rejected JWS with invalid nonce",
			Details:         fmt.Sprintf("url=%s", r.URL.Path),
			OffenderAddress: r.RemoteAddr,
		})
		return nil, nil, acme.BadNonce("Invalid or missing Replay-Nonce")
	}

	publicKey := protectedHeader.JSONWebKey.Key
	if publicKey == nil {
		return nil, nil, acme.BadPublicKey("Public key extraction failed")
	}

	payload, err := jws.Verify(publicKey)
	if err != nil {
		s.logger.Security(logging.SecurityLogEntry{
			Timestamp:       time.Now(),
			Severity:        logging.SeverityHigh,
			Category:        logging.CategoryBadSignature,
			Description:     "JWS signature verification failed",
			Details:         fmt.Sprintf("url=%s", r.URL.Path),
			OffenderAddress: r.RemoteAddr,
		})
		return nil, nil, acme.MalformedError("Invalid JWS signature", nil)
	}

	return publicKey, payload, nil
}

// parseKID authenticates a request signed with the kid header against
// the referenced account's stored key.
func (s *RestService) parseKID(r *http.Request) (*entities.ACMEAccount, []byte, *entities.Error) {

	jws, problem := s.readJWS(r)
	if problem != nil {
		return nil, nil, problem
	}

	protectedHeader := jws.Signatures[0].Header

	if protectedHeader.JSONWebKey != nil && protectedHeader.KeyID != "" {
		return nil, nil, acme.MalformedError(ErrKIDAndJWKNotAllowed.Error(), nil)
	}
	if protectedHeader.KeyID == "" {
		return nil, nil, acme.MalformedError("KID not found in JWS header", nil)
	}

	if err := s.nonceStore.Consume(protectedHeader.Nonce); err != nil {
		s.logger.Security(logging.SecurityLogEntry{
			Timestamp:       time.Now(),
			Severity:        logging.SeverityMedium,
			Category:        logging.CategoryNonceReplay,
			Description:     "rejected JWS with invalid nonce",
			Details:         fmt.Sprintf("url=%s", r.URL.Path),
			OffenderAddress: r.RemoteAddr,
			OffenderKID:     protectedHeader.KeyID,
		})
		return nil, nil, acme.BadNonce("Invalid or missing Replay-Nonce")
	}

	accountID, err := parseTrailingID(protectedHeader.KeyID)
	if err != nil {
		return nil, nil, acme.MalformedError("Invalid account KID", nil)
	}

	accountDAO, err := s.params.DAOFactory.ACMEAccountDAO()
	if err != nil {
		return nil, nil, acme.ServerInternal("Failed to create account DAO")
	}

	account, err := accountDAO.Get(accountID, s.consistencyLevel)
	if err != nil {
		return nil, nil, acme.AccountDoesNotExist("Account does not exist")
	}

	publicKey, err := deserializeAccountKey(account.Key)
	if err != nil {
		return nil, nil, acme.ServerInternal("Failed to decode account public key")
	}

	payload, err := jws.Verify(publicKey)
	if err != nil {
		s.logger.Security(logging.SecurityLogEntry{
			Timestamp:       time.Now(),
			Severity:        logging.SeverityHigh,
			Category:        logging.CategoryBadSignature,
			Description:     "JWS signature verification failed",
			OffenderAddress: r.RemoteAddr,
			OffenderKID:     protectedHeader.KeyID,
		})
		return nil, nil, acme.Unauthorized("Invalid JWS signature")
	}

	return account, payload, nil
}

// requireValidAccount gates operations that only a live account may
// perform. parseKID still authenticates deactivated accounts so they
// can retrieve their own status.
func requireValidAccount(account *entities.ACMEAccount) *entities.Error {
	if account.Status != acme.StatusValid {
		return acme.Unauthorized("Account is not valid")
	}
	return nil
}

// readJWS reads and parses the request body as a JWS and enforces the
// protected url header matches the request target.
func (s *RestService) readJWS(r *http.Request) (*jose.JSONWebSignature, *entities.Error) {

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, acme.MalformedError("Failed to read request body", nil)
	}
	defer r.Body.Close()

	jwsString := strings.TrimSpace(string(body))
	jws, err := jose.ParseSigned(jwsString, server.AllowedJOSEAlgorithms)
	if err != nil {
		if strings.Contains(err.Error(), "unexpected signature algorithm") {
			return nil, acme.BadSignatureAlgorithm("Unsupported JWS signature algorithm")
		}
		return nil, acme.MalformedError("Failed to parse JWS", nil)
	}
	if len(jws.Signatures) == 0 {
		return nil, acme.MalformedError("No signatures found in JWS", nil)
	}

	if err := checkURLHeader(jws.Signatures[0].Header, r); err != nil {
		return nil, acme.Unauthorized(err.Error())
	}

	return jws, nil
}

// checkURLHeader enforces RFC 8555 Section 6.4: the protected header's
// url member must match the request URL.
func checkURLHeader(header jose.Header, r *http.Request) error {
	raw, ok := header.ExtraHeaders[jose.HeaderKey("url")]
	if !ok {
		return ErrMissingURLHeader
	}
	jwsURL, ok := raw.(string)
	if !ok {
		return ErrMissingURLHeader
	}
	parsed, err := url.Parse(jwsURL)
	if err != nil || parsed.Path != r.URL.Path {
		return ErrMissingURLHeader
	}
	return nil
}

func validateContactURLs(contacts []string) *entities.Error {
	for _, contact := range contacts {
		if strings.HasPrefix(contact, "mailto:") {
			emailAddress := strings.TrimPrefix(contact, "mailto:")
			// Check for 'hfields' and multiple 'addr-spec'
			if strings.Contains(emailAddress, "?") {
				return acme.InvalidContact("Invalid mailto URL: contains hfields")
			}
			if strings.Contains(emailAddress, ",") {
				return acme.InvalidContact("Invalid mailto URL: contains multiple addr-spec")
			}
			if _, err := mail.ParseAddress(emailAddress); err != nil {
				return acme.InvalidContact("Invalid mailto URL: invalid email address")
			}
		} else {
			return acme.UnsupportedContact("Unsupported contact URL scheme")
		}
	}
	return nil
}

// serializeAccountKey stores the account public key as its JWK JSON
// form, the same representation clients register with.
func serializeAccountKey(publicKey crypto.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: publicKey}
	data, err := jwk.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func deserializeAccountKey(serialized string) (crypto.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON([]byte(serialized)); err != nil {
		return nil, err
	}
	return jwk.Key, nil
}

// parseTrailingID extracts the numeric object ID from the last path
// segment of an ACME URL.
func parseTrailingID(objectURL string) (uint64, error) {
	pieces := strings.Split(objectURL, "/")
	id, err := strconv.ParseUint(pieces[len(pieces)-1], 10, 64)
	if err != nil {
		return 0, errors.New("invalid object ID in URL")
	}
	return id, nil
}

func parsePathID(r *http.Request, vars map[string]string) (uint64, error) {
	id, ok := vars["id"]
	if !ok {
		return 0, fmt.Errorf("missing id in %s", r.URL.Path)
	}
	return strconv.ParseUint(id, 10, 64)
}

var domainLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

func isValidDomainName(domain string) bool {
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}
	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if !domainLabel.MatchString(label) {
			return false
		}
	}
	return true
}

// expireAuthorization transitions a stale pending or valid
// authorization to expired before it is returned or acted on.
func (s *RestService) expireAuthorization(
	authzDAO dao.ACMEAuthorizationDAO, authz *entities.ACMEAuthorization) bool {

	if authz.Status != acme.StatusPending && authz.Status != acme.StatusValid {
		return false
	}
	expires, err := time.Parse(time.RFC3339, authz.Expires)
	if err != nil || time.Now().Before(expires) {
		return false
	}
	authz.Status = acme.StatusExpired
	s.logger.MaybeError(authzDAO.Save(authz))
	return true
}

// expireOrder invalidates an order whose window has passed.
func (s *RestService) expireOrder(
	orderDAO dao.ACMEOrderDAO, order *entities.ACMEOrder) bool {

	if order.Status != acme.StatusPending && order.Status != acme.StatusReady {
		return false
	}
	expires, err := time.Parse(time.RFC3339, order.Expires)
	if err != nil || time.Now().Before(expires) {
		return false
	}
	order.Status = acme.StatusInvalid
	order.Error = acme.MalformedError("Order has expired", nil)
	s.logger.MaybeError(orderDAO.Save(order))
	return true
}

func GenerateID() (uint64, error) {
	return acme.GenerateID()
}

func parseNextLinkHeaderFromRequest(req *http.Request) (int, error) {
	links := link.ParseRequest(req)
	for _, l := range links {
		if l.Rel == "next" {
			u, err := url.Parse(l.URI)
			if err != nil {
				return 0, fmt.Errorf("invalid URL in next link: %v", err)
			}
			idStr := path.Base(u.Path)
			id, err := strconv.Atoi(idStr)
			if err != nil {
				return 0, fmt.Errorf("invalid ID in next link: %v", err)
			}
			return id, nil
		}
	}
	return 0, fmt.Errorf("next link not found")
}
