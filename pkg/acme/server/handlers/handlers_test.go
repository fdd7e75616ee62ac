package handlers_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	aferodao "github.com/jeremyhahn/go-acme-ca/pkg/acme/dao/afero"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/server/handlers"
	"github.com/jeremyhahn/go-acme-ca/pkg/ca"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
	"github.com/jeremyhahn/go-acme-ca/pkg/webservice/router"
	"github.com/spf13/afero"
)

// autoPassVerifier approves every validation attempt.
type autoPassVerifier struct {
	challengeType acme.ChallengeType
}

func (v *autoPassVerifier) Type() acme.ChallengeType {
	return v.challengeType
}

func (v *autoPassVerifier) Verify(ctx context.Context, domain, token, keyAuth string) error {
	return nil
}

type testServer struct {
	t       *testing.T
	srv     *httptest.Server
	factory dao.Factory
	ca      ca.CertificateAuthority
	engine  *challenge.Engine
}

func newTestServer(t *testing.T) *testServer {
	logger := logging.DefaultLogger()

	factory, err := aferodao.NewMemoryFactory(logger)
	require.NoError(t, err)

	caConfig := ca.DefaultConfig
	certificateAuthority, err := ca.NewCA(ca.Params{
		Config: &caConfig,
		Fs:     afero.NewMemMapFs(),
		Logger: logger,
	})
	require.NoError(t, err)

	engine := challenge.NewEngine(challenge.Params{
		DAOFactory: factory,
		Logger:     logger,
		Verifiers: []challenge.Verifier{
			&autoPassVerifier{acme.ChallengeTypeHTTP01},
			&autoPassVerifier{acme.ChallengeTypeDNS01},
			&autoPassVerifier{acme.ChallengeTypeTLSALPN01},
		},
	})
	t.Cleanup(engine.Close)

	nonceStore := acme.NewNonceStore(16, time.Hour)
	t.Cleanup(nonceStore.Close)

	// The server must be listening before the RestService is built so
	// the configured directory URL matches the URLs handed to clients.
	muxRouter := mux.NewRouter().StrictSlash(true)
	srv := httptest.NewServer(muxRouter)
	t.Cleanup(srv.Close)

	serverConfig := acme.DefaultServerConfig
	serverConfig.DirectoryURL = srv.URL + "/acme/directory"
	restService, err := handlers.NewRestService(&handlers.Params{
		ACMEConfig: &acme.Config{Server: &serverConfig},
		CA:         certificateAuthority,
		DAOFactory: factory,
		Engine:     engine,
		Logger:     logger,
		NonceStore: nonceStore,
	})
	require.NoError(t, err)

	router.NewACMERouter(restService).RegisterRoutes(muxRouter)

	return &testServer{
		t:       t,
		srv:     srv,
		factory: factory,
		ca:      certificateAuthority,
		engine:  engine,
	}
}

func (ts *testServer) url(path string) string {
	return ts.srv.URL + path
}

func (ts *testServer) nonce() string {
	response, err := http.Head(ts.url("/acme/new-nonce"))
	require.NoError(ts.t, err)
	defer response.Body.Close()
	nonce := response.Header.Get("Replay-Nonce")
	require.NotEmpty(ts.t, nonce)
	return nonce
}

type staticNonce string

func (n staticNonce) Nonce() (string, error) {
	return string(n), nil
}

// signEmbed signs a payload with the key embedded as a jwk header
func signEmbed(t *testing.T, key *ecdsa.PrivateKey, url, nonce string, payload []byte) string {
	opts := &jose.SignerOptions{
		NonceSource: staticNonce(nonce),
		EmbedJWK:    true,
	}
	opts.WithHeader(jose.HeaderKey("url"), url)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, opts)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	return serializeJWS(t, jws, payload)
}

// signKID signs a payload referencing an existing account by kid
func signKID(t *testing.T, key *ecdsa.PrivateKey, kid, url, nonce string, payload []byte) string {
	opts := &jose.SignerOptions{
		NonceSource: staticNonce(nonce),
	}
	opts.WithHeader(jose.HeaderKey("url"), url)
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.ES256,
		Key:       jose.JSONWebKey{Key: key, KeyID: kid},
	}, opts)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	return serializeJWS(t, jws, payload)
}

// serializeJWS renders the JSON serialization. go-jose omits the
// payload member entirely when the payload is empty, but RFC 8555
// POST-as-GET requires an explicit "payload":"" that ParseSigned on
// the server side insists on, so it is patched back in.
func serializeJWS(t *testing.T, jws *jose.JSONWebSignature, payload []byte) string {
	serialized := jws.FullSerialize()
	if len(payload) > 0 {
		return serialized
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(serialized), &body))
	body["payload"] = ""
	patched, err := json.Marshal(body)
	require.NoError(t, err)
	return string(patched)
}

func (ts *testServer) post(url, body string) *http.Response {
	response, err := http.Post(url, "application/jose+json", strings.NewReader(body))
	require.NoError(ts.t, err)
	return response
}

func decodeJSON(t *testing.T, response *http.Response, out any) {
	defer response.Body.Close()
	require.NoError(t, json.NewDecoder(response.Body).Decode(out))
}

func problemType(t *testing.T, response *http.Response) string {
	var problem entities.Error
	decodeJSON(t, response, &problem)
	return problem.Type
}

func newAccountKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// register creates an account and returns its kid (Location header)
func (ts *testServer) register(key *ecdsa.PrivateKey) string {
	url := ts.url("/acme/new-account")
	payload := `{"termsOfServiceAgreed":true,"contact":["mailto:admin@example.org"]}`
	response := ts.post(url, signEmbed(ts.t, key, url, ts.nonce(), []byte(payload)))
	defer response.Body.Close()
	require.Equal(ts.t, http.StatusCreated, response.StatusCode)
	kid := response.Header.Get("Location")
	require.NotEmpty(ts.t, kid)
	return kid
}

type orderResponse struct {
	Status         string                    `json:"status"`
	Expires        string                    `json:"expires"`
	Identifiers    []entities.ACMEIdentifier `json:"identifiers"`
	Error          *entities.Error           `json:"error"`
	Authorizations []string                  `json:"authorizations"`
	Finalize       string                    `json:"finalize"`
	Certificate    string                    `json:"certificate"`
}

type authzResponse struct {
	Identifier entities.ACMEIdentifier `json:"identifier"`
	Status     string                  `json:"status"`
	Expires    string                  `json:"expires"`
	Challenges []struct {
		Type   string          `json:"type"`
		URL    string          `json:"url"`
		Status string          `json:"status"`
		Token  string          `json:"token"`
		Error  *entities.Error `json:"error"`
	} `json:"challenges"`
	Wildcard bool `json:"wildcard"`
}

func (ts *testServer) newOrder(key *ecdsa.PrivateKey, kid string, identifiers ...string) (orderResponse, string) {
	url := ts.url("/acme/new-order")
	ids := make([]entities.ACMEIdentifier, len(identifiers))
	for i, value := range identifiers {
		ids[i] = entities.ACMEIdentifier{Type: "dns", Value: value}
	}
	payload, err := json.Marshal(map[string]any{"identifiers": ids})
	require.NoError(ts.t, err)

	response := ts.post(url, signKID(ts.t, key, kid, url, ts.nonce(), payload))
	require.Equal(ts.t, http.StatusCreated, response.StatusCode)
	location := response.Header.Get("Location")
	var order orderResponse
	decodeJSON(ts.t, response, &order)
	return order, location
}

// postAsGet polls an ACME resource with an empty JWS payload
func (ts *testServer) postAsGet(key *ecdsa.PrivateKey, kid, url string) *http.Response {
	return ts.post(url, signKID(ts.t, key, kid, url, ts.nonce(), nil))
}

func (ts *testServer) getAuthz(key *ecdsa.PrivateKey, kid, url string) authzResponse {
	response := ts.postAsGet(key, kid, url)
	require.Equal(ts.t, http.StatusOK, response.StatusCode)
	var authz authzResponse
	decodeJSON(ts.t, response, &authz)
	return authz
}

func (ts *testServer) pollOrder(key *ecdsa.PrivateKey, kid, orderURL, wantStatus string) orderResponse {
	deadline := time.Now().Add(10 * time.Second)
	var order orderResponse
	for time.Now().Before(deadline) {
		response := ts.postAsGet(key, kid, orderURL)
		require.Equal(ts.t, http.StatusOK, response.StatusCode)
		decodeJSON(ts.t, response, &order)
		if order.Status == wantStatus {
			return order
		}
		require.NotEqual(ts.t, acme.StatusInvalid, order.Status,
			"order failed: %+v", order.Error)
		time.Sleep(25 * time.Millisecond)
	}
	ts.t.Fatalf("order never reached %q, last status %q", wantStatus, order.Status)
	return order
}

func newCSRFor(t *testing.T, names []string) string {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: names[0]},
		DNSNames: names,
	}, key)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(der)
}

func TestDirectory(t *testing.T) {
	ts := newTestServer(t)

	response, err := http.Get(ts.url("/acme/directory"))
	require.NoError(t, err)
	var directory acme.Directory
	decodeJSON(t, response, &directory)
	assert.Contains(t, directory.NewNonce, "/acme/new-nonce")
	assert.Contains(t, directory.NewAccount, "/acme/new-account")
	assert.Contains(t, directory.NewOrder, "/acme/new-order")
	assert.Contains(t, directory.RevokeCert, "/acme/revoke-cert")
	assert.Contains(t, directory.KeyChange, "/acme/key-change")
}

func TestNewNonce(t *testing.T) {
	ts := newTestServer(t)

	response, err := http.Get(ts.url("/acme/new-nonce"))
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	assert.NotEmpty(t, response.Header.Get("Replay-Nonce"))
	assert.Equal(t, "no-store", response.Header.Get("Cache-Control"))
}

func TestNonceSingleUse(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)

	url := ts.url("/acme/new-account")
	nonce := ts.nonce()
	payload := []byte(`{"termsOfServiceAgreed":true}`)

	response := ts.post(url, signEmbed(t, key, url, nonce, payload))
	response.Body.Close()
	require.Equal(t, http.StatusCreated, response.StatusCode)

	// Replaying the consumed nonce must fail with badNonce, and the
	// error response itself must carry a fresh nonce
	response = ts.post(url, signEmbed(t, newAccountKey(t), url, nonce, payload))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.NotEmpty(t, response.Header.Get("Replay-Nonce"))
	assert.Equal(t, "urn:ietf:params:acme:error:badNonce", problemType(t, response))
}

func TestAccountRegistration(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)

	kid := ts.register(key)

	// Same key registers again: same account, 200
	url := ts.url("/acme/new-account")
	response := ts.post(url, signEmbed(t, key, url, ts.nonce(),
		[]byte(`{"termsOfServiceAgreed":true}`)))
	defer response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, kid, response.Header.Get("Location"))

	// onlyReturnExisting with an unknown key
	response = ts.post(url, signEmbed(t, newAccountKey(t), url, ts.nonce(),
		[]byte(`{"onlyReturnExisting":true}`)))
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, "urn:ietf:params:acme:error:accountDoesNotExist", problemType(t, response))
}

func TestAccountRejectsInvalidContact(t *testing.T) {
	ts := newTestServer(t)

	url := ts.url("/acme/new-account")
	response := ts.post(url, signEmbed(t, newAccountKey(t), url, ts.nonce(),
		[]byte(`{"contact":["tel:+15551234567"]}`)))
	assert.Equal(t, "urn:ietf:params:acme:error:unsupportedContact", problemType(t, response))
}

func TestAccountDeactivation(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	response := ts.post(kid, signKID(t, key, kid, kid, ts.nonce(),
		[]byte(`{"status":"deactivated"}`)))
	var account struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, response.StatusCode)
	decodeJSON(t, response, &account)
	assert.Equal(t, acme.StatusDeactivated, account.Status)

	// A deactivated account can't order
	url := ts.url("/acme/new-order")
	payload := []byte(`{"identifiers":[{"type":"dns","value":"www.example.org"}]}`)
	response = ts.post(url, signKID(t, key, kid, url, ts.nonce(), payload))
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.Equal(t, "urn:ietf:params:acme:error:unauthorized", problemType(t, response))

	// Reactivation is an illegal transition
	response = ts.post(kid, signKID(t, key, kid, kid, ts.nonce(),
		[]byte(`{"status":"valid"}`)))
	assert.Equal(t, http.StatusConflict, response.StatusCode)
}

func TestNewOrderValidation(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	url := ts.url("/acme/new-order")

	// Unsupported identifier type
	payload := []byte(`{"identifiers":[{"type":"ip","value":"10.0.0.1"}]}`)
	response := ts.post(url, signKID(t, key, kid, url, ts.nonce(), payload))
	assert.Equal(t, "urn:ietf:params:acme:error:unsupportedIdentifier", problemType(t, response))

	// Malformed domain
	payload = []byte(`{"identifiers":[{"type":"dns","value":"not a domain"}]}`)
	response = ts.post(url, signKID(t, key, kid, url, ts.nonce(), payload))
	assert.Equal(t, "urn:ietf:params:acme:error:rejectedIdentifier", problemType(t, response))

	// Wildcard label anywhere but the left-most position
	payload = []byte(`{"identifiers":[{"type":"dns","value":"www.*.example.org"}]}`)
	response = ts.post(url, signKID(t, key, kid, url, ts.nonce(), payload))
	assert.Equal(t, "urn:ietf:params:acme:error:rejectedIdentifier", problemType(t, response))

	// Empty identifier list
	payload = []byte(`{"identifiers":[]}`)
	response = ts.post(url, signKID(t, key, kid, url, ts.nonce(), payload))
	assert.Equal(t, "urn:ietf:params:acme:error:malformed", problemType(t, response))
}

func TestOrderIssuanceFlow(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	order, orderURL := ts.newOrder(key, kid, "www.example.org", "example.org")
	require.Equal(t, acme.StatusPending, order.Status)
	require.Len(t, order.Authorizations, 2)
	require.NotEmpty(t, orderURL)

	// Respond to one challenge per authorization
	for _, authzURL := range order.Authorizations {
		authz := ts.getAuthz(key, kid, authzURL)
		require.Equal(t, acme.StatusPending, authz.Status)
		require.Len(t, authz.Challenges, 3)

		response := ts.post(authz.Challenges[0].URL,
			signKID(t, key, kid, authz.Challenges[0].URL, ts.nonce(), []byte("{}")))
		var ch struct {
			Status string `json:"status"`
		}
		require.Equal(t, http.StatusOK, response.StatusCode)
		decodeJSON(t, response, &ch)
		assert.Equal(t, acme.StatusProcessing, ch.Status)
	}

	order = ts.pollOrder(key, kid, orderURL, acme.StatusReady)

	// Finalize with a CSR matching the order identifiers
	csr := newCSRFor(t, []string{"www.example.org", "example.org"})
	payload, _ := json.Marshal(map[string]string{"csr": csr})
	response := ts.post(order.Finalize,
		signKID(t, key, kid, order.Finalize, ts.nonce(), payload))
	require.Equal(t, http.StatusOK, response.StatusCode)
	decodeJSON(t, response, &order)
	require.Contains(t,
		[]string{acme.StatusProcessing, acme.StatusValid}, order.Status)

	order = ts.pollOrder(key, kid, orderURL, acme.StatusValid)
	require.NotEmpty(t, order.Certificate)

	// Download and verify the chain
	response = ts.postAsGet(key, kid, order.Certificate)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "application/pem-certificate-chain",
		response.Header.Get("Content-Type"))
	chainPEM, err := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, err)

	block, _ := pem.Decode(chainPEM)
	require.NotNil(t, block)
	leaf, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"www.example.org", "example.org"}, leaf.DNSNames)
	assert.NoError(t, ts.ca.Verify(leaf))

	// Revoke, then revoke again
	revokeURL := ts.url("/acme/revoke-cert")
	revokePayload, _ := json.Marshal(map[string]any{
		"certificate": base64.RawURLEncoding.EncodeToString(leaf.Raw),
	})
	response = ts.post(revokeURL,
		signKID(t, key, kid, revokeURL, ts.nonce(), revokePayload))
	response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)

	response = ts.post(revokeURL,
		signKID(t, key, kid, revokeURL, ts.nonce(), revokePayload))
	assert.Equal(t, "urn:ietf:params:acme:error:alreadyRevoked", problemType(t, response))
}

func TestWildcardOrder(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	order, _ := ts.newOrder(key, kid, "*.example.org")
	require.Len(t, order.Authorizations, 1)

	authz := ts.getAuthz(key, kid, order.Authorizations[0])
	assert.True(t, authz.Wildcard)
	assert.Equal(t, "example.org", authz.Identifier.Value)
	require.Len(t, authz.Challenges, 1)
	assert.Equal(t, acme.ChallengeTypeDNS01.String(), authz.Challenges[0].Type)
}

func TestAuthorizationReuse(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	order, orderURL := ts.newOrder(key, kid, "www.example.org")
	authz := ts.getAuthz(key, kid, order.Authorizations[0])
	response := ts.post(authz.Challenges[0].URL,
		signKID(t, key, kid, authz.Challenges[0].URL, ts.nonce(), []byte("{}")))
	response.Body.Close()
	ts.pollOrder(key, kid, orderURL, acme.StatusReady)

	// The second order for the same identifier rides the validated
	// authorization and is ready immediately
	secondOrder, _ := ts.newOrder(key, kid, "www.example.org")
	assert.Equal(t, acme.StatusReady, secondOrder.Status)
	assert.Equal(t, order.Authorizations, secondOrder.Authorizations)
}

func TestFinalizeCSRMismatch(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	order, orderURL := ts.newOrder(key, kid, "www.example.org")
	authz := ts.getAuthz(key, kid, order.Authorizations[0])
	response := ts.post(authz.Challenges[0].URL,
		signKID(t, key, kid, authz.Challenges[0].URL, ts.nonce(), []byte("{}")))
	response.Body.Close()
	order = ts.pollOrder(key, kid, orderURL, acme.StatusReady)

	// CSR for a name the order never authorized
	csr := newCSRFor(t, []string{"www.example.org", "evil.example.net"})
	payload, _ := json.Marshal(map[string]string{"csr": csr})
	response = ts.post(order.Finalize,
		signKID(t, key, kid, order.Finalize, ts.nonce(), payload))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "urn:ietf:params:acme:error:badCSR", problemType(t, response))

	// The order survives the rejected CSR
	order = ts.pollOrder(key, kid, orderURL, acme.StatusReady)
}

func TestFinalizeRetryAfterValid(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	order, orderURL := ts.newOrder(key, kid, "retry.example.org")
	authz := ts.getAuthz(key, kid, order.Authorizations[0])
	response := ts.post(authz.Challenges[0].URL,
		signKID(t, key, kid, authz.Challenges[0].URL, ts.nonce(), []byte("{}")))
	response.Body.Close()
	ts.pollOrder(key, kid, orderURL, acme.StatusReady)

	csr := newCSRFor(t, []string{"retry.example.org"})
	payload, _ := json.Marshal(map[string]string{"csr": csr})
	response = ts.post(order.Finalize,
		signKID(t, key, kid, order.Finalize, ts.nonce(), payload))
	require.Equal(t, http.StatusOK, response.StatusCode)
	response.Body.Close()

	order = ts.pollOrder(key, kid, orderURL, acme.StatusValid)
	require.NotEmpty(t, order.Certificate)

	// A repeat finalize with the same CSR returns the issued order
	// without signing a second certificate
	var retried orderResponse
	response = ts.post(order.Finalize,
		signKID(t, key, kid, order.Finalize, ts.nonce(), payload))
	require.Equal(t, http.StatusOK, response.StatusCode)
	decodeJSON(t, response, &retried)
	assert.Equal(t, acme.StatusValid, retried.Status)
	assert.Equal(t, order.Certificate, retried.Certificate)

	// A different CSR, even for the same identifiers, is refused
	otherCSR := newCSRFor(t, []string{"retry.example.org"})
	otherPayload, _ := json.Marshal(map[string]string{"csr": otherCSR})
	response = ts.post(order.Finalize,
		signKID(t, key, kid, order.Finalize, ts.nonce(), otherPayload))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "urn:ietf:params:acme:error:badCSR", problemType(t, response))
}

func TestFinalizeBeforeReady(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	order, _ := ts.newOrder(key, kid, "www.example.org")
	require.Equal(t, acme.StatusPending, order.Status)

	csr := newCSRFor(t, []string{"www.example.org"})
	payload, _ := json.Marshal(map[string]string{"csr": csr})
	response := ts.post(order.Finalize,
		signKID(t, key, kid, order.Finalize, ts.nonce(), payload))
	assert.Equal(t, http.StatusForbidden, response.StatusCode)
	assert.Equal(t, "urn:ietf:params:acme:error:orderNotReady", problemType(t, response))
}

func TestOrdersList(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	ts.newOrder(key, kid, "one.example.org")
	ts.newOrder(key, kid, "two.example.org")

	url := ts.url("/acme/orders")
	response := ts.post(url, signKID(t, key, kid, url, ts.nonce(), nil))
	require.Equal(t, http.StatusOK, response.StatusCode)
	var list struct {
		Orders []string `json:"orders"`
	}
	decodeJSON(t, response, &list)
	assert.Len(t, list.Orders, 2)
}

func TestKeyChange(t *testing.T) {
	ts := newTestServer(t)
	oldKey := newAccountKey(t)
	kid := ts.register(oldKey)

	newKey := newAccountKey(t)
	url := ts.url("/acme/key-change")

	oldJWK := jose.JSONWebKey{Key: oldKey.Public()}
	oldJWKJSON, err := oldJWK.MarshalJSON()
	require.NoError(t, err)

	innerPayload, err := json.Marshal(map[string]json.RawMessage{
		"account": json.RawMessage(`"` + kid + `"`),
		"oldKey":  json.RawMessage(oldJWKJSON),
	})
	require.NoError(t, err)

	// Inner JWS: new key, embedded jwk, no nonce
	innerOpts := &jose.SignerOptions{EmbedJWK: true}
	innerOpts.WithHeader(jose.HeaderKey("url"), url)
	innerSigner, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: newKey}, innerOpts)
	require.NoError(t, err)
	innerJWS, err := innerSigner.Sign(innerPayload)
	require.NoError(t, err)

	response := ts.post(url, signKID(t, oldKey, kid, url, ts.nonce(),
		[]byte(innerJWS.FullSerialize())))
	response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)

	// The old key no longer authenticates
	response = ts.postAsGet(oldKey, kid, kid)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	response.Body.Close()

	// The new key does
	response = ts.postAsGet(newKey, kid, kid)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	response.Body.Close()

	// Registering the new key resolves to the rolled-over account
	// instead of minting a duplicate
	newAccountURL := ts.url("/acme/new-account")
	response = ts.post(newAccountURL, signEmbed(t, newKey, newAccountURL, ts.nonce(),
		[]byte(`{"onlyReturnExisting":true}`)))
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, kid, response.Header.Get("Location"))
	response.Body.Close()

	// The retired key no longer resolves to any account
	response = ts.post(newAccountURL, signEmbed(t, oldKey, newAccountURL, ts.nonce(),
		[]byte(`{"onlyReturnExisting":true}`)))
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, "urn:ietf:params:acme:error:accountDoesNotExist", problemType(t, response))
}

func TestBadSignatureRejected(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	// Sign with a key that doesn't match the kid's account key
	imposter := newAccountKey(t)
	response := ts.postAsGet(imposter, kid, kid)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.Equal(t, "urn:ietf:params:acme:error:unauthorized", problemType(t, response))
}

func TestURLHeaderEnforced(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	// JWS url member names a different resource than the request target
	body := signKID(t, key, kid, ts.url("/acme/new-order"), ts.nonce(), nil)
	response := ts.post(kid, body)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	response.Body.Close()
}

func TestExpiredOrderPolling(t *testing.T) {
	ts := newTestServer(t)
	key := newAccountKey(t)
	kid := ts.register(key)

	order, orderURL := ts.newOrder(key, kid, "www.example.org")
	authz := ts.getAuthz(key, kid, order.Authorizations[0])
	response := ts.post(authz.Challenges[0].URL,
		signKID(t, key, kid, authz.Challenges[0].URL, ts.nonce(), []byte("{}")))
	response.Body.Close()
	ts.pollOrder(key, kid, orderURL, acme.StatusReady)

	// Backdate the order's deadline; the next poll must observe it as
	// invalid even though every authorization is still valid
	accountID, err := acme.GenerateAccountID(key.Public())
	require.NoError(t, err)
	orderDAO, err := ts.factory.ACMEOrderDAO(accountID)
	require.NoError(t, err)
	orderID, err := strconv.ParseUint(path.Base(orderURL), 10, 64)
	require.NoError(t, err)
	stored, err := orderDAO.Get(orderID, ts.factory.ConsistencyLevel())
	require.NoError(t, err)
	stored.Expires = time.Now().Add(-time.Minute).Format(time.RFC3339)
	require.NoError(t, orderDAO.Save(stored))

	response = ts.postAsGet(key, kid, orderURL)
	require.Equal(t, http.StatusOK, response.StatusCode)
	var polled orderResponse
	decodeJSON(t, response, &polled)
	assert.Equal(t, acme.StatusInvalid, polled.Status)
	require.NotNil(t, polled.Error)
	assert.Equal(t, "urn:ietf:params:acme:error:malformed", polled.Error.Type)
}

func TestCABundle(t *testing.T) {
	ts := newTestServer(t)

	response, err := http.Get(ts.url("/acme/ca-bundle"))
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.True(t, bytes.Contains(body, []byte("BEGIN CERTIFICATE")))
}

func TestCRL(t *testing.T) {
	ts := newTestServer(t)

	response, err := http.Get(ts.url("/acme/crl"))
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "application/pkix-crl", response.Header.Get("Content-Type"))

	crl, err := x509.ParseRevocationList(body)
	require.NoError(t, err)
	assert.Empty(t, crl.RevokedCertificateEntries)
}
