package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	aferodao "github.com/jeremyhahn/go-acme-ca/pkg/acme/dao/afero"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

type stubVerifier struct {
	challengeType acme.ChallengeType
	err           error
	domains       chan string
}

func (s *stubVerifier) Type() acme.ChallengeType {
	return s.challengeType
}

func (s *stubVerifier) Verify(ctx context.Context, domain, token, keyAuth string) error {
	if s.domains != nil {
		s.domains <- domain
	}
	return s.err
}

func seedOrder(t *testing.T, factory dao.Factory, accountID uint64,
	identifier string, wildcard bool) (*entities.ACMEOrder, *entities.ACMEAuthorization) {

	orderDAO, err := factory.ACMEOrderDAO(accountID)
	require.NoError(t, err)
	authzDAO, err := factory.ACMEAuthorizationDAO(accountID)
	require.NoError(t, err)

	token, err := NewToken()
	require.NoError(t, err)

	authz := &entities.ACMEAuthorization{
		ID:        1,
		AccountID: accountID,
		OrderID:   100,
		Identifier: entities.ACMEIdentifier{
			Type:  acme.AuthzTypeDNS.String(),
			Value: identifier,
		},
		Status:   acme.StatusPending,
		Wildcard: wildcard,
		Challenges: []entities.ACMEChallenge{{
			ID:              1,
			Type:            acme.ChallengeTypeHTTP01.String(),
			Status:          acme.StatusPending,
			Token:           token,
			AccountID:       accountID,
			AuthorizationID: 1,
		}},
	}
	require.NoError(t, authzDAO.Save(authz))

	order := &entities.ACMEOrder{
		ID:        100,
		AccountID: accountID,
		Status:    acme.StatusPending,
		Identifiers: []entities.ACMEIdentifier{{
			Type:  acme.AuthzTypeDNS.String(),
			Value: identifier,
		}},
		Authorizations: []string{"https://ca.example.com/acme/authz/1"},
	}
	require.NoError(t, orderDAO.Save(order))
	return order, authz
}

func waitForStatus(t *testing.T, fetch func() (string, error), want string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := fetch()
		require.NoError(t, err)
		if status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	status, _ := fetch()
	t.Fatalf("status never reached %q, last seen %q", want, status)
}

func TestValidationSuccessReadiesOrder(t *testing.T) {
	factory, err := aferodao.NewMemoryFactory(logging.DefaultLogger())
	require.NoError(t, err)

	accountID := uint64(42)
	order, authz := seedOrder(t, factory, accountID, "www.example.org", false)

	engine := NewEngine(Params{
		DAOFactory: factory,
		Verifiers:  []Verifier{&stubVerifier{challengeType: acme.ChallengeTypeHTTP01}},
	})
	defer engine.Close()

	require.NoError(t, engine.Dispatch(Job{
		AccountID:        accountID,
		AuthorizationID:  authz.ID,
		ChallengeID:      authz.Challenges[0].ID,
		KeyAuthorization: "token.thumbprint",
	}))

	orderDAO, err := factory.ACMEOrderDAO(accountID)
	require.NoError(t, err)
	waitForStatus(t, func() (string, error) {
		fetched, err := orderDAO.Get(order.ID, factory.ConsistencyLevel())
		if err != nil {
			return "", err
		}
		return fetched.Status, nil
	}, acme.StatusReady)

	authzDAO, err := factory.ACMEAuthorizationDAO(accountID)
	require.NoError(t, err)
	fetched, err := authzDAO.Get(authz.ID, factory.ConsistencyLevel())
	require.NoError(t, err)
	assert.Equal(t, acme.StatusValid, fetched.Status)
	assert.Equal(t, acme.StatusValid, fetched.Challenges[0].Status)
	assert.NotEmpty(t, fetched.Challenges[0].Validated)
	assert.NotEmpty(t, fetched.Expires)
}

func TestValidationFailureIsTerminal(t *testing.T) {
	factory, err := aferodao.NewMemoryFactory(logging.DefaultLogger())
	require.NoError(t, err)

	accountID := uint64(43)
	order, authz := seedOrder(t, factory, accountID, "www.example.org", false)

	engine := NewEngine(Params{
		DAOFactory: factory,
		Verifiers: []Verifier{&stubVerifier{
			challengeType: acme.ChallengeTypeHTTP01,
			err:           errors.New("connection refused"),
		}},
	})
	defer engine.Close()

	require.NoError(t, engine.Dispatch(Job{
		AccountID:        accountID,
		AuthorizationID:  authz.ID,
		ChallengeID:      authz.Challenges[0].ID,
		KeyAuthorization: "token.thumbprint",
	}))

	authzDAO, err := factory.ACMEAuthorizationDAO(accountID)
	require.NoError(t, err)
	waitForStatus(t, func() (string, error) {
		fetched, err := authzDAO.Get(authz.ID, factory.ConsistencyLevel())
		if err != nil {
			return "", err
		}
		return fetched.Status, nil
	}, acme.StatusInvalid)

	fetched, err := authzDAO.Get(authz.ID, factory.ConsistencyLevel())
	require.NoError(t, err)
	require.NotNil(t, fetched.Challenges[0].Error)
	assert.Equal(t, "urn:ietf:params:acme:error:incorrectResponse",
		fetched.Challenges[0].Error.Type)

	orderDAO, err := factory.ACMEOrderDAO(accountID)
	require.NoError(t, err)
	fetchedOrder, err := orderDAO.Get(order.ID, factory.ConsistencyLevel())
	require.NoError(t, err)
	assert.Equal(t, acme.StatusInvalid, fetchedOrder.Status)
}

func TestWildcardDomainStripped(t *testing.T) {
	factory, err := aferodao.NewMemoryFactory(logging.DefaultLogger())
	require.NoError(t, err)

	accountID := uint64(44)
	_, authz := seedOrder(t, factory, accountID, "*.example.org", true)

	domains := make(chan string, 1)
	engine := NewEngine(Params{
		DAOFactory: factory,
		Verifiers: []Verifier{&stubVerifier{
			challengeType: acme.ChallengeTypeHTTP01,
			domains:       domains,
		}},
	})
	defer engine.Close()

	require.NoError(t, engine.Dispatch(Job{
		AccountID:        accountID,
		AuthorizationID:  authz.ID,
		ChallengeID:      authz.Challenges[0].ID,
		KeyAuthorization: "token.thumbprint",
	}))

	select {
	case domain := <-domains:
		assert.Equal(t, "example.org", domain)
	case <-time.After(5 * time.Second):
		t.Fatal("verifier never invoked")
	}
}

func TestDispatchAfterClose(t *testing.T) {
	factory, err := aferodao.NewMemoryFactory(logging.DefaultLogger())
	require.NoError(t, err)

	engine := NewEngine(Params{DAOFactory: factory})
	engine.Close()
	assert.ErrorIs(t, engine.Dispatch(Job{}), ErrEngineClosed)
}

func TestOfferWildcardRestrictedToDNS(t *testing.T) {
	challenges, err := Offer(acme.DNSChallengeTypes, true)
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	assert.Equal(t, acme.ChallengeTypeDNS01.String(), challenges[0].Type)

	challenges, err = Offer(acme.DNSChallengeTypes, false)
	require.NoError(t, err)
	assert.Len(t, challenges, 3)

	seen := make(map[string]bool)
	for _, ch := range challenges {
		assert.Equal(t, acme.StatusPending, ch.Status)
		assert.NotEmpty(t, ch.Token)
		seen[ch.Token] = true
	}
	assert.Len(t, seen, 3)
}
