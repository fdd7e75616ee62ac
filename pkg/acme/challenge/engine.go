package challenge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 64
	DefaultAttemptLimit = 30 * time.Second

	// How long a validated authorization stays reusable
	DefaultValidatedWindow = 30 * 24 * time.Hour
)

// Params contains the validation engine dependencies.
type Params struct {
	DAOFactory      dao.Factory
	Logger          *logging.Logger
	Verifiers       []Verifier
	Workers         int
	QueueSize       int
	AttemptTimeout  time.Duration
	ValidatedWindow time.Duration
}

// Engine validates challenges asynchronously. Dispatch enqueues a job
// and returns immediately; a bounded worker pool performs the network
// round trip and writes the resulting challenge, authorization and
// order state back through the DAO factory. State writes are
// serialized so that concurrent validations for the same order can't
// interleave a ready transition.
type Engine struct {
	params    Params
	verifiers map[acme.ChallengeType]Verifier
	jobs      chan Job
	done      chan struct{}
	wg        sync.WaitGroup
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewEngine(params Params) *Engine {
	if params.Logger == nil {
		params.Logger = logging.DefaultLogger()
	}
	if params.Workers <= 0 {
		params.Workers = DefaultWorkers
	}
	if params.QueueSize <= 0 {
		params.QueueSize = DefaultQueueSize
	}
	if params.AttemptTimeout <= 0 {
		params.AttemptTimeout = DefaultAttemptLimit
	}
	if params.ValidatedWindow <= 0 {
		params.ValidatedWindow = DefaultValidatedWindow
	}
	engine := &Engine{
		params:    params,
		verifiers: make(map[acme.ChallengeType]Verifier, len(params.Verifiers)),
		jobs:      make(chan Job, params.QueueSize),
		done:      make(chan struct{}),
	}
	for _, verifier := range params.Verifiers {
		engine.verifiers[verifier.Type()] = verifier
	}
	for i := 0; i < params.Workers; i++ {
		engine.wg.Add(1)
		go engine.worker()
	}
	return engine
}

// SupportedTypes returns the challenge types this engine can validate.
func (engine *Engine) SupportedTypes() []acme.ChallengeType {
	types := make([]acme.ChallengeType, 0, len(engine.verifiers))
	for _, challengeType := range acme.DNSChallengeTypes {
		if _, ok := engine.verifiers[challengeType]; ok {
			types = append(types, challengeType)
		}
	}
	return types
}

// Dispatch enqueues a validation job. Returns ErrQueueFull when the
// queue is at capacity so the caller can surface a retryable error
// instead of blocking the request goroutine.
func (engine *Engine) Dispatch(job Job) error {
	select {
	case <-engine.done:
		return ErrEngineClosed
	default:
	}
	select {
	case engine.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the workers after draining queued jobs.
func (engine *Engine) Close() {
	engine.closeOnce.Do(func() {
		close(engine.done)
		close(engine.jobs)
	})
	engine.wg.Wait()
}

func (engine *Engine) worker() {
	defer engine.wg.Done()
	for job := range engine.jobs {
		engine.process(job)
	}
}

func (engine *Engine) process(job Job) {
	logger := engine.params.Logger

	authzDAO, err := engine.params.DAOFactory.ACMEAuthorizationDAO(job.AccountID)
	if err != nil {
		logger.MaybeError(err)
		return
	}
	authz, err := authzDAO.Get(job.AuthorizationID, engine.params.DAOFactory.ConsistencyLevel())
	if err != nil {
		logger.MaybeError(err)
		return
	}

	var challenge *entities.ACMEChallenge
	for i := range authz.Challenges {
		if authz.Challenges[i].ID == job.ChallengeID {
			challenge = &authz.Challenges[i]
			break
		}
	}
	if challenge == nil {
		logger.Error(acme.ErrChallengeNotFound,
			"authorization", job.AuthorizationID, "challenge", job.ChallengeID)
		return
	}

	challengeType, err := acme.ParseChallengeType(challenge.Type)
	if err != nil {
		engine.fail(authzDAO, authz, challenge,
			acme.ServerInternal("unsupported challenge type"))
		return
	}
	verifier, ok := engine.verifiers[challengeType]
	if !ok {
		engine.fail(authzDAO, authz, challenge,
			acme.ServerInternal("no verifier for challenge type"))
		return
	}

	domain := strings.TrimPrefix(authz.Identifier.Value, "*.")

	ctx, cancel := context.WithTimeout(context.Background(), engine.params.AttemptTimeout)
	defer cancel()

	if err := verifier.Verify(ctx, domain, challenge.Token, job.KeyAuthorization); err != nil {
		logger.Security(logging.SecurityLogEntry{
			Timestamp:   time.Now(),
			Severity:    logging.SeverityLow,
			Category:    logging.CategoryChallengeFail,
			Description: "challenge validation failed",
			Details: fmt.Sprintf("type=%s domain=%s error=%s",
				challenge.Type, authz.Identifier.Value, err),
		})
		engine.fail(authzDAO, authz, challenge,
			acme.IncorrectResponse(err.Error()))
		return
	}

	engine.succeed(authzDAO, authz, challenge, job.AccountID)
}

// fail marks the attempted challenge and its authorization invalid.
// A failed validation is terminal for the authorization.
func (engine *Engine) fail(authzDAO dao.ACMEAuthorizationDAO,
	authz *entities.ACMEAuthorization, challenge *entities.ACMEChallenge,
	problem *entities.Error) {

	engine.writeMu.Lock()
	defer engine.writeMu.Unlock()

	challenge.Status = acme.StatusInvalid
	challenge.Error = problem
	authz.Status = acme.StatusInvalid
	engine.params.Logger.MaybeError(authzDAO.Save(authz))

	engine.updateOrder(authz.AccountID, authz.OrderID, acme.StatusInvalid, problem)
}

func (engine *Engine) succeed(authzDAO dao.ACMEAuthorizationDAO,
	authz *entities.ACMEAuthorization, challenge *entities.ACMEChallenge,
	accountID uint64) {

	engine.writeMu.Lock()
	defer engine.writeMu.Unlock()

	now := time.Now().UTC()
	challenge.Status = acme.StatusValid
	challenge.Validated = now.Format(time.RFC3339)
	authz.Status = acme.StatusValid
	authz.Expires = now.Add(engine.params.ValidatedWindow).Format(time.RFC3339)
	if err := authzDAO.Save(authz); err != nil {
		engine.params.Logger.MaybeError(err)
		return
	}

	engine.params.Logger.Info("challenge validated",
		"type", challenge.Type,
		"domain", authz.Identifier.Value,
		"authorization", authz.ID)

	engine.maybeReady(accountID, authz.OrderID)
}

// maybeReady transitions a pending order to ready once every one of
// its authorizations is valid.
func (engine *Engine) maybeReady(accountID, orderID uint64) {
	logger := engine.params.Logger
	factory := engine.params.DAOFactory

	orderDAO, err := factory.ACMEOrderDAO(accountID)
	if err != nil {
		logger.MaybeError(err)
		return
	}
	order, err := orderDAO.Get(orderID, factory.ConsistencyLevel())
	if err != nil {
		logger.MaybeError(err)
		return
	}
	if order.Status != acme.StatusPending {
		return
	}

	authzDAO, err := factory.ACMEAuthorizationDAO(accountID)
	if err != nil {
		logger.MaybeError(err)
		return
	}
	// Authorization URLs end in the authz ID. The order's own list is
	// checked rather than paging by order ID because an authorization
	// reused from an earlier order still references that order.
	for _, authzURL := range order.Authorizations {
		authzID, err := parseTrailingID(authzURL)
		if err != nil {
			logger.MaybeError(err)
			return
		}
		authz, err := authzDAO.Get(authzID, factory.ConsistencyLevel())
		if err != nil || authz.Status != acme.StatusValid {
			return
		}
	}

	order.Status = acme.StatusReady
	logger.MaybeError(orderDAO.Save(order))
	logger.Info("order ready", "order", orderID, "account", accountID)
}

func parseTrailingID(objectURL string) (uint64, error) {
	pieces := strings.Split(objectURL, "/")
	return strconv.ParseUint(pieces[len(pieces)-1], 10, 64)
}

func (engine *Engine) updateOrder(accountID, orderID uint64,
	status string, problem *entities.Error) {

	factory := engine.params.DAOFactory
	orderDAO, err := factory.ACMEOrderDAO(accountID)
	if err != nil {
		engine.params.Logger.MaybeError(err)
		return
	}
	order, err := orderDAO.Get(orderID, factory.ConsistencyLevel())
	if err != nil {
		engine.params.Logger.MaybeError(err)
		return
	}
	order.Status = status
	order.Error = problem
	engine.params.Logger.MaybeError(orderDAO.Save(order))
}
