package router

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme/server/handlers"
)

type ACMERouter struct {
	restService handlers.RestServicer
	WebServiceRouter
}

// Creates a new ACME certificate authority router
func NewACMERouter(restService handlers.RestServicer) WebServiceRouter {
	return &ACMERouter{restService: restService}
}

// Registers all of the ACME endpoints under /acme
func (acmeRouter *ACMERouter) RegisterRoutes(router *mux.Router) {

	subrouter := router.PathPrefix("/acme").Subrouter()

	accountLimiter := handlers.NewRateLimiter(20, time.Hour)            // account registration and updates, per IP / KID
	nonceLimiter := handlers.NewRateLimiter(60, time.Minute)            // nonce generation per IP
	orderLimiter := handlers.NewRateLimiter(50, 7*24*time.Hour)         // order creation per JWS KID
	finalizeOrderLimiter := handlers.NewRateLimiter(50, 7*24*time.Hour) // finalize per JWS KID
	orderStatusLimiter := handlers.NewRateLimiter(60, time.Minute)      // order polling per JWS KID
	orderListLimiter := handlers.NewRateLimiter(10, time.Minute)        // order list per JWS KID
	authzLimiter := handlers.NewRateLimiter(60, time.Minute)            // authorization polling per JWS KID
	challengeLimiter := handlers.NewRateLimiter(30, time.Minute)        // challenge responses per JWS KID
	certLimiter := handlers.NewRateLimiter(20, time.Hour)               // certificate retrieval per JWS KID
	revokeLimiter := handlers.NewRateLimiter(10, time.Hour)             // revocation per JWS KID
	keyChangeLimiter := handlers.NewRateLimiter(5, time.Hour)           // key rollover per JWS KID
	directoryLimiter := handlers.NewRateLimiter(100, time.Hour)         // directory per IP

	acmeRouter.directory(subrouter, directoryLimiter)
	acmeRouter.newNonce(subrouter, nonceLimiter)
	acmeRouter.newAccount(subrouter, accountLimiter)
	acmeRouter.newOrder(subrouter, orderLimiter)
	acmeRouter.accounts(subrouter, accountLimiter)
	acmeRouter.authorization(subrouter, authzLimiter)
	acmeRouter.challenge(subrouter, challengeLimiter)
	acmeRouter.finalizeOrder(subrouter, finalizeOrderLimiter)
	acmeRouter.getOrder(subrouter, orderStatusLimiter)
	acmeRouter.listOrders(subrouter, orderListLimiter)
	acmeRouter.certificate(subrouter, certLimiter)
	acmeRouter.revokeCert(subrouter, revokeLimiter)
	acmeRouter.keyChange(subrouter, keyChangeLimiter)
	acmeRouter.caBundle(subrouter, directoryLimiter)
	acmeRouter.crl(subrouter, directoryLimiter)
}

func (acmeRouter *ACMERouter) accounts(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/account/{id}").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.AccountHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) authorization(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/authz/{id}").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.AuthorizationHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) caBundle(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/ca-bundle").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.CABundleHandler).Methods(http.MethodGet)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) crl(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/crl").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.CRLHandler).Methods(http.MethodGet)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) certificate(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/cert/{id}").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.CertificateHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) challenge(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/challenge/{id}").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.ChallengeHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) directory(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/directory").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.DirectoryHandler).Methods(http.MethodGet)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) finalizeOrder(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/orders/{id}/finalize").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.OrderFinalizeHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) getOrder(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/orders/{id}").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.OrderHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) keyChange(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/key-change").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.KeyChangeHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) listOrders(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/orders").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.OrdersListHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) newAccount(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/new-account").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.NewAccountHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) newNonce(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/new-nonce").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.NewNonceHandler).Methods(http.MethodHead, http.MethodGet)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) newOrder(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/new-order").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.NewOrderHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}

func (acmeRouter *ACMERouter) revokeCert(router *mux.Router, rateLimiter *handlers.RateLimiter) {
	subrouter := router.PathPrefix("/revoke-cert").Subrouter()
	subrouter.HandleFunc("", acmeRouter.restService.RevokeCertHandler).Methods(http.MethodPost)
	subrouter.Use(rateLimiter.MiddlewareFunc(handlers.ClientID))
}
