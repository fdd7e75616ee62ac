package webservice

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/ca"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
	"github.com/jeremyhahn/go-acme-ca/pkg/webservice/router"
)

// WebServer terminates TLS on the configured port using a server
// certificate issued by the platform CA and serves the registered
// service routers.
type WebServer struct {
	ca         ca.CertificateAuthority
	config     *Config
	httpServer *http.Server
	logger     *logging.Logger
	router     *mux.Router
	routers    []router.WebServiceRouter
}

func NewWebServer(
	logger *logging.Logger,
	certificateAuthority ca.CertificateAuthority,
	config *Config,
	routers ...router.WebServiceRouter) *WebServer {

	if config == nil {
		cfg := DefaultConfig
		config = &cfg
	}

	webserver := &WebServer{
		ca:      certificateAuthority,
		config:  config,
		logger:  logger,
		router:  mux.NewRouter().StrictSlash(true),
		routers: routers,
	}

	webserver.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.TLSPort),
		Handler:      webserver.router,
		IdleTimeout:  HTTP_SERVER_IDLE_TIMEOUT,
		ReadTimeout:  HTTP_SERVER_READ_TIMEOUT,
		WriteTimeout: HTTP_SERVER_WRITE_TIMEOUT,
	}
	return webserver
}

// Run builds the routes, provisions the listener certificate from the
// CA and serves TLS until Shutdown.
func (server *WebServer) Run() error {

	for _, serviceRouter := range server.routers {
		serviceRouter.RegisterRoutes(server.router)
	}

	certificate, err := server.ca.TLSCertificate(
		server.config.CommonName, server.config.SANS)
	if err != nil {
		server.logger.Error(err)
		return ErrLoadTlsCerts
	}

	server.httpServer.TLSConfig = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{certificate},
	}

	server.logger.Info("web server listening",
		"port", server.config.TLSPort,
		"cn", server.config.CommonName)

	if err := server.httpServer.ListenAndServeTLS("", ""); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		server.logger.Error(err)
		return ErrBindPort
	}
	return nil
}

func (server *WebServer) Shutdown(ctx context.Context) error {
	server.logger.Info("web server shutting down")
	return server.httpServer.Shutdown(ctx)
}
