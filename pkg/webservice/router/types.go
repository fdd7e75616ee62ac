package router

import "github.com/gorilla/mux"

// WebServiceRouter registers a service's endpoints on the web server's
// root router.
type WebServiceRouter interface {
	RegisterRoutes(router *mux.Router)
}
