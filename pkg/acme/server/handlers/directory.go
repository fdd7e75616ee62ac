package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
)

func (s *RestService) DirectoryHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("DirectoryHandler", "method", r.Method, "url", r.URL)

	directory := acme.Directory{
		NewNonce:   fmt.Sprintf("%s/acme/new-nonce", s.baseRESTURI),
		NewAccount: fmt.Sprintf("%s/acme/new-account", s.baseRESTURI),
		NewOrder:   fmt.Sprintf("%s/acme/new-order", s.baseRESTURI),
		RevokeCert: fmt.Sprintf("%s/acme/revoke-cert", s.baseRESTURI),
		KeyChange:  fmt.Sprintf("%s/acme/key-change", s.baseRESTURI),
		Meta: acme.Meta{
			TermsOfService:     s.acmeConfig.TermsOfService,
			Website:            s.acmeConfig.Website,
			ExternalAccountReq: externalAccountRequired,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(directory)
}
