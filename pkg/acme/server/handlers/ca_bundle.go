package handlers

import (
	"net/http"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
)

// CABundleHandler serves the issuing chain so clients can trust
// certificates from this private CA. Unauthenticated GET, not part of
// RFC 8555.
func (s *RestService) CABundleHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("CABundleHandler", "method", r.Method, "url", r.URL)

	bundle, err := s.ca.CABundle()
	if err != nil {
		s.writeError(w, acme.ServerInternal("CA bundle unavailable"))
		return
	}
	w.Header().Set("Content-Type", "application/pem-certificate-chain")
	w.Write(bundle)
}

// CRLHandler serves the DER encoded certificate revocation list.
// Unauthenticated GET, not part of RFC 8555.
func (s *RestService) CRLHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("CRLHandler", "method", r.Method, "url", r.URL)

	crl, err := s.ca.CRL()
	if err != nil {
		s.writeError(w, acme.ServerInternal("CRL unavailable"))
		return
	}
	w.Header().Set("Content-Type", "application/pkix-crl")
	w.Write(crl)
}
