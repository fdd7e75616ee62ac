package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
)

// CertificateHandler serves the issued certificate chain to the
// account that ordered it, as application/pem-certificate-chain.
func (s *RestService) CertificateHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("CertificateHandler", "method", r.Method, "url", r.URL)

	account, _, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}

	certificateID, err := parsePathID(r, mux.Vars(r))
	if err != nil {
		s.writeError(w, acme.MalformedError("Invalid certificate ID", nil))
		return
	}

	certificateDAO, err := s.params.DAOFactory.ACMECertificateDAO()
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create certificate DAO"))
		return
	}
	certificate, err := certificateDAO.Get(certificateID, s.consistencyLevel)
	if err != nil {
		s.writeError(w, acme.MalformedError("Certificate not found", nil))
		return
	}

	if certificate.AccountID != account.ID {
		s.writeError(w, acme.Unauthorized("Certificate belongs to another account"))
		return
	}

	s.replayNonce(w)
	w.Header().Set("Content-Type", "application/pem-certificate-chain")
	w.Write([]byte(certificate.PEM))
}
