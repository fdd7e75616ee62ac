package handlers

import (
	"net/http"
)

// NewNonceHandler issues a fresh nonce in the Replay-Nonce header.
// HEAD returns 200 and GET 204, as per RFC 8555 Section 7.2.
func (s *RestService) NewNonceHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("NewNonceHandler", "method", r.Method, "url", r.URL)

	s.replayNonce(w)
	w.Header().Set("Cache-Control", "no-store")

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
