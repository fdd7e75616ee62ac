package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
)

// OrderHandler serves POST-as-GET order polling. Expired orders are
// invalidated on read.
func (s *RestService) OrderHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("OrderHandler", "method", r.Method, "url", r.URL)

	account, _, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}

	orderID, err := parsePathID(r, mux.Vars(r))
	if err != nil {
		s.writeError(w, acme.MalformedError("Invalid order ID", nil))
		return
	}

	orderDAO, err := s.params.DAOFactory.ACMEOrderDAO(account.ID)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create order DAO"))
		return
	}
	order, err := orderDAO.Get(orderID, s.consistencyLevel)
	if err != nil {
		s.writeError(w, acme.MalformedError("Order not found", nil))
		return
	}

	s.expireOrder(orderDAO, order)

	s.orderResponse(w, order, http.StatusOK)
}
