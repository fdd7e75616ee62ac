package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
)

// OrdersListHandler returns the account's order URLs one page at a
// time, with an RFC 8288 Link rel="next" header while more pages
// remain.
func (s *RestService) OrdersListHandler(w http.ResponseWriter, r *http.Request) {

	s.logger.Debug("OrdersListHandler", "method", r.Method, "url", r.URL)

	account, _, problem := s.parseKID(r)
	if problem != nil {
		s.writeError(w, problem)
		return
	}

	// The next link carries the page number as its trailing segment
	page := 1
	if next, err := parseNextLinkHeaderFromRequest(r); err == nil {
		page = next
	}

	orderDAO, err := s.params.DAOFactory.ACMEOrderDAO(account.ID)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to create order DAO"))
		return
	}

	pageQuery := datastore.PageQuery{Page: page, PageSize: ordersPageSize}
	result, err := orderDAO.Page(pageQuery, s.consistencyLevel)
	if err != nil {
		s.writeError(w, acme.ServerInternal("Failed to list orders"))
		return
	}

	orderURLs := make([]string, len(result.Entities))
	for i, order := range result.Entities {
		orderURLs[i] = order.URL
	}

	s.replayNonce(w)
	if result.HasMore {
		w.Header().Add("Link", fmt.Sprintf("<%s/acme/orders/page/%d>;rel=\"next\"",
			s.baseRESTURI, page+1))
	}
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(struct {
		Orders []string `json:"orders"`
	}{Orders: orderURLs})
}
