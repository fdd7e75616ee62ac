package afero

import (
	"fmt"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore/kvstore"
)

const (
	acme_authorization_partition = "acme/%d/authorizations"
)

type ACMEAuthorizationDAO struct {
	accountID uint64
	*kvstore.AferoDAO[*entities.ACMEAuthorization]
}

func NewACMEAuthorizationDAO(
	params *datastore.Params[*entities.ACMEAuthorization],
	accountID uint64) (dao.ACMEAuthorizationDAO, error) {

	params.Partition = fmt.Sprintf(acme_authorization_partition, accountID)
	aferoDAO, err := kvstore.NewAferoDAO(params)
	if err != nil {
		return nil, err
	}
	return &ACMEAuthorizationDAO{
		accountID: accountID,
		AferoDAO:  aferoDAO,
	}, nil
}
