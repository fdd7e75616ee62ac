package afero

import (
	"fmt"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore/kvstore"
)

const (
	acme_order_partition = "acme/%d/orders"
)

type ACMEOrderDAO struct {
	accountID uint64
	*kvstore.AferoDAO[*entities.ACMEOrder]
}

func NewACMEOrderDAO(
	params *datastore.Params[*entities.ACMEOrder],
	accountID uint64) (dao.ACMEOrderDAO, error) {

	params.Partition = fmt.Sprintf(acme_order_partition, accountID)
	aferoDAO, err := kvstore.NewAferoDAO(params)
	if err != nil {
		return nil, err
	}
	return &ACMEOrderDAO{
		accountID: accountID,
		AferoDAO:  aferoDAO,
	}, nil
}

// GetByAccountID returns the first page of orders belonging to the
// account this DAO is partitioned by.
func (orderDAO *ACMEOrderDAO) GetByAccountID(
	CONSISTENCY_LEVEL datastore.ConsistencyLevel) (datastore.PageResult[*entities.ACMEOrder], error) {

	pageQuery := datastore.NewPageQuery()
	return orderDAO.Page(pageQuery, CONSISTENCY_LEVEL)
}
