package afero

import (
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore/kvstore"
)

const (
	acme_account_partition     = "acme/accounts"
	acme_account_key_partition = "acme/account-keys"
)

type ACMEAccountDAO struct {
	*kvstore.AferoDAO[*entities.ACMEAccount]
}

func NewACMEAccountDAO(params *datastore.Params[*entities.ACMEAccount]) (dao.ACMEAccountDAO, error) {
	if params.Partition == "" {
		params.Partition = acme_account_partition
	}
	aferoDAO, err := kvstore.NewAferoDAO(params)
	if err != nil {
		return nil, err
	}
	return &ACMEAccountDAO{
		AferoDAO: aferoDAO,
	}, nil
}

type ACMEAccountKeyDAO struct {
	*kvstore.AferoDAO[*entities.ACMEAccountKey]
}

func NewACMEAccountKeyDAO(params *datastore.Params[*entities.ACMEAccountKey]) (dao.ACMEAccountKeyDAO, error) {
	if params.Partition == "" {
		params.Partition = acme_account_key_partition
	}
	aferoDAO, err := kvstore.NewAferoDAO(params)
	if err != nil {
		return nil, err
	}
	return &ACMEAccountKeyDAO{
		AferoDAO: aferoDAO,
	}, nil
}
