package dao

import (
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/serializer"
)

type ACMEAccountDAO interface {
	datastore.GenericDAO[*entities.ACMEAccount]
}

type ACMEAccountKeyDAO interface {
	datastore.GenericDAO[*entities.ACMEAccountKey]
}

type ACMEAuthorizationDAO interface {
	datastore.GenericDAO[*entities.ACMEAuthorization]
}

type ACMECertificateDAO interface {
	datastore.GenericDAO[*entities.ACMECertificate]
}

type ACMEOrderDAO interface {
	GetByAccountID(
		CONSISTENCY_LEVEL datastore.ConsistencyLevel) (datastore.PageResult[*entities.ACMEOrder], error)
	datastore.GenericDAO[*entities.ACMEOrder]
}

type Factory interface {
	ACMEAccountDAO() (ACMEAccountDAO, error)
	ACMEAccountKeyDAO() (ACMEAccountKeyDAO, error)
	ACMEAuthorizationDAO(accountID uint64) (ACMEAuthorizationDAO, error)
	ACMECertificateDAO() (ACMECertificateDAO, error)
	ACMEOrderDAO(accountID uint64) (ACMEOrderDAO, error)
	SerializerType() serializer.SerializerType
	ConsistencyLevel() datastore.ConsistencyLevel
}
