package afero

import (
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
	"github.com/jeremyhahn/go-acme-ca/pkg/serializer"
	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	acme "github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
)

type Factory struct {
	consistencyLevel datastore.ConsistencyLevel
	fs               afero.Fs
	logger           *logging.Logger
	readBufferSize   int
	rootDir          string
	serializerType   serializer.SerializerType
	dao.Factory
}

func NewFactory(logger *logging.Logger, config *datastore.Config) (dao.Factory, error) {
	fs, err := datastore.ParseAferoBackend(config.Backend)
	if err != nil {
		return nil, err
	}
	serializerType, err := serializer.ParseSerializer(config.Serializer)
	if err != nil {
		return nil, err
	}
	consistencyLevel := datastore.ParseConsistentLevel(config.ConsistencyLevel)
	return &Factory{
		consistencyLevel: consistencyLevel,
		fs:               fs,
		logger:           logger,
		readBufferSize:   config.ReadBufferSize,
		rootDir:          config.RootDir,
		serializerType:   serializerType,
	}, nil
}

// NewMemoryFactory creates a DAO factory backed by an in-memory file
// system, used by tests and ephemeral deployments.
func NewMemoryFactory(logger *logging.Logger) (dao.Factory, error) {
	config := datastore.DefaultConfig
	config.Backend = "memory"
	return NewFactory(logger, &config)
}

func (factory *Factory) SerializerType() serializer.SerializerType {
	return factory.serializerType
}

func (factory *Factory) ConsistencyLevel() datastore.ConsistencyLevel {
	return factory.consistencyLevel
}

func (factory *Factory) ACMEAccountDAO() (dao.ACMEAccountDAO, error) {
	serializer, err := serializer.NewSerializer[*acme.ACMEAccount](factory.serializerType)
	if err != nil {
		return nil, err
	}
	params := datastore.Params[*acme.ACMEAccount]{
		Fs:             factory.fs,
		Logger:         factory.logger,
		ReadBufferSize: factory.readBufferSize,
		RootDir:        factory.rootDir,
		Serializer:     serializer,
	}
	return NewACMEAccountDAO(&params)
}

func (factory *Factory) ACMEAccountKeyDAO() (dao.ACMEAccountKeyDAO, error) {
	serializer, err := serializer.NewSerializer[*acme.ACMEAccountKey](factory.serializerType)
	if err != nil {
		return nil, err
	}
	params := datastore.Params[*acme.ACMEAccountKey]{
		Fs:             factory.fs,
		Logger:         factory.logger,
		ReadBufferSize: factory.readBufferSize,
		RootDir:        factory.rootDir,
		Serializer:     serializer,
	}
	return NewACMEAccountKeyDAO(&params)
}

func (factory *Factory) ACMEOrderDAO(accountID uint64) (dao.ACMEOrderDAO, error) {
	serializer, err := serializer.NewSerializer[*acme.ACMEOrder](factory.serializerType)
	if err != nil {
		return nil, err
	}
	params := datastore.Params[*acme.ACMEOrder]{
		Fs:             factory.fs,
		Logger:         factory.logger,
		ReadBufferSize: factory.readBufferSize,
		RootDir:        factory.rootDir,
		Serializer:     serializer,
	}
	return NewACMEOrderDAO(&params, accountID)
}

func (factory *Factory) ACMEAuthorizationDAO(accountID uint64) (dao.ACMEAuthorizationDAO, error) {
	serializer, err := serializer.NewSerializer[*acme.ACMEAuthorization](factory.serializerType)
	if err != nil {
		return nil, err
	}
	params := datastore.Params[*acme.ACMEAuthorization]{
		Fs:             factory.fs,
		Logger:         factory.logger,
		ReadBufferSize: factory.readBufferSize,
		RootDir:        factory.rootDir,
		Serializer:     serializer,
	}
	return NewACMEAuthorizationDAO(&params, accountID)
}

func (factory *Factory) ACMECertificateDAO() (dao.ACMECertificateDAO, error) {
	serializer, err := serializer.NewSerializer[*acme.ACMECertificate](factory.serializerType)
	if err != nil {
		return nil, err
	}
	params := datastore.Params[*acme.ACMECertificate]{
		Fs:             factory.fs,
		Logger:         factory.logger,
		ReadBufferSize: factory.readBufferSize,
		RootDir:        factory.rootDir,
		Serializer:     serializer,
	}
	return NewACMECertificateDAO(&params)
}
