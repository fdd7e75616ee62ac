package afero

import (
	"testing"

	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
	"github.com/jeremyhahn/go-acme-ca/pkg/serializer"
	"github.com/stretchr/testify/assert"
)

func TestInterfaces(t *testing.T) {

	logger := logging.DefaultLogger()

	config := &datastore.Config{
		Backend:          "memory",
		ConsistencyLevel: "local",
		ReadBufferSize:   50,
		RootDir:          "./",
		Serializer:       serializer.SERIALIZER_JSON.String(),
	}

	accountID := uint64(1)

	factory, err := NewFactory(logger, config)
	assert.Nil(t, err)

	acmeAccountDAO, err := factory.ACMEAccountDAO()
	assert.Nil(t, err)
	assert.IsType(t, &ACMEAccountDAO{}, acmeAccountDAO)

	acmeAccountKeyDAO, err := factory.ACMEAccountKeyDAO()
	assert.Nil(t, err)
	assert.IsType(t, &ACMEAccountKeyDAO{}, acmeAccountKeyDAO)

	acmeOrderDAO, err := factory.ACMEOrderDAO(accountID)
	assert.Nil(t, err)
	assert.IsType(t, &ACMEOrderDAO{}, acmeOrderDAO)

	acmeAuthorizationDAO, err := factory.ACMEAuthorizationDAO(accountID)
	assert.Nil(t, err)
	assert.IsType(t, &ACMEAuthorizationDAO{}, acmeAuthorizationDAO)

	acmeCertificateDAO, err := factory.ACMECertificateDAO()
	assert.Nil(t, err)
	assert.IsType(t, &ACMECertificateDAO{}, acmeCertificateDAO)
}
