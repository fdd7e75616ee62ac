package kvstore

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
)

type testRecord struct {
	ID    uint64 `json:"id"`
	Value string `json:"value"`
}

func (record *testRecord) SetEntityID(id uint64) {
	record.ID = id
}

func (record *testRecord) EntityID() uint64 {
	return record.ID
}

func testDAO(t *testing.T, fs afero.Fs) *AferoDAO[*testRecord] {
	aferoDAO, err := NewAferoDAO(&datastore.Params[*testRecord]{
		Fs:             fs,
		Logger:         logging.NewLogger(slog.LevelDebug, nil),
		Partition:      "records",
		ReadBufferSize: 50,
		RootDir:        "./test",
	})
	require.NoError(t, err)
	return aferoDAO
}

func TestCount(t *testing.T) {

	aferoDAO := testDAO(t, afero.NewMemMapFs())

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, aferoDAO.Save(&testRecord{ID: i, Value: "x"}))
	}

	count, err := aferoDAO.Count(datastore.ConsistencyLevelLocal)
	assert.Nil(t, err)
	assert.Equal(t, 3, count)
}

// failingDirFs returns directory handles whose Readdirnames always
// errors, which Count must surface instead of spinning.
type failingDirFs struct {
	afero.Fs
}

type failingDirFile struct {
	afero.File
}

func (fs failingDirFs) Open(name string) (afero.File, error) {
	file, err := fs.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return failingDirFile{file}, nil
}

func (f failingDirFile) Readdirnames(n int) ([]string, error) {
	return nil, errors.New("read dir failed")
}

func TestCountReadError(t *testing.T) {

	memFs := afero.NewMemMapFs()
	aferoDAO := testDAO(t, memFs)
	require.NoError(t, aferoDAO.Save(&testRecord{ID: 1, Value: "x"}))

	failing := testDAO(t, failingDirFs{memFs})
	_, err := failing.Count(datastore.ConsistencyLevelLocal)
	assert.NotNil(t, err)
}
