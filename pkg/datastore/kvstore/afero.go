package kvstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
	"github.com/jeremyhahn/go-acme-ca/pkg/serializer"
	"github.com/spf13/afero"
)

var (
	ErrInvalidReadBufferSize = errors.New("kvstore/afero: invalid read buffer size")
)

// AferoDAO is a generic key/value DAO persisting one entity per file
// under a partition directory, named by the entity ID plus the
// serializer extension.
type AferoDAO[E any] struct {
	fs             afero.Fs
	logger         *logging.Logger
	partitionDir   string
	readBufferSize int
	serializer     serializer.Serializer[E]
	datastore.GenericDAO[E]
}

func NewAferoDAO[E any](params *datastore.Params[E]) (*AferoDAO[E], error) {
	rootDir := strings.TrimRight(params.RootDir, "/")
	partitionDir := fmt.Sprintf("%s/%s", rootDir, params.Partition)
	if err := params.Fs.MkdirAll(partitionDir, os.ModePerm); err != nil {
		params.Logger.Error(err)
		return nil, err
	}
	if params.ReadBufferSize == 0 {
		return nil, ErrInvalidReadBufferSize
	}
	if params.Serializer == nil {
		params.Serializer = serializer.NewJSONSerializer[E]()
	}
	return &AferoDAO[E]{
		fs:             params.Fs,
		logger:         params.Logger,
		partitionDir:   partitionDir,
		readBufferSize: params.ReadBufferSize,
		serializer:     params.Serializer,
	}, nil
}

func (aferoDAO *AferoDAO[E]) key(id uint64) string {
	return fmt.Sprintf("%s/%d%s",
		aferoDAO.partitionDir, id, aferoDAO.serializer.Extension())
}

// Get retrieves the entity with the provided ID. Returns
// datastore.ErrRecordNotFound if no record exists.
func (aferoDAO *AferoDAO[E]) Get(
	id uint64, CONSISTENCY_LEVEL datastore.ConsistencyLevel) (E, error) {

	blobFile := aferoDAO.key(id)
	bytes, err := afero.ReadFile(aferoDAO.fs, blobFile)
	if err != nil {
		if os.IsNotExist(err) {
			return *new(E), datastore.ErrRecordNotFound
		}
		return *new(E), err
	}
	e := new(E)
	if err := aferoDAO.serializer.Deserialize(bytes, e); err != nil {
		return *new(E), err
	}
	return *e, nil
}

// Save persists the provided entity, overwriting any previous record
// with the same ID.
func (aferoDAO *AferoDAO[E]) Save(entity E) error {
	kvEntity := any(entity).(datastore.KeyValueEntity)
	data, err := aferoDAO.serializer.Serialize(entity)
	if err != nil {
		return err
	}
	blobFile := aferoDAO.key(kvEntity.EntityID())
	if err := afero.WriteFile(aferoDAO.fs, blobFile, data, 0644); err != nil {
		aferoDAO.logger.Error(err, slog.String("key", blobFile))
		return err
	}
	return nil
}

// Delete removes the provided entity. Returns
// datastore.ErrRecordNotFound if the record doesn't exist.
func (aferoDAO *AferoDAO[E]) Delete(entity E) error {
	kvEntity := any(entity).(datastore.KeyValueEntity)
	blobFile := aferoDAO.key(kvEntity.EntityID())
	if _, err := aferoDAO.fs.Stat(blobFile); err != nil {
		return datastore.ErrRecordNotFound
	}
	return aferoDAO.fs.RemoveAll(blobFile)
}

// Count returns the number of records in the partition using a
// buffered directory read.
func (aferoDAO *AferoDAO[E]) Count(
	CONSISTENCY_LEVEL datastore.ConsistencyLevel) (int, error) {

	count := 0
	f, err := aferoDAO.fs.Open(aferoDAO.partitionDir)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	for {
		list, err := f.Readdirnames(aferoDAO.readBufferSize)
		count = count + len(list)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Page returns a single page of records from the partition.
func (aferoDAO *AferoDAO[E]) Page(
	pageQuery datastore.PageQuery,
	CONSISTENCY_LEVEL datastore.ConsistencyLevel) (datastore.PageResult[E], error) {

	pageResult := datastore.PageResult[E]{
		Entities: make([]E, 0),
		Page:     pageQuery.Page,
		PageSize: pageQuery.PageSize}

	page := pageQuery.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageQuery.PageSize

	f, err := aferoDAO.fs.Open(aferoDAO.partitionDir)
	if err != nil {
		return pageResult, err
	}
	defer f.Close()

	// Skip directory entries until the page offset is reached
	for skipped := 0; skipped < offset; skipped++ {
		if _, err := f.Readdirnames(1); err == io.EOF {
			return pageResult, nil
		} else if err != nil {
			return pageResult, err
		}
	}

	list, err := f.Readdirnames(pageQuery.PageSize)
	if err != nil && err != io.EOF {
		return pageResult, err
	}

	// Peek ahead to see if there are more records after this page
	if _, err := f.Readdirnames(1); err != io.EOF {
		pageResult.HasMore = true
	}

	pageResult.Entities = make([]E, len(list))
	for i, file := range list {
		path := fmt.Sprintf("%s/%s", aferoDAO.partitionDir, file)
		bytes, err := afero.ReadFile(aferoDAO.fs, path)
		if err != nil {
			return pageResult, err
		}
		e := new(E)
		if err := aferoDAO.serializer.Deserialize(bytes, e); err != nil {
			return pageResult, err
		}
		pageResult.Entities[i] = *e
	}
	return pageResult, nil
}

// ForEachPage reads all records in batches of PageQuery.PageSize,
// passing each page to the provided pagerProcFunc.
func (aferoDAO *AferoDAO[E]) ForEachPage(
	pageQuery datastore.PageQuery,
	pagerProcFunc datastore.PagerProcFunc[E],
	CONSISTENCY_LEVEL datastore.ConsistencyLevel) error {

	pageResult, err := aferoDAO.Page(pageQuery, CONSISTENCY_LEVEL)
	if err != nil {
		return err
	}
	if err = pagerProcFunc(pageResult.Entities); err != nil {
		return err
	}
	if pageResult.HasMore {
		nextPageQuery := datastore.PageQuery{
			Page:      pageQuery.Page + 1,
			PageSize:  pageQuery.PageSize,
			SortOrder: pageQuery.SortOrder}
		return aferoDAO.ForEachPage(nextPageQuery, pagerProcFunc, CONSISTENCY_LEVEL)
	}

	return nil
}
