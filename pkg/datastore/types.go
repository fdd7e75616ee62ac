package datastore

import (
	"errors"

	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
	"github.com/jeremyhahn/go-acme-ca/pkg/serializer"
	"github.com/spf13/afero"
)

var (
	DefaultConfig = Config{
		ConsistencyLevel: "local",
		Backend:          "fs",
		Serializer:       "json",
		ReadBufferSize:   50,
		RootDir:          "datastore",
	}

	ErrRecordNotFound   = errors.New("datastore: record not found")
	ErrInvalidBackend   = errors.New("datastore: invalid storage backend")
	ErrInvalidStoreType = errors.New("datastore: invalid store type")
)

// Config is the datastore section of the platform configuration file.
type Config struct {
	Backend          string `yaml:"backend" json:"backend" mapstructure:"backend"`
	ConsistencyLevel string `yaml:"consistency-level" json:"consistency_level" mapstructure:"consistency-level"`
	ReadBufferSize   int    `yaml:"read-buffer-size" json:"read_buffer_size" mapstructure:"read-buffer-size"`
	RootDir          string `yaml:"home" json:"home" mapstructure:"home"`
	Serializer       string `yaml:"serializer" json:"serializer" mapstructure:"serializer"`
}

type ConsistencyLevel int

const (
	ConsistencyLevelLocal ConsistencyLevel = iota
	ConsistencyLevelQuorum
)

func (c ConsistencyLevel) String() string {
	if c == ConsistencyLevelQuorum {
		return "quorum"
	}
	return "local"
}

func ParseConsistentLevel(level string) ConsistencyLevel {
	if level == "quorum" {
		return ConsistencyLevelQuorum
	}
	return ConsistencyLevelLocal
}

// ParseAferoBackend parses the configured storage backend name into an
// afero file system.
func ParseAferoBackend(backend string) (afero.Fs, error) {
	switch backend {
	case "fs", "":
		return afero.NewOsFs(), nil
	case "memory":
		return afero.NewMemMapFs(), nil
	default:
		return nil, ErrInvalidBackend
	}
}

// KeyValueEntity is implemented by every entity persisted to the
// key/value datastore.
type KeyValueEntity interface {
	SetEntityID(id uint64)
	EntityID() uint64
}

// Params carries the common dependencies for a DAO instance.
type Params[E any] struct {
	Fs             afero.Fs
	Logger         *logging.Logger
	Partition      string
	ReadBufferSize int
	RootDir        string
	Serializer     serializer.Serializer[E]
}

type PagerProcFunc[E any] func(entities []E) error

const (
	SORT_ASCENDING = iota
	SORT_DESCENDING
)

// PageQuery represents a datastore query for a single page of records
type PageQuery struct {
	Page      int
	PageSize  int
	SortOrder int
}

func NewPageQuery() PageQuery {
	return PageQuery{
		Page:     1,
		PageSize: 25}
}

// PageResult represents a datastore page query resultset
type PageResult[E any] struct {
	Entities []E  `yaml:"entities" json:"entities"`
	Page     int  `yaml:"page" json:"page"`
	PageSize int  `yaml:"size" json:"size"`
	HasMore  bool `yaml:"has_more" json:"has_more"`
}

func NewPageResult[E any]() PageResult[E] {
	return PageResult[E]{Entities: make([]E, 0)}
}

type Pager[E any] interface {
	Page(pageQuery PageQuery, CONSISTENCY_LEVEL ConsistencyLevel) (PageResult[E], error)
	ForEachPage(pageQuery PageQuery, pagerProcFunc PagerProcFunc[E], CONSISTENCY_LEVEL ConsistencyLevel) error
}

type GenericDAO[E any] interface {
	Save(entity E) error
	Get(id uint64, CONSISTENCY_LEVEL ConsistencyLevel) (E, error)
	Delete(entity E) error
	Count(CONSISTENCY_LEVEL ConsistencyLevel) (int, error)
	Pager[E]
}
