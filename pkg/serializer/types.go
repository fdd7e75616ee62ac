package serializer

import "errors"

var ErrInvalidSerializer = errors.New("serializer: invalid serializer type")

type SerializerType int

const (
	SERIALIZER_JSON SerializerType = iota
	SERIALIZER_YAML
)

func (t SerializerType) String() string {
	if t == SERIALIZER_YAML {
		return "yaml"
	}
	return "json"
}

// Serializer converts entities to and from their persisted representation.
type Serializer[E any] interface {
	Serialize(entity E) ([]byte, error)
	Deserialize(data []byte, e any) error
	Type() SerializerType
	Name() string
	Extension() string
}

// ParseSerializer parses a serializer name from the platform
// configuration file.
func ParseSerializer(name string) (SerializerType, error) {
	switch name {
	case "json", "":
		return SERIALIZER_JSON, nil
	case "yaml":
		return SERIALIZER_YAML, nil
	default:
		return 0, ErrInvalidSerializer
	}
}

func NewSerializer[E any](serializerType SerializerType) (Serializer[E], error) {
	switch serializerType {
	case SERIALIZER_JSON:
		return NewJSONSerializer[E](), nil
	case SERIALIZER_YAML:
		return NewYAMLSerializer[E](), nil
	default:
		return nil, ErrInvalidSerializer
	}
}
