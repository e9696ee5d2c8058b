package cas

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/shamaton/msgpack/v2"
)

// TypedEntry wraps a serialized Hashable with a type tag so Get can
// reconstruct the right Go type.
type TypedEntry struct {
	TypeTag string
	Data    []byte
}

func (t *TypedEntry) Serialize(w io.Writer) error {
	return msgpack.MarshalWrite(w, t)
}

func (t *TypedEntry) Deserialize(r io.Reader) error {
	return msgpack.UnmarshalRead(r, t)
}

// typeRegistry maps type tags to reflect.Type for reconstruction.
// Populated via RegisterType, which the package that owns a Hashable
// type (eventstructure, for Event and ExecutionFrontier) calls from its
// own init(), keeping cas itself ignorant of its callers.
var typeRegistry = make(map[string]reflect.Type)

// RegisterType associates tag with the concrete type of example so Get
// can later reconstruct values of that type from stored bytes.
func RegisterType(tag string, example Hashable) {
	typeRegistry[tag] = reflect.TypeOf(example)
}

// getTypeTag returns the registered tag for item, or its bare type name
// if it was never registered.
func getTypeTag(item Hashable) string {
	t := reflect.TypeOf(item)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for tag, regType := range typeRegistry {
		checkType := regType
		if checkType.Kind() == reflect.Ptr {
			checkType = checkType.Elem()
		}
		if t == checkType {
			return tag
		}
	}
	return t.Name()
}

// createInstance creates a zero-valued instance of the type registered
// under tag.
func createInstance(tag string) (Hashable, error) {
	regType, ok := typeRegistry[tag]
	if !ok {
		return nil, fmt.Errorf("cas: unknown type tag %q", tag)
	}
	if regType.Kind() == reflect.Ptr {
		instance := reflect.New(regType.Elem()).Interface()
		h, ok := instance.(Hashable)
		if !ok {
			return nil, fmt.Errorf("cas: type %s does not implement Hashable", tag)
		}
		return h, nil
	}
	ptrInstance := reflect.New(regType).Interface()
	h, ok := ptrInstance.(Hashable)
	if !ok {
		return nil, fmt.Errorf("cas: type %s does not implement Hashable", tag)
	}
	return h, nil
}

// decodeTypedEntry unwraps a TypedEntry-serialized byte slice into its
// concrete Hashable using the type registry.
func decodeTypedEntry(data []byte) (Hashable, error) {
	var entry TypedEntry
	if err := entry.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("cas: decoding typed entry: %w", err)
	}
	item, err := createInstance(entry.TypeTag)
	if err != nil {
		return nil, err
	}
	if err := item.Deserialize(bytes.NewReader(entry.Data)); err != nil {
		return nil, fmt.Errorf("cas: decoding %s payload: %w", entry.TypeTag, err)
	}
	return item, nil
}

// encodeTypedEntry serializes item wrapped in a TypedEntry carrying its
// registered type tag.
func encodeTypedEntry(item Hashable) ([]byte, error) {
	var payload bytes.Buffer
	if err := item.Serialize(&payload); err != nil {
		return nil, err
	}
	entry := TypedEntry{TypeTag: getTypeTag(item), Data: payload.Bytes()}
	var buf bytes.Buffer
	if err := entry.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
