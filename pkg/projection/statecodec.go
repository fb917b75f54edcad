package projection

import (
	"encoding/json"
	"reflect"
)

// jsonStateCodec is the default StateCodec, grounded on the same
// encoding/json approach store.SnapshotMetadata uses for its own
// marshal/unmarshal pair. Projection state is an opaque `any` to this
// package, so decoding allocates a pointer to zero()'s concrete type via
// reflection rather than unmarshaling into *any, which would only ever
// produce a generic map.
type jsonStateCodec struct{}

func (jsonStateCodec) Encode(state any) ([]byte, error) {
	return json.Marshal(state)
}

func (jsonStateCodec) Decode(data []byte, zero func() any) (any, error) {
	target := zero()
	ptr := reflect.New(reflect.TypeOf(target))
	ptr.Elem().Set(reflect.ValueOf(target))
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
