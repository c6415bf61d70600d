// Package codec provides default bus.Serializer implementations.
package codec

import (
	"encoding/json"
	"reflect"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/errors"
)

// JSON is the default bus.Serializer (orig §4.2), built on
// encoding/json. Deserialize returns a value of type t itself, not a
// pointer to it.
type JSON struct{}

// NewJSON constructs the default JSON serializer.
func NewJSON() JSON { return JSON{} }

// Serialize encodes value as JSON. t is accepted for port-contract
// symmetry with Deserialize but is not otherwise needed by encoding/json.
func (JSON) Serialize(t reflect.Type, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "json serialize failed")
	}
	return data, nil
}

// Deserialize decodes data into a new *t value and returns the pointed-to
// value (dereferenced), matching the declared message type exactly.
func (JSON) Deserialize(t reflect.Type, data []byte) (any, error) {
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, errors.Wrap(err, "json deserialize failed")
	}
	return ptr.Elem().Interface(), nil
}

var _ bus.Serializer = JSON{}
