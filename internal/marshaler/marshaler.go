// Package marshaler selects the encoding used for events published by the
// integration.
package marshaler

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Marshaler holds the marshal and unmarshal functions of an encoding.
type Marshaler struct {
	Marshal   func(proto.Message) ([]byte, error)
	Unmarshal func([]byte, proto.Message) error
}

// GetMarshaler returns the marshaler for the given name (json or protobuf).
func GetMarshaler(marshaler string) (Marshaler, error) {
	switch marshaler {
	case "json":
		return Marshaler{
			Marshal: func(msg proto.Message) ([]byte, error) {
				return protojson.MarshalOptions{
					EmitUnpopulated: true,
				}.Marshal(msg)
			},
			Unmarshal: func(b []byte, msg proto.Message) error {
				return protojson.UnmarshalOptions{
					DiscardUnknown: true,
				}.Unmarshal(b, msg)
			},
		}, nil
	case "protobuf":
		return Marshaler{
			Marshal:   proto.Marshal,
			Unmarshal: proto.Unmarshal,
		}, nil
	default:
		return Marshaler{}, errors.Errorf("unknown marshaler: %s", marshaler)
	}
}
