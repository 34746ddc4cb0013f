package messaging

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype both ends negotiate ("application/grpc+json").
const codecName = "json"

// jsonCodec carries the plain Go wire structs over gRPC. Callers select it
// with grpc.CallContentSubtype(codecName); the server resolves it from the
// registry by the request's content-subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
