package codec

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// MarshalJSON serializes a response payload to JSON.
// Protocol Buffers messages are rendered with protojson so that well-known
// types and field names follow the canonical proto3 JSON mapping.
func MarshalJSON(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Marshal(msg)
	}
	return json.Marshal(v)
}
