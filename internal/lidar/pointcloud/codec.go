package pointcloud

import "fmt"

// Message encodings understood by NewCodec.
const (
	EncodingProtobuf = "protobuf"
	EncodingJSON     = "json"
)

// Codec serialises point clouds for one MCAP message encoding and supplies
// the matching schema record.
type Codec interface {
	// SchemaName is the schema's fully-qualified name.
	SchemaName() string
	// SchemaEncoding is the MCAP schema encoding ("protobuf", "jsonschema").
	SchemaEncoding() string
	// SchemaData is the schema record payload.
	SchemaData() []byte
	// MessageEncoding is the MCAP channel message encoding.
	MessageEncoding() string

	Marshal(pc *PointCloud) ([]byte, error)
	Unmarshal(data []byte) (*PointCloud, error)
}

// NewCodec returns the codec for a message encoding.
func NewCodec(encoding string) (Codec, error) {
	switch encoding {
	case EncodingProtobuf:
		return newProtobufCodec()
	case EncodingJSON:
		return jsonCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported message encoding %q", encoding)
	}
}

// CodecForChannel picks the codec able to decode messages recorded with the
// given schema name and message encoding.
func CodecForChannel(schemaName, messageEncoding string) (Codec, error) {
	if schemaName != SchemaName {
		return nil, fmt.Errorf("unsupported schema %q", schemaName)
	}
	return NewCodec(messageEncoding)
}
