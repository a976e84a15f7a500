package pointcloud

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed schemas/PointCloud.json
var pointCloudJSONSchema []byte

// jsonCodec writes messages as JSON with the byte buffer base64-encoded,
// the form foxglove's jsonschema channels expect.
type jsonCodec struct{}

func (jsonCodec) SchemaName() string      { return SchemaName }
func (jsonCodec) SchemaEncoding() string  { return "jsonschema" }
func (jsonCodec) SchemaData() []byte      { return pointCloudJSONSchema }
func (jsonCodec) MessageEncoding() string { return EncodingJSON }

func (jsonCodec) Marshal(pc *PointCloud) ([]byte, error) {
	data, err := json.Marshal(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal point cloud: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte) (*PointCloud, error) {
	var pc PointCloud
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("failed to parse point cloud JSON: %w", err)
	}
	return &pc, nil
}
