// Package pointcloud models the foxglove.PointCloud message and encodes it
// for MCAP channels.
//
// A PointCloud carries its points as one packed byte buffer plus the list
// of PackedElementFields needed to read it back, so a decoded
// records.Buffer maps onto a message without touching individual values.
package pointcloud

import (
	"fmt"

	"github.com/banshee-data/atritec/internal/lidar/records"
)

// SchemaName is the fully-qualified schema name consumers look up.
const SchemaName = "foxglove.PointCloud"

// Timestamp is a message timestamp split into seconds and nanoseconds.
type Timestamp struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

// Vector3 is a position in metres.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose places the cloud's origin within its frame.
type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// IdentityPose is the pose with no translation or rotation.
func IdentityPose() Pose {
	return Pose{Orientation: Quaternion{W: 1}}
}

// PackedElementField tells the consumer where one field sits inside each
// point. Type uses the same numbering as records.NumericType.
type PackedElementField struct {
	Name   string              `json:"name"`
	Offset uint32              `json:"offset"`
	Type   records.NumericType `json:"type"`
}

// PointCloud is a foxglove.PointCloud message.
type PointCloud struct {
	Timestamp   Timestamp            `json:"timestamp"`
	FrameID     string               `json:"frame_id"`
	Pose        Pose                 `json:"pose"`
	PointStride uint32               `json:"point_stride"`
	Fields      []PackedElementField `json:"fields"`
	Data        []byte               `json:"data"`
}

// FromRecords builds a message around buf. The data slice is shared with
// buf, not copied.
func FromRecords(buf *records.Buffer, frameID string, ts Timestamp) *PointCloud {
	layout := buf.Layout()
	specs := layout.Fields()
	fields := make([]PackedElementField, len(specs))
	for i, f := range specs {
		fields[i] = PackedElementField{Name: f.Name, Offset: f.Offset, Type: f.Type}
	}

	return &PointCloud{
		Timestamp:   ts,
		FrameID:     frameID,
		Pose:        IdentityPose(),
		PointStride: uint32(layout.Stride()),
		Fields:      fields,
		Data:        buf.Bytes(),
	}
}

// Layout rebuilds the record layout described by Fields and checks it
// against PointStride.
func (pc *PointCloud) Layout() (*records.RecordLayout, error) {
	specs := make([]records.FieldSpec, len(pc.Fields))
	for i, f := range pc.Fields {
		specs[i] = records.FieldSpec{Name: f.Name, Offset: f.Offset, Type: f.Type}
	}

	layout, err := records.NewRecordLayout(specs...)
	if err != nil {
		return nil, fmt.Errorf("point cloud fields: %w", err)
	}
	if layout.Stride() != int(pc.PointStride) {
		return nil, fmt.Errorf("point cloud fields span %d bytes but point_stride is %d", layout.Stride(), pc.PointStride)
	}
	return layout, nil
}

// Records reinterprets Data with the message's own field list.
func (pc *PointCloud) Records() (*records.Buffer, error) {
	layout, err := pc.Layout()
	if err != nil {
		return nil, err
	}
	return records.NewBuffer(layout, pc.Data)
}

// PointCount returns the number of whole points in Data.
func (pc *PointCloud) PointCount() int {
	if pc.PointStride == 0 {
		return 0
	}
	return len(pc.Data) / int(pc.PointStride)
}
