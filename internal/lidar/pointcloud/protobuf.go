package pointcloud

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// The foxglove protobuf schema is assembled from descriptors at runtime and
// messages go through dynamicpb, so no generated code is needed. The same
// descriptor set is written as the MCAP schema payload.

var numericTypeNames = []string{
	"UNKNOWN", "UINT8", "INT8", "UINT16", "INT16", "UINT32", "INT32", "FLOAT32", "FLOAT64",
}

func protoFile(name string, deps []string, msgs ...*descriptorpb.DescriptorProto) *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:        proto.String(name),
		Package:     proto.String("foxglove"),
		Dependency:  deps,
		MessageType: msgs,
		Syntax:      proto.String("proto3"),
	}
}

func protoMessage(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func protoField(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

// foxgloveFileSet returns the descriptor files for foxglove.PointCloud,
// dependencies first.
func foxgloveFileSet() *descriptorpb.FileDescriptorSet {
	const (
		double  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		message = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)

	vector3 := protoFile("foxglove/Vector3.proto", nil,
		protoMessage("Vector3",
			protoField("x", 1, double, ""),
			protoField("y", 2, double, ""),
			protoField("z", 3, double, ""),
		))

	quaternion := protoFile("foxglove/Quaternion.proto", nil,
		protoMessage("Quaternion",
			protoField("x", 1, double, ""),
			protoField("y", 2, double, ""),
			protoField("z", 3, double, ""),
			protoField("w", 4, double, ""),
		))

	pose := protoFile("foxglove/Pose.proto",
		[]string{"foxglove/Quaternion.proto", "foxglove/Vector3.proto"},
		protoMessage("Pose",
			protoField("position", 1, message, ".foxglove.Vector3"),
			protoField("orientation", 2, message, ".foxglove.Quaternion"),
		))

	numericType := &descriptorpb.EnumDescriptorProto{Name: proto.String("NumericType")}
	for i, name := range numericTypeNames {
		numericType.Value = append(numericType.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(int32(i)),
		})
	}
	packedField := protoMessage("PackedElementField",
		protoField("name", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
		protoField("offset", 2, descriptorpb.FieldDescriptorProto_TYPE_FIXED32, ""),
		protoField("type", 3, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".foxglove.PackedElementField.NumericType"),
	)
	packedField.EnumType = []*descriptorpb.EnumDescriptorProto{numericType}
	packed := protoFile("foxglove/PackedElementField.proto", nil, packedField)

	pointCloud := protoFile("foxglove/PointCloud.proto",
		[]string{"foxglove/PackedElementField.proto", "foxglove/Pose.proto", "google/protobuf/timestamp.proto"},
		protoMessage("PointCloud",
			protoField("timestamp", 1, message, ".google.protobuf.Timestamp"),
			protoField("frame_id", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
			protoField("pose", 3, message, ".foxglove.Pose"),
			protoField("point_stride", 4, descriptorpb.FieldDescriptorProto_TYPE_FIXED32, ""),
			repeated(protoField("fields", 5, message, ".foxglove.PackedElementField")),
			protoField("data", 6, descriptorpb.FieldDescriptorProto_TYPE_BYTES, ""),
		))

	return &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			protodesc.ToFileDescriptorProto(timestamppb.File_google_protobuf_timestamp_proto),
			vector3,
			quaternion,
			pose,
			packed,
			pointCloud,
		},
	}
}

type protobufCodec struct {
	schema     []byte
	pointCloud protoreflect.MessageDescriptor
}

var (
	protobufOnce  sync.Once
	protobufValue *protobufCodec
	protobufErr   error
)

func newProtobufCodec() (*protobufCodec, error) {
	protobufOnce.Do(func() {
		protobufValue, protobufErr = buildProtobufCodec()
	})
	return protobufValue, protobufErr
}

func buildProtobufCodec() (*protobufCodec, error) {
	set := foxgloveFileSet()
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("failed to build foxglove descriptors: %w", err)
	}
	desc, err := files.FindDescriptorByName(SchemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", SchemaName, err)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", SchemaName)
	}
	schema, err := proto.MarshalOptions{Deterministic: true}.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal descriptor set: %w", err)
	}
	return &protobufCodec{schema: schema, pointCloud: md}, nil
}

func (c *protobufCodec) SchemaName() string      { return SchemaName }
func (c *protobufCodec) SchemaEncoding() string  { return EncodingProtobuf }
func (c *protobufCodec) SchemaData() []byte      { return c.schema }
func (c *protobufCodec) MessageEncoding() string { return EncodingProtobuf }

func (c *protobufCodec) Marshal(pc *PointCloud) ([]byte, error) {
	fields := c.pointCloud.Fields()
	m := dynamicpb.NewMessage(c.pointCloud)

	tsField := fields.ByName("timestamp")
	ts := dynamicpb.NewMessage(tsField.Message())
	setFields(ts, map[protoreflect.Name]protoreflect.Value{
		"seconds": protoreflect.ValueOfInt64(int64(pc.Timestamp.Sec)),
		"nanos":   protoreflect.ValueOfInt32(int32(pc.Timestamp.Nsec)),
	})
	m.Set(tsField, protoreflect.ValueOfMessage(ts))

	m.Set(fields.ByName("frame_id"), protoreflect.ValueOfString(pc.FrameID))

	poseField := fields.ByName("pose")
	pose := dynamicpb.NewMessage(poseField.Message())
	poseFields := poseField.Message().Fields()
	position := dynamicpb.NewMessage(poseFields.ByName("position").Message())
	setFields(position, map[protoreflect.Name]protoreflect.Value{
		"x": protoreflect.ValueOfFloat64(pc.Pose.Position.X),
		"y": protoreflect.ValueOfFloat64(pc.Pose.Position.Y),
		"z": protoreflect.ValueOfFloat64(pc.Pose.Position.Z),
	})
	orientation := dynamicpb.NewMessage(poseFields.ByName("orientation").Message())
	setFields(orientation, map[protoreflect.Name]protoreflect.Value{
		"x": protoreflect.ValueOfFloat64(pc.Pose.Orientation.X),
		"y": protoreflect.ValueOfFloat64(pc.Pose.Orientation.Y),
		"z": protoreflect.ValueOfFloat64(pc.Pose.Orientation.Z),
		"w": protoreflect.ValueOfFloat64(pc.Pose.Orientation.W),
	})
	pose.Set(poseFields.ByName("position"), protoreflect.ValueOfMessage(position))
	pose.Set(poseFields.ByName("orientation"), protoreflect.ValueOfMessage(orientation))
	m.Set(poseField, protoreflect.ValueOfMessage(pose))

	m.Set(fields.ByName("point_stride"), protoreflect.ValueOfUint32(pc.PointStride))

	list := m.Mutable(fields.ByName("fields")).List()
	for _, f := range pc.Fields {
		el := list.NewElement()
		setFields(el.Message(), map[protoreflect.Name]protoreflect.Value{
			"name":   protoreflect.ValueOfString(f.Name),
			"offset": protoreflect.ValueOfUint32(f.Offset),
			"type":   protoreflect.ValueOfEnum(protoreflect.EnumNumber(f.Type)),
		})
		list.Append(el)
	}

	m.Set(fields.ByName("data"), protoreflect.ValueOfBytes(pc.Data))

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal point cloud: %w", err)
	}
	return data, nil
}

func (c *protobufCodec) Unmarshal(data []byte) (*PointCloud, error) {
	m := dynamicpb.NewMessage(c.pointCloud)
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse point cloud protobuf: %w", err)
	}
	fields := c.pointCloud.Fields()

	pc := &PointCloud{
		FrameID:     m.Get(fields.ByName("frame_id")).String(),
		PointStride: uint32(m.Get(fields.ByName("point_stride")).Uint()),
		Data:        m.Get(fields.ByName("data")).Bytes(),
	}

	ts := m.Get(fields.ByName("timestamp")).Message()
	pc.Timestamp = Timestamp{
		Sec:  uint32(getField(ts, "seconds").Int()),
		Nsec: uint32(getField(ts, "nanos").Int()),
	}

	pose := m.Get(fields.ByName("pose")).Message()
	position := getField(pose, "position").Message()
	orientation := getField(pose, "orientation").Message()
	pc.Pose = Pose{
		Position: Vector3{
			X: getField(position, "x").Float(),
			Y: getField(position, "y").Float(),
			Z: getField(position, "z").Float(),
		},
		Orientation: Quaternion{
			X: getField(orientation, "x").Float(),
			Y: getField(orientation, "y").Float(),
			Z: getField(orientation, "z").Float(),
			W: getField(orientation, "w").Float(),
		},
	}

	list := m.Get(fields.ByName("fields")).List()
	pc.Fields = make([]PackedElementField, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		el := list.Get(i).Message()
		pc.Fields = append(pc.Fields, PackedElementField{
			Name:   getField(el, "name").String(),
			Offset: uint32(getField(el, "offset").Uint()),
			Type:   recordsType(getField(el, "type").Enum()),
		})
	}

	return pc, nil
}

func setFields(m protoreflect.Message, values map[protoreflect.Name]protoreflect.Value) {
	fields := m.Descriptor().Fields()
	for name, v := range values {
		m.Set(fields.ByName(name), v)
	}
}

func getField(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(name))
}
