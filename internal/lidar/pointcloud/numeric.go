package pointcloud

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/banshee-data/atritec/internal/lidar/records"
)

// recordsType maps a wire enum to records.NumericType. Values outside the
// known range become Unknown so Layout rejects them.
func recordsType(n protoreflect.EnumNumber) records.NumericType {
	if n < 0 || int(n) >= len(numericTypeNames) {
		return records.Unknown
	}
	return records.NumericType(n)
}
