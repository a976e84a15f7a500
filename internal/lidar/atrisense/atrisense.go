// Package atrisense converts Atrisense scanner dumps into packed Cartesian
// point files.
//
// A scanner dump is a flat run of 18-byte records holding a scan number,
// two beam angles in degrees, a range in metres and an intensity. The
// converter keeps the scan number and intensity, replaces the angles and
// range with x, y, z, and writes the result with PointLayout, which is
// also the layout bin2mcap decodes.
package atrisense

import (
	"fmt"
	"log"
	"math"

	"github.com/banshee-data/atritec/internal/fsutil"
	"github.com/banshee-data/atritec/internal/lidar/records"
)

// Field names shared by both layouts.
const (
	FieldScanNumber = "scan_number"
	FieldIntensity  = "intensity"
)

// RawLayout is the scanner's native record.
var RawLayout = records.MustRecordLayout(
	records.FieldSpec{Name: FieldScanNumber, Offset: 0, Type: records.Uint32},
	records.FieldSpec{Name: "x_angle_deg", Offset: 4, Type: records.Float32},
	records.FieldSpec{Name: "y_angle_deg", Offset: 8, Type: records.Float32},
	records.FieldSpec{Name: "distance_m", Offset: 12, Type: records.Float32},
	records.FieldSpec{Name: FieldIntensity, Offset: 16, Type: records.Uint16},
)

// PointLayout is the packed Cartesian point record.
var PointLayout = records.MustRecordLayout(
	records.FieldSpec{Name: FieldScanNumber, Offset: 0, Type: records.Uint32},
	records.FieldSpec{Name: "x", Offset: 4, Type: records.Float32},
	records.FieldSpec{Name: "y", Offset: 8, Type: records.Float32},
	records.FieldSpec{Name: "z", Offset: 12, Type: records.Float32},
	records.FieldSpec{Name: FieldIntensity, Offset: 16, Type: records.Uint16},
)

// ToCartesian converts a scanner return to Cartesian metres. yAngleDeg is
// measured from the +Y axis and xAngleDeg is the rotation about Y, starting
// at +X towards +Z.
func ToCartesian(distance, xAngleDeg, yAngleDeg float64) (x, y, z float64) {
	xRad := xAngleDeg * math.Pi / 180.0
	yRad := yAngleDeg * math.Pi / 180.0

	sinY := math.Sin(yRad)
	x = distance * sinY * math.Cos(xRad)
	y = distance * math.Cos(yRad)
	z = distance * sinY * math.Sin(xRad)
	return
}

// Convert maps a buffer of RawLayout records to PointLayout records.
func Convert(raw *records.Buffer) (*records.Buffer, error) {
	if !raw.Layout().Equal(RawLayout) {
		return nil, fmt.Errorf("expected scanner layout %s, got %s", RawLayout, raw.Layout())
	}

	out := make([]byte, 0, raw.Len()*PointLayout.Stride())
	for i, rec := range raw.All() {
		v := rec.Values()
		x, y, z := ToCartesian(v[3].Float64(), v[1].Float64(), v[2].Float64())

		var err error
		out, err = PointLayout.AppendRecord(out,
			v[0],
			records.Float32Value(float32(x)),
			records.Float32Value(float32(y)),
			records.Float32Value(float32(z)),
			v[4],
		)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	return records.NewBuffer(PointLayout, out)
}

// ConvertFile reads a scanner dump from in and writes the converted points
// to out. Nothing is written when decoding fails.
func ConvertFile(fsys fsutil.FileSystem, in, out string) (int, error) {
	raw, err := records.Decode(RawLayout, fsys, in)
	if err != nil {
		return 0, err
	}

	points, err := Convert(raw)
	if err != nil {
		return 0, err
	}

	if err := fsys.WriteFile(out, points.Bytes(), 0644); err != nil {
		return 0, &records.IOError{Op: "write", Path: out, Err: err}
	}

	log.Printf("atrisense: converted %d records from %s to %s", points.Len(), in, out)
	return points.Len(), nil
}
