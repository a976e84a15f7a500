package atrisense

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/atritec/internal/fsutil"
	"github.com/banshee-data/atritec/internal/lidar/records"
)

type scannerReturn struct {
	scan       uint32
	xDeg, yDeg float32
	distance   float32
	intensity  uint16
}

func packReturns(t *testing.T, rs []scannerReturn) []byte {
	t.Helper()
	var out []byte
	for _, r := range rs {
		var err error
		out, err = RawLayout.AppendRecord(out,
			records.Uint32Value(r.scan),
			records.Float32Value(r.xDeg),
			records.Float32Value(r.yDeg),
			records.Float32Value(r.distance),
			records.Uint16Value(r.intensity),
		)
		require.NoError(t, err)
	}
	return out
}

// One return along each axis.
var axisReturns = []scannerReturn{
	{scan: 0, xDeg: 0, yDeg: 90, distance: 1, intensity: 1},
	{scan: 1, xDeg: 0, yDeg: 0, distance: 1, intensity: 2},
	{scan: 2, xDeg: 90, yDeg: 90, distance: 1, intensity: 2},
}

func TestLayoutsArePacked(t *testing.T) {
	assert.Equal(t, 18, RawLayout.Stride())
	assert.Equal(t, 18, PointLayout.Stride())
	assert.False(t, RawLayout.Equal(PointLayout))
}

func TestToCartesian(t *testing.T) {
	tests := []struct {
		name                 string
		distance, xDeg, yDeg float64
		wantX, wantY, wantZ  float64
	}{
		{"x axis", 1, 0, 90, 1, 0, 0},
		{"y axis", 1, 0, 0, 0, 1, 0},
		{"z axis", 1, 90, 90, 0, 0, 1},
		{"scaled", 2.5, 180, 90, -2.5, 0, 0},
		{"diagonal", math.Sqrt2, 0, 45, 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, z := ToCartesian(tt.distance, tt.xDeg, tt.yDeg)
			assert.InDelta(t, tt.wantX, x, 1e-9)
			assert.InDelta(t, tt.wantY, y, 1e-9)
			assert.InDelta(t, tt.wantZ, z, 1e-9)
		})
	}
}

func TestConvertAxisFixture(t *testing.T) {
	raw, err := records.NewBuffer(RawLayout, packReturns(t, axisReturns))
	require.NoError(t, err)

	points, err := Convert(raw)
	require.NoError(t, err)
	require.Equal(t, 3, points.Len())
	assert.True(t, points.Layout().Equal(PointLayout))

	want := [][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for i, rec := range points.All() {
		scan, err := rec.Uint32(FieldScanNumber)
		require.NoError(t, err)
		assert.Equal(t, axisReturns[i].scan, scan)

		intensity, err := rec.Uint16(FieldIntensity)
		require.NoError(t, err)
		assert.Equal(t, axisReturns[i].intensity, intensity)

		for j, name := range []string{"x", "y", "z"} {
			v, err := rec.Float32(name)
			require.NoError(t, err)
			assert.InDelta(t, want[i][j], v, 1e-6, "record %d field %s", i, name)
		}
	}
}

func TestConvertRejectsOtherLayouts(t *testing.T) {
	buf, err := records.NewBuffer(PointLayout, nil)
	require.NoError(t, err)

	_, err = Convert(buf)
	assert.ErrorContains(t, err, "expected scanner layout")
}

func TestConvertEmpty(t *testing.T) {
	raw, err := records.NewBuffer(RawLayout, nil)
	require.NoError(t, err)

	points, err := Convert(raw)
	require.NoError(t, err)
	assert.Zero(t, points.Len())
}

func TestConvertFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("test1.bin", packReturns(t, axisReturns), 0644))

	n, err := ConvertFile(mfs, "test1.bin", "output.bin")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	points, err := records.Decode(PointLayout, mfs, "output.bin")
	require.NoError(t, err)
	assert.Equal(t, 3, points.Len())
}

func TestConvertFileJunkInput(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	junk := make([]byte, 256)
	copy(junk, "some junk")
	require.NoError(t, mfs.WriteFile("test_input.bin", junk, 0644))

	_, err := ConvertFile(mfs, "test_input.bin", "output.bin")

	var mismatch *records.LayoutMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.False(t, mfs.Exists("output.bin"))
}

func TestConvertFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "scan.bin")
	out := filepath.Join(dir, "points.bin")

	osfs := fsutil.OSFileSystem{}
	require.NoError(t, osfs.WriteFile(in, packReturns(t, axisReturns[:1]), 0644))

	n, err := ConvertFile(osfs, in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := osfs.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(18), info.Size())
}

func TestConvertFileMissingInput(t *testing.T) {
	_, err := ConvertFile(fsutil.NewMemoryFileSystem(), "missing.bin", "output.bin")

	var ioErr *records.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "missing.bin", ioErr.Path)
}
