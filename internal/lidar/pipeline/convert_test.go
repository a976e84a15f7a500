package pipeline

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/atritec/internal/config"
	"github.com/banshee-data/atritec/internal/fsutil"
	"github.com/banshee-data/atritec/internal/lidar/atrisense"
	"github.com/banshee-data/atritec/internal/lidar/pointcloud"
	"github.com/banshee-data/atritec/internal/lidar/recorder"
	"github.com/banshee-data/atritec/internal/lidar/records"
	"github.com/banshee-data/atritec/internal/testutil"
	"github.com/banshee-data/atritec/internal/timeutil"
)

func ptr[T any](v T) *T { return &v }

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type point struct {
	scan      uint32
	x, y, z   float32
	intensity uint16
}

func packPoints(t *testing.T, pts []point) []byte {
	t.Helper()
	rows := make([][]records.Value, len(pts))
	for i, p := range pts {
		rows[i] = []records.Value{
			records.Uint32Value(p.scan),
			records.Float32Value(p.x),
			records.Float32Value(p.y),
			records.Float32Value(p.z),
			records.Uint16Value(p.intensity),
		}
	}
	data, err := records.Pack(atrisense.PointLayout, rows)
	require.NoError(t, err)
	return data
}

var threePoints = []point{
	{scan: 1, x: 1.0, y: 2.0, z: 3.0, intensity: 100},
	{scan: 1, x: -0.5, y: 0.25, z: 8.0, intensity: 200},
	{scan: 2, x: 0, y: 0, z: 0, intensity: 0},
}

func newTestConverter(t *testing.T, mfs *fsutil.MemoryFileSystem, settings *config.ConvertConfig) *Converter {
	t.Helper()
	c, err := NewConverter(ConverterConfig{
		Settings: settings,
		FS:       mfs,
		Clock:    timeutil.NewMockClock(testTime),
		NewRunID: func() string { return "00000000-0000-4000-8000-000000000001" },
	})
	require.NoError(t, err)
	return c
}

func replayOutput(t *testing.T, mfs *fsutil.MemoryFileSystem, path string) *recorder.Replayer {
	t.Helper()
	f, err := mfs.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	rp, err := recorder.NewReplayer(f)
	require.NoError(t, err)
	return rp
}

func TestRunThreeRecords(t *testing.T) {
	for _, encoding := range []string{pointcloud.EncodingProtobuf, pointcloud.EncodingJSON} {
		t.Run(encoding, func(t *testing.T) {
			mfs := fsutil.NewMemoryFileSystem()
			input := packPoints(t, threePoints)
			require.NoError(t, mfs.WriteFile("output.bin", input, 0644))

			c := newTestConverter(t, mfs, &config.ConvertConfig{MessageEncoding: ptr(encoding)})
			res, err := c.Run()
			require.NoError(t, err)
			assert.Equal(t, 3, res.Records)
			assert.Equal(t, 18, res.PointStride)
			assert.Equal(t, encoding, res.Encoding)

			rp := replayOutput(t, mfs, "output.mcap")
			topics, err := rp.Topics()
			require.NoError(t, err)
			require.Len(t, topics, 1)
			assert.Equal(t, "point_cloud", topics[0].Topic)
			assert.Equal(t, pointcloud.SchemaName, topics[0].SchemaName)
			assert.Equal(t, uint64(1), topics[0].MessageCount)

			logged, err := rp.PointClouds("point_cloud")
			require.NoError(t, err)
			require.Len(t, logged, 1)
			assert.Equal(t, uint64(0), logged[0].LogTime)
			assert.Equal(t, uint64(0), logged[0].PublishTime)

			want := &pointcloud.PointCloud{
				FrameID:     "base",
				Pose:        pointcloud.IdentityPose(),
				PointStride: 18,
				Fields: []pointcloud.PackedElementField{
					{Name: "scan_number", Offset: 0, Type: records.Uint32},
					{Name: "x", Offset: 4, Type: records.Float32},
					{Name: "y", Offset: 8, Type: records.Float32},
					{Name: "z", Offset: 12, Type: records.Float32},
					{Name: "intensity", Offset: 16, Type: records.Uint16},
				},
				Data: input,
			}
			if diff := cmp.Diff(want, logged[0].PointCloud); diff != "" {
				t.Errorf("point cloud mismatch (-want +got):\n%s", diff)
			}

			buf, err := logged[0].PointCloud.Records()
			require.NoError(t, err)
			for i, p := range threePoints {
				rec := buf.Record(i)
				scan, err := rec.Uint32("scan_number")
				require.NoError(t, err)
				z, err := rec.Float32("z")
				require.NoError(t, err)
				intensity, err := rec.Uint16("intensity")
				require.NoError(t, err)
				assert.Equal(t, p.scan, scan)
				assert.Equal(t, p.z, z)
				assert.Equal(t, p.intensity, intensity)
			}
		})
	}
}

func TestRunEmptyInput(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("output.bin", nil, 0644))

	res, err := newTestConverter(t, mfs, nil).Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Records)

	logged, err := replayOutput(t, mfs, "output.mcap").PointClouds("point_cloud")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, uint32(18), logged[0].PointCloud.PointStride)
	assert.Len(t, logged[0].PointCloud.Fields, 5)
	assert.Empty(t, logged[0].PointCloud.Data)
}

func TestRunLayoutMismatch(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("output.bin", make([]byte, 19), 0644))

	_, err := newTestConverter(t, mfs, nil).Run()
	var mismatch *records.LayoutMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 19, mismatch.Size)
	assert.Equal(t, 18, mismatch.Stride)
	assert.False(t, mfs.Exists("output.mcap"), "no output on layout mismatch")
}

func TestRunMissingInput(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	_, err := newTestConverter(t, mfs, nil).Run()
	var ioErr *records.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "read", ioErr.Op)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, mfs.Exists("output.mcap"), "no output when the input is missing")
}

func TestRunOverwrite(t *testing.T) {
	t.Run("disabled keeps existing output", func(t *testing.T) {
		mfs := fsutil.NewMemoryFileSystem()
		require.NoError(t, mfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))
		require.NoError(t, mfs.WriteFile("output.mcap", []byte("keep me"), 0644))

		_, err := newTestConverter(t, mfs, &config.ConvertConfig{AllowOverwrite: ptr(false)}).Run()
		var ioErr *records.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "create", ioErr.Op)
		assert.ErrorIs(t, err, fs.ErrExist)

		data, err := mfs.ReadFile("output.mcap")
		require.NoError(t, err)
		assert.Equal(t, "keep me", string(data))
	})

	t.Run("disabled writes a fresh output", func(t *testing.T) {
		mfs := fsutil.NewMemoryFileSystem()
		require.NoError(t, mfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))

		_, err := newTestConverter(t, mfs, &config.ConvertConfig{AllowOverwrite: ptr(false)}).Run()
		require.NoError(t, err)
		assert.True(t, mfs.Exists("output.mcap"))
	})

	t.Run("enabled replaces existing output", func(t *testing.T) {
		mfs := fsutil.NewMemoryFileSystem()
		require.NoError(t, mfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))
		require.NoError(t, mfs.WriteFile("output.mcap", []byte("stale"), 0644))

		_, err := newTestConverter(t, mfs, nil).Run()
		require.NoError(t, err)

		logged, err := replayOutput(t, mfs, "output.mcap").PointClouds("point_cloud")
		require.NoError(t, err)
		assert.Len(t, logged, 1)
	})
}

func TestRunWriteFailureRemovesOutput(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))
	mfs.FailWrites = true

	_, err := newTestConverter(t, mfs, nil).Run()
	var ioErr *records.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "write", ioErr.Op)
	assert.Equal(t, "output.mcap", ioErr.Path)
	assert.False(t, mfs.Exists("output.mcap"), "partial output removed")
}

func TestRunConversionMetadata(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	input := packPoints(t, threePoints)
	require.NoError(t, mfs.WriteFile("scan.bin", input, 0644))

	c := newTestConverter(t, mfs, &config.ConvertConfig{
		InputPath:  ptr("scan.bin"),
		OutputPath: ptr("scan.mcap"),
	})
	res, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(input), res.SourceDigest)
	assert.Equal(t, testTime, res.ConvertedAt)

	scan, err := replayOutput(t, mfs, "scan.mcap").Scan()
	require.NoError(t, err)
	assert.Contains(t, scan.Library, "; atritec/")

	want := map[string]string{
		"source":          "scan.bin",
		"records":         "3",
		"point_stride":    "18",
		"source_xxhash64": res.SourceDigestHex(),
		"run_id":          "00000000-0000-4000-8000-000000000001",
		"converted_at":    "2026-03-14T09:26:53Z",
	}
	assert.Equal(t, want, scan.Metadata[MetadataName])
}

func TestRunCustomTopicAndFrame(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("output.bin", packPoints(t, threePoints[:1]), 0644))

	c := newTestConverter(t, mfs, &config.ConvertConfig{
		Topic:       ptr("lidar/points"),
		FrameID:     ptr(""),
		Compression: ptr(recorder.CompressionNone),
	})
	_, err := c.Run()
	require.NoError(t, err)

	logged, err := replayOutput(t, mfs, "output.mcap").PointClouds("lidar/points")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "", logged[0].PointCloud.FrameID)
}

func TestRunPreservesNaNPayloads(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	nan := math.Float32frombits(0x7fc00123)
	input := packPoints(t, []point{{scan: 7, x: nan, y: float32(math.Inf(-1)), z: float32(math.Copysign(0, -1)), intensity: 65535}})
	require.NoError(t, mfs.WriteFile("output.bin", input, 0644))

	_, err := newTestConverter(t, mfs, nil).Run()
	require.NoError(t, err)

	logged, err := replayOutput(t, mfs, "output.mcap").PointClouds("point_cloud")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.True(t, bytes.Equal(input, logged[0].PointCloud.Data), "data bytes differ")
}

func TestNewConverterDefaults(t *testing.T) {
	c, err := NewConverter(ConverterConfig{})
	require.NoError(t, err)
	assert.Equal(t, fsutil.OSFileSystem{}, c.fs)
	assert.True(t, c.layout.Equal(atrisense.PointLayout))
	assert.Equal(t, pointcloud.EncodingProtobuf, c.codec.MessageEncoding())

	_, err = uuid.Parse(c.newRunID())
	assert.NoError(t, err)
}

func TestNewConverterRejectsInvalidSettings(t *testing.T) {
	_, err := NewConverter(ConverterConfig{Settings: &config.ConvertConfig{MessageEncoding: ptr("cbor")}})
	assert.ErrorContains(t, err, "message_encoding")
}

func TestRunOnDisk(t *testing.T) {
	in := testutil.WriteTempFile(t, "output.bin", packPoints(t, threePoints))
	out := filepath.Join(filepath.Dir(in), "output.mcap")

	c, err := NewConverter(ConverterConfig{
		Settings: &config.ConvertConfig{InputPath: ptr(in), OutputPath: ptr(out)},
	})
	testutil.AssertNoError(t, err)
	res, err := c.Run()
	testutil.AssertNoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rp, err := recorder.NewReplayer(f)
	require.NoError(t, err)
	logged, err := rp.PointClouds("point_cloud")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, res.Records, logged[0].PointCloud.PointCount())
}

func TestLogStreams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))
	_, err := newTestConverter(t, mfs, nil).Run()
	require.NoError(t, err)

	assert.Empty(t, ops.String())
	assert.Contains(t, diag.String(), "[pipeline] ")
	assert.Contains(t, diag.String(), "decoded 3 records")
	assert.Contains(t, trace.String(), "scan_number")

	_, err = newTestConverter(t, fsutil.NewMemoryFileSystem(), nil).Run()
	require.Error(t, err)
	assert.Contains(t, ops.String(), "decode failed")
	assert.False(t, errors.Is(err, fs.ErrExist))
}

// closeFailFS fails every Close on files it creates and optionally every
// Remove.
type closeFailFS struct {
	*fsutil.MemoryFileSystem
	removeErr error
}

type closeFailWriter struct{ io.WriteCloser }

func (w closeFailWriter) Close() error {
	_ = w.WriteCloser.Close()
	return errors.New("disk full")
}

func (f *closeFailFS) Create(name string) (io.WriteCloser, error) {
	w, err := f.MemoryFileSystem.Create(name)
	if err != nil {
		return nil, err
	}
	return closeFailWriter{w}, nil
}

func (f *closeFailFS) Remove(name string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.MemoryFileSystem.Remove(name)
}

func TestRunCloseFailure(t *testing.T) {
	t.Run("removes output", func(t *testing.T) {
		cfs := &closeFailFS{MemoryFileSystem: fsutil.NewMemoryFileSystem()}
		require.NoError(t, cfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))

		c, err := NewConverter(ConverterConfig{FS: cfs, Clock: timeutil.NewMockClock(testTime)})
		require.NoError(t, err)
		_, err = c.Run()
		var ioErr *records.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "close", ioErr.Op)
		assert.False(t, cfs.Exists("output.mcap"), "output removed after close failure")
	})

	t.Run("logs failed removal", func(t *testing.T) {
		var ops bytes.Buffer
		SetLogWriters(&ops, nil, nil)
		t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

		cfs := &closeFailFS{
			MemoryFileSystem: fsutil.NewMemoryFileSystem(),
			removeErr:        errors.New("read-only filesystem"),
		}
		require.NoError(t, cfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))

		c, err := NewConverter(ConverterConfig{FS: cfs, Clock: timeutil.NewMockClock(testTime)})
		require.NoError(t, err)
		_, err = c.Run()
		require.Error(t, err)
		assert.Contains(t, ops.String(), "failed to remove partial output output.mcap: read-only filesystem")
	})
}

func TestRunReportsOutputSize(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("output.bin", packPoints(t, threePoints), 0644))

	res, err := newTestConverter(t, mfs, nil).Run()
	require.NoError(t, err)

	data, err := mfs.ReadFile("output.mcap")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.OutputBytes)
}

func TestNewConverterRefusesToOverwriteSource(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	input := packPoints(t, threePoints)
	require.NoError(t, mfs.WriteFile("output.bin", input, 0644))

	_, err := NewConverter(ConverterConfig{
		Settings: &config.ConvertConfig{OutputPath: ptr("output.bin")},
		FS:       mfs,
	})
	assert.ErrorContains(t, err, "must differ")

	data, err := mfs.ReadFile("output.bin")
	require.NoError(t, err)
	assert.Equal(t, input, data, "source file untouched")
}
