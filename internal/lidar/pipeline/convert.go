package pipeline

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/banshee-data/atritec/internal/config"
	"github.com/banshee-data/atritec/internal/fsutil"
	"github.com/banshee-data/atritec/internal/lidar/atrisense"
	"github.com/banshee-data/atritec/internal/lidar/pointcloud"
	"github.com/banshee-data/atritec/internal/lidar/recorder"
	"github.com/banshee-data/atritec/internal/lidar/records"
	"github.com/banshee-data/atritec/internal/timeutil"
)

// MetadataName is the name of the provenance metadata record.
const MetadataName = "conversion"

// ConverterConfig holds dependencies for a Converter. Nil fields take
// their defaults.
type ConverterConfig struct {
	Settings *config.ConvertConfig // defaults to config.DefaultConvertConfig()
	FS       fsutil.FileSystem     // defaults to fsutil.OSFileSystem
	Clock    timeutil.Clock        // defaults to timeutil.RealClock
	Layout   *records.RecordLayout // defaults to atrisense.PointLayout
	NewRunID func() string         // defaults to uuid.NewString
}

// Result describes a finished conversion.
type Result struct {
	InputPath    string
	OutputPath   string
	Records      int
	PointStride  int
	Encoding     string
	SourceDigest uint64
	RunID        string
	ConvertedAt  time.Time
	OutputBytes  int64
	Duration     time.Duration
}

// SourceDigestHex returns SourceDigest as 16 lowercase hex digits.
func (r *Result) SourceDigestHex() string {
	return fmt.Sprintf("%016x", r.SourceDigest)
}

// Converter converts one packed point file into one MCAP log.
type Converter struct {
	settings *config.ConvertConfig
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	layout   *records.RecordLayout
	codec    pointcloud.Codec
	newRunID func() string
}

// NewConverter validates cfg and resolves its defaults.
func NewConverter(cfg ConverterConfig) (*Converter, error) {
	c := &Converter{
		settings: cfg.Settings,
		fs:       cfg.FS,
		clock:    cfg.Clock,
		layout:   cfg.Layout,
		newRunID: cfg.NewRunID,
	}
	if c.settings == nil {
		c.settings = config.DefaultConvertConfig()
	}
	if err := c.settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversion settings: %w", err)
	}
	if c.fs == nil {
		c.fs = fsutil.OSFileSystem{}
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if c.layout == nil {
		c.layout = atrisense.PointLayout
	}
	if c.newRunID == nil {
		c.newRunID = uuid.NewString
	}

	codec, err := pointcloud.NewCodec(c.settings.GetMessageEncoding())
	if err != nil {
		return nil, err
	}
	c.codec = codec
	return c, nil
}

// Run performs the conversion. Failures are *records.IOError or
// *records.LayoutMismatchError.
func (c *Converter) Run() (*Result, error) {
	start := c.clock.Now()
	in, out := c.settings.GetInputPath(), c.settings.GetOutputPath()
	diagf("converting %s to %s", in, out)

	buf, err := records.Decode(c.layout, c.fs, in)
	if err != nil {
		opsf("decode failed: %v", err)
		return nil, err
	}
	tracef("layout %s", c.layout)
	diagf("decoded %d records (%d bytes)", buf.Len(), len(buf.Bytes()))

	pc := pointcloud.FromRecords(buf, c.settings.GetFrameID(), pointcloud.Timestamp{})

	res := &Result{
		InputPath:    in,
		OutputPath:   out,
		Records:      buf.Len(),
		PointStride:  c.layout.Stride(),
		Encoding:     c.codec.MessageEncoding(),
		SourceDigest: xxhash.Sum64(buf.Bytes()),
		RunID:        c.newRunID(),
		ConvertedAt:  c.clock.Now().UTC(),
	}

	w, err := c.create(out)
	if err != nil {
		opsf("create failed: %v", err)
		return nil, err
	}
	if err := c.write(w, pc, res); err != nil {
		opsf("write failed, removing %s: %v", out, err)
		_ = w.Close()
		c.removePartial(out)
		return nil, &records.IOError{Op: "write", Path: out, Err: err}
	}
	if err := w.Close(); err != nil {
		opsf("close failed, removing %s: %v", out, err)
		c.removePartial(out)
		return nil, &records.IOError{Op: "close", Path: out, Err: err}
	}

	info, err := c.fs.Stat(out)
	if err != nil {
		return nil, &records.IOError{Op: "stat", Path: out, Err: err}
	}
	res.OutputBytes = info.Size()

	res.Duration = c.clock.Since(start)
	diagf("wrote %d points on %q to %s (%d bytes) in %v", res.Records, c.settings.GetTopic(), out, res.OutputBytes, res.Duration)
	return res, nil
}

func (c *Converter) removePartial(path string) {
	if err := c.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		opsf("failed to remove partial output %s: %v", path, err)
	}
}

// create opens the destination, refusing to replace an existing file when
// overwrite is disabled.
func (c *Converter) create(path string) (io.WriteCloser, error) {
	var (
		w   io.WriteCloser
		err error
	)
	if c.settings.GetAllowOverwrite() {
		w, err = c.fs.Create(path)
	} else {
		w, err = c.fs.CreateNew(path)
	}
	if err != nil {
		return nil, &records.IOError{Op: "create", Path: path, Err: err}
	}
	return w, nil
}

func (c *Converter) write(w io.Writer, pc *pointcloud.PointCloud, res *Result) error {
	rec, err := recorder.NewRecorder(w, recorder.Options{
		Compression: c.settings.GetCompression(),
		ChunkSize:   c.settings.GetChunkSize(),
	})
	if err != nil {
		return err
	}

	ch, err := rec.Channel(c.settings.GetTopic(), c.codec)
	if err != nil {
		return err
	}
	if err := ch.Log(pc, 0, 0); err != nil {
		return err
	}
	if err := rec.WriteMetadata(MetadataName, conversionMetadata(res)); err != nil {
		return err
	}
	return rec.Close()
}

func conversionMetadata(res *Result) map[string]string {
	return map[string]string{
		"source":          res.InputPath,
		"records":         strconv.Itoa(res.Records),
		"point_stride":    strconv.Itoa(res.PointStride),
		"source_xxhash64": res.SourceDigestHex(),
		"run_id":          res.RunID,
		"converted_at":    res.ConvertedAt.Format(time.RFC3339),
	}
}
