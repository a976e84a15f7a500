// Package recorder writes point clouds to MCAP log files and reads them
// back.
package recorder

import (
	"fmt"
	"io"
	"sync"

	"github.com/foxglove/mcap/go/mcap"

	"github.com/banshee-data/atritec/internal/lidar/pointcloud"
	"github.com/banshee-data/atritec/internal/version"
)

// FileExtension is the extension for MCAP log files.
const FileExtension = ".mcap"

// DefaultChunkSize is the uncompressed size at which a chunk is flushed.
const DefaultChunkSize = 4 * 1024 * 1024

// Chunk compression names accepted by Options.
const (
	CompressionZSTD = "zstd"
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// Options configures a Recorder.
type Options struct {
	// Compression is one of CompressionZSTD (default), CompressionLZ4 or
	// CompressionNone.
	Compression string
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int64
	// Library is appended to the mcap writer's own identifier in the header
	// library field. Defaults to version.Library().
	Library string
}

func compressionFormat(name string) (mcap.CompressionFormat, error) {
	switch name {
	case "", CompressionZSTD:
		return mcap.CompressionZSTD, nil
	case CompressionLZ4:
		return mcap.CompressionLZ4, nil
	case CompressionNone:
		return mcap.CompressionNone, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", name)
	}
}

// Recorder writes point cloud messages to an MCAP stream. Schemas and
// channels are registered on first use.
type Recorder struct {
	w *mcap.Writer

	schemas       map[string]uint16
	channels      map[string]*Channel
	nextSchemaID  uint16
	nextChannelID uint16
	messageCount  uint64

	mu     sync.Mutex
	closed bool
}

// NewRecorder writes the MCAP header to out and returns a Recorder. The
// caller owns out and must close it after Close.
func NewRecorder(out io.Writer, opts Options) (*Recorder, error) {
	compression, err := compressionFormat(opts.Compression)
	if err != nil {
		return nil, err
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	library := opts.Library
	if library == "" {
		library = version.Library()
	}

	w, err := mcap.NewWriter(out, &mcap.WriterOptions{
		Chunked:     true,
		ChunkSize:   chunkSize,
		Compression: compression,
		IncludeCRC:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mcap writer: %w", err)
	}
	if err := w.WriteHeader(&mcap.Header{Library: library}); err != nil {
		return nil, fmt.Errorf("failed to write mcap header: %w", err)
	}

	return &Recorder{
		w:            w,
		schemas:      make(map[string]uint16),
		channels:     make(map[string]*Channel),
		nextSchemaID: 1, // schema id 0 means "no schema"
	}, nil
}

// Channel is a registered topic.
type Channel struct {
	r     *Recorder
	id    uint16
	topic string
	codec pointcloud.Codec
	seq   uint32
}

// Topic returns the channel's topic.
func (c *Channel) Topic() string { return c.topic }

// Channel registers topic with codec, writing the schema and channel
// records the first time. Asking for an existing topic with a different
// encoding is an error.
func (r *Recorder) Channel(topic string, codec pointcloud.Codec) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("recorder is closed")
	}
	if ch, ok := r.channels[topic]; ok {
		if ch.codec.MessageEncoding() != codec.MessageEncoding() {
			return nil, fmt.Errorf("topic %q already registered with encoding %q", topic, ch.codec.MessageEncoding())
		}
		return ch, nil
	}

	schemaKey := codec.SchemaName() + "/" + codec.SchemaEncoding()
	schemaID, ok := r.schemas[schemaKey]
	if !ok {
		schemaID = r.nextSchemaID
		err := r.w.WriteSchema(&mcap.Schema{
			ID:       schemaID,
			Name:     codec.SchemaName(),
			Encoding: codec.SchemaEncoding(),
			Data:     codec.SchemaData(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to write schema %s: %w", codec.SchemaName(), err)
		}
		r.schemas[schemaKey] = schemaID
		r.nextSchemaID++
	}

	ch := &Channel{r: r, id: r.nextChannelID, topic: topic, codec: codec}
	err := r.w.WriteChannel(&mcap.Channel{
		ID:              ch.id,
		SchemaID:        schemaID,
		Topic:           topic,
		MessageEncoding: codec.MessageEncoding(),
		Metadata:        map[string]string{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write channel %s: %w", topic, err)
	}
	r.channels[topic] = ch
	r.nextChannelID++

	return ch, nil
}

// Log encodes pc and writes it with the given log and publish times in
// nanoseconds.
func (c *Channel) Log(pc *pointcloud.PointCloud, logTime, publishTime uint64) error {
	if pc == nil {
		return fmt.Errorf("nil point cloud")
	}
	data, err := c.codec.Marshal(pc)
	if err != nil {
		return err
	}

	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	err = r.w.WriteMessage(&mcap.Message{
		ChannelID:   c.id,
		Sequence:    c.seq,
		LogTime:     logTime,
		PublishTime: publishTime,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("failed to write message on %s: %w", c.topic, err)
	}
	c.seq++
	r.messageCount++
	return nil
}

// WriteMetadata writes a named metadata record.
func (r *Recorder) WriteMetadata(name string, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if err := r.w.WriteMetadata(&mcap.Metadata{Name: name, Metadata: values}); err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", name, err)
	}
	return nil
}

// MessageCount returns the number of messages written.
func (r *Recorder) MessageCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messageCount
}

// Close flushes the last chunk and writes the summary and footer. It does
// not close the underlying writer. Calling Close twice is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.w.Close(); err != nil {
		return fmt.Errorf("failed to finalise mcap: %w", err)
	}
	return nil
}
