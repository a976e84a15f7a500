package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/banshee-data/atritec/internal/lidar/pointcloud"
	"github.com/banshee-data/atritec/internal/lidar/recorder"
)

// DefaultConfigPath is where bin2mcap looks for an optional override file.
const DefaultConfigPath = "config/bin2mcap.json"

// Built-in conversion defaults. These hold when no config file exists.
const (
	DefaultInputPath       = "output.bin"
	DefaultOutputPath      = "output.mcap"
	DefaultAllowOverwrite  = true
	DefaultTopic           = "point_cloud"
	DefaultFrameID         = "base"
	DefaultMessageEncoding = pointcloud.EncodingProtobuf
	DefaultCompression     = recorder.CompressionZSTD
	DefaultChunkSize       = recorder.DefaultChunkSize
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ConvertConfig holds the conversion settings. Every field is optional;
// the Get* methods fall back to the built-in defaults.
type ConvertConfig struct {
	InputPath       *string `json:"input_path,omitempty"`
	OutputPath      *string `json:"output_path,omitempty"`
	AllowOverwrite  *bool   `json:"allow_overwrite,omitempty"`
	Topic           *string `json:"topic,omitempty"`
	FrameID         *string `json:"frame_id,omitempty"`
	MessageEncoding *string `json:"message_encoding,omitempty"` // "protobuf" or "json"
	Compression     *string `json:"compression,omitempty"`      // "zstd", "lz4" or "none"
	ChunkSize       *int64  `json:"chunk_size,omitempty"`
}

// DefaultConvertConfig returns an empty config, which resolves every
// setting to its default.
func DefaultConvertConfig() *ConvertConfig {
	return &ConvertConfig{}
}

// LoadConvertConfig loads a ConvertConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConvertConfig(path string) (*ConvertConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConvertConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults if it
// does not. Any other failure is returned.
func LoadOrDefault(path string) (*ConvertConfig, bool, error) {
	if _, err := os.Stat(filepath.Clean(path)); errors.Is(err, fs.ErrNotExist) {
		return DefaultConvertConfig(), false, nil
	}
	cfg, err := LoadConvertConfig(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Validate checks that the configuration values are valid.
func (c *ConvertConfig) Validate() error {
	if c.InputPath != nil && *c.InputPath == "" {
		return fmt.Errorf("input_path must not be empty")
	}
	if c.OutputPath != nil && *c.OutputPath == "" {
		return fmt.Errorf("output_path must not be empty")
	}
	// Compare resolved paths so a single override cannot collide with the
	// other side's default.
	if in, out := c.GetInputPath(), c.GetOutputPath(); filepath.Clean(in) == filepath.Clean(out) {
		return fmt.Errorf("input_path and output_path must differ, both are %q", in)
	}
	if c.Topic != nil && *c.Topic == "" {
		return fmt.Errorf("topic must not be empty")
	}
	if c.MessageEncoding != nil {
		switch *c.MessageEncoding {
		case pointcloud.EncodingProtobuf, pointcloud.EncodingJSON:
		default:
			return fmt.Errorf("message_encoding must be %q or %q, got %q",
				pointcloud.EncodingProtobuf, pointcloud.EncodingJSON, *c.MessageEncoding)
		}
	}
	if c.Compression != nil {
		switch *c.Compression {
		case recorder.CompressionZSTD, recorder.CompressionLZ4, recorder.CompressionNone:
		default:
			return fmt.Errorf("compression must be one of zstd, lz4, none, got %q", *c.Compression)
		}
	}
	if c.ChunkSize != nil && *c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	return nil
}

// GetInputPath returns the input_path value or the default.
func (c *ConvertConfig) GetInputPath() string {
	if c.InputPath == nil {
		return DefaultInputPath
	}
	return *c.InputPath
}

// GetOutputPath returns the output_path value or the default.
func (c *ConvertConfig) GetOutputPath() string {
	if c.OutputPath == nil {
		return DefaultOutputPath
	}
	return *c.OutputPath
}

// GetAllowOverwrite returns the allow_overwrite value or the default.
func (c *ConvertConfig) GetAllowOverwrite() bool {
	if c.AllowOverwrite == nil {
		return DefaultAllowOverwrite
	}
	return *c.AllowOverwrite
}

// GetTopic returns the topic value or the default.
func (c *ConvertConfig) GetTopic() string {
	if c.Topic == nil {
		return DefaultTopic
	}
	return *c.Topic
}

// GetFrameID returns the frame_id value or the default. An empty frame id
// is allowed.
func (c *ConvertConfig) GetFrameID() string {
	if c.FrameID == nil {
		return DefaultFrameID
	}
	return *c.FrameID
}

// GetMessageEncoding returns the message_encoding value or the default.
func (c *ConvertConfig) GetMessageEncoding() string {
	if c.MessageEncoding == nil {
		return DefaultMessageEncoding
	}
	return *c.MessageEncoding
}

// GetCompression returns the compression value or the default.
func (c *ConvertConfig) GetCompression() string {
	if c.Compression == nil {
		return DefaultCompression
	}
	return *c.Compression
}

// GetChunkSize returns the chunk_size value or the default.
func (c *ConvertConfig) GetChunkSize() int64 {
	if c.ChunkSize == nil {
		return DefaultChunkSize
	}
	return *c.ChunkSize
}
