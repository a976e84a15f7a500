package recorder

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/foxglove/mcap/go/mcap"

	"github.com/banshee-data/atritec/internal/lidar/pointcloud"
)

// TopicInfo describes one channel found in a log.
type TopicInfo struct {
	Topic           string
	SchemaName      string
	MessageEncoding string
	MessageCount    uint64
}

// LoggedPointCloud is a decoded message with its record timing.
type LoggedPointCloud struct {
	Topic       string
	Sequence    uint32
	LogTime     uint64
	PublishTime uint64
	PointCloud  *pointcloud.PointCloud
}

// Replayer reads point clouds back from an MCAP stream.
type Replayer struct {
	rs     io.ReadSeeker
	reader *mcap.Reader
}

// NewReplayer opens an MCAP stream for reading.
func NewReplayer(rs io.ReadSeeker) (*Replayer, error) {
	reader, err := mcap.NewReader(rs)
	if err != nil {
		return nil, fmt.Errorf("failed to open mcap: %w", err)
	}
	return &Replayer{rs: rs, reader: reader}, nil
}

// Topics lists the channels in the log, sorted by topic.
func (r *Replayer) Topics() ([]TopicInfo, error) {
	info, err := r.reader.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read mcap summary: %w", err)
	}

	topics := make([]TopicInfo, 0, len(info.Channels))
	for id, ch := range info.Channels {
		t := TopicInfo{Topic: ch.Topic, MessageEncoding: ch.MessageEncoding}
		if schema, ok := info.Schemas[ch.SchemaID]; ok && schema != nil {
			t.SchemaName = schema.Name
		}
		if info.Statistics != nil {
			t.MessageCount = info.Statistics.ChannelMessageCounts[id]
		}
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Topic < topics[j].Topic })
	return topics, nil
}

// PointClouds decodes every message on topic in log order.
func (r *Replayer) PointClouds(topic string) ([]LoggedPointCloud, error) {
	it, err := r.reader.Messages(mcap.WithTopics([]string{topic}))
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	var out []LoggedPointCloud
	for {
		schema, channel, msg, err := it.Next(nil)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		if schema == nil {
			return nil, fmt.Errorf("topic %s has no schema", channel.Topic)
		}

		codec, err := pointcloud.CodecForChannel(schema.Name, channel.MessageEncoding)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", channel.Topic, err)
		}
		pc, err := codec.Unmarshal(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("topic %s message %d: %w", channel.Topic, msg.Sequence, err)
		}

		out = append(out, LoggedPointCloud{
			Topic:       channel.Topic,
			Sequence:    msg.Sequence,
			LogTime:     msg.LogTime,
			PublishTime: msg.PublishTime,
			PointCloud:  pc,
		})
	}
	return out, nil
}

// Scan holds the header and metadata records of a log.
type Scan struct {
	Library  string
	Profile  string
	Metadata map[string]map[string]string
}

// Scan lexes the log from the start and collects its header and metadata
// records.
func (r *Replayer) Scan() (*Scan, error) {
	if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind mcap: %w", err)
	}
	lexer, err := mcap.NewLexer(r.rs)
	if err != nil {
		return nil, fmt.Errorf("failed to lex mcap: %w", err)
	}
	defer lexer.Close()

	scan := &Scan{Metadata: make(map[string]map[string]string)}
	for {
		token, record, err := lexer.Next(nil)
		if errors.Is(err, io.EOF) {
			return scan, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mcap record: %w", err)
		}

		switch token {
		case mcap.TokenHeader:
			header, err := mcap.ParseHeader(record)
			if err != nil {
				return nil, fmt.Errorf("failed to parse header: %w", err)
			}
			scan.Library = header.Library
			scan.Profile = header.Profile
		case mcap.TokenMetadata:
			md, err := mcap.ParseMetadata(record)
			if err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			scan.Metadata[md.Name] = md.Metadata
		case mcap.TokenFooter:
			return scan, nil
		}
	}
}
