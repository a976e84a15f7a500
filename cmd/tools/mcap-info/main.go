// Command mcap-info prints the header, metadata and per-field point
// statistics of an MCAP log written by bin2mcap.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/banshee-data/atritec/internal/fsutil"
	"github.com/banshee-data/atritec/internal/lidar/pointcloud"
	"github.com/banshee-data/atritec/internal/lidar/recorder"
)

func main() {
	topic := flag.String("topic", "", "only summarise this topic (default: all)")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-topic name] <file.mcap>\n", os.Args[0])
		os.Exit(2)
	}

	if err := run(os.Stdout, fsutil.OSFileSystem{}, flag.Arg(0), *topic); err != nil {
		log.Fatalf("mcap-info: %v", err)
	}
}

func run(w io.Writer, fsys fsutil.FileSystem, path, only string) error {
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rp, err := recorder.NewReplayer(f)
	if err != nil {
		return err
	}

	scan, err := rp.Scan()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "library: %s\n", scan.Library)
	names := make([]string, 0, len(scan.Metadata))
	for name := range scan.Metadata {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "metadata %s:\n", name)
		md := scan.Metadata[name]
		keys := make([]string, 0, len(md))
		for k := range md {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %s\n", k, md[k])
		}
	}

	topics, err := rp.Topics()
	if err != nil {
		return err
	}
	for _, t := range topics {
		if only != "" && t.Topic != only {
			continue
		}
		fmt.Fprintf(w, "topic %s [%s, %s]: %d messages\n", t.Topic, t.SchemaName, t.MessageEncoding, t.MessageCount)

		logged, err := rp.PointClouds(t.Topic)
		if err != nil {
			return err
		}
		for _, l := range logged {
			if err := describe(w, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func describe(w io.Writer, l recorder.LoggedPointCloud) error {
	pc := l.PointCloud
	fmt.Fprintf(w, " #%d log_time=%d frame=%q stride=%d points=%d\n",
		l.Sequence, l.LogTime, pc.FrameID, pc.PointStride, pc.PointCount())
	buf, err := pc.Records()
	if err != nil {
		return fmt.Errorf("message %d: %w", l.Sequence, err)
	}
	return pointcloud.WriteSummary(w, pointcloud.Summarize(buf))
}
