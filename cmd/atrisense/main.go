// Command atrisense converts a raw Atrisense scanner dump (angles and range
// per return) into the packed point file read by bin2mcap.
//
// Usage:
//
//	atrisense [-o output.bin] <input>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/atritec/internal/fsutil"
	"github.com/banshee-data/atritec/internal/lidar/atrisense"
)

var output = flag.String("o", "output.bin", "output path for the packed point file")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-o output.bin] <input>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(fsutil.OSFileSystem{}, flag.Arg(0), *output); err != nil {
		log.Fatalf("atrisense: %v", err)
	}
}

func run(fsys fsutil.FileSystem, in, out string) error {
	if in == out {
		return fmt.Errorf("input and output are the same file: %s", in)
	}
	n, err := atrisense.ConvertFile(fsys, in, out)
	if err != nil {
		return err
	}
	log.Printf("✓ Created: %s (%d points)", out, n)
	return nil
}
