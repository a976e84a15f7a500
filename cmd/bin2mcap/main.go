// Command bin2mcap converts the packed point file output.bin into the MCAP
// log output.mcap holding one foxglove.PointCloud message.
//
// It takes no arguments. Paths and overwrite behaviour come from the
// built-in defaults, optionally overridden by config/bin2mcap.json.
package main

import (
	"log"
	"os"

	"github.com/banshee-data/atritec/internal/config"
	"github.com/banshee-data/atritec/internal/lidar/pipeline"
	"github.com/banshee-data/atritec/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("bin2mcap: %v", err)
	}
}

func run() error {
	pipeline.SetLogWriters(os.Stderr, os.Stderr, nil)
	log.Printf("bin2mcap %s (commit %s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg, found, err := config.LoadOrDefault(config.DefaultConfigPath)
	if err != nil {
		return err
	}
	if found {
		log.Printf("using %s", config.DefaultConfigPath)
	}

	conv, err := pipeline.NewConverter(pipeline.ConverterConfig{Settings: cfg})
	if err != nil {
		return err
	}
	res, err := conv.Run()
	if err != nil {
		return err
	}

	log.Printf("✓ Created: %s (%d points, run %s)", res.OutputPath, res.Records, res.RunID)
	return nil
}
