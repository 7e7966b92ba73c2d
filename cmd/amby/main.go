package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"goa.design/amby/broker"
	"goa.design/amby/config"
	"goa.design/amby/telemetry"
)

// defaultConfigPath is used when no path is given on the command line. CLI
// argument parsing beyond this single positional path is out of scope.
const defaultConfigPath = "amby.yaml"

func main() {
	path := defaultConfigPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "amby: fatal: config %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "amby: no config at %s, using defaults (%v)\n", path, err)
		cfg = config.Default()
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	var tracer telemetry.Tracer = telemetry.NewNoopTracer()
	if cfg.TracingEnabled {
		tracer = telemetry.NewClueTracer()
	}

	b := broker.New(cfg, logger, metrics, tracer)
	if err := b.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "amby: fatal: %v\n", err)
		os.Exit(1)
	}
}
