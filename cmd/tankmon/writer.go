package main

import (
	"fmt"
	"os"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/config"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sink"
)

// newWriters sets up report and command sinks based on config, flags and env vars.
// It returns the writer and a cleanup function to close any resources.
func newWriters(cfg *config.Config, printOnly bool) (sink.Writer, func(), error) {
	cleanup := func() {}
	sc := config.Default().Sink
	if cfg != nil {
		sc = cfg.Sink
	}

	var writers []sink.Writer
	switch {
	case printOnly && sc.Stdout == "json":
		writers = append(writers, sink.NewJSONStdoutWriter())
	case printOnly:
		writers = append(writers, sink.NewStdoutWriter())
	case sc.Stdout == "text":
		writers = append(writers, sink.NewStdoutWriter())
	case sc.Stdout == "json":
		writers = append(writers, sink.NewJSONStdoutWriter())
	}

	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" && !printOnly {
		database := os.Getenv("GREPTIMEDB_DATABASE")
		if database == "" {
			database = "public"
		}
		gw, err := sink.NewGreptimeDBWriter(endpoint, database, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("init GreptimeDB writer: %w", err)
		}
		writers = append(writers, gw)
	}

	if sc.File != "" {
		fw, err := sink.NewFileWriter(sc.File, sc.CommandFile)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
		cleanup = func() { fw.Close() }
	}

	switch len(writers) {
	case 0:
		return sink.Discard{}, cleanup, nil
	case 1:
		return writers[0], cleanup, nil
	default:
		return sink.NewMultiWriter(writers...), cleanup, nil
	}
}
