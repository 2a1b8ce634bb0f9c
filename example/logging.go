package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Zereker/framesock"
	"github.com/Zereker/framesock/logadapter"
)

// newLogger builds the logger selected by format: "console" (zerolog),
// "json" (zap production) or "ecs" (zap with the Elastic Common Schema encoder).
// The returned func flushes buffered entries.
func newLogger(format, level string) (framesock.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	switch format {
	case "", "console":
		zlvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		l := zerolog.New(out).Level(zlvl).With().Timestamp().Logger()
		return logadapter.Zerolog(l), func() {}, nil

	case "json":
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		l, err := zc.Build()
		if err != nil {
			return nil, nil, err
		}
		zl := logadapter.Zap(l)
		return zl, func() { _ = zl.Sync() }, nil

	case "ecs":
		core := ecszap.NewCore(ecszap.NewDefaultEncoderConfig(), zapcore.Lock(os.Stdout), lvl)
		zl := logadapter.Zap(zap.New(core, zap.AddCaller()))
		return zl, func() { _ = zl.Sync() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown log format %q", format)
	}
}
