// Package logging sets up the host tools' zerolog logger and the rotating
// file that collects device trace lines.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger installs a console logger tagged with app as the global
// logger and returns it.
func InitLogger(app string, level zerolog.Level) zerolog.Logger {
	return NewLogger(os.Stderr, app, level, true)
}

// NewLogger builds a logger on out without touching the global one unless
// global is set.
func NewLogger(out io.Writer, app string, level zerolog.Level, global bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    out != os.Stderr && out != os.Stdout,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	if global {
		log.Logger = logger
	}
	return logger
}

// ParseLevel maps a config string to a zerolog level. Empty or unknown
// strings give info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// TraceSink receives device trace lines.
type TraceSink struct {
	logger zerolog.Logger
	file   *lumberjack.Logger
}

// Rotation limits for the trace file.
const (
	TraceMaxSizeMB  = 10
	TraceMaxBackups = 3
	TraceMaxAgeDays = 28
)

// NewTraceSink writes trace lines to path, rotated by lumberjack, or to
// logger at debug level when path is empty.
func NewTraceSink(logger zerolog.Logger, path string) *TraceSink {
	sink := &TraceSink{logger: logger}
	if path != "" {
		sink.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    TraceMaxSizeMB,
			MaxBackups: TraceMaxBackups,
			MaxAge:     TraceMaxAgeDays,
		}
	}
	return sink
}

// Write records one trace line. It matches core.DebugWriter.
func (s *TraceSink) Write(line string) {
	if s.file == nil {
		s.logger.Debug().Str("source", "device").Msg(line)
		return
	}
	stamp := time.Now().Format(time.RFC3339Nano)
	_, err := s.file.Write([]byte(stamp + " " + line + "\n"))
	if err != nil {
		s.logger.Warn().Err(err).Msg("trace file write failed")
	}
}

func (s *TraceSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
