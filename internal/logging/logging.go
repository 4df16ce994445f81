package logging

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the level and sink. An empty File logs to stderr.
type Options struct {
	Level string
	File  string
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// New builds a JSON logger. File sinks are rotated by lumberjack.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}

	var sink zapcore.WriteSyncer
	if opts.File == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename: opts.File, MaxSize: 50, MaxAge: 14, Compress: true,
		})
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, level)
	return zap.New(core, zap.AddCaller()), nil
}

// LogDuration lets you do: defer logging.LogDuration(logger, "gemini_complete")()
func LogDuration(logger *zap.Logger, name string) func() {
	start := time.Now()
	return func() {
		logger.Debug("Function timed",
			zap.String("func", name),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}
