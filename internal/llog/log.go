// Package llog builds the process-wide zap logger.
package llog

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logTimeFormat = "2006-01-02 15:04:05.000"

var (
	mu       sync.RWMutex
	log      = zap.NewNop().Sugar()
	logLevel = zap.NewAtomicLevel()
)

type config struct {
	// debug, info, warn, error, dpanic, panic, fatal
	level string
	// console or json
	encoding string
	// rotated log file; empty disables file output
	filename     string
	enableCaller bool
	serviceName  string
	output       io.Writer
	timeEncoder  zapcore.TimeEncoder
}

func (c *config) init() {
	if c.level == "" {
		c.level = "info"
	}
	if c.encoding == "" {
		c.encoding = "console"
	}
	if c.output == nil {
		c.output = os.Stderr
	}
	if c.timeEncoder == nil {
		c.timeEncoder = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format(logTimeFormat))
		}
	}
}

type LoggerOption func(cfg *config)

func WithLevel(level string) LoggerOption {
	return func(cfg *config) { cfg.level = level }
}

func WithEncoding(encoding string) LoggerOption {
	return func(cfg *config) { cfg.encoding = encoding }
}

func WithFilename(filename string) LoggerOption {
	return func(cfg *config) { cfg.filename = filename }
}

func WithEnableCaller(enableCaller bool) LoggerOption {
	return func(cfg *config) { cfg.enableCaller = enableCaller }
}

func WithServiceName(serviceName string) LoggerOption {
	return func(cfg *config) { cfg.serviceName = serviceName }
}

// WithOutput replaces the console writer (stderr by default).
func WithOutput(w io.Writer) LoggerOption {
	return func(cfg *config) { cfg.output = w }
}

// SetLevel changes the level of every logger built by InitLogger.
func SetLevel(level string) error {
	return logLevel.UnmarshalText([]byte(level))
}

// InitLogger builds a logger, installs it as the package default and
// returns it together with a flush func for shutdown.
func InitLogger(opts ...LoggerOption) (*zap.SugaredLogger, func(), error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.init()

	if err := logLevel.UnmarshalText([]byte(cfg.level)); err != nil {
		return nil, nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = cfg.timeEncoder
	encoderConfig.StacktraceKey = ""

	var cores []zapcore.Core
	if cfg.filename != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.filename,
				MaxSize:    10, // MB
				MaxBackups: 7,
				MaxAge:     30, // days
				Compress:   true,
			}),
			logLevel,
		))
	}

	var consoleEncoder zapcore.Encoder
	if cfg.encoding == "json" {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(cfg.output), logLevel))

	zapLogger := zap.New(zapcore.NewTee(cores...))
	if cfg.enableCaller {
		zapLogger = zapLogger.WithOptions(zap.AddCaller())
	}
	if cfg.serviceName != "" {
		zapLogger = zapLogger.With(zap.String("service", cfg.serviceName))
	}

	sugar := zapLogger.Sugar()
	mu.Lock()
	log = sugar
	mu.Unlock()
	return sugar, func() { _ = sugar.Sync() }, nil
}

// GetLogger returns the logger installed by InitLogger, or a no-op logger.
func GetLogger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}
