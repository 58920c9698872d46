// Package logging provides structured logging configuration.
package logging

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration options.
type Config struct {
	Level  string `env:"SALONRELAY_LOG_LEVEL" envDefault:"info"`   // debug|info|warn|error
	Format string `env:"SALONRELAY_LOG_FORMAT" envDefault:"json"` // json|console

	// File enables a rotated copy of the log stream. Empty disables it.
	File       string `env:"SALONRELAY_LOG_FILE"`
	MaxSizeMB  int    `env:"SALONRELAY_LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"SALONRELAY_LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"SALONRELAY_LOG_MAX_AGE_DAYS" envDefault:"14"`
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	opts := []zap.Option{zap.AddCaller()}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zcfg.EncoderConfig),
			zapcore.AddSync(rotator),
			zcfg.Level,
		)
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	logger, err := zcfg.Build(opts...)
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "salonrelay"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Tenant returns a zap field for a tenant identifier.
func Tenant(id string) zap.Field { return zap.String("tenant", id) }

// Port returns a zap field for the port number.
func Port(port int) zap.Field { return zap.Int("port", port) }

// State returns a zap field for a pairing state.
func State(state string) zap.Field { return zap.String("state", state) }

// Chat returns a zap field for a chat identifier.
func Chat(id string) zap.Field { return zap.String("chat", id) }

// MessageID returns a zap field for a chat message identifier.
func MessageID(id string) zap.Field { return zap.String("message_id", id) }

// Outcome returns a zap field for a relay outcome.
func Outcome(outcome string) zap.Field { return zap.String("outcome", outcome) }

// URL returns a zap field for a URL.
func URL(u string) zap.Field { return zap.String("url", u) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// Path returns a zap field for a URL path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Status returns a zap field for an HTTP status code.
func Status(code int) zap.Field { return zap.Int("status", code) }

// RemoteAddr returns a zap field for a remote address.
func RemoteAddr(addr string) zap.Field { return zap.String("remote_addr", addr) }

// RequestID returns a zap field for a request correlation id.
func RequestID(id string) zap.Field { return zap.String("request_id", id) }
