package whatsapp

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

type zapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// NewLogger adapts a zap logger to the whatsmeow logging interface.
func NewLogger(l *zap.Logger) waLog.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{base: l, sugar: l.Sugar()}
}

func (z *zapLogger) Warnf(msg string, args ...interface{})  { z.sugar.Warnf(msg, args...) }
func (z *zapLogger) Errorf(msg string, args ...interface{}) { z.sugar.Errorf(msg, args...) }
func (z *zapLogger) Infof(msg string, args ...interface{})  { z.sugar.Infof(msg, args...) }
func (z *zapLogger) Debugf(msg string, args ...interface{}) { z.sugar.Debugf(msg, args...) }

func (z *zapLogger) Sub(module string) waLog.Logger {
	return NewLogger(z.base.Named(module))
}
