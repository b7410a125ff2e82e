package wa

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// zapLogger adapts zap to whatsmeow's logger interface.
type zapLogger struct {
	l *zap.SugaredLogger
}

// NewLogger returns a whatsmeow logger that writes through zap.
func NewLogger(logger *zap.Logger) waLog.Logger {
	return zapLogger{l: logger.Sugar()}
}

func (z zapLogger) Errorf(msg string, args ...interface{}) { z.l.Errorf(msg, args...) }
func (z zapLogger) Warnf(msg string, args ...interface{})  { z.l.Warnf(msg, args...) }
func (z zapLogger) Infof(msg string, args ...interface{})  { z.l.Infof(msg, args...) }
func (z zapLogger) Debugf(msg string, args ...interface{}) { z.l.Debugf(msg, args...) }

func (z zapLogger) Sub(module string) waLog.Logger {
	return zapLogger{l: z.l.Named(module)}
}
