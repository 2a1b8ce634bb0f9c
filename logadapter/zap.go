package logadapter

import (
	"go.uber.org/zap"
)

// ZapLogger forwards key/value pairs to a zap SugaredLogger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// Zap wraps l. A nil l yields a no-op logger.
func Zap(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{s: l.Sugar()}
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.s.Sync()
}
