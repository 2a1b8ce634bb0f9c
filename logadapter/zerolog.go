package logadapter

import (
	"github.com/rs/zerolog"
)

// ZerologLogger forwards key/value pairs as zerolog fields.
type ZerologLogger struct {
	l zerolog.Logger
}

// Zerolog wraps l.
func Zerolog(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

func (z *ZerologLogger) Debug(msg string, args ...any) { event(z.l.Debug(), args).Msg(msg) }
func (z *ZerologLogger) Info(msg string, args ...any)  { event(z.l.Info(), args).Msg(msg) }
func (z *ZerologLogger) Warn(msg string, args ...any)  { event(z.l.Warn(), args).Msg(msg) }
func (z *ZerologLogger) Error(msg string, args ...any) { event(z.l.Error(), args).Msg(msg) }

func event(e *zerolog.Event, args []any) *zerolog.Event {
	if len(args) == 0 {
		return e
	}
	return e.Fields(args)
}
